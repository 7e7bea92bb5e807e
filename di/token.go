package di

import "reflect"

// TypeOf 获取类型 T 的 reflect.Type（泛型辅助函数）
//
// 示例：
//
//	userServiceType := di.TypeOf[UserService]()
//	instance, _ := container.Get(userServiceType)
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// containerType 是 *Container 的反射类型，构造函数可以直接声明它作为参数
var containerType = TypeOf[*Container]()

// implements 判断具体类型 t 是否可作为 target 使用
func implements(t, target reflect.Type) bool {
	if t == target {
		return true
	}
	if target.Kind() == reflect.Interface {
		return t.Implements(target)
	}
	return false
}
