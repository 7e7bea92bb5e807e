package meta

import (
	"fmt"
	"reflect"
)

// Annotator 为一个类型注册类型标记和方法标记。
//
// 示例：
//
//	meta.Annotate[*Bar]().
//		Type(Transactional{}).
//		Method("Init", di.OnInit{}).
//		Method("Say", threading.Synchronized{})
type Annotator struct {
	r   *Reflector
	typ reflect.Type
}

// Annotate 在默认 Reflector 上为类型 T 注册标记
func Annotate[T any]() *Annotator {
	return Default.Annotate(reflect.TypeOf((*T)(nil)).Elem())
}

// Type 为类型本身添加标记
func (a *Annotator) Type(markers ...any) *Annotator {
	a.r.addTypeMarkers(a.typ, markers)
	return a
}

// Method 为指定方法添加标记。
// 方法必须存在于类型或其指针类型的方法集中，否则 panic（定义期错误）。
func (a *Annotator) Method(name string, markers ...any) *Annotator {
	if !hasMethod(a.typ, name) {
		panic(fmt.Sprintf("meta: type %v has no exported method %s", a.typ, name))
	}
	a.r.addMethodMarkers(a.typ, name, markers)
	return a
}

func hasMethod(t reflect.Type, name string) bool {
	if _, ok := t.MethodByName(name); ok {
		return true
	}
	if t.Kind() != reflect.Ptr && t.Kind() != reflect.Interface {
		_, ok := reflect.PointerTo(t).MethodByName(name)
		return ok
	}
	return false
}
