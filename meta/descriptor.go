package meta

import (
	"reflect"
	"strings"
)

// Annotation 是附加在类型或方法上的一个标记。
// 标记是普通的 Go 值，其动态类型即为标记的身份；Seq 是全局注册序号。
type Annotation struct {
	Value any
	Seq   uint64
}

// Type 返回标记的身份类型
func (a Annotation) Type() reflect.Type {
	return reflect.TypeOf(a.Value)
}

// Method 描述一个可拦截的方法（连接点）
type Method struct {
	Name        string
	Owner       reflect.Type   // 声明该方法的类型
	Index       int            // 在 Owner 方法集中的下标
	Params      []reflect.Type // 不含接收者
	Results     []reflect.Type
	Variadic    bool
	Async       bool // 第一个返回值为 *async.Future
	Annotations []Annotation
}

// HasMarker 判断方法是否带有指定标记
func (m *Method) HasMarker(marker any) bool {
	return hasMarker(m.Annotations, marker)
}

// Marker 返回方法上第一个与 marker 同类型的标记
func (m *Method) Marker(marker any) (Annotation, bool) {
	return findMarker(m.Annotations, marker)
}

// ReturnsError 判断最后一个返回值是否为 error
func (m *Method) ReturnsError() bool {
	return len(m.Results) > 0 && m.Results[len(m.Results)-1] == ErrorType
}

// String 返回 "Type.Method" 形式的名称
func (m *Method) String() string {
	return ShortName(m.Owner) + "." + m.Name
}

// TypeDescriptor 描述一个类型的方法与标记
type TypeDescriptor struct {
	Type        reflect.Type
	Name        string
	PkgPath     string
	Methods     []*Method
	Annotations []Annotation

	byName map[string]*Method
}

// Method 按名称查找方法
func (d *TypeDescriptor) Method(name string) *Method {
	return d.byName[name]
}

// HasMarker 判断类型是否带有指定标记
func (d *TypeDescriptor) HasMarker(marker any) bool {
	return hasMarker(d.Annotations, marker)
}

// Marker 返回类型上第一个与 marker 同类型的标记
func (d *TypeDescriptor) Marker(marker any) (Annotation, bool) {
	return findMarker(d.Annotations, marker)
}

// MethodsWith 返回所有带有指定标记的方法
func (d *TypeDescriptor) MethodsWith(marker any) []*Method {
	var result []*Method
	for _, m := range d.Methods {
		if m.HasMarker(marker) {
			result = append(result, m)
		}
	}
	return result
}

// Func 描述一个构造函数或工厂函数
type Func struct {
	Fn           reflect.Value
	Params       []reflect.Type
	Result       reflect.Type
	ReturnsError bool
}

// ErrorType 是 error 接口的反射类型
var ErrorType = reflect.TypeOf((*error)(nil)).Elem()

// MarkerType 返回标记的身份类型。
// marker 可以是标记值本身，也可以是 reflect.Type。
func MarkerType(marker any) reflect.Type {
	if t, ok := marker.(reflect.Type); ok {
		return t
	}
	return reflect.TypeOf(marker)
}

// Base 去掉指针，返回基础类型
func Base(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

// ModulePath 返回类型声明所在的包路径
func ModulePath(t reflect.Type) string {
	return Base(t).PkgPath()
}

// ShortName 返回不带包名和指针前缀的类型名，如 "Foo"
func ShortName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	b := Base(t)
	if b.Name() != "" {
		return b.Name()
	}
	s := b.String()
	if i := strings.LastIndex(s, "."); i >= 0 && !strings.ContainsAny(s, "[]( ") {
		return s[i+1:]
	}
	return s
}

func hasMarker(annotations []Annotation, marker any) bool {
	_, ok := findMarker(annotations, marker)
	return ok
}

func findMarker(annotations []Annotation, marker any) (Annotation, bool) {
	mt := MarkerType(marker)
	for _, a := range annotations {
		if a.Type() == mt {
			return a, true
		}
	}
	return Annotation{}, false
}
