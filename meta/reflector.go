package meta

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/gocrud/ioc/async"
)

// Provider 提供类型的元数据。
// 容器只依赖此接口，元数据可以来自反射、显式注册或代码生成。
type Provider interface {
	// Describe 返回类型的描述符，同一类型多次调用返回相同结果
	Describe(t reflect.Type) *TypeDescriptor
}

// Annotatable 接受显式标记注册的 Provider
type Annotatable interface {
	Annotate(t reflect.Type) *Annotator
}

// Reflector 基于反射和显式标记注册的默认 Provider 实现
type Reflector struct {
	mu      sync.RWMutex
	types   map[reflect.Type][]Annotation
	methods map[reflect.Type]map[string][]Annotation

	cache sync.Map // reflect.Type -> *TypeDescriptor
}

// 全局标记序号，用于恢复注册顺序（反射按字母序列出方法）
var seq atomic.Uint64

// Default 是进程级的默认元数据提供者
var Default = NewReflector()

// NewReflector 创建一个独立的 Reflector
func NewReflector() *Reflector {
	return &Reflector{
		types:   make(map[reflect.Type][]Annotation),
		methods: make(map[reflect.Type]map[string][]Annotation),
	}
}

// Describe 实现 Provider
func (r *Reflector) Describe(t reflect.Type) *TypeDescriptor {
	if v, ok := r.cache.Load(t); ok {
		return v.(*TypeDescriptor)
	}

	desc := r.describe(t)
	actual, _ := r.cache.LoadOrStore(t, desc)
	return actual.(*TypeDescriptor)
}

func (r *Reflector) describe(t reflect.Type) *TypeDescriptor {
	base := Base(t)

	r.mu.RLock()
	defer r.mu.RUnlock()

	desc := &TypeDescriptor{
		Type:        t,
		Name:        ShortName(t),
		PkgPath:     base.PkgPath(),
		Annotations: append([]Annotation(nil), r.types[base]...),
		byName:      make(map[string]*Method),
	}

	isInterface := t.Kind() == reflect.Interface
	methodMarkers := r.methods[base]

	for i := 0; i < t.NumMethod(); i++ {
		rm := t.Method(i)
		ft := rm.Type

		// 具体类型的方法类型包含接收者
		first := 1
		if isInterface {
			first = 0
		}

		m := &Method{
			Name:        rm.Name,
			Owner:       t,
			Index:       i,
			Variadic:    ft.IsVariadic(),
			Annotations: append([]Annotation(nil), methodMarkers[rm.Name]...),
		}
		for j := first; j < ft.NumIn(); j++ {
			m.Params = append(m.Params, ft.In(j))
		}
		for j := 0; j < ft.NumOut(); j++ {
			m.Results = append(m.Results, ft.Out(j))
		}
		m.Async = len(m.Results) > 0 && m.Results[0] == async.FutureType

		desc.Methods = append(desc.Methods, m)
		desc.byName[m.Name] = m
	}

	return desc
}

// Annotate 开始为类型 t 注册标记
func (r *Reflector) Annotate(t reflect.Type) *Annotator {
	return &Annotator{r: r, typ: t}
}

// invalidate 清除与 base 相关的缓存描述符
func (r *Reflector) invalidate(base reflect.Type) {
	r.cache.Delete(base)
	r.cache.Delete(reflect.PointerTo(base))
}

func (r *Reflector) addTypeMarkers(t reflect.Type, markers []any) {
	base := Base(t)

	r.mu.Lock()
	for _, m := range markers {
		if !containsMarker(r.types[base], m) {
			r.types[base] = append(r.types[base], Annotation{Value: m, Seq: seq.Add(1)})
		}
	}
	r.mu.Unlock()

	r.invalidate(base)
}

func (r *Reflector) addMethodMarkers(t reflect.Type, name string, markers []any) {
	base := Base(t)

	r.mu.Lock()
	byName, ok := r.methods[base]
	if !ok {
		byName = make(map[string][]Annotation)
		r.methods[base] = byName
	}
	for _, m := range markers {
		if !containsMarker(byName[name], m) {
			byName[name] = append(byName[name], Annotation{Value: m, Seq: seq.Add(1)})
		}
	}
	r.mu.Unlock()

	r.invalidate(base)
}

// containsMarker 判断是否已注册相同的标记值，重复注册是幂等的
func containsMarker(annotations []Annotation, marker any) bool {
	for _, a := range annotations {
		if reflect.DeepEqual(a.Value, marker) {
			return true
		}
	}
	return false
}

// DescribeFunc 描述一个构造函数或工厂函数。
// 函数必须返回一个值，可选地再返回一个 error。
func DescribeFunc(fn any) (*Func, error) {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return nil, fmt.Errorf("meta: expected function, got %T", fn)
	}

	ft := v.Type()
	if ft.NumOut() == 0 || ft.NumOut() > 2 {
		return nil, fmt.Errorf("meta: function %v must return (T) or (T, error)", ft)
	}
	if ft.NumOut() == 2 && ft.Out(1) != ErrorType {
		return nil, fmt.Errorf("meta: second result of %v must be error", ft)
	}
	if ft.IsVariadic() {
		return nil, fmt.Errorf("meta: variadic function %v is not supported", ft)
	}

	f := &Func{
		Fn:           v,
		Result:       ft.Out(0),
		ReturnsError: ft.NumOut() == 2,
	}
	for i := 0; i < ft.NumIn(); i++ {
		f.Params = append(f.Params, ft.In(i))
	}
	return f, nil
}
