package aop

import (
	"reflect"
	"regexp"

	"github.com/gocrud/ioc/meta"
)

// Pointcut 选择连接点的谓词。
// class 为被织入的具体类型的描述符，m 为其上的方法。
type Pointcut interface {
	Match(class *meta.TypeDescriptor, m *meta.Method) bool
}

type methodFilter func(class *meta.TypeDescriptor, m *meta.Method) bool

// MethodPointcut 按方法元数据选择连接点，所有条件之间为 AND
type MethodPointcut struct {
	filters []methodFilter
}

// Methods 创建一个匹配所有方法的谓词，通过链式调用添加条件
func Methods() *MethodPointcut {
	return &MethodPointcut{}
}

func (p *MethodPointcut) with(f methodFilter) *MethodPointcut {
	p.filters = append(p.filters, f)
	return p
}

// Named 方法名等于 name
func (p *MethodPointcut) Named(name string) *MethodPointcut {
	return p.with(func(_ *meta.TypeDescriptor, m *meta.Method) bool {
		return m.Name == name
	})
}

// Matches 方法名匹配正则表达式，表达式非法时 panic
func (p *MethodPointcut) Matches(pattern string) *MethodPointcut {
	re := regexp.MustCompile(pattern)
	return p.with(func(_ *meta.TypeDescriptor, m *meta.Method) bool {
		return re.MatchString(m.Name)
	})
}

// OfType 声明方法的类型为 t 或实现了接口 t
func (p *MethodPointcut) OfType(t reflect.Type) *MethodPointcut {
	return p.with(func(class *meta.TypeDescriptor, _ *meta.Method) bool {
		return isOfType(class.Type, t)
	})
}

// DecoratedWith 方法带有指定标记
func (p *MethodPointcut) DecoratedWith(marker any) *MethodPointcut {
	return p.with(func(_ *meta.TypeDescriptor, m *meta.Method) bool {
		return m.HasMarker(marker)
	})
}

// DeclaredBy 声明方法的类型满足类谓词
func (p *MethodPointcut) DeclaredBy(classes *ClassPointcut) *MethodPointcut {
	return p.with(func(class *meta.TypeDescriptor, _ *meta.Method) bool {
		return classes.matchClass(class)
	})
}

// ThatAreSync 只匹配同步方法
func (p *MethodPointcut) ThatAreSync() *MethodPointcut {
	return p.with(func(_ *meta.TypeDescriptor, m *meta.Method) bool {
		return !m.Async
	})
}

// ThatAreAsync 只匹配异步方法（第一个返回值为 *async.Future）
func (p *MethodPointcut) ThatAreAsync() *MethodPointcut {
	return p.with(func(_ *meta.TypeDescriptor, m *meta.Method) bool {
		return m.Async
	})
}

// Match 实现 Pointcut
func (p *MethodPointcut) Match(class *meta.TypeDescriptor, m *meta.Method) bool {
	for _, f := range p.filters {
		if !f(class, m) {
			return false
		}
	}
	return true
}

type classFilter func(class *meta.TypeDescriptor) bool

// ClassPointcut 按类型元数据选择，匹配类型的所有方法
type ClassPointcut struct {
	filters []classFilter
	sync    bool
	async   bool
}

// Classes 创建一个匹配所有类型的谓词
func Classes() *ClassPointcut {
	return &ClassPointcut{}
}

func (p *ClassPointcut) with(f classFilter) *ClassPointcut {
	p.filters = append(p.filters, f)
	return p
}

// Named 类型短名等于 name
func (p *ClassPointcut) Named(name string) *ClassPointcut {
	return p.with(func(class *meta.TypeDescriptor) bool {
		return class.Name == name
	})
}

// Matches 类型全名匹配正则表达式
func (p *ClassPointcut) Matches(pattern string) *ClassPointcut {
	re := regexp.MustCompile(pattern)
	return p.with(func(class *meta.TypeDescriptor) bool {
		return re.MatchString(class.Type.String())
	})
}

// OfType 类型为 t 或实现了接口 t
func (p *ClassPointcut) OfType(t reflect.Type) *ClassPointcut {
	return p.with(func(class *meta.TypeDescriptor) bool {
		return isOfType(class.Type, t)
	})
}

// DecoratedWith 类型带有指定标记
func (p *ClassPointcut) DecoratedWith(marker any) *ClassPointcut {
	return p.with(func(class *meta.TypeDescriptor) bool {
		return class.HasMarker(marker)
	})
}

// ThatAreSync 只匹配类型上的同步方法
func (p *ClassPointcut) ThatAreSync() *ClassPointcut {
	p.sync = true
	return p
}

// ThatAreAsync 只匹配类型上的异步方法
func (p *ClassPointcut) ThatAreAsync() *ClassPointcut {
	p.async = true
	return p
}

func (p *ClassPointcut) matchClass(class *meta.TypeDescriptor) bool {
	for _, f := range p.filters {
		if !f(class) {
			return false
		}
	}
	return true
}

// Match 实现 Pointcut
func (p *ClassPointcut) Match(class *meta.TypeDescriptor, m *meta.Method) bool {
	if p.sync && m.Async || p.async && !m.Async {
		return false
	}
	return p.matchClass(class)
}

func isOfType(t, target reflect.Type) bool {
	if t == target || meta.Base(t) == meta.Base(target) {
		return true
	}
	return target.Kind() == reflect.Interface && t.Implements(target)
}
