package di

import (
	"fmt"
	"reflect"
	"strings"
)

// InstanceProvider 是产生实例的策略。
// 提供者在注册时创建，依赖尚未解析；Resolve 是幂等的，只在注册表的一次性解析中调用。
type InstanceProvider interface {
	// Type 返回提供者产生的类型
	Type() reflect.Type
	// Module 返回声明位置的模块路径
	Module() string
	// Eager 是否在容器构建时创建
	Eager() bool
	// Singleton 是否在同一容器内复用实例
	Singleton() bool
	// Dependencies 返回已解析的依赖，未解析时为 nil
	Dependencies() []InstanceProvider
	// Resolve 解析依赖并检测循环
	Resolve(ctx *ResolveContext) error
	// Create 在容器 c 中创建实例
	Create(c *Container) (*Instance, error)

	String() string
}

// baseProvider 包含所有提供者共享的状态
type baseProvider struct {
	typ       reflect.Type
	module    string
	eager     bool
	singleton bool

	registry *Registry
	deps     []InstanceProvider
	depTypes []reflect.Type
	resolved bool
}

func (b *baseProvider) Type() reflect.Type { return b.typ }
func (b *baseProvider) Module() string     { return b.module }
func (b *baseProvider) Eager() bool        { return b.eager }
func (b *baseProvider) Singleton() bool    { return b.singleton }

func (b *baseProvider) Dependencies() []InstanceProvider {
	if !b.resolved {
		return nil
	}
	return b.deps
}

// resolveTypes 解析一组依赖类型，并在上下文中递归解析它们。
// 同一类型或已被前面的依赖覆盖的子类型会被跳过。
// optional 中的类型同样参与循环检测，但没有提供者时不报错。
func (b *baseProvider) resolveTypes(ctx *ResolveContext, self InstanceProvider, types, optional []reflect.Type) error {
	return ctx.visit(self, &b.resolved, func() error {
		b.deps = b.deps[:0]
		b.depTypes = b.depTypes[:0]

		for _, t := range types {
			if err := b.resolveType(ctx, t, false); err != nil {
				return err
			}
		}
		for _, t := range optional {
			if err := b.resolveType(ctx, t, true); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *baseProvider) resolveType(ctx *ResolveContext, t reflect.Type, optional bool) error {
	if b.covered(t) {
		return nil
	}
	if t == containerType {
		b.depTypes = append(b.depTypes, t)
		return nil
	}

	p, err := b.registry.lookup(t)
	if err != nil {
		if optional {
			return nil
		}
		return &NotRegisteredError{Type: t, RequiredBy: b.typ}
	}
	b.depTypes = append(b.depTypes, t)
	b.deps = append(b.deps, p)

	return p.Resolve(ctx)
}

// aspectTypes 返回织入类型 t 时需要创建的切面类型
func (b *baseProvider) aspectTypes(t reflect.Type) []reflect.Type {
	if t.Kind() == reflect.Interface {
		return nil
	}
	if w, ok := b.registry.currentWeaver().(AspectResolver); ok {
		return w.Aspects(t)
	}
	return nil
}

func (b *baseProvider) covered(t reflect.Type) bool {
	for _, existing := range b.depTypes {
		if existing == t || implements(existing, t) {
			return true
		}
	}
	return false
}

// Instance 是容器创建的一个实例。
// Value 为原始对象；织入切面后，接口视图（代理）通过 Expose 暴露。
type Instance struct {
	Value any
	views map[reflect.Type]any
}

// NewInstance 包装一个原始对象
func NewInstance(value any) *Instance {
	return &Instance{Value: value}
}

// Expose 为契约类型 t 暴露一个视图
func (i *Instance) Expose(t reflect.Type, view any) {
	if i.views == nil {
		i.views = make(map[reflect.Type]any)
	}
	i.views[t] = view
}

// As 返回以类型 t 请求时应交给调用方的对象
func (i *Instance) As(t reflect.Type) any {
	if v, ok := i.views[t]; ok {
		return v
	}
	return i.Value
}

// Woven 判断实例是否暴露了代理视图
func (i *Instance) Woven() bool {
	return len(i.views) > 0
}

func describeProviders(kind string, typ reflect.Type, extra ...string) string {
	if len(extra) == 0 {
		return fmt.Sprintf("%s(%v)", kind, typ)
	}
	return fmt.Sprintf("%s(%v -> %s)", kind, typ, strings.Join(extra, ", "))
}
