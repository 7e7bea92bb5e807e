package di

import (
	"fmt"
	"reflect"

	"github.com/gocrud/ioc/meta"
)

// Factory 工厂对象接口，宿主实例负责创建 T
type Factory[T any] interface {
	Create() (T, error)
}

// Create 标记宿主类型上的工厂方法，方法的第一个返回值将作为服务注册。
// 方法参数和宿主本身都是该服务的依赖。
type Create struct {
	Lazy      bool
	Transient bool
}

// FactoryMethodProvider 通过调用宿主实例上的工厂方法创建实例
type FactoryMethodProvider struct {
	baseProvider

	host   reflect.Type
	method *meta.Method
}

func newFactoryMethodProvider(r *Registry, host reflect.Type, module string, m *meta.Method, marker Create) (*FactoryMethodProvider, error) {
	if len(m.Results) == 0 || len(m.Results) > 2 || (len(m.Results) == 2 && !m.ReturnsError()) {
		return nil, fmt.Errorf("di: factory method %s must return (T) or (T, error)", m)
	}
	if m.Variadic {
		return nil, fmt.Errorf("di: factory method %s must not be variadic", m)
	}

	return &FactoryMethodProvider{
		baseProvider: baseProvider{
			typ:       m.Results[0],
			module:    module,
			eager:     !marker.Lazy,
			singleton: !marker.Transient,
			registry:  r,
		},
		host:   host,
		method: m,
	}, nil
}

// Resolve 实现 InstanceProvider
func (p *FactoryMethodProvider) Resolve(ctx *ResolveContext) error {
	types := append([]reflect.Type{p.host}, p.method.Params...)
	return p.resolveTypes(ctx, p, types, p.aspectTypes(p.typ))
}

// Create 实现 InstanceProvider
func (p *FactoryMethodProvider) Create(c *Container) (*Instance, error) {
	host, err := c.rawDependency(p.host)
	if err != nil {
		return nil, err
	}

	args := make([]reflect.Value, len(p.method.Params))
	for i, t := range p.method.Params {
		v, err := c.dependency(t)
		if err != nil {
			return nil, fmt.Errorf("参数 %d: %w", i, err)
		}
		args[i] = valueFor(v, t)
	}

	results, err := callMethod(host, p.method, args)
	if err != nil {
		return nil, &CreationError{Type: p.typ, Err: err}
	}

	first := results[0]
	if (first.Kind() == reflect.Ptr || first.Kind() == reflect.Interface) && first.IsNil() {
		return nil, &CreationError{Type: p.typ, Err: fmt.Errorf("factory method %s returned nil", p.method)}
	}

	return c.created(first.Interface())
}

func (p *FactoryMethodProvider) String() string {
	return describeProviders("FactoryMethodProvider", p.typ, p.method.String())
}

// FactoryProvider 通过工厂对象（实现 Factory[T] 的宿主）创建实例
type FactoryProvider struct {
	baseProvider

	host   reflect.Type
	create func(host any) (any, error)
}

// Resolve 实现 InstanceProvider
func (p *FactoryProvider) Resolve(ctx *ResolveContext) error {
	return p.resolveTypes(ctx, p, []reflect.Type{p.host}, p.aspectTypes(p.typ))
}

// Create 实现 InstanceProvider
func (p *FactoryProvider) Create(c *Container) (*Instance, error) {
	host, err := c.rawDependency(p.host)
	if err != nil {
		return nil, err
	}

	value, err := p.create(host)
	if err != nil {
		return nil, &CreationError{Type: p.typ, Err: err}
	}
	if value == nil {
		return nil, &CreationError{Type: p.typ, Err: fmt.Errorf("factory %v returned nil", p.host)}
	}

	return c.created(value)
}

func (p *FactoryProvider) String() string {
	return describeProviders("FactoryProvider", p.typ, p.host.String())
}
