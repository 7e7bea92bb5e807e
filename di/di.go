package di

import (
	"fmt"
	"reflect"

	"github.com/gocrud/ioc/meta"
)

// Register 在注册表 r 中注册服务 T。
//
// 默认以结构体反射创建（带有 `di` 标签的字段会被注入），也可以通过
// WithConstructor 或 WithValue 指定创建方式。注册失败会 panic（定义期错误）。
//
// 示例：
//
//	di.Register[*UserService](r)
//	di.Register[*Repo](r, di.WithConstructor(NewRepo), di.WithLazy())
func Register[T any](r *Registry, opts ...Option) {
	if err := TryRegister[T](r, opts...); err != nil {
		panic(fmt.Sprintf("di: failed to register %v: %v", TypeOf[T](), err))
	}
}

// TryRegister 与 Register 相同，但返回错误
func TryRegister[T any](r *Registry, opts ...Option) error {
	typ := TypeOf[T]()
	if typ.Kind() == reflect.Interface {
		return fmt.Errorf("di: cannot register interface %v, register an implementation with di.As", typ)
	}
	return r.register(typ, newRegistration(opts))
}

// RegisterValue 以 v 的动态类型将已创建的实例注册为单例
func RegisterValue(r *Registry, v any, opts ...Option) {
	typ := reflect.TypeOf(v)
	if typ == nil {
		panic("di: RegisterValue expects a non-nil value")
	}
	if err := r.register(typ, newRegistration(append(opts, WithValue(v)))); err != nil {
		panic(fmt.Sprintf("di: failed to register %v: %v", typ, err))
	}
}

// Provide 以构造函数注册服务，服务类型为构造函数的第一个返回值
func Provide(r *Registry, ctor any, opts ...Option) {
	fn := reflect.ValueOf(ctor)
	if fn.Kind() != reflect.Func || fn.Type().NumOut() == 0 {
		panic(fmt.Sprintf("di: Provide expects a constructor function, got %T", ctor))
	}

	reg := newRegistration(append(opts, WithConstructor(ctor)))
	if err := r.register(fn.Type().Out(0), reg); err != nil {
		panic(fmt.Sprintf("di: failed to provide %v: %v", fn.Type().Out(0), err))
	}
}

// RegisterFactory 注册工厂对象 H 产生的服务 T。
// H 本身也会被注册（若尚未注册），T 的依赖即为 H。
func RegisterFactory[H Factory[T], T any](r *Registry, opts ...Option) {
	host := TypeOf[H]()
	reg := newRegistration(opts)

	if _, ok := r.Provider(host); !ok {
		if err := r.register(host, newRegistration([]Option{WithModule(reg.module)})); err != nil {
			panic(fmt.Sprintf("di: failed to register factory %v: %v", host, err))
		}
	}

	module := reg.module
	if module == "" {
		module = meta.ModulePath(host)
	}

	p := &FactoryProvider{
		baseProvider: baseProvider{
			typ:       TypeOf[T](),
			module:    module,
			eager:     reg.eager,
			singleton: reg.singleton,
			registry:  r,
		},
		host: host,
		create: func(h any) (any, error) {
			return h.(H).Create()
		},
	}
	if err := r.Register(p); err != nil {
		panic(fmt.Sprintf("di: failed to register %v: %v", TypeOf[T](), err))
	}
}

// Imports 辅助构造作用域的导入列表
func Imports(types ...reflect.Type) []reflect.Type {
	return types
}

// DeclareScope 声明作用域 S。
// S 自身作为单例注册；其所在包路径（及子路径）下的提供者对该作用域可见，
// imports 中的作用域被递归导入。
func DeclareScope[S any](r *Registry, imports ...reflect.Type) {
	DeclareModuleScope[S](r, "", imports...)
}

// DeclareModuleScope 与 DeclareScope 相同，但显式指定作用域的模块路径
func DeclareModuleScope[S any](r *Registry, module string, imports ...reflect.Type) {
	if err := r.declareScope(TypeOf[S](), module, imports); err != nil {
		panic(fmt.Sprintf("di: failed to declare scope %v: %v", TypeOf[S](), err))
	}
}

// New 基于作用域 S 构建容器
func New[S any](r *Registry, opts ...ContainerOption) (*Container, error) {
	return NewContainer(r, TypeOf[S](), opts...)
}

// Resolve 从容器中获取类型 T 的实例
func Resolve[T any](c *Container) (T, error) {
	var zero T
	typ := TypeOf[T]()

	val, err := c.Get(typ)
	if err != nil {
		return zero, err
	}

	if v, ok := val.(T); ok {
		return v, nil
	}
	return zero, fmt.Errorf("di: resolved value is %T, expected %v", val, typ)
}

// MustResolve 与 Resolve 相同，失败时 panic
func MustResolve[T any](c *Container) T {
	v, err := Resolve[T](c)
	if err != nil {
		panic(err)
	}
	return v
}
