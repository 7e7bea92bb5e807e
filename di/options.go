package di

import "reflect"

// Option 配置服务注册。
type Option func(*registration)

// registration 收集一次注册的选项
type registration struct {
	eager     bool
	singleton bool
	module    string
	ctor      any
	value     any
	hasValue  bool
	contracts []reflect.Type
}

func newRegistration(opts []Option) *registration {
	reg := &registration{
		eager:     true,
		singleton: true,
	}
	for _, opt := range opts {
		opt(reg)
	}
	return reg
}

// WithEager 在容器构建时立即创建实例（默认）。
func WithEager() Option {
	return func(r *registration) {
		r.eager = true
	}
}

// WithLazy 在第一次请求时才创建实例。
func WithLazy() Option {
	return func(r *registration) {
		r.eager = false
	}
}

// WithSingleton 每个容器创建一个实例（默认）。
func WithSingleton() Option {
	return func(r *registration) {
		r.singleton = true
	}
}

// WithTransient 每次请求创建一个新实例。
func WithTransient() Option {
	return func(r *registration) {
		r.singleton = false
	}
}

// WithModule 覆盖提供者的声明模块路径（默认为类型所在的包路径）。
// 容器只会加载模块路径位于其作用域模块之下的提供者。
func WithModule(path string) Option {
	return func(r *registration) {
		r.module = path
	}
}

// WithConstructor 使用构造函数创建实例，构造函数的参数将被注入。
func WithConstructor(fn any) Option {
	return func(r *registration) {
		r.ctor = fn
	}
}

// WithValue 将已创建的实例注册为单例。
// 每个容器仍会对它执行一次生命周期回调。
func WithValue(v any) Option {
	return func(r *registration) {
		r.value = v
		r.hasValue = true
		r.singleton = true
	}
}

// As 声明该服务实现接口 T，T 将作为可注入的祖先类型。
func As[T any]() Option {
	return func(r *registration) {
		r.contracts = append(r.contracts, reflect.TypeOf((*T)(nil)).Elem())
	}
}
