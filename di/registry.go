package di

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/gocrud/ioc/logging"
	"github.com/gocrud/ioc/meta"
)

// Weaver 在实例创建后为其织入切面。
// 由 aop 包实现，通过 Registry.SetWeaver 安装。
type Weaver interface {
	Weave(c *Container, inst *Instance) error
}

// AspectResolver 由织入器可选实现：返回织入具体类型 t 时要创建的切面类型。
// 解析时这些类型被视为 t 的依赖，切面反过来依赖 t 时报告 CycleError。
type AspectResolver interface {
	Aspects(t reflect.Type) []reflect.Type
}

// scopeDecl 一个作用域声明
type scopeDecl struct {
	typ     reflect.Type
	module  string
	imports []reflect.Type
}

// Registry 是提供者注册表。
//
// 注册表在定义期被填充，第一次构建容器（或显式调用 Resolve）时进行一次性解析，
// 之后即为只读，不再接受注册。
type Registry struct {
	mu        sync.RWMutex
	meta      meta.Provider
	logger    logging.Logger
	providers []InstanceProvider
	byType    map[reflect.Type]InstanceProvider
	cache     map[reflect.Type]InstanceProvider // 精确类型 + 接口
	contracts map[reflect.Type][]reflect.Type   // 具体类型 -> As 声明的接口
	scopes    map[reflect.Type]*scopeDecl
	callables map[reflect.Type]*Callable
	weaver    Weaver

	plans sync.Map // reflect.Type -> []lifecycleCall

	resolveOnce sync.Once
	resolveErr  error
	resolved    atomic.Bool
}

// RegistryOption 配置注册表
type RegistryOption func(*Registry)

// WithMetadata 设置元数据提供者，默认为 meta.Default
func WithMetadata(p meta.Provider) RegistryOption {
	return func(r *Registry) {
		r.meta = p
	}
}

// WithRegistryLogger 设置注册表日志
func WithRegistryLogger(l logging.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = l
	}
}

// Default 是进程级的默认注册表
var Default = NewRegistry()

// NewRegistry 创建一个新的注册表，并注册内置的生命周期回调
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		meta:      meta.Default,
		logger:    logging.Nop(),
		byType:    make(map[reflect.Type]InstanceProvider),
		cache:     make(map[reflect.Type]InstanceProvider),
		contracts: make(map[reflect.Type][]reflect.Type),
		scopes:    make(map[reflect.Type]*scopeDecl),
		callables: make(map[reflect.Type]*Callable),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.logger = r.logger.WithCategory("ioc")
	registerBuiltinCallables(r)
	return r
}

// Metadata 返回注册表使用的元数据提供者
func (r *Registry) Metadata() meta.Provider {
	return r.meta
}

// Logger 返回注册表日志
func (r *Registry) Logger() logging.Logger {
	return r.logger
}

// Annotate 在注册表的元数据提供者上为类型 t 注册标记，
// 供扩展包为自身组件声明生命周期方法和切面
func (r *Registry) Annotate(t reflect.Type) *meta.Annotator {
	a, ok := r.meta.(meta.Annotatable)
	if !ok {
		panic(fmt.Sprintf("di: metadata provider %T does not accept annotations", r.meta))
	}
	return a.Annotate(t)
}

// SetWeaver 安装切面织入器
func (r *Registry) SetWeaver(w Weaver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.weaver = w
}

func (r *Registry) currentWeaver() Weaver {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.weaver
}

// Register 注册一个提供者。
// 单例提供者会被 SingletonProvider 包装；同一具体类型重复注册返回 RegistrationError。
func (r *Registry) Register(p InstanceProvider) error {
	if r.resolved.Load() {
		return ErrRegistryResolved
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.add(p)
}

func (r *Registry) add(p InstanceProvider) error {
	typ := p.Type()
	if existing, ok := r.byType[typ]; ok {
		return &RegistrationError{Type: typ, Existing: existing.String()}
	}

	if p.Singleton() {
		if _, ok := p.(*SingletonProvider); !ok {
			p = newSingletonProvider(p)
		}
	}

	r.providers = append(r.providers, p)
	r.byType[typ] = p
	r.cache[typ] = p

	r.logger.Debug("已注册提供者", logging.Field{Key: "provider", Value: p.String()})
	return nil
}

func (r *Registry) register(typ reflect.Type, reg *registration) error {
	p, err := newClassProvider(r, typ, reg)
	if err != nil {
		return err
	}

	for _, contract := range reg.contracts {
		if !implements(p.Type(), contract) {
			return fmt.Errorf("di: %v does not implement %v", p.Type(), contract)
		}
	}

	if err := r.Register(p); err != nil {
		return err
	}

	if len(reg.contracts) > 0 {
		r.mu.Lock()
		r.contracts[p.Type()] = append(r.contracts[p.Type()], reg.contracts...)
		r.mu.Unlock()
	}
	return nil
}

// Provider 返回精确类型 t 的提供者
func (r *Registry) Provider(t reflect.Type) (InstanceProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byType[t]
	return p, ok
}

// Providers 按注册顺序返回所有具体提供者
func (r *Registry) Providers() []InstanceProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]InstanceProvider(nil), r.providers...)
}

// Contracts 返回为具体类型 t 声明的接口
func (r *Registry) Contracts(t reflect.Type) []reflect.Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.contracts[t]
}

// lookup 按请求类型查找提供者。
// 接口类型在第一次查找时按注册顺序收集实现者，多个实现者聚合为 AmbiguousProvider。
func (r *Registry) lookup(t reflect.Type) (InstanceProvider, error) {
	r.mu.RLock()
	p, ok := r.cache[t]
	r.mu.RUnlock()
	if ok {
		return p, nil
	}

	if t.Kind() != reflect.Interface {
		return nil, &NotRegisteredError{Type: t}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.cache[t]; ok {
		return p, nil
	}

	var found InstanceProvider
	for _, candidate := range r.providers {
		if !implements(candidate.Type(), t) {
			continue
		}
		switch existing := found.(type) {
		case nil:
			found = candidate
		case *AmbiguousProvider:
			existing.add(candidate)
		default:
			found = newAmbiguousProvider(t, existing, candidate)
		}
	}

	if found == nil {
		return nil, &NotRegisteredError{Type: t}
	}

	r.cache[t] = found
	return found, nil
}

// Resolve 对所有提供者执行一次性的依赖解析。
// 首先扫描已注册类型上的工厂方法，然后按注册顺序解析依赖并检测循环。
// 结果被记住，重复调用返回同一错误。
func (r *Registry) Resolve() error {
	r.resolveOnce.Do(func() {
		r.resolveErr = r.resolve()
		r.resolved.Store(true)
	})
	return r.resolveErr
}

func (r *Registry) resolve() error {
	if err := r.scanFactoryMethods(); err != nil {
		return err
	}

	// 预热 As 声明的接口
	r.mu.RLock()
	var declared []reflect.Type
	for _, p := range r.providers {
		declared = append(declared, r.contracts[p.Type()]...)
	}
	r.mu.RUnlock()
	for _, t := range declared {
		if _, err := r.lookup(t); err != nil {
			return err
		}
	}

	for _, p := range r.Providers() {
		if err := p.Resolve(newResolveContext()); err != nil {
			return err
		}
	}

	r.logger.Debug("注册表解析完成", logging.Field{Key: "providers", Value: len(r.Providers())})
	return nil
}

// scanFactoryMethods 为带有 Create 标记的方法注册 FactoryMethodProvider
func (r *Registry) scanFactoryMethods() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	hosts := append([]InstanceProvider(nil), r.providers...)
	for _, host := range hosts {
		desc := r.meta.Describe(host.Type())
		for _, m := range desc.MethodsWith(Create{}) {
			a, _ := m.Marker(Create{})
			p, err := newFactoryMethodProvider(r, host.Type(), host.Module(), m, a.Value.(Create))
			if err != nil {
				return err
			}
			if err := r.add(p); err != nil {
				return err
			}
		}
	}
	return nil
}

// declareScope 注册一个作用域声明
func (r *Registry) declareScope(typ reflect.Type, module string, imports []reflect.Type) error {
	if module == "" {
		module = meta.ModulePath(typ)
	}
	if err := r.register(typ, newRegistration([]Option{WithModule(module)})); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.scopes[typ] = &scopeDecl{
		typ:     typ,
		module:  module,
		imports: imports,
	}
	return nil
}

func (r *Registry) scope(typ reflect.Type) (*scopeDecl, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.scopes[typ]
	return s, ok
}
