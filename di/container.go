package di

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gocrud/ioc/logging"
	"github.com/gocrud/ioc/meta"
)

// binding 容器中的一个提供者及其所属容器。
// 来自父容器的绑定仍由父容器创建，子容器不会重新创建它们。
type binding struct {
	provider InstanceProvider
	owner    *Container
}

// Container 是一个有界的、可嵌套的提供者集合，并管理其创建的实例的生命周期。
//
// 容器根据作用域声明构建：作用域及其导入闭包决定哪些模块路径下的提供者可见。
type Container struct {
	registry *Registry
	scope    reflect.Type
	parent   *Container
	logger   logging.Logger

	mu         sync.RWMutex
	bindings   map[reflect.Type]binding
	order      []binding
	processors []LifecycleProcessor
	instances  []*Instance
	running    bool
	closing    bool // 销毁进行中，不再创建新实例
	destroyed  bool

	destroyOnce sync.Once
	destroyErr  error
}

// ContainerOption 配置容器
type ContainerOption func(*Container)

// WithParent 设置父容器
func WithParent(parent *Container) ContainerOption {
	return func(c *Container) {
		c.parent = parent
	}
}

// WithLogger 设置容器日志，默认继承注册表的日志
func WithLogger(l logging.Logger) ContainerOption {
	return func(c *Container) {
		c.logger = l
	}
}

// NewContainer 基于作用域 scope 构建容器。
//
// 构建过程：
//  1. 解析注册表（仅第一次）
//  2. 收集作用域导入闭包中的模块，选出可见的提供者
//  3. 按注册顺序创建所有 eager 提供者
//  4. 对已创建的实例执行 running 阶段
func NewContainer(r *Registry, scope reflect.Type, opts ...ContainerOption) (*Container, error) {
	if err := r.Resolve(); err != nil {
		return nil, err
	}

	decl, ok := r.scope(scope)
	if !ok {
		return nil, fmt.Errorf("di: %v is not a declared scope", scope)
	}

	c := &Container{
		registry: r,
		scope:    scope,
		logger:   r.logger,
		bindings: make(map[reflect.Type]binding),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithFields(logging.Field{Key: "scope", Value: meta.ShortName(scope)})

	if c.parent != nil {
		if c.parent.isDestroyed() {
			return nil, ErrDestroyed
		}
		c.parent.mu.RLock()
		for _, b := range c.parent.order {
			c.bindings[b.provider.Type()] = b
			c.order = append(c.order, b)
		}
		c.processors = append(c.processors, c.parent.processors...)
		c.parent.mu.RUnlock()
	} else {
		c.processors = []LifecycleProcessor{&callableProcessor{registry: r}}
	}

	modules, err := c.modules(decl)
	if err != nil {
		return nil, err
	}

	var own []InstanceProvider
	for _, p := range r.Providers() {
		if !visible(p.Module(), modules) {
			continue
		}
		if _, exists := c.bindings[p.Type()]; exists {
			continue
		}
		b := binding{provider: p, owner: c}
		c.bindings[p.Type()] = b
		c.order = append(c.order, b)
		own = append(own, p)
	}

	c.logger.Debug("容器已装配", logging.Field{Key: "providers", Value: len(own)})

	for _, p := range own {
		if !p.Eager() {
			continue
		}
		if _, err := p.Create(c); err != nil {
			return nil, errors.Join(fmt.Errorf("di: 创建 %v 失败: %w", p.Type(), err), c.Destroy())
		}
	}

	c.mu.Lock()
	instances := append([]*Instance(nil), c.instances...)
	c.running = true
	c.mu.Unlock()

	for _, inst := range instances {
		if err := c.process(PhaseRunning, inst); err != nil {
			return nil, errors.Join(err, c.Destroy())
		}
	}

	return c, nil
}

// modules 返回作用域导入闭包中的模块路径，每个作用域只访问一次
func (c *Container) modules(root *scopeDecl) ([]string, error) {
	var modules []string
	visited := make(map[reflect.Type]bool)

	var visit func(s *scopeDecl) error
	visit = func(s *scopeDecl) error {
		if visited[s.typ] {
			return nil
		}
		visited[s.typ] = true
		modules = append(modules, s.module)

		for _, imp := range s.imports {
			decl, ok := c.registry.scope(imp)
			if !ok {
				return fmt.Errorf("di: %v imports %v which is not a declared scope", s.typ, imp)
			}
			if err := visit(decl); err != nil {
				return err
			}
		}
		return nil
	}

	if err := visit(root); err != nil {
		return nil, err
	}
	return modules, nil
}

// visible 判断模块路径 module 是否位于某个作用域模块之下
func visible(module string, scopes []string) bool {
	for _, s := range scopes {
		if module == s || strings.HasPrefix(module, s+"/") {
			return true
		}
	}
	return false
}

// Scope 返回容器的作用域类型
func (c *Container) Scope() reflect.Type {
	return c.scope
}

// Parent 返回父容器
func (c *Container) Parent() *Container {
	return c.parent
}

// Registry 返回容器所基于的注册表
func (c *Container) Registry() *Registry {
	return c.registry
}

// Logger 返回容器日志
func (c *Container) Logger() logging.Logger {
	return c.logger
}

// Get 返回类型 t 的实例。
// 以接口请求织入过的实例时返回代理，以具体类型请求时返回原始对象。
func (c *Container) Get(t reflect.Type) (any, error) {
	if c.isDestroyed() {
		return nil, ErrDestroyed
	}
	return c.dependency(t)
}

// Supports 判断容器能否提供类型 t
func (c *Container) Supports(t reflect.Type) bool {
	_, err := c.binding(t)
	return err == nil
}

// dependency 在本容器中解析一个依赖
func (c *Container) dependency(t reflect.Type) (any, error) {
	if t == containerType {
		return c, nil
	}

	inst, err := c.instance(t)
	if err != nil {
		return nil, err
	}
	return inst.As(t), nil
}

// rawDependency 返回依赖的原始对象（不经过代理）
func (c *Container) rawDependency(t reflect.Type) (any, error) {
	inst, err := c.instance(t)
	if err != nil {
		return nil, err
	}
	return inst.Value, nil
}

func (c *Container) instance(t reflect.Type) (*Instance, error) {
	b, err := c.binding(t)
	if err != nil {
		return nil, err
	}
	return b.provider.Create(b.owner)
}

// binding 查找类型 t 的绑定。
// 接口在第一次请求时按可见提供者计算，多个实现者在本容器内为歧义。
func (c *Container) binding(t reflect.Type) (binding, error) {
	c.mu.RLock()
	b, ok := c.bindings[t]
	c.mu.RUnlock()
	if ok {
		return b, nil
	}

	if t.Kind() != reflect.Interface {
		return binding{}, &NotSupportedError{Type: t, Scope: c.scope}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if b, ok := c.bindings[t]; ok {
		return b, nil
	}

	var matches []binding
	for _, candidate := range c.order {
		if implements(candidate.provider.Type(), t) {
			matches = append(matches, candidate)
		}
	}

	switch len(matches) {
	case 0:
		return binding{}, &NotSupportedError{Type: t, Scope: c.scope}
	case 1:
		b = matches[0]
	default:
		providers := make([]InstanceProvider, len(matches))
		for i, m := range matches {
			providers[i] = m.provider
		}
		b = binding{provider: newAmbiguousProvider(t, providers...), owner: c}
	}

	c.bindings[t] = b
	return b, nil
}

// created 由提供者在创建实例后调用：
// 织入切面、执行 init 阶段，成功后才将实例记入销毁列表，
// 容器已运行时再执行 running 阶段，最后将实现了处理器接口的实例注册为处理器。
func (c *Container) created(value any) (*Instance, error) {
	inst := NewInstance(value)

	if c.isClosing() {
		return nil, ErrDestroyed
	}

	if w := c.registry.currentWeaver(); w != nil {
		if err := w.Weave(c, inst); err != nil {
			return nil, err
		}
	}

	if err := c.process(PhaseInit, inst); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return nil, errors.Join(ErrDestroyed, c.process(PhaseDestroy, inst))
	}
	c.instances = append(c.instances, inst)
	running := c.running
	c.mu.Unlock()

	if running {
		if err := c.process(PhaseRunning, inst); err != nil {
			return nil, err
		}
	}

	c.addProcessor(value)

	c.logger.Trace("已创建实例", logging.Field{Key: "type", Value: reflect.TypeOf(value).String()})
	return inst, nil
}

func (c *Container) addProcessor(value any) {
	var p LifecycleProcessor
	switch v := value.(type) {
	case LifecycleProcessor:
		p = v
	case PostProcessor:
		p = postProcessorAdapter{v}
	default:
		return
	}

	c.mu.Lock()
	c.processors = append(c.processors, p)
	c.mu.Unlock()
}

func (c *Container) process(phase Phase, inst *Instance) error {
	c.mu.RLock()
	processors := append([]LifecycleProcessor(nil), c.processors...)
	c.mu.RUnlock()

	for _, p := range processors {
		if err := p.ProcessLifecycle(phase, inst.Value, c); err != nil {
			return err
		}
	}
	return nil
}

func (c *Container) isClosing() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closing
}

func (c *Container) isDestroyed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.destroyed
}

// Destroy 销毁容器：按创建的逆序对本容器创建的实例执行 destroy 阶段。
// 销毁期间已创建的单例仍可获取，但不会再创建新实例。
// 父容器的实例不受影响。重复调用返回第一次的结果。
func (c *Container) Destroy() error {
	c.destroyOnce.Do(func() {
		c.mu.Lock()
		c.closing = true
		instances := c.instances
		c.instances = nil
		c.mu.Unlock()

		var errs []error
		for i := len(instances) - 1; i >= 0; i-- {
			if err := c.process(PhaseDestroy, instances[i]); err != nil {
				errs = append(errs, err)
			}
		}

		for _, b := range c.order {
			if sp, ok := b.provider.(*SingletonProvider); ok && b.owner == c {
				sp.forget(c)
			}
		}

		c.mu.Lock()
		c.destroyed = true
		c.mu.Unlock()

		c.destroyErr = errors.Join(errs...)
		c.logger.Debug("容器已销毁", logging.Field{Key: "instances", Value: len(instances)})
	})
	return c.destroyErr
}
