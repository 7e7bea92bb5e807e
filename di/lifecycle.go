package di

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/gocrud/ioc/meta"
)

// Phase 生命周期阶段
type Phase int

const (
	// PhaseInit 实例创建完成后、交给调用方之前
	PhaseInit Phase = iota
	// PhaseRunning 容器构建完成后（之后创建的实例在 init 之后立即进入）
	PhaseRunning
	// PhaseDestroy 容器销毁时
	PhaseDestroy
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "init"
	case PhaseRunning:
		return "running"
	case PhaseDestroy:
		return "destroy"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// LifecycleProcessor 在生命周期的各个阶段处理实例。
// 容器创建的实现了该接口的实例会自动注册到该容器（及其子容器）。
type LifecycleProcessor interface {
	ProcessLifecycle(phase Phase, instance any, c *Container) error
}

// PostProcessor 在每个实例初始化之后被调用
type PostProcessor interface {
	PostProcess(instance any, c *Container) error
}

type postProcessorAdapter struct {
	PostProcessor
}

func (a postProcessorAdapter) ProcessLifecycle(phase Phase, instance any, c *Container) error {
	if phase != PhaseInit {
		return nil
	}
	return a.PostProcess(instance, c)
}

// 内置生命周期标记
type (
	// OnInit 标记初始化方法
	OnInit struct{}
	// OnRunning 标记容器进入运行状态时调用的方法
	OnRunning struct{}
	// OnDestroy 标记销毁方法
	OnDestroy struct{}
	// Inject 标记注入方法，每个参数都会被解析并注入
	Inject struct{}
	// InjectContainer 标记接收 *Container 的方法
	InjectContainer struct{}
)

// ArgsFunc 为匹配的方法计算调用参数
type ArgsFunc func(c *Container, m *meta.Method, marker any) ([]reflect.Value, error)

// Callable 将一个标记与生命周期阶段和参数计算方式关联起来。
// Order 小的先执行，同一 Order 内按标记注册顺序。
type Callable struct {
	Marker reflect.Type
	Phase  Phase
	Order  int
	Args   ArgsFunc
}

// NoArgs 不传参数
func NoArgs(*Container, *meta.Method, any) ([]reflect.Value, error) {
	return nil, nil
}

// ContainerArg 传入容器本身
func ContainerArg(c *Container, _ *meta.Method, _ any) ([]reflect.Value, error) {
	return []reflect.Value{reflect.ValueOf(c)}, nil
}

// ResolvedArgs 为每个参数解析一个依赖
func ResolvedArgs(c *Container, m *meta.Method, _ any) ([]reflect.Value, error) {
	args := make([]reflect.Value, len(m.Params))
	for i, t := range m.Params {
		v, err := c.dependency(t)
		if err != nil {
			return nil, fmt.Errorf("参数 %d: %w", i, err)
		}
		args[i] = valueFor(v, t)
	}
	return args, nil
}

// RegisterCallable 为标记注册生命周期回调
func (r *Registry) RegisterCallable(callable *Callable) error {
	if callable.Args == nil {
		callable.Args = NoArgs
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.callables[callable.Marker]; ok {
		return fmt.Errorf("di: callable for marker %v already registered", callable.Marker)
	}
	r.callables[callable.Marker] = callable

	r.plans.Range(func(key, _ any) bool {
		r.plans.Delete(key)
		return true
	})
	return nil
}

func registerBuiltinCallables(r *Registry) {
	for _, c := range []*Callable{
		{Marker: TypeOf[Inject](), Phase: PhaseInit, Order: 0, Args: ResolvedArgs},
		{Marker: TypeOf[InjectContainer](), Phase: PhaseInit, Order: 0, Args: ContainerArg},
		{Marker: TypeOf[OnInit](), Phase: PhaseInit, Order: 100, Args: NoArgs},
		{Marker: TypeOf[OnRunning](), Phase: PhaseRunning, Order: 100, Args: NoArgs},
		{Marker: TypeOf[OnDestroy](), Phase: PhaseDestroy, Order: 100, Args: NoArgs},
	} {
		if err := r.RegisterCallable(c); err != nil {
			panic(err)
		}
	}
}

// lifecycleCall 一个类型上需要在某阶段调用的方法
type lifecycleCall struct {
	method   *meta.Method
	marker   any
	callable *Callable
	seq      uint64
}

// lifecyclePlan 计算（并缓存）类型 t 的回调列表
func (r *Registry) lifecyclePlan(t reflect.Type) []lifecycleCall {
	if v, ok := r.plans.Load(t); ok {
		return v.([]lifecycleCall)
	}

	r.mu.RLock()
	var calls []lifecycleCall
	for _, m := range r.meta.Describe(t).Methods {
		for _, a := range m.Annotations {
			if callable, ok := r.callables[a.Type()]; ok {
				calls = append(calls, lifecycleCall{method: m, marker: a.Value, callable: callable, seq: a.Seq})
			}
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(calls, func(i, j int) bool {
		if calls[i].callable.Order != calls[j].callable.Order {
			return calls[i].callable.Order < calls[j].callable.Order
		}
		return calls[i].seq < calls[j].seq
	})

	actual, _ := r.plans.LoadOrStore(t, calls)
	return actual.([]lifecycleCall)
}

// callableProcessor 执行标记方法的内置生命周期处理器
type callableProcessor struct {
	registry *Registry
}

func (p *callableProcessor) ProcessLifecycle(phase Phase, instance any, c *Container) error {
	for _, call := range p.registry.lifecyclePlan(reflect.TypeOf(instance)) {
		if call.callable.Phase != phase {
			continue
		}

		args, err := call.callable.Args(c, call.method, call.marker)
		if err != nil {
			return fmt.Errorf("di: %s %s: %w", phase, call.method, err)
		}
		if _, err := callMethod(instance, call.method, args); err != nil {
			return fmt.Errorf("di: %s %s: %w", phase, call.method, err)
		}
	}
	return nil
}
