package exception

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
	"github.com/gocrud/ioc/meta"
)

// Handler 标记包含错误处理方法的类型
type Handler struct{}

// Handle 标记错误处理方法。
// 方法的最后一个参数为要处理的错误类型（具体类型或接口），可选的第一个参数为 *Invocation，
// 可选地返回 error 作为处理结果：
//
//	func (h *H) OnNotFound(err *NotFoundError) error
//	func (h *H) OnAny(inv *exception.Invocation, err error) error
type Handle struct{}

// Module 错误处理模块的作用域
type Module struct{}

var (
	errorType      = reflect.TypeOf((*error)(nil)).Elem()
	invocationType = reflect.TypeOf((*Invocation)(nil))
)

// handler 一个已绑定实例的处理方法
type handler struct {
	errType reflect.Type
	method  *meta.Method
	fn      reflect.Value
	withInv bool
	returns bool
}

func (h *handler) call(inv *Invocation, err error) error {
	arg := reflect.ValueOf(err)
	var in []reflect.Value
	if h.withInv {
		in = []reflect.Value{reflect.ValueOf(inv), arg}
	} else {
		in = []reflect.Value{arg}
	}

	out := h.fn.Call(in)
	if !h.returns {
		return nil
	}
	if e, _ := out[0].Interface().(error); e != nil {
		return e
	}
	return nil
}

// step 处理链上的一环：处理方法和它匹配到的错误值
type step struct {
	handler *handler
	err     error
}

// Invocation 一次错误处理
type Invocation struct {
	Err error

	chain []step
	pos   int
}

// Proceed 调用链上的下一个处理方法并返回其结果；链已结束时返回原始错误
func (inv *Invocation) Proceed() error {
	inv.pos++
	if inv.pos >= len(inv.chain) {
		return inv.Err
	}
	s := inv.chain[inv.pos]
	return s.handler.call(inv, s.err)
}

// Manager 将错误分派给最具体的处理方法，处理方法可以通过 Proceed 交给次具体的处理方法。
//
// 具体程度按以下顺序递减：
//  1. 错误包装链（errors.Unwrap，含 errors.Join）由外向内，每层先匹配具体类型再匹配接口
//  2. 参数为 error 的处理方法最后
type Manager struct {
	container *di.Container
	logger    logging.Logger

	mu       sync.RWMutex
	handlers []*handler
	catchAll []*handler

	cache sync.Map // reflect.Type -> []*handler
}

// SetContainer 由容器注入
func (m *Manager) SetContainer(c *di.Container) {
	m.container = c
	m.logger = c.Logger().WithCategory("exception")
}

// Setup 在容器运行时收集容器可见的所有处理类型的实例
func (m *Manager) Setup() error {
	c := m.container
	for _, p := range c.Registry().Providers() {
		t := p.Type()
		desc := c.Registry().Metadata().Describe(t)
		if !desc.HasMarker(Handler{}) || !c.Supports(t) {
			continue
		}

		instance, err := c.Get(t)
		if err != nil {
			return err
		}
		if err := m.Register(instance, desc); err != nil {
			return err
		}
	}
	m.logger.Debug("错误处理方法已收集", logging.Field{Key: "handlers", Value: len(m.handlers) + len(m.catchAll)})
	return nil
}

// Register 注册实例上带 Handle 标记的方法
func (m *Manager) Register(instance any, desc *meta.TypeDescriptor) error {
	value := reflect.ValueOf(instance)

	for _, method := range desc.MethodsWith(Handle{}) {
		h, err := newHandler(value, method)
		if err != nil {
			return err
		}

		m.mu.Lock()
		if h.errType == errorType {
			m.catchAll = append(m.catchAll, h)
		} else {
			m.handlers = append(m.handlers, h)
		}
		m.mu.Unlock()
	}

	m.cache.Range(func(key, _ any) bool {
		m.cache.Delete(key)
		return true
	})
	return nil
}

func newHandler(instance reflect.Value, m *meta.Method) (*handler, error) {
	h := &handler{method: m, fn: instance.Method(m.Index)}

	switch len(m.Params) {
	case 1:
	case 2:
		if m.Params[0] != invocationType {
			return nil, fmt.Errorf("exception: first parameter of %s must be *exception.Invocation", m)
		}
		h.withInv = true
	default:
		return nil, fmt.Errorf("exception: %s must take the error to handle", m)
	}

	h.errType = m.Params[len(m.Params)-1]
	if !h.errType.Implements(errorType) {
		return nil, fmt.Errorf("exception: %s parameter %v is not an error", m, h.errType)
	}

	switch {
	case len(m.Results) == 0:
	case len(m.Results) == 1 && m.ReturnsError():
		h.returns = true
	default:
		return nil, fmt.Errorf("exception: %s must return nothing or an error", m)
	}
	return h, nil
}

// Handle 处理错误并返回处理结果。
// err 为 nil 时返回 nil；没有匹配的处理方法时原样返回 err。
func (m *Manager) Handle(err error) error {
	if err == nil {
		return nil
	}

	chain := m.chain(err)
	if len(chain) == 0 {
		return err
	}

	inv := &Invocation{Err: err, chain: chain}
	return chain[0].handler.call(inv, chain[0].err)
}

// chain 计算处理链
func (m *Manager) chain(err error) []step {
	var chain []step
	seen := make(map[*handler]bool)

	walk(err, func(e error) {
		for _, h := range m.handlersFor(reflect.TypeOf(e)) {
			if !seen[h] {
				seen[h] = true
				chain = append(chain, step{handler: h, err: e})
			}
		}
	})

	m.mu.RLock()
	for _, h := range m.catchAll {
		chain = append(chain, step{handler: h, err: err})
	}
	m.mu.RUnlock()

	return chain
}

// handlersFor 返回匹配类型 t 的处理方法：具体类型在前，接口在后，各自按注册顺序
func (m *Manager) handlersFor(t reflect.Type) []*handler {
	if v, ok := m.cache.Load(t); ok {
		return v.([]*handler)
	}

	m.mu.RLock()
	var exact, iface []*handler
	for _, h := range m.handlers {
		switch {
		case h.errType == t:
			exact = append(exact, h)
		case h.errType.Kind() == reflect.Interface && t.Implements(h.errType):
			iface = append(iface, h)
		}
	}
	m.mu.RUnlock()

	result := append(exact, iface...)
	m.cache.Store(t, result)
	return result
}

// walk 先序遍历错误包装树
func walk(err error, visit func(error)) {
	if err == nil {
		return
	}
	visit(err)

	switch u := err.(type) {
	case interface{ Unwrap() error }:
		walk(u.Unwrap(), visit)
	case interface{ Unwrap() []error }:
		for _, e := range u.Unwrap() {
			walk(e, visit)
		}
	}
}

// Install 声明 Module 并注册 Manager
func Install(r *di.Registry) {
	module := meta.ModulePath(di.TypeOf[*Module]())
	di.DeclareScope[*Module](r)
	di.Register[*Manager](r, di.WithModule(module))

	r.Annotate(di.TypeOf[*Manager]()).
		Method("SetContainer", di.InjectContainer{}).
		Method("Setup", di.OnRunning{})
}
