package aop

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/gocrud/ioc/async"
	"github.com/gocrud/ioc/meta"
)

// chain 一个连接点上绑定好的通知链
type chain struct {
	before []*boundAdvice
	around []*boundAdvice
	after  []*boundAdvice
	errs   []*boundAdvice
}

var emptyChain = &chain{}

// run 依次执行 before、around（最先注册的在最外层）、原始方法、after，
// 调用失败时执行 error 通知。
func (ch *chain) run(inv *Invocation) {
	for _, b := range ch.before {
		if err := b.call(inv.ctx, inv); err != nil {
			inv.Err = err
			ch.handleError(inv)
			return
		}
	}

	inv.next(0)

	if inv.Err == nil {
		for _, b := range ch.after {
			if err := b.call(inv.ctx, inv); err != nil {
				inv.Err = err
				break
			}
		}
	}

	if inv.Err != nil {
		ch.handleError(inv)
	}
}

// handleError 执行 error 通知。
// 通知返回非 nil 错误时替换原错误，调用 Suppress 后停止。
func (ch *chain) handleError(inv *Invocation) {
	for _, b := range ch.errs {
		if inv.Err == nil {
			return
		}
		if err := b.call(inv.ctx, inv); err != nil {
			inv.Err = err
		}
	}
}

// Proxy 持有被织入的原始对象及其每个方法的通知链。
// 接口桩通过 Call* 辅助函数将调用转发给 Proxy。
type Proxy struct {
	target any
	desc   *meta.TypeDescriptor
	chains map[string]*chain
}

// Target 返回原始对象
func (p *Proxy) Target() any {
	return p.target
}

// Intercepted 判断方法是否有通知
func (p *Proxy) Intercepted(name string) bool {
	_, ok := p.chains[name]
	return ok
}

// Invoke 通过通知链调用方法 name，返回完成后的 Invocation
func (p *Proxy) Invoke(ctx context.Context, name string, args ...any) *Invocation {
	m := p.desc.Method(name)
	if m == nil {
		panic(fmt.Sprintf("aop: %v has no method %s", p.desc.Type, name))
	}

	ch, ok := p.chains[name]
	if !ok {
		ch = emptyChain
	}

	inv := &Invocation{
		Target: p.target,
		Method: m,
		Args:   args,
		chain:  ch,
		ctx:    ctx,
	}
	ch.run(inv)
	return inv
}

// Call0 调用无返回值的方法，调用失败时 panic
func Call0(p *Proxy, name string, args ...any) {
	if inv := p.Invoke(context.Background(), name, args...); inv.Err != nil {
		panic(inv.Err)
	}
}

// Call0E 调用只返回 error 的方法
func Call0E(p *Proxy, name string, args ...any) error {
	return p.Invoke(context.Background(), name, args...).Err
}

// Call1 调用返回一个值的方法，调用失败时 panic
func Call1[R any](p *Proxy, name string, args ...any) R {
	inv := p.Invoke(context.Background(), name, args...)
	if inv.Err != nil {
		panic(inv.Err)
	}
	return resultAs[R](inv.Result())
}

// Call1E 调用返回 (R, error) 的方法
func Call1E[R any](p *Proxy, name string, args ...any) (R, error) {
	inv := p.Invoke(context.Background(), name, args...)
	if inv.Err != nil {
		var zero R
		return zero, inv.Err
	}
	return resultAs[R](inv.Result()), nil
}

// CallAsync 调用异步方法。
// 第一个参数为 context.Context 时用作通知链的上下文。
func CallAsync(p *Proxy, name string, args ...any) *async.Future {
	ctx := context.Background()
	if len(args) > 0 {
		if c, ok := args[0].(context.Context); ok && c != nil {
			ctx = c
		}
	}

	return async.Go(ctx, func(ctx context.Context) (any, error) {
		inv := p.Invoke(ctx, name, args...)
		return inv.Result(), inv.Err
	})
}

func resultAs[R any](v any) R {
	if v == nil {
		var zero R
		return zero
	}
	return v.(R)
}

// stub 一个接口桩工厂
type stub struct {
	contract reflect.Type
	factory  func(*Proxy) any
}

var (
	stubsMu sync.RWMutex
	stubs   []stub
)

// RegisterStub 为接口 I 注册桩工厂。
// 被织入的实例实现了 I 时，以 I 获取该实例将得到桩，桩的方法应通过 Call* 转发给 Proxy。
//
// 示例：
//
//	type greeterStub struct{ p *aop.Proxy }
//
//	func (s greeterStub) Greet(name string) string { return aop.Call1[string](s.p, "Greet", name) }
//
//	aop.RegisterStub[Greeter](func(p *aop.Proxy) Greeter { return greeterStub{p} })
func RegisterStub[I any](factory func(*Proxy) I) {
	contract := reflect.TypeOf((*I)(nil)).Elem()
	if contract.Kind() != reflect.Interface {
		panic(fmt.Sprintf("aop: stub contract %v must be an interface", contract))
	}

	stubsMu.Lock()
	defer stubsMu.Unlock()

	for i, s := range stubs {
		if s.contract == contract {
			stubs = append(stubs[:i], stubs[i+1:]...)
			break
		}
	}
	stubs = append(stubs, stub{
		contract: contract,
		factory:  func(p *Proxy) any { return factory(p) },
	})
}

// stubsFor 返回类型 t 实现的所有已注册接口桩
func stubsFor(t reflect.Type) []stub {
	stubsMu.RLock()
	defer stubsMu.RUnlock()

	var result []stub
	for _, s := range stubs {
		if t.Implements(s.contract) {
			result = append(result, s)
		}
	}
	return result
}
