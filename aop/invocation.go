package aop

import (
	"context"
	"reflect"

	"github.com/gocrud/ioc/async"
	"github.com/gocrud/ioc/meta"
)

// Invocation 一次被拦截的调用。
//
// Results 不包含方法最后的 error 返回值，error 保存在 Err 中；
// 异步方法的 Results 为 Future 的结果值。
type Invocation struct {
	Target  any
	Method  *meta.Method
	Args    []any
	Results []any
	Err     error

	chain *chain
	ctx   context.Context
	level int
}

// Proceed 进入下一层 around 通知或原始方法，args 非空时替换参数
func (inv *Invocation) Proceed(args ...any) error {
	if len(args) > 0 {
		inv.Args = args
	}
	return inv.next(inv.level)
}

// ProceedAsync 在异步连接点上进入下一层并等待其完成
func (inv *Invocation) ProceedAsync(ctx context.Context, args ...any) error {
	inv.ctx = ctx
	return inv.Proceed(args...)
}

// Return 设置调用结果并清除错误，用于 around 通知短路或捕获错误
func (inv *Invocation) Return(values ...any) {
	inv.Results = values
	inv.Err = nil
}

// Suppress 在 error 通知中抑制错误，并以 values 作为调用结果
func (inv *Invocation) Suppress(values ...any) {
	inv.Return(values...)
}

// Result 返回第一个结果
func (inv *Invocation) Result() any {
	if len(inv.Results) == 0 {
		return nil
	}
	return inv.Results[0]
}

// Context 返回调用的上下文
func (inv *Invocation) Context() context.Context {
	if inv.ctx == nil {
		return context.Background()
	}
	return inv.ctx
}

func (inv *Invocation) next(i int) error {
	if i < len(inv.chain.around) {
		saved := inv.level
		inv.level = i + 1
		err := inv.chain.around[i].call(inv.ctx, inv)
		inv.level = saved

		if err != nil {
			inv.Err = err
		}
		return inv.Err
	}

	inv.invokeTarget()
	return inv.Err
}

// invokeTarget 调用原始方法
func (inv *Invocation) invokeTarget() {
	m := inv.Method
	in := make([]reflect.Value, len(inv.Args))
	for i, arg := range inv.Args {
		in[i] = argValue(arg, paramType(m, i))
	}

	out := reflect.ValueOf(inv.Target).Method(m.Index).Call(in)

	inv.Results = nil
	inv.Err = nil

	if m.Async {
		future, _ := out[0].Interface().(*async.Future)
		if future == nil {
			return
		}
		val, err := future.Await(inv.Context())
		inv.Results = []any{val}
		inv.Err = err
		return
	}

	n := len(out)
	if m.ReturnsError() {
		n--
		if err, _ := out[n].Interface().(error); err != nil {
			inv.Err = err
		}
	}
	for _, v := range out[:n] {
		inv.Results = append(inv.Results, v.Interface())
	}
}

func paramType(m *meta.Method, i int) reflect.Type {
	if m.Variadic && i >= len(m.Params)-1 {
		return m.Params[len(m.Params)-1].Elem()
	}
	return m.Params[i]
}

func argValue(arg any, t reflect.Type) reflect.Value {
	if arg == nil {
		return reflect.Zero(t)
	}
	return reflect.ValueOf(arg)
}
