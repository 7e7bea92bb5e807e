package async

import (
	"context"
	"fmt"
	"reflect"
	"sync"
)

// Future 表示一个异步计算的结果。
// 异步方法以 *Future 作为第一个返回值，调用方通过 Await 等待结果。
type Future struct {
	done chan struct{}
	once sync.Once
	val  any
	err  error
}

// FutureType 是 *Future 的反射类型，用于识别异步方法。
var FutureType = reflect.TypeOf((*Future)(nil))

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Go 在新的 goroutine 中执行 fn，并返回代表其结果的 Future。
// fn 中的 panic 会被转换为错误，不会导致进程崩溃。
func Go(ctx context.Context, fn func(ctx context.Context) (any, error)) *Future {
	f := newFuture()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				f.complete(nil, fmt.Errorf("async: panic: %v", r))
			}
		}()
		val, err := fn(ctx)
		f.complete(val, err)
	}()
	return f
}

// Resolved 返回一个已成功完成的 Future
func Resolved(val any) *Future {
	f := newFuture()
	f.complete(val, nil)
	return f
}

// Failed 返回一个已失败的 Future
func Failed(err error) *Future {
	f := newFuture()
	f.complete(nil, err)
	return f
}

func (f *Future) complete(val any, err error) {
	f.once.Do(func() {
		f.val = val
		f.err = err
		close(f.done)
	})
}

// Done 返回一个在 Future 完成时关闭的通道
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Await 阻塞直到 Future 完成或 ctx 结束。
// ctx 结束时返回 ctx.Err()，底层计算不会被回滚。
func (f *Future) Await(ctx context.Context) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// AwaitAs 等待 Future 并将结果断言为 T
func AwaitAs[T any](ctx context.Context, f *Future) (T, error) {
	var zero T
	if f == nil {
		return zero, fmt.Errorf("async: nil future")
	}
	val, err := f.Await(ctx)
	if err != nil {
		return zero, err
	}
	if val == nil {
		return zero, nil
	}
	v, ok := val.(T)
	if !ok {
		return zero, fmt.Errorf("async: future value is %T, expected %v", val, reflect.TypeOf((*T)(nil)).Elem())
	}
	return v, nil
}
