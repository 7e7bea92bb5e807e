package di

import (
	"fmt"
	"reflect"

	"github.com/gocrud/ioc/meta"
)

// Invoker 实例化调用器
// 封装了反射调用的细节，预先检查错误和返回值
type Invoker func(args []reflect.Value) (any, error)

// newInvoker 为构造函数或工厂函数创建调用器
func newInvoker(kind string, fn *meta.Func) Invoker {
	return func(args []reflect.Value) (any, error) {
		results := fn.Fn.Call(args)

		// 检查 error
		if fn.ReturnsError {
			if last := results[len(results)-1]; !last.IsNil() {
				return nil, fmt.Errorf("%s failed: %w", kind, last.Interface().(error))
			}
		}

		// 检查 nil
		first := results[0]
		switch first.Kind() {
		case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			if first.IsNil() {
				return nil, fmt.Errorf("%s returned nil instance", kind)
			}
		}

		return first.Interface(), nil
	}
}

// callMethod 调用实例上的方法，若最后一个返回值为非 nil 的 error 则返回它
func callMethod(instance any, m *meta.Method, args []reflect.Value) ([]reflect.Value, error) {
	method := reflect.ValueOf(instance).Method(m.Index)
	results := method.Call(args)

	if m.ReturnsError() {
		if last := results[len(results)-1]; !last.IsNil() {
			return results, last.Interface().(error)
		}
	}
	return results, nil
}

// valueFor 将解析出的依赖转换为 t 类型的实参
func valueFor(v any, t reflect.Type) reflect.Value {
	if v == nil {
		return reflect.Zero(t)
	}
	return reflect.ValueOf(v)
}
