package di

import (
	"errors"
	"reflect"
	"testing"

	"github.com/gocrud/ioc/meta"
)

type TestStruct struct {
	Val string
}

func NewTestStruct(val string) *TestStruct {
	return &TestStruct{Val: val}
}

func TestConstructorInvoker(t *testing.T) {
	fn, err := meta.DescribeFunc(NewTestStruct)
	if err != nil {
		t.Fatalf("DescribeFunc failed: %v", err)
	}

	invoker := newInvoker("constructor", fn)

	res, err := invoker([]reflect.Value{reflect.ValueOf("test")})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	ts, ok := res.(*TestStruct)
	if !ok || ts.Val != "test" {
		t.Error("Result mismatch")
	}
}

func TestInvokerErrorAndNil(t *testing.T) {
	failing, _ := meta.DescribeFunc(func() (*TestStruct, error) { return nil, errors.New("boom") })
	if _, err := newInvoker("factory", failing)(nil); err == nil || err.Error() != "factory failed: boom" {
		t.Errorf("unexpected error: %v", err)
	}

	nilResult, _ := meta.DescribeFunc(func() *TestStruct { return nil })
	if _, err := newInvoker("factory", nilResult)(nil); err == nil {
		t.Error("expected nil instance error")
	}
}

func BenchmarkInvoker(b *testing.B) {
	fn, _ := meta.DescribeFunc(NewTestStruct)
	invoker := newInvoker("constructor", fn)
	args := []reflect.Value{reflect.ValueOf("test")}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		invoker(args)
	}
}

func BenchmarkReflectCall(b *testing.B) {
	fn := reflect.ValueOf(NewTestStruct)
	args := []reflect.Value{reflect.ValueOf("test")}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		fn.Call(args)
	}
}
