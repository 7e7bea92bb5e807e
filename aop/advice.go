package aop

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/meta"
)

// Advice 标记一个切面类型，其带有 Before/After/Around/Error 标记的方法为通知
type Advice struct{}

// 通知标记，每个标记携带一个或多个切点，切点之间为 OR。
//
// 通知方法签名：
//
//	func (a *Aspect) Handle(inv *aop.Invocation) error                       // 同步连接点
//	func (a *Aspect) Handle(ctx context.Context, inv *aop.Invocation) error  // 异步连接点
type (
	// Before 在调用之前执行，返回错误会跳过调用
	Before []Pointcut
	// After 在调用正常完成后执行，调用失败时不执行
	After []Pointcut
	// Around 包裹调用，必须调用 Proceed 才能到达下一层
	Around []Pointcut
	// Error 在调用最终失败时执行，可以转换或抑制错误
	Error []Pointcut
)

// Kind 通知类型
type Kind int

const (
	KindBefore Kind = iota
	KindAround
	KindAfter
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindBefore:
		return "before"
	case KindAround:
		return "around"
	case KindAfter:
		return "after"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// AdviceConfigurationError 通知配置错误，例如异步通知匹配到了同步连接点
type AdviceConfigurationError struct {
	Advice    string
	JoinPoint string
	Reason    string
}

func (e *AdviceConfigurationError) Error() string {
	if e.JoinPoint == "" {
		return fmt.Sprintf("aop: invalid advice %s: %s", e.Advice, e.Reason)
	}
	return fmt.Sprintf("aop: advice %s cannot apply to %s: %s", e.Advice, e.JoinPoint, e.Reason)
}

var (
	invocationType = reflect.TypeOf((*Invocation)(nil))
	contextType    = reflect.TypeOf((*context.Context)(nil)).Elem()
)

// advice 通知表中的一项
type advice struct {
	kind      Kind
	owner     reflect.Type
	method    *meta.Method
	pointcuts []Pointcut
	async     bool
	order     int // 提供者注册顺序
	seq       uint64
}

func (a *advice) String() string {
	return a.kind.String() + " " + a.method.String()
}

func (a *advice) matches(class *meta.TypeDescriptor, m *meta.Method) bool {
	for _, pc := range a.pointcuts {
		if pc.Match(class, m) {
			return true
		}
	}
	return false
}

// buildTable 从注册表的提供者中收集通知，按提供者注册顺序、再按标记注册顺序排列
func buildTable(r *di.Registry) ([]*advice, error) {
	var table []*advice

	for order, p := range r.Providers() {
		desc := r.Metadata().Describe(p.Type())
		if !desc.HasMarker(Advice{}) {
			continue
		}

		for _, m := range desc.Methods {
			for _, an := range m.Annotations {
				a, ok := newAdvice(p.Type(), m, an, order)
				if !ok {
					continue
				}
				if err := a.validate(); err != nil {
					return nil, err
				}
				table = append(table, a)
			}
		}
	}

	sort.SliceStable(table, func(i, j int) bool {
		if table[i].order != table[j].order {
			return table[i].order < table[j].order
		}
		return table[i].seq < table[j].seq
	})
	return table, nil
}

func newAdvice(owner reflect.Type, m *meta.Method, an meta.Annotation, order int) (*advice, bool) {
	a := &advice{owner: owner, method: m, order: order, seq: an.Seq}

	switch v := an.Value.(type) {
	case Before:
		a.kind, a.pointcuts = KindBefore, v
	case After:
		a.kind, a.pointcuts = KindAfter, v
	case Around:
		a.kind, a.pointcuts = KindAround, v
	case Error:
		a.kind, a.pointcuts = KindError, v
	default:
		return nil, false
	}

	a.async = len(m.Params) == 2 && m.Params[0] == contextType
	return a, true
}

// validate 检查通知方法签名
func (a *advice) validate() error {
	m := a.method
	if len(m.Results) != 1 || m.Results[0] != meta.ErrorType {
		return &AdviceConfigurationError{Advice: a.String(), Reason: "handler must return error"}
	}

	switch {
	case len(m.Params) == 1 && m.Params[0] == invocationType:
	case len(m.Params) == 2 && m.Params[0] == contextType && m.Params[1] == invocationType:
	default:
		return &AdviceConfigurationError{
			Advice: a.String(),
			Reason: "handler must be func(*aop.Invocation) error or func(context.Context, *aop.Invocation) error",
		}
	}

	if len(a.pointcuts) == 0 {
		return &AdviceConfigurationError{Advice: a.String(), Reason: "no pointcut"}
	}
	return nil
}

// boundAdvice 绑定到切面实例的通知
type boundAdvice struct {
	*advice
	handler reflect.Value
}

func (b *boundAdvice) call(ctx context.Context, inv *Invocation) error {
	var out []reflect.Value
	if b.async {
		if ctx == nil {
			ctx = context.Background()
		}
		out = b.handler.Call([]reflect.Value{reflect.ValueOf(ctx), reflect.ValueOf(inv)})
	} else {
		out = b.handler.Call([]reflect.Value{reflect.ValueOf(inv)})
	}

	if err, _ := out[0].Interface().(error); err != nil {
		return err
	}
	return nil
}
