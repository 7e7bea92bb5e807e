package aop

import (
	"reflect"
	"sync"

	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
	"github.com/gocrud/ioc/meta"
)

// typePlan 一个具体类型的织入计划：方法名 -> 匹配的通知（按通知表顺序）
type typePlan struct {
	desc    *meta.TypeDescriptor
	methods map[string][]*advice
	err     error
}

// Weaver 实现 di.Weaver，为容器创建的实例织入切面
type Weaver struct {
	registry *di.Registry
	logger   logging.Logger

	tableOnce sync.Once
	table     []*advice
	tableErr  error

	plans sync.Map // reflect.Type -> *typePlan
}

// Install 为注册表安装切面织入器
func Install(r *di.Registry) *Weaver {
	w := &Weaver{
		registry: r,
		logger:   r.Logger().WithCategory("aop"),
	}
	r.SetWeaver(w)
	return w
}

// Weave 实现 di.Weaver。
// 切面类型本身不会被织入；没有匹配通知的实例保持原样。
func (w *Weaver) Weave(c *di.Container, inst *di.Instance) error {
	t := reflect.TypeOf(inst.Value)

	plan, err := w.plan(t)
	if err != nil {
		return err
	}
	if len(plan.methods) == 0 {
		return nil
	}

	chains, err := w.bind(c, plan)
	if err != nil {
		return err
	}
	if len(chains) == 0 {
		return nil
	}

	proxy := &Proxy{target: inst.Value, desc: plan.desc, chains: chains}

	exposed := stubsFor(t)
	for _, s := range exposed {
		inst.Expose(s.contract, s.factory(proxy))
	}
	if len(exposed) == 0 {
		w.logger.Warn("类型有匹配的通知但没有注册接口桩，调用不会被拦截",
			logging.Field{Key: "type", Value: t.String()})
	}
	return nil
}

// Aspects 实现 di.AspectResolver，返回类型 t 的织入计划引用的切面类型。
// 计划出错时返回 nil，错误在织入时报告。
func (w *Weaver) Aspects(t reflect.Type) []reflect.Type {
	plan, err := w.plan(t)
	if err != nil {
		return nil
	}

	var owners []reflect.Type
	seen := make(map[reflect.Type]bool)
	for _, m := range plan.desc.Methods {
		for _, a := range plan.methods[m.Name] {
			if !seen[a.owner] {
				seen[a.owner] = true
				owners = append(owners, a.owner)
			}
		}
	}
	return owners
}

func (w *Weaver) advices() ([]*advice, error) {
	w.tableOnce.Do(func() {
		w.table, w.tableErr = buildTable(w.registry)
		w.logger.Debug("通知表已构建", logging.Field{Key: "advices", Value: len(w.table)})
	})
	return w.table, w.tableErr
}

// plan 计算（并按类型缓存）织入计划
func (w *Weaver) plan(t reflect.Type) (*typePlan, error) {
	if v, ok := w.plans.Load(t); ok {
		p := v.(*typePlan)
		return p, p.err
	}

	p := w.computePlan(t)
	actual, _ := w.plans.LoadOrStore(t, p)
	p = actual.(*typePlan)
	return p, p.err
}

func (w *Weaver) computePlan(t reflect.Type) *typePlan {
	desc := w.registry.Metadata().Describe(t)
	p := &typePlan{desc: desc, methods: make(map[string][]*advice)}

	table, err := w.advices()
	if err != nil {
		p.err = err
		return p
	}
	if desc.HasMarker(Advice{}) {
		return p
	}

	for _, m := range desc.Methods {
		for _, a := range table {
			if !a.matches(desc, m) {
				continue
			}
			if a.async != m.Async {
				p.err = &AdviceConfigurationError{
					Advice:    a.String(),
					JoinPoint: m.String(),
					Reason:    "sync/async mismatch",
				}
				return p
			}
			p.methods[m.Name] = append(p.methods[m.Name], a)
		}
	}

	if len(p.methods) > 0 {
		w.logger.Debug("织入计划", logging.Field{Key: "type", Value: t.String()},
			logging.Field{Key: "methods", Value: len(p.methods)})
	}
	return p
}

// bind 将计划中的通知绑定到容器 c 中的切面实例。
// 容器不可见的切面被忽略。
func (w *Weaver) bind(c *di.Container, plan *typePlan) (map[string]*chain, error) {
	aspects := make(map[reflect.Type]reflect.Value)
	chains := make(map[string]*chain)

	for name, advices := range plan.methods {
		ch := &chain{}
		for _, a := range advices {
			aspect, ok := aspects[a.owner]
			if !ok {
				if !c.Supports(a.owner) {
					continue
				}
				v, err := c.Get(a.owner)
				if err != nil {
					return nil, err
				}
				aspect = reflect.ValueOf(v)
				aspects[a.owner] = aspect
			}

			b := &boundAdvice{advice: a, handler: aspect.Method(a.method.Index)}
			switch a.kind {
			case KindBefore:
				ch.before = append(ch.before, b)
			case KindAround:
				ch.around = append(ch.around, b)
			case KindAfter:
				ch.after = append(ch.after, b)
			case KindError:
				ch.errs = append(ch.errs, b)
			}
		}

		if len(ch.before)+len(ch.around)+len(ch.after)+len(ch.errs) > 0 {
			chains[name] = ch
		}
	}
	return chains, nil
}
