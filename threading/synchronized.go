package threading

import (
	"context"
	"reflect"
	"sync"

	"github.com/gocrud/ioc/aop"
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/meta"
)

// Synchronized 标记需要串行执行的方法：同一实例上带此标记的方法不会并发执行。
// 通过代理进入的调用才会加锁，方法内部直接调用自身的其他方法不经过代理。
type Synchronized struct{}

// Module 线程模块的作用域
type Module struct{}

// SynchronizedAdvice 为带 Synchronized 标记的方法加实例级互斥锁
type SynchronizedAdvice struct {
	locks sync.Map // target -> *sync.Mutex
}

func (a *SynchronizedAdvice) mutex(target any) *sync.Mutex {
	if mu, ok := a.locks.Load(target); ok {
		return mu.(*sync.Mutex)
	}
	mu, _ := a.locks.LoadOrStore(target, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Lock 同步连接点
func (a *SynchronizedAdvice) Lock(inv *aop.Invocation) error {
	mu := a.mutex(inv.Target)
	mu.Lock()
	defer mu.Unlock()
	return inv.Proceed()
}

// LockAsync 异步连接点，锁持有到 Future 完成
func (a *SynchronizedAdvice) LockAsync(ctx context.Context, inv *aop.Invocation) error {
	mu := a.mutex(inv.Target)
	mu.Lock()
	defer mu.Unlock()
	return inv.ProceedAsync(ctx)
}

// ProcessLifecycle 实现 di.LifecycleProcessor，实例销毁时释放它的锁
func (a *SynchronizedAdvice) ProcessLifecycle(phase di.Phase, instance any, _ *di.Container) error {
	if phase == di.PhaseDestroy && reflect.TypeOf(instance).Comparable() {
		a.locks.Delete(instance)
	}
	return nil
}

// Install 声明 Module 并注册 SynchronizedAdvice
func Install(r *di.Registry) {
	module := meta.ModulePath(di.TypeOf[*Module]())
	di.DeclareScope[*Module](r)
	di.Register[*SynchronizedAdvice](r, di.WithModule(module))

	r.Annotate(di.TypeOf[*SynchronizedAdvice]()).
		Type(aop.Advice{}).
		Method("Lock", aop.Around{aop.Methods().DecoratedWith(Synchronized{}).ThatAreSync()}).
		Method("LockAsync", aop.Around{aop.Methods().DecoratedWith(Synchronized{}).ThatAreAsync()})
}
