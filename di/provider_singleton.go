package di

import (
	"reflect"
	"sync"
)

// singletonCell 保存一个容器内的单例值
type singletonCell struct {
	once sync.Once
	inst *Instance
	err  error
}

// SingletonProvider 包装另一个提供者，每个容器最多创建一次实例。
// 并发的首次请求会阻塞等待，不会重复构造；创建失败的错误同样被记住。
type SingletonProvider struct {
	inner InstanceProvider
	cells sync.Map // *Container -> *singletonCell
}

func newSingletonProvider(inner InstanceProvider) *SingletonProvider {
	return &SingletonProvider{inner: inner}
}

func (p *SingletonProvider) Type() reflect.Type { return p.inner.Type() }
func (p *SingletonProvider) Module() string     { return p.inner.Module() }
func (p *SingletonProvider) Eager() bool        { return p.inner.Eager() }
func (p *SingletonProvider) Singleton() bool    { return true }

// Dependencies 与被包装的提供者共享依赖列表
func (p *SingletonProvider) Dependencies() []InstanceProvider {
	return p.inner.Dependencies()
}

// Resolve 实现 InstanceProvider
func (p *SingletonProvider) Resolve(ctx *ResolveContext) error {
	return p.inner.Resolve(ctx)
}

// Create 实现 InstanceProvider
func (p *SingletonProvider) Create(c *Container) (*Instance, error) {
	v, _ := p.cells.LoadOrStore(c, &singletonCell{})
	cell := v.(*singletonCell)

	cell.once.Do(func() {
		cell.inst, cell.err = p.inner.Create(c)
	})
	return cell.inst, cell.err
}

// Unwrap 返回被包装的提供者
func (p *SingletonProvider) Unwrap() InstanceProvider {
	return p.inner
}

// forget 丢弃容器 c 的单例单元，在容器销毁后调用
func (p *SingletonProvider) forget(c *Container) {
	p.cells.Delete(c)
}

func (p *SingletonProvider) String() string {
	return describeProviders("SingletonProvider", p.Type(), p.inner.String())
}

// AmbiguousProvider 表示一个被多个具体提供者实现的接口。
// 注册时不报错，只有在创建时才失败并列出所有候选。
type AmbiguousProvider struct {
	typ        reflect.Type
	candidates []InstanceProvider
}

func newAmbiguousProvider(typ reflect.Type, candidates ...InstanceProvider) *AmbiguousProvider {
	return &AmbiguousProvider{typ: typ, candidates: candidates}
}

func (p *AmbiguousProvider) Type() reflect.Type { return p.typ }
func (p *AmbiguousProvider) Module() string     { return "" }
func (p *AmbiguousProvider) Eager() bool        { return false }
func (p *AmbiguousProvider) Singleton() bool    { return false }

// Dependencies 返回所有候选
func (p *AmbiguousProvider) Dependencies() []InstanceProvider {
	return p.candidates
}

// Candidates 返回候选提供者
func (p *AmbiguousProvider) Candidates() []InstanceProvider {
	return p.candidates
}

func (p *AmbiguousProvider) add(candidate InstanceProvider) {
	p.candidates = append(p.candidates, candidate)
}

// Resolve 解析每个候选，以便检测经由接口形成的循环
func (p *AmbiguousProvider) Resolve(ctx *ResolveContext) error {
	for _, c := range p.candidates {
		if err := c.Resolve(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Create 总是失败
func (p *AmbiguousProvider) Create(*Container) (*Instance, error) {
	return nil, p.err()
}

func (p *AmbiguousProvider) err() error {
	types := make([]reflect.Type, len(p.candidates))
	for i, c := range p.candidates {
		types[i] = c.Type()
	}
	return &AmbiguousDependencyError{Type: p.typ, Candidates: types}
}

func (p *AmbiguousProvider) String() string {
	return describeProviders("AmbiguousProvider", p.typ)
}
