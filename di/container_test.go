package di_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocrud/ioc/di"
)

type Bar struct{}

type Foo struct {
	Bar *Bar
}

func NewFoo(bar *Bar) *Foo {
	return &Foo{Bar: bar}
}

func TestConstructorInjection(t *testing.T) {
	r, _ := newRegistry(t)
	di.Provide(r, NewFoo)
	di.Register[*Bar](r)

	c := newContainer(t, r)

	foo := di.MustResolve[*Foo](c)
	assert.Same(t, di.MustResolve[*Bar](c), foo.Bar)
}

func TestSingletonPerContainer(t *testing.T) {
	r, _ := newRegistry(t)
	di.Register[*Bar](r)

	c1 := newContainer(t, r)
	c2 := newContainer(t, r)

	assert.Same(t, di.MustResolve[*Bar](c1), di.MustResolve[*Bar](c1))
	assert.NotSame(t, di.MustResolve[*Bar](c1), di.MustResolve[*Bar](c2))
}

type Counted struct{ N int64 }

func TestTransient(t *testing.T) {
	r, _ := newRegistry(t)

	var n atomic.Int64
	di.Provide(r, func() *Counted { return &Counted{N: n.Add(1)} }, di.WithTransient())

	c := newContainer(t, r)
	a := di.MustResolve[*Counted](c)
	b := di.MustResolve[*Counted](c)
	assert.NotSame(t, a, b)
	assert.NotEqual(t, a.N, b.N)
}

func TestEagerAndLazy(t *testing.T) {
	r, _ := newRegistry(t)

	var eager, lazy atomic.Int64
	di.Provide(r, func() *Bar { eager.Add(1); return &Bar{} })
	di.Provide(r, func() *Counted { lazy.Add(1); return &Counted{} }, di.WithLazy())

	c := newContainer(t, r)
	assert.EqualValues(t, 1, eager.Load())
	assert.EqualValues(t, 0, lazy.Load())

	di.MustResolve[*Counted](c)
	di.MustResolve[*Counted](c)
	assert.EqualValues(t, 1, lazy.Load())
}

func TestConcurrentSingletonCreation(t *testing.T) {
	r, _ := newRegistry(t)

	var n atomic.Int64
	di.Provide(r, func() *Counted { return &Counted{N: n.Add(1)} }, di.WithLazy())

	c := newContainer(t, r)

	var wg sync.WaitGroup
	results := make([]*Counted, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = di.MustResolve[*Counted](c)
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, n.Load())
	for _, v := range results {
		assert.Same(t, results[0], v)
	}
}

func TestNotSupported(t *testing.T) {
	r, _ := newRegistry(t)
	c := newContainer(t, r)

	_, err := di.Resolve[*Plain](c)
	var ns *di.NotSupportedError
	require.True(t, errors.As(err, &ns))
	assert.Equal(t, di.TypeOf[*Plain](), ns.Type)
	assert.False(t, c.Supports(di.TypeOf[*Plain]()))
}

func TestUndeclaredScope(t *testing.T) {
	r, _ := newRegistry(t)
	_, err := di.New[*Plain](r)
	assert.Error(t, err)
}

func TestContainerInjection(t *testing.T) {
	type holder struct {
		C *di.Container
	}

	r, _ := newRegistry(t)
	di.Provide(r, func(c *di.Container) *holder { return &holder{C: c} })

	c := newContainer(t, r)
	assert.Same(t, c, di.MustResolve[*holder](c).C)
}

func TestValueRegistration(t *testing.T) {
	r, _ := newRegistry(t)
	bar := &Bar{}
	di.Register[*Bar](r, di.WithValue(bar))

	c := newContainer(t, r)
	assert.Same(t, bar, di.MustResolve[*Bar](c))
}

func TestCreationErrorFailsContainer(t *testing.T) {
	r, _ := newRegistry(t)
	boom := errors.New("boom")
	di.Provide(r, func() (*Bar, error) { return nil, boom })

	_, err := di.New[*testScope](r)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var creation *di.CreationError
	assert.True(t, errors.As(err, &creation))
}

// ---------------- 字段注入 ----------------

type OptionalDeps struct {
	Bar     *Bar    `di:""`
	Missing *Plain  `di:"?"`
	Greeter Greeter `di:"optional"`
	Ignored *Bar
}

func TestFieldInjection(t *testing.T) {
	r, _ := newRegistry(t)
	di.Register[*Bar](r)
	di.Register[*OptionalDeps](r)

	c := newContainer(t, r)
	deps := di.MustResolve[*OptionalDeps](c)

	assert.Same(t, di.MustResolve[*Bar](c), deps.Bar)
	assert.Nil(t, deps.Missing)
	assert.Nil(t, deps.Greeter)
	assert.Nil(t, deps.Ignored)
}

// ---------------- 销毁 ----------------

func TestDestroy(t *testing.T) {
	r, _ := newRegistry(t)
	di.Register[*Bar](r)

	c, err := di.New[*testScope](r)
	require.NoError(t, err)

	require.NoError(t, c.Destroy())
	require.NoError(t, c.Destroy())

	_, err = di.Resolve[*Bar](c)
	assert.ErrorIs(t, err, di.ErrDestroyed)
}

// ---------------- 父子容器与可见性 ----------------

type childScope struct{}

type ChildOnly struct {
	Bar *Bar `di:""`
}

const childModule = "example.com/child"

func TestParentChild(t *testing.T) {
	r, _ := newRegistry(t)
	di.DeclareModuleScope[*childScope](r, childModule)
	di.Register[*Bar](r)
	di.Register[*ChildOnly](r, di.WithModule(childModule))

	parent := newContainer(t, r)
	child, err := di.New[*childScope](r, di.WithParent(parent))
	require.NoError(t, err)

	// 子容器看到父容器的单例
	assert.Same(t, di.MustResolve[*Bar](parent), di.MustResolve[*ChildOnly](child).Bar)
	assert.Same(t, di.MustResolve[*Bar](parent), di.MustResolve[*Bar](child))

	// 父容器看不到仅属于子容器的提供者
	_, err = di.Resolve[*ChildOnly](parent)
	var ns *di.NotSupportedError
	assert.True(t, errors.As(err, &ns))

	// 销毁子容器不影响父容器
	require.NoError(t, child.Destroy())
	_, err = di.Resolve[*Bar](parent)
	assert.NoError(t, err)
}

type elsewhereScope struct{}

func TestModuleVisibility(t *testing.T) {
	r, _ := newRegistry(t)
	di.Register[*Plain](r, di.WithModule("example.com/elsewhere"))
	di.Register[*Bar](r, di.WithModule("github.com/gocrud/ioc/di_test/sub"))
	di.DeclareModuleScope[*elsewhereScope](r, "example.com/elsewhere")

	c := newContainer(t, r)
	assert.False(t, c.Supports(di.TypeOf[*Plain]()))
	assert.True(t, c.Supports(di.TypeOf[*Bar]()), "子路径下的提供者可见")

	other, err := di.New[*elsewhereScope](r)
	require.NoError(t, err)
	defer other.Destroy()
	assert.True(t, other.Supports(di.TypeOf[*Plain]()))
	assert.False(t, other.Supports(di.TypeOf[*Bar]()))
}

type importingScope struct{}

func TestScopeImports(t *testing.T) {
	r, _ := newRegistry(t)
	di.Register[*Plain](r, di.WithModule("example.com/elsewhere"))
	di.DeclareModuleScope[*elsewhereScope](r, "example.com/elsewhere")
	di.DeclareModuleScope[*importingScope](r, "example.com/app", di.TypeOf[*elsewhereScope]())

	c, err := di.New[*importingScope](r)
	require.NoError(t, err)
	defer c.Destroy()

	assert.True(t, c.Supports(di.TypeOf[*Plain]()))
	assert.False(t, c.Supports(di.TypeOf[*Bar]()))
}
