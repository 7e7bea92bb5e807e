package di_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/meta"
)

type testScope struct{}

// newRegistry 创建使用独立元数据的注册表，避免测试之间共享标记
func newRegistry(t *testing.T) (*di.Registry, *meta.Reflector) {
	t.Helper()
	rf := meta.NewReflector()
	r := di.NewRegistry(di.WithMetadata(rf))
	di.DeclareScope[*testScope](r)
	return r, rf
}

func newContainer(t *testing.T, r *di.Registry) *di.Container {
	t.Helper()
	c, err := di.New[*testScope](r)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Destroy() })
	return c
}

// ---------------- 循环依赖 ----------------

type CycleA struct{ B *CycleB }
type CycleB struct{ A *CycleA }

func TestCycleDetection(t *testing.T) {
	r, _ := newRegistry(t)

	created := 0
	di.Provide(r, func(b *CycleB) *CycleA { created++; return &CycleA{B: b} })
	di.Provide(r, func(a *CycleA) *CycleB { created++; return &CycleB{A: a} })

	err := r.Resolve()
	require.Error(t, err)

	var cycle *di.CycleError
	require.True(t, errors.As(err, &cycle))
	assert.Equal(t, "di: cycle detected: CycleA -> CycleB -> CycleA", cycle.Error())
	assert.Equal(t, 0, created)

	// 解析错误被记住，容器无法构建
	_, err = di.New[*testScope](r)
	assert.True(t, errors.As(err, &cycle))
}

type SelfLoop struct {
	Self *SelfLoop `di:""`
}

func TestSelfCycle(t *testing.T) {
	r, _ := newRegistry(t)
	di.Register[*SelfLoop](r)

	var cycle *di.CycleError
	require.True(t, errors.As(r.Resolve(), &cycle))
	assert.Len(t, cycle.Path, 2)
}

// ---------------- 菱形依赖 ----------------

type DiamondLeaf struct{}
type DiamondLeft struct {
	Leaf *DiamondLeaf `di:""`
}
type DiamondRight struct {
	Leaf *DiamondLeaf `di:""`
}
type DiamondTop struct {
	Left  *DiamondLeft  `di:""`
	Right *DiamondRight `di:""`
}

func TestDiamondIsNotCycle(t *testing.T) {
	r, _ := newRegistry(t)
	di.Register[*DiamondTop](r)
	di.Register[*DiamondLeft](r)
	di.Register[*DiamondRight](r)
	di.Register[*DiamondLeaf](r)

	require.NoError(t, r.Resolve())

	c := newContainer(t, r)
	top := di.MustResolve[*DiamondTop](c)
	assert.Same(t, top.Left.Leaf, top.Right.Leaf)
}

// ---------------- 注册错误 ----------------

type Plain struct{}

func TestDuplicateRegistration(t *testing.T) {
	r, _ := newRegistry(t)
	require.NoError(t, di.TryRegister[*Plain](r))

	err := di.TryRegister[*Plain](r)
	var regErr *di.RegistrationError
	require.True(t, errors.As(err, &regErr))
	assert.Equal(t, di.TypeOf[*Plain](), regErr.Type)
}

func TestRegisterAfterResolve(t *testing.T) {
	r, _ := newRegistry(t)
	require.NoError(t, r.Resolve())

	err := di.TryRegister[*Plain](r)
	assert.ErrorIs(t, err, di.ErrRegistryResolved)
}

func TestRegisterInterfaceRejected(t *testing.T) {
	r, _ := newRegistry(t)
	assert.Error(t, di.TryRegister[Greeter](r))
}

type NeedsMissing struct {
	Missing *Plain `di:""`
}

func TestNotRegistered(t *testing.T) {
	r, _ := newRegistry(t)
	di.Register[*NeedsMissing](r)

	var notReg *di.NotRegisteredError
	require.True(t, errors.As(r.Resolve(), &notReg))
	assert.Equal(t, di.TypeOf[*Plain](), notReg.Type)
	assert.Equal(t, di.TypeOf[*NeedsMissing](), notReg.RequiredBy)
}

// ---------------- 歧义 ----------------

type Greeter interface {
	Greet() string
}

type EnglishGreeter struct{}

func (g *EnglishGreeter) Greet() string { return "hello" }

type GermanGreeter struct{}

func (g *GermanGreeter) Greet() string { return "hallo" }

func TestAmbiguousInterface(t *testing.T) {
	r, _ := newRegistry(t)
	di.Register[*EnglishGreeter](r)
	di.Register[*GermanGreeter](r)

	c := newContainer(t, r)

	_, err := di.Resolve[Greeter](c)
	var amb *di.AmbiguousDependencyError
	require.True(t, errors.As(err, &amb))
	assert.ElementsMatch(t, amb.Candidates, []reflect.Type{di.TypeOf[*EnglishGreeter](), di.TypeOf[*GermanGreeter]()})

	// 具体类型仍然可以获取
	en, err := di.Resolve[*EnglishGreeter](c)
	require.NoError(t, err)
	assert.Equal(t, "hello", en.Greet())
}

func TestInterfaceWithSingleImplementation(t *testing.T) {
	r, _ := newRegistry(t)
	di.Register[*EnglishGreeter](r, di.As[Greeter]())

	c := newContainer(t, r)
	g := di.MustResolve[Greeter](c)
	assert.Same(t, di.MustResolve[*EnglishGreeter](c), g)
}

func TestAsRequiresImplementation(t *testing.T) {
	r, _ := newRegistry(t)
	assert.Error(t, di.TryRegister[*Plain](r, di.As[Greeter]()))
}

type OptLeft struct {
	Right *OptRight `di:"optional"`
}

type OptRight struct {
	Left *OptLeft `di:""`
}

func TestOptionalFieldCycle(t *testing.T) {
	r, _ := newRegistry(t)
	di.Register[*OptLeft](r)
	di.Register[*OptRight](r)

	var cycle *di.CycleError
	require.True(t, errors.As(r.Resolve(), &cycle))
	assert.Equal(t, "di: cycle detected: OptLeft -> OptRight -> OptLeft", cycle.Error())

	_, err := di.New[*testScope](r)
	assert.True(t, errors.As(err, &cycle))
}
