package di_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocrud/ioc/di"
)

type Conn struct {
	DSN string
}

type ConnConfig struct {
	DSN string
}

// ConnModule 通过工厂方法提供 *Conn
type ConnModule struct {
	Config *ConnConfig `di:""`
	calls  int
}

func (m *ConnModule) NewConn(bar *Bar) *Conn {
	m.calls++
	return &Conn{DSN: m.Config.DSN}
}

func TestFactoryMethod(t *testing.T) {
	r, rf := newRegistry(t)
	rf.Annotate(di.TypeOf[*ConnModule]()).Method("NewConn", di.Create{})

	di.Register[*ConnConfig](r, di.WithValue(&ConnConfig{DSN: "mem://"}))
	di.Register[*ConnModule](r)
	di.Register[*Bar](r)

	c := newContainer(t, r)

	conn := di.MustResolve[*Conn](c)
	assert.Equal(t, "mem://", conn.DSN)
	assert.Same(t, conn, di.MustResolve[*Conn](c))
	assert.Equal(t, 1, di.MustResolve[*ConnModule](c).calls)
}

func TestFactoryMethodTransientLazy(t *testing.T) {
	r, rf := newRegistry(t)
	rf.Annotate(di.TypeOf[*ConnModule]()).Method("NewConn", di.Create{Lazy: true, Transient: true})

	di.Register[*ConnConfig](r, di.WithValue(&ConnConfig{DSN: "mem://"}))
	di.Register[*ConnModule](r)
	di.Register[*Bar](r)

	c := newContainer(t, r)
	module := di.MustResolve[*ConnModule](c)
	assert.Equal(t, 0, module.calls)

	assert.NotSame(t, di.MustResolve[*Conn](c), di.MustResolve[*Conn](c))
	assert.Equal(t, 2, module.calls)
}

type BadModule struct{}

func (m *BadModule) Nothing() {}

func TestFactoryMethodWithoutResult(t *testing.T) {
	r, rf := newRegistry(t)
	rf.Annotate(di.TypeOf[*BadModule]()).Method("Nothing", di.Create{})
	di.Register[*BadModule](r)

	assert.Error(t, r.Resolve())
}

// ConnFactory 工厂对象
type ConnFactory struct {
	Config *ConnConfig `di:""`
	fail   bool
}

func (f *ConnFactory) Create() (*Conn, error) {
	if f.fail {
		return nil, errors.New("no connection")
	}
	return &Conn{DSN: f.Config.DSN + "factory"}, nil
}

func TestFactoryObject(t *testing.T) {
	r, _ := newRegistry(t)
	di.Register[*ConnConfig](r, di.WithValue(&ConnConfig{DSN: "mem://"}))
	di.RegisterFactory[*ConnFactory, *Conn](r)

	c := newContainer(t, r)
	conn := di.MustResolve[*Conn](c)
	assert.Equal(t, "mem://factory", conn.DSN)
	assert.Same(t, conn, di.MustResolve[*Conn](c))
}

func TestFactoryObjectError(t *testing.T) {
	r, _ := newRegistry(t)
	di.Register[*ConnConfig](r, di.WithValue(&ConnConfig{}))
	di.Register[*ConnFactory](r, di.WithValue(&ConnFactory{fail: true}))
	di.RegisterFactory[*ConnFactory, *Conn](r, di.WithLazy())

	c := newContainer(t, r)
	_, err := di.Resolve[*Conn](c)

	var creation *di.CreationError
	require.True(t, errors.As(err, &creation))
	assert.Equal(t, di.TypeOf[*Conn](), creation.Type)
}

func TestFactoryDuplicatesExactType(t *testing.T) {
	r, rf := newRegistry(t)
	rf.Annotate(di.TypeOf[*ConnModule]()).Method("NewConn", di.Create{})

	di.Register[*ConnConfig](r, di.WithValue(&ConnConfig{}))
	di.Register[*ConnModule](r)
	di.Register[*Bar](r)
	di.Provide(r, func() *Conn { return &Conn{} })

	var regErr *di.RegistrationError
	assert.True(t, errors.As(r.Resolve(), &regErr))
}
