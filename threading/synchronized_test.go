package threading_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocrud/ioc/aop"
	"github.com/gocrud/ioc/async"
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/meta"
	"github.com/gocrud/ioc/threading"
)

type appScope struct{}

type Counter interface {
	Increment()
	IncrementAsync(ctx context.Context) *async.Future
	Peek() int
}

type counterStub struct{ p *aop.Proxy }

func (s counterStub) Increment() { aop.Call0(s.p, "Increment") }
func (s counterStub) IncrementAsync(ctx context.Context) *async.Future {
	return aop.CallAsync(s.p, "IncrementAsync", ctx)
}
func (s counterStub) Peek() int { return aop.Call1[int](s.p, "Peek") }

func init() {
	aop.RegisterStub[Counter](func(p *aop.Proxy) Counter { return counterStub{p} })
}

type SafeCounter struct {
	value   int
	active  atomic.Int32
	overlap atomic.Bool
}

func (c *SafeCounter) enter() {
	if c.active.Add(1) > 1 {
		c.overlap.Store(true)
	}
}

func (c *SafeCounter) Increment() {
	c.enter()
	defer c.active.Add(-1)

	v := c.value
	time.Sleep(time.Millisecond)
	c.value = v + 1
}

func (c *SafeCounter) IncrementAsync(ctx context.Context) *async.Future {
	return async.Go(ctx, func(context.Context) (any, error) {
		c.Increment()
		return nil, nil
	})
}

func (c *SafeCounter) Peek() int { return c.value }

func newContainer(t *testing.T) *di.Container {
	t.Helper()
	r := di.NewRegistry(di.WithMetadata(meta.NewReflector()))
	aop.Install(r)
	threading.Install(r)
	di.DeclareScope[*appScope](r, di.TypeOf[*threading.Module]())

	r.Annotate(di.TypeOf[*SafeCounter]()).
		Method("Increment", threading.Synchronized{}).
		Method("IncrementAsync", threading.Synchronized{})
	di.Register[*SafeCounter](r)

	c, err := di.New[*appScope](r)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Destroy() })
	return c
}

func TestSynchronizedSerializesCalls(t *testing.T) {
	c := newContainer(t)
	counter := di.MustResolve[Counter](c)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			counter.Increment()
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, counter.Peek())
	assert.False(t, di.MustResolve[*SafeCounter](c).overlap.Load())
}

func TestSynchronizedAsync(t *testing.T) {
	c := newContainer(t)
	counter := di.MustResolve[Counter](c)

	futures := make([]*async.Future, 10)
	for i := range futures {
		futures[i] = counter.IncrementAsync(context.Background())
	}
	for _, f := range futures {
		_, err := f.Await(context.Background())
		require.NoError(t, err)
	}

	assert.Equal(t, 10, counter.Peek())
	assert.False(t, di.MustResolve[*SafeCounter](c).overlap.Load())
}

func TestUnmarkedMethodIsNotLocked(t *testing.T) {
	c := newContainer(t)
	counter := di.MustResolve[Counter](c)

	assert.Equal(t, 0, counter.Peek())
}
