package resilience_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocrud/ioc/aop"
	"github.com/gocrud/ioc/async"
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/meta"
	"github.com/gocrud/ioc/resilience"
)

type appScope struct{}

type Client interface {
	Call() error
	CallAsync(ctx context.Context) *async.Future
}

type clientStub struct{ p *aop.Proxy }

func (s clientStub) Call() error { return aop.Call0E(s.p, "Call") }
func (s clientStub) CallAsync(ctx context.Context) *async.Future {
	return aop.CallAsync(s.p, "CallAsync", ctx)
}

func init() {
	aop.RegisterStub[Client](func(p *aop.Proxy) Client { return clientStub{p} })
}

var errUpstream = errors.New("upstream down")

type FlakyClient struct {
	failing atomic.Bool
	calls   atomic.Int32
}

func (c *FlakyClient) Call() error {
	c.calls.Add(1)
	if c.failing.Load() {
		return errUpstream
	}
	return nil
}

func (c *FlakyClient) CallAsync(ctx context.Context) *async.Future {
	return async.Go(ctx, func(context.Context) (any, error) {
		return nil, c.Call()
	})
}

var testSettings = resilience.Settings{
	MaxRequests:      1,
	Timeout:          50 * time.Millisecond,
	FailureThreshold: 0.5,
	MinRequests:      2,
}

func newContainer(t *testing.T) *di.Container {
	t.Helper()
	r := di.NewRegistry(di.WithMetadata(meta.NewReflector()))
	aop.Install(r)
	resilience.Install(r, resilience.WithDefaults(resilience.DefaultSettings()),
		resilience.WithBreaker("upstream", testSettings))
	di.DeclareScope[*appScope](r, di.TypeOf[*resilience.Module]())

	r.Annotate(di.TypeOf[*FlakyClient]()).
		Method("Call", resilience.Breaker{Name: "upstream"}).
		Method("CallAsync", resilience.Breaker{Name: "upstream"})
	di.Register[*FlakyClient](r)

	c, err := di.New[*appScope](r)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Destroy() })
	return c
}

func TestBreakerOpensAndRecovers(t *testing.T) {
	c := newContainer(t)
	client := di.MustResolve[Client](c)
	raw := di.MustResolve[*FlakyClient](c)
	advice := di.MustResolve[*resilience.BreakerAdvice](c)

	raw.failing.Store(true)
	assert.ErrorIs(t, client.Call(), errUpstream)
	assert.ErrorIs(t, client.Call(), errUpstream)
	assert.Equal(t, gobreaker.StateOpen, advice.State("upstream"))

	assert.ErrorIs(t, client.Call(), gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), raw.calls.Load())

	raw.failing.Store(false)
	time.Sleep(80 * time.Millisecond)
	assert.NoError(t, client.Call())
	assert.Equal(t, gobreaker.StateClosed, advice.State("upstream"))
}

func TestBreakerSharedByName(t *testing.T) {
	c := newContainer(t)
	client := di.MustResolve[Client](c)
	raw := di.MustResolve[*FlakyClient](c)

	raw.failing.Store(true)
	for i := 0; i < 2; i++ {
		_, err := client.CallAsync(context.Background()).Await(context.Background())
		assert.ErrorIs(t, err, errUpstream)
	}

	assert.ErrorIs(t, client.Call(), gobreaker.ErrOpenState)
}

func TestStateOfUnknownBreaker(t *testing.T) {
	a := resilience.NewBreakerAdvice(nil)
	assert.Equal(t, gobreaker.StateClosed, a.State("missing"))
	assert.Same(t, a.CircuitBreaker("x"), a.CircuitBreaker("x"))
}
