package hosting_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/hosting"
	"github.com/gocrud/ioc/meta"
)

type appScope struct{}

type Worker struct {
	fail    error
	started atomic.Bool
	stopped atomic.Bool
	exited  atomic.Bool
}

func (w *Worker) Start(ctx context.Context) error {
	w.started.Store(true)
	if w.fail != nil {
		return w.fail
	}
	<-ctx.Done()
	w.exited.Store(true)
	return ctx.Err()
}

func (w *Worker) Stop(ctx context.Context) error {
	w.stopped.Store(true)
	return nil
}

func newRegistry(w *Worker) *di.Registry {
	r := di.NewRegistry(di.WithMetadata(meta.NewReflector()))
	hosting.Install(r, hosting.WithStopTimeout(time.Second))
	di.DeclareScope[*appScope](r, di.TypeOf[*hosting.Module]())
	di.RegisterValue(r, w)
	return r
}

func TestRunUntilContextDone(t *testing.T) {
	w := &Worker{}
	r := newRegistry(w)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- hosting.Run[*appScope](r, hosting.WithContext(ctx))
	}()

	require.Eventually(t, w.started.Load, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.True(t, w.stopped.Load())
	assert.True(t, w.exited.Load())
}

func TestRunReturnsServiceError(t *testing.T) {
	boom := errors.New("boom")
	w := &Worker{fail: boom}
	r := newRegistry(w)

	err := hosting.Run[*appScope](r)
	assert.ErrorIs(t, err, boom)
	assert.True(t, w.stopped.Load())
}

func TestManagerWithContainer(t *testing.T) {
	w := &Worker{}
	r := newRegistry(w)

	c, err := di.New[*appScope](r)
	require.NoError(t, err)

	m := di.MustResolve[*hosting.Manager](c)
	require.Eventually(t, w.started.Load, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, m.Services())
	assert.NoError(t, m.Err())

	require.NoError(t, c.Destroy())
	assert.True(t, w.stopped.Load())
	assert.True(t, w.exited.Load())
	assert.Equal(t, 0, m.Services())
}
