package job_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/job"
	"github.com/gocrud/ioc/logging"
	"github.com/gocrud/ioc/meta"
)

type appScope struct{}

type Cleaner struct {
	runs   atomic.Int32
	ctxSet atomic.Bool
}

func (c *Cleaner) Sweep(ctx context.Context) error {
	c.ctxSet.Store(ctx != nil)
	c.runs.Add(1)
	return nil
}

func (c *Cleaner) Report() {}

type Broken struct{}

func (b *Broken) Tick(n int) {}

type Panicky struct{}

func (p *Panicky) Tick() { panic("boom") }

type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newRegistry(t *testing.T, out *safeBuffer) *di.Registry {
	t.Helper()
	var opts []di.RegistryOption
	opts = append(opts, di.WithMetadata(meta.NewReflector()))
	if out != nil {
		logger := logging.NewLoggingBuilder().
			SetMinimumLevel(logging.LogLevelDebug).
			AddConsole(logging.ConsoleLoggerOptions{Output: out}).
			Build().
			CreateLogger("test")
		opts = append(opts, di.WithRegistryLogger(logger))
	}
	r := di.NewRegistry(opts...)
	job.Install(r)
	di.DeclareScope[*appScope](r, di.TypeOf[*job.Module]())
	return r
}

func TestScheduledMethods(t *testing.T) {
	r := newRegistry(t, nil)
	r.Annotate(di.TypeOf[*Cleaner]()).
		Method("Sweep", job.Scheduled{Spec: "@every 1h", Name: "sweep"}).
		Method("Report", job.Scheduled{Spec: "0 3 * * *"})
	di.Register[*Cleaner](r)

	c, err := di.New[*appScope](r)
	require.NoError(t, err)

	s := di.MustResolve[*job.Scheduler](c)
	assert.Equal(t, []string{"Cleaner.Report", "sweep"}, s.Jobs())
	assert.False(t, s.Next("sweep").IsZero())

	require.NoError(t, s.Run("sweep"))
	cleaner := di.MustResolve[*Cleaner](c)
	assert.Equal(t, int32(1), cleaner.runs.Load())
	assert.True(t, cleaner.ctxSet.Load())

	require.NoError(t, c.Destroy())
	assert.Empty(t, s.Jobs())
}

func TestScheduledRunsOnTime(t *testing.T) {
	r := newRegistry(t, nil)
	r.Annotate(di.TypeOf[*Cleaner]()).Method("Sweep", job.Scheduled{Spec: "@every 1s"})
	di.Register[*Cleaner](r)

	c, err := di.New[*appScope](r)
	require.NoError(t, err)
	defer c.Destroy()

	cleaner := di.MustResolve[*Cleaner](c)
	assert.Eventually(t, func() bool {
		return cleaner.runs.Load() > 0
	}, 3*time.Second, 50*time.Millisecond)
}

func TestInvalidScheduledSignature(t *testing.T) {
	r := newRegistry(t, nil)
	r.Annotate(di.TypeOf[*Broken]()).Method("Tick", job.Scheduled{Spec: "@every 1h"})
	di.Register[*Broken](r)

	_, err := di.New[*appScope](r)
	assert.ErrorContains(t, err, "Broken.Tick")
}

func TestInvalidSpec(t *testing.T) {
	r := newRegistry(t, nil)
	r.Annotate(di.TypeOf[*Cleaner]()).Method("Report", job.Scheduled{Spec: "not a spec"})
	di.Register[*Cleaner](r)

	_, err := di.New[*appScope](r)
	assert.ErrorContains(t, err, "invalid spec")
}

func TestPanicIsRecovered(t *testing.T) {
	var out safeBuffer
	r := newRegistry(t, &out)
	r.Annotate(di.TypeOf[*Panicky]()).Method("Tick", job.Scheduled{Spec: "@every 1h", Name: "panicky"})
	di.Register[*Panicky](r)

	c, err := di.New[*appScope](r)
	require.NoError(t, err)
	defer c.Destroy()

	s := di.MustResolve[*job.Scheduler](c)
	assert.NotPanics(t, func() { _ = s.Run("panicky") })
	assert.Contains(t, out.String(), "panic")
}

func TestSchedulerStandalone(t *testing.T) {
	var out safeBuffer
	logger := logging.NewLoggingBuilder().
		AddConsole(logging.ConsoleLoggerOptions{Output: &out}).
		Build().
		CreateLogger("job")

	s := job.NewScheduler(logger, job.WithSeconds(), job.WithSkipIfRunning())

	var ctxErr atomic.Value
	require.NoError(t, s.Add("*/1 * * * * *", "fail", func(ctx context.Context) error {
		return errors.New("nope")
	}))
	require.NoError(t, s.Add("0 0 * * * *", "ctx", func(ctx context.Context) error {
		ctxErr.Store(ctx.Err() == nil)
		return nil
	}))
	assert.Error(t, s.Add("0 0 * * * *", "ctx", func(context.Context) error { return nil }))

	require.NoError(t, s.Run("fail"))
	assert.Contains(t, out.String(), "nope")

	require.NoError(t, s.Run("ctx"))
	assert.Equal(t, true, ctxErr.Load())

	assert.Error(t, s.Run("missing"))

	s.Remove("fail")
	assert.Equal(t, []string{"ctx"}, s.Jobs())

	s.Start()
	s.Stop()
	s.Stop()
}
