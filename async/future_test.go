package async_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gocrud/ioc/async"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoAwait(t *testing.T) {
	f := async.Go(context.Background(), func(ctx context.Context) (any, error) {
		time.Sleep(5 * time.Millisecond)
		return "hello", nil
	})

	v, err := async.AwaitAs[string](context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, "hello", v)
}

func TestGoError(t *testing.T) {
	boom := errors.New("boom")
	f := async.Go(context.Background(), func(ctx context.Context) (any, error) {
		return nil, boom
	})

	_, err := f.Await(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestGoPanicBecomesError(t *testing.T) {
	f := async.Go(context.Background(), func(ctx context.Context) (any, error) {
		panic("ouch")
	})

	_, err := f.Await(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ouch")
}

func TestAwaitContextCancelled(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	f := async.Go(context.Background(), func(ctx context.Context) (any, error) {
		<-block
		return nil, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := f.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestResolvedAndFailed(t *testing.T) {
	v, err := async.Resolved(42).Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	_, err = async.Failed(errors.New("x")).Await(context.Background())
	assert.EqualError(t, err, "x")

	select {
	case <-async.Resolved(nil).Done():
	default:
		t.Fatal("resolved future should be done")
	}
}

func TestAwaitAsTypeMismatch(t *testing.T) {
	_, err := async.AwaitAs[int](context.Background(), async.Resolved("str"))
	assert.Error(t, err)
}
