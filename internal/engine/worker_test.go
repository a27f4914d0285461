package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPoolRunsAllWork(t *testing.T) {
	pool := NewWorkerPool(2)

	var count int64
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		err := pool.Submit(context.Background(), func(ctx context.Context) {
			defer wg.Done()
			atomic.AddInt64(&count, 1)
		})
		require.NoError(t, err)
	}
	wg.Wait()
	pool.Shutdown()

	assert.Equal(t, int64(10), atomic.LoadInt64(&count))
}

func TestWorkerPoolBoundsConcurrency(t *testing.T) {
	pool := NewWorkerPool(2)

	var active, peak int64
	var mu sync.Mutex
	for i := 0; i < 8; i++ {
		err := pool.Submit(context.Background(), func(ctx context.Context) {
			cur := atomic.AddInt64(&active, 1)
			mu.Lock()
			if cur > peak {
				peak = cur
			}
			mu.Unlock()
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt64(&active, -1)
		})
		require.NoError(t, err)
	}
	pool.Shutdown()

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, int64(2))
}

func TestWorkerPoolSubmitRespectsContext(t *testing.T) {
	pool := NewWorkerPool(1)
	defer pool.Shutdown()

	release := make(chan struct{})
	err := pool.Submit(context.Background(), func(ctx context.Context) {
		<-release
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = pool.Submit(ctx, func(ctx context.Context) {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
}

func TestWorkerPoolShutdownRejectsNewWork(t *testing.T) {
	pool := NewWorkerPool(1)
	pool.Shutdown()

	err := pool.Submit(context.Background(), func(ctx context.Context) {})
	assert.ErrorIs(t, err, ErrPoolShutdown)
}

func TestWorkerPoolShutdownDrainsInFlightWork(t *testing.T) {
	pool := NewWorkerPool(1)

	release := make(chan struct{})
	var finished atomic.Bool
	require.NoError(t, pool.Submit(context.Background(), func(ctx context.Context) {
		<-release
		finished.Store(true)
	}))

	go func() {
		time.Sleep(10 * time.Millisecond)
		close(release)
	}()
	pool.Shutdown()
	assert.True(t, finished.Load())

	// A second Shutdown is a no-op.
	pool.Shutdown()
}
