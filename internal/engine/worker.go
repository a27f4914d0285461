package engine

import (
	"context"
	"errors"
	"sync"
)

// ErrPoolShutdown is returned when work is submitted to a shut-down pool.
var ErrPoolShutdown = errors.New("worker pool is shut down")

// WorkerPool bounds the number of stages executing concurrently across all
// workflow instances. The pool does not recover panics; the orchestrator's
// stage wrapper converts them into stage failures before they reach it.
type WorkerPool struct {
	sem    chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	done   chan struct{}
	closed bool
}

// NewWorkerPool creates a pool with the given max concurrency.
func NewWorkerPool(size int) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{
		sem:  make(chan struct{}, size),
		done: make(chan struct{}),
	}
}

// Submit runs fn on its own goroutine, blocking until a slot is free. It
// respects context cancellation while waiting and returns ErrPoolShutdown
// once the pool has been shut down.
func (p *WorkerPool) Submit(ctx context.Context, fn func(ctx context.Context)) error {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return ErrPoolShutdown
	}

	// Re-check after acquiring the slot; Shutdown may have raced with the
	// acquire. wg.Add must happen under the lock so Shutdown's Wait cannot
	// miss it.
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.sem
		return ErrPoolShutdown
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer func() {
			<-p.sem
			p.wg.Done()
		}()
		fn(ctx)
	}()

	return nil
}

// Shutdown prevents new submissions and waits for in-flight work to drain.
// Safe to call more than once.
func (p *WorkerPool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()

	p.wg.Wait()
}
