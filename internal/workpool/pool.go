// Package workpool runs blocking calls on a bounded set of goroutines and
// hands results back as futures.
package workpool

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

type Pool struct {
	sem      *semaphore.Weighted
	size     int
	wg       sync.WaitGroup
	inFlight atomic.Int64
}

func New(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: size}
}

func (p *Pool) Size() int { return p.size }

// InFlight is the number of tasks currently holding a slot.
func (p *Pool) InFlight() int64 { return p.inFlight.Load() }

// Wait blocks until every submitted task has finished.
func (p *Pool) Wait() { p.wg.Wait() }

type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Await blocks until the task completes or ctx is done. A ctx expiry does not
// stop the task itself.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Submit schedules fn on the pool and returns immediately. The caller is never
// blocked waiting for a free slot.
func Submit[T any](ctx context.Context, p *Pool, fn func(context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(f.done)

		if err := p.sem.Acquire(ctx, 1); err != nil {
			f.err = err
			return
		}
		p.inFlight.Add(1)
		defer func() {
			p.inFlight.Add(-1)
			p.sem.Release(1)
		}()
		f.val, f.err = fn(ctx)
	}()
	return f
}

// Run is Submit followed by Await.
func Run[T any](ctx context.Context, p *Pool, fn func(context.Context) (T, error)) (T, error) {
	return Submit(ctx, p, fn).Await(ctx)
}
