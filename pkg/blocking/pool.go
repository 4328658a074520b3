// Package blocking runs blocking calls (network I/O, third-party clients) on a bounded
// set of goroutines and hands back futures, so callers decide when to wait.
package blocking

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sync/semaphore"
)

const logPrefix = "blocking:pool"

// DefaultWorkers is used when NewPool receives a non-positive size.
const DefaultWorkers = 8

// Pool bounds the number of blocking calls running at once.
// A nil *Pool runs every call without a bound.
type Pool struct {
	sem  *semaphore.Weighted
	size int64
}

// NewPool creates a pool allowing size concurrent calls.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = DefaultWorkers
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: int64(size)}
}

// Size returns the pool bound.
func (p *Pool) Size() int {
	if p == nil {
		return 0
	}
	return int(p.size)
}

// Future is the pending result of a call submitted to a Pool.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Submit starts fn on the pool and returns immediately. ctx only bounds the wait for a
// free slot and is passed to fn; it is never used to abandon fn once started.
func Submit[T any](ctx context.Context, p *Pool, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		if p != nil {
			if err := p.sem.Acquire(ctx, 1); err != nil {
				f.err = fmt.Errorf("%s - no worker available: %w", logPrefix, err)
				return
			}
			defer p.sem.Release(1)
		}
		defer func() {
			if r := recover(); r != nil {
				stack := make([]byte, 4096)
				n := runtime.Stack(stack, false)
				slog.Error(fmt.Sprintf("%s - blocking call panic: %v\n%s", logPrefix, r, stack[:n]))
				f.err = fmt.Errorf("panic in blocking call: %v", r)
			}
		}()
		f.val, f.err = fn(ctx)
	}()
	return f
}

// Resolved returns an already settled future.
func Resolved[T any](val T, err error) *Future[T] {
	f := &Future[T]{done: make(chan struct{}), val: val, err: err}
	close(f.done)
	return f
}

// Done is closed once the call has finished.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the call finishes or ctx is done. A ctx error leaves the call running.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Run submits fn and waits for it.
func Run[T any](ctx context.Context, p *Pool, fn func(ctx context.Context) (T, error)) (T, error) {
	return Submit(ctx, p, fn).Wait(ctx)
}
