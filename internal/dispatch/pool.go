// Package dispatch runs blocking calls on a bounded set of goroutines so the
// caller can give up on a call without leaking unbounded work.
package dispatch

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrPoolClosed is returned by Run after Close.
var ErrPoolClosed = errors.New("dispatch pool is closed")

// Pool bounds the number of blocking calls in flight.
//
// Sizing is a deployment concern: every slot may hold one outstanding SDK
// request, so the size should not exceed the HTTP client's connection limit.
type Pool struct {
	sem       *semaphore.Weighted
	size      int64
	done      chan struct{}
	closeOnce sync.Once
}

// NewPool creates a pool that runs at most size calls at once.
func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		sem:  semaphore.NewWeighted(int64(size)),
		size: int64(size),
		done: make(chan struct{}),
	}
}

// Run executes fn on a pool goroutine and waits for it or for ctx.
//
// When ctx ends first Run returns ctx.Err() immediately; fn keeps its slot
// until it returns, and it receives ctx so it can stop early.
func (p *Pool) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	select {
	case <-p.done:
		return ErrPoolClosed
	default:
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}

	result := make(chan error, 1)
	go func() {
		defer p.sem.Release(1)
		result <- fn(ctx)
	}()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close rejects new calls and waits for in-flight calls to finish or for ctx.
// It is safe to call more than once.
func (p *Pool) Close(ctx context.Context) error {
	p.closeOnce.Do(func() { close(p.done) })

	// Holding every slot means no call is running.
	if err := p.sem.Acquire(ctx, p.size); err != nil {
		return err
	}
	p.sem.Release(p.size)
	return nil
}
