package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPool_RunReturnsResult(t *testing.T) {
	p := NewPool(2)
	boom := errors.New("boom")

	if err := p.Run(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Errorf("Run error = %v, want nil", err)
	}
	if err := p.Run(context.Background(), func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Errorf("Run error = %v, want boom", err)
	}
}

func TestPool_BoundsConcurrency(t *testing.T) {
	p := NewPool(2)
	var running, peak int32
	done := make(chan struct{})

	for i := 0; i < 6; i++ {
		go func() {
			_ = p.Run(context.Background(), func(context.Context) error {
				n := atomic.AddInt32(&running, 1)
				for {
					old := atomic.LoadInt32(&peak)
					if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&running, -1)
				return nil
			})
			done <- struct{}{}
		}()
	}
	for i := 0; i < 6; i++ {
		<-done
	}

	if peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak)
	}
}

func TestPool_CallerCancellation(t *testing.T) {
	p := NewPool(1)
	release := make(chan struct{})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := p.Run(ctx, func(context.Context) error {
		<-release
		return nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run error = %v, want deadline exceeded", err)
	}

	close(release)
	closeCtx, closeCancel := context.WithTimeout(context.Background(), time.Second)
	defer closeCancel()
	if err := p.Close(closeCtx); err != nil {
		t.Fatalf("Close error = %v", err)
	}
	if err := p.Run(context.Background(), func(context.Context) error { return nil }); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Run after Close error = %v, want ErrPoolClosed", err)
	}
}

func TestPool_CloseWaitsForInFlight(t *testing.T) {
	p := NewPool(2)
	started := make(chan struct{})
	var finished atomic.Bool

	go func() {
		_ = p.Run(context.Background(), func(context.Context) error {
			close(started)
			time.Sleep(20 * time.Millisecond)
			finished.Store(true)
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.Close(ctx); err != nil {
		t.Fatalf("Close error = %v", err)
	}
	if !finished.Load() {
		t.Error("Close returned before the in-flight call finished")
	}
}

func TestPool_CloseTimesOut(t *testing.T) {
	p := NewPool(1)
	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)

	go func() {
		_ = p.Run(context.Background(), func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := p.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Close error = %v, want deadline exceeded", err)
	}
}

func TestPool_ConcurrentClose(t *testing.T) {
	p := NewPool(4)
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.Close(context.Background()); err != nil {
				t.Errorf("Close error = %v", err)
			}
		}()
	}
	wg.Wait()

	if err := p.Run(context.Background(), func(context.Context) error { return nil }); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Run after Close error = %v, want ErrPoolClosed", err)
	}
}
