package provider

import (
	"context"
	"time"

	"dos-queue/internal/metrics"
	"dos-queue/internal/queue"
)

// Instrumented records Prometheus metrics for every call on a session.
type Instrumented struct {
	inner   queue.Queue
	backend string
}

// Instrument wraps q so its operations are counted and timed under backend.
func Instrument(q queue.Queue, backend string) *Instrumented {
	return &Instrumented{inner: q, backend: backend}
}

// Unwrap returns the wrapped session.
func (i *Instrumented) Unwrap() queue.Queue {
	return i.inner
}

func (i *Instrumented) observe(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	metrics.QueueOperationsTotal.WithLabelValues(i.backend, operation, status).Inc()
	metrics.QueueOperationLatency.WithLabelValues(i.backend, operation).Observe(time.Since(start).Seconds())
}

func (i *Instrumented) Open(ctx context.Context) error {
	start := time.Now()
	err := i.inner.Open(ctx)
	i.observe("open", start, err)
	return err
}

func (i *Instrumented) Close() error {
	return i.inner.Close()
}

func (i *Instrumented) IsHealthy(ctx context.Context) bool {
	healthy := i.inner.IsHealthy(ctx)
	value := 0.0
	if healthy {
		value = 1
	}
	metrics.QueueHealthy.WithLabelValues(i.backend).Set(value)
	return healthy
}

func (i *Instrumented) Enqueue(ctx context.Context, msg []byte) (string, error) {
	start := time.Now()
	id, err := i.inner.Enqueue(ctx, msg)
	i.observe("enqueue", start, err)
	return id, err
}

func (i *Instrumented) Dequeue(ctx context.Context) (*queue.Delivery, error) {
	start := time.Now()
	d, err := i.inner.Dequeue(ctx)
	i.observe("dequeue", start, err)
	if err == nil && d == nil {
		metrics.QueueEmptyPollsTotal.WithLabelValues(i.backend).Inc()
	}
	return d, err
}

func (i *Instrumented) Acknowledge(ctx context.Context, token string) error {
	start := time.Now()
	err := i.inner.Acknowledge(ctx, token)
	i.observe("acknowledge", start, err)
	return err
}

// Stats delegates to the wrapped session when it reports stats.
func (i *Instrumented) Stats(ctx context.Context) (queue.Stats, error) {
	reporter, ok := i.inner.(queue.StatsReporter)
	if !ok {
		return queue.Stats{}, queue.ErrStatsUnsupported
	}

	stats, err := reporter.Stats(ctx)
	if err == nil {
		metrics.QueueDepth.WithLabelValues(i.backend).Set(float64(stats.Backlog))
	}
	return stats, err
}
