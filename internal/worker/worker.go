// Package worker runs the consume loop: dequeue a message, process it and
// acknowledge it.
//
// Processing errors are not retried here. Run returns them so the process
// exits and its supervisor restarts it; the unacknowledged message is then
// redelivered by the backend.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dos-queue/internal/metrics"
	"dos-queue/internal/queue"
)

// Processor handles one message body.
type Processor interface {
	Process(ctx context.Context, body []byte) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, body []byte) error

// Process calls f.
func (f ProcessorFunc) Process(ctx context.Context, body []byte) error {
	return f(ctx, body)
}

// Worker consumes one queue session.
type Worker struct {
	factory   queue.Factory
	processor Processor
	logger    *slog.Logger
}

// New creates a worker that takes its session from factory.
func New(factory queue.Factory, processor Processor, logger *slog.Logger) *Worker {
	return &Worker{
		factory:   factory,
		processor: processor,
		logger:    logger,
	}
}

// Run opens a session and consumes until ctx is canceled or an error occurs.
// Cancellation returns nil; the session is closed on every exit path.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started")
	return queue.WithSession(ctx, w.factory(), func(q queue.Queue) error {
		return w.loop(ctx, q)
	})
}

func (w *Worker) loop(ctx context.Context, q queue.Queue) error {
	w.logger.Info("waiting for tasks")

	for {
		if ctx.Err() != nil {
			w.logger.Info("worker stopping due to context cancellation")
			return nil
		}

		d, err := q.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info("worker stopping due to context cancellation")
				return nil
			}
			return fmt.Errorf("failed to dequeue: %w", err)
		}
		if d == nil {
			continue
		}

		if err := w.handle(ctx, q, d); err != nil {
			return err
		}
	}
}

// handle processes one delivery and acknowledges it on success.
func (w *Worker) handle(ctx context.Context, q queue.Queue, d *queue.Delivery) error {
	w.logger.Debug("received message", "id", d.ID, "bytes", len(d.Body))

	start := time.Now()
	if err := w.processor.Process(ctx, d.Body); err != nil {
		metrics.MessagesProcessedTotal.WithLabelValues("failure").Inc()
		w.logger.Error("failed to process message", "id", d.ID, "error", err)
		return fmt.Errorf("processing message %s: %w", d.ID, err)
	}
	metrics.MessageProcessingLatency.Observe(time.Since(start).Seconds())
	metrics.MessagesProcessedTotal.WithLabelValues("success").Inc()

	// The work is done; a shutdown signal must not leave it unacknowledged.
	if err := q.Acknowledge(context.WithoutCancel(ctx), d.AckToken); err != nil {
		return fmt.Errorf("failed to acknowledge message %s: %w", d.ID, err)
	}

	w.logger.Debug("message acknowledged", "id", d.ID)
	return nil
}
