// Package ingest provides the message submission service.
// It validates payloads and enqueues them on a fresh queue session, so HTTP
// handlers and the CLI share one producer path.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"dos-queue/internal/metrics"
	"dos-queue/internal/queue"
)

// Errors returned by the ingest service.
var (
	ErrEmptyMessage     = errors.New("message body is empty")
	ErrMessageTooLarge  = errors.New("message body exceeds the configured limit")
	ErrQueueUnavailable = errors.New("queue is unavailable")
)

// Service handles message submission and queue status queries.
type Service struct {
	factory  queue.Factory
	maxBytes int
	logger   *slog.Logger
}

// NewService creates a new ingest service. Payloads larger than maxBytes are
// rejected before reaching the backend; 0 disables the check.
func NewService(factory queue.Factory, maxBytes int, logger *slog.Logger) *Service {
	return &Service{
		factory:  factory,
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// Submit enqueues body and returns the backend message id.
func (s *Service) Submit(ctx context.Context, body []byte) (string, error) {
	if len(body) == 0 {
		metrics.MessagesSubmittedTotal.WithLabelValues("rejected").Inc()
		return "", ErrEmptyMessage
	}
	if s.maxBytes > 0 && len(body) > s.maxBytes {
		metrics.MessagesSubmittedTotal.WithLabelValues("rejected").Inc()
		return "", ErrMessageTooLarge
	}
	metrics.MessageSize.Observe(float64(len(body)))

	start := time.Now()
	var id string
	err := queue.WithSession(ctx, s.factory(), func(q queue.Queue) error {
		var err error
		id, err = q.Enqueue(ctx, body)
		return err
	})
	if err != nil {
		if errors.Is(err, queue.ErrMessageTooLarge) {
			metrics.MessagesSubmittedTotal.WithLabelValues("rejected").Inc()
			return "", fmt.Errorf("%w: %v", ErrMessageTooLarge, err)
		}
		metrics.MessagesSubmittedTotal.WithLabelValues("failed").Inc()
		s.logger.Error("failed to enqueue message", "error", err)
		return "", fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}

	metrics.MessagesSubmittedTotal.WithLabelValues("accepted").Inc()
	s.logger.Debug("message enqueued",
		"id", id,
		"bytes", len(body),
		"latency", time.Since(start),
	)
	return id, nil
}

// Healthy reports whether a session can be opened and the backend answers
// its health probe. It never returns an error.
func (s *Service) Healthy(ctx context.Context) bool {
	healthy := false
	err := queue.WithSession(ctx, s.factory(), func(q queue.Queue) error {
		healthy = q.IsHealthy(ctx)
		return nil
	})
	if err != nil {
		s.logger.Warn("queue health check failed", "error", err)
		return false
	}
	return healthy
}

// Stats returns the backend's depth. It returns queue.ErrStatsUnsupported
// for backends that cannot report it.
func (s *Service) Stats(ctx context.Context) (queue.Stats, error) {
	var stats queue.Stats
	err := queue.WithSession(ctx, s.factory(), func(q queue.Queue) error {
		reporter, ok := q.(queue.StatsReporter)
		if !ok {
			return queue.ErrStatsUnsupported
		}
		var err error
		stats, err = reporter.Stats(ctx)
		return err
	})
	return stats, err
}
