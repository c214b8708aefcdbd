// Package queue defines the contract every message queue backend implements.
// This abstraction allows swapping implementations (Redis Streams, SQS, Kafka,
// PostgreSQL, in-memory) without changing producers or workers.
//
// Delivery is at-least-once: a message stays with the backend until it is
// acknowledged, and may be delivered again if the consumer dies first.
package queue

import (
	"context"
	"errors"
	"fmt"
)

// Errors shared by all backends.
var (
	// ErrNotOpen is returned when a session is used before Open or after Close.
	ErrNotOpen = errors.New("queue session is not open")

	// ErrMessageTooLarge is returned when a payload exceeds the backend limit.
	ErrMessageTooLarge = errors.New("message exceeds backend size limit")

	// ErrStatsUnsupported is returned by backends that cannot report depth.
	ErrStatsUnsupported = errors.New("queue backend does not report stats")
)

// Delivery is a message handed to a consumer by Dequeue.
type Delivery struct {
	// ID is the backend identifier of the message, used for logging.
	ID string

	// Body is the raw payload exactly as it was enqueued.
	Body []byte

	// AckToken is redeemed once via Acknowledge after processing.
	// Its shape is backend specific and must be treated as opaque.
	AckToken string
}

// Queue is a session against one channel of a backend.
//
// A Queue owns its transport connections between Open and Close and must not
// be shared by concurrent goroutines; use a Factory to obtain one per caller.
type Queue interface {
	// Open acquires connections and prepares the channel. Log-based backends
	// create their consumer group here; an existing group is not an error.
	Open(ctx context.Context) error

	// Close releases the session's connections. Calling it twice is safe.
	Close() error

	// IsHealthy probes the backend. Failures are logged and reported as false.
	IsHealthy(ctx context.Context) bool

	// Enqueue appends msg to the channel and returns the backend message id.
	Enqueue(ctx context.Context, msg []byte) (string, error)

	// Dequeue returns at most one pending message, waiting only for a short,
	// bounded time. It returns a nil Delivery when nothing is available.
	Dequeue(ctx context.Context) (*Delivery, error)

	// Acknowledge marks the delivery identified by token as processed.
	// Unknown or already acknowledged tokens are a no-op.
	Acknowledge(ctx context.Context, token string) error
}

// Factory creates a new, unopened session.
type Factory func() Queue

// Stats describes the amount of work held by a backend.
type Stats struct {
	// Backlog is the number of messages waiting to be delivered (approximate
	// for some backends).
	Backlog int64 `json:"backlog"`

	// InFlight is the number of delivered but unacknowledged messages.
	InFlight int64 `json:"in_flight"`
}

// StatsReporter is implemented by backends that can report their depth.
type StatsReporter interface {
	Stats(ctx context.Context) (Stats, error)
}

// WithSession opens q, runs fn and always closes q afterwards, including when
// fn returns an error or panics. An error from Close is returned only when fn
// succeeded.
func WithSession(ctx context.Context, q Queue, fn func(Queue) error) (err error) {
	if err := q.Open(ctx); err != nil {
		return fmt.Errorf("failed to open queue: %w", err)
	}
	defer func() {
		if cerr := q.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close queue: %w", cerr)
		}
	}()

	return fn(q)
}
