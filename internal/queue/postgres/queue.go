package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"dos-queue/internal/config"
	"dos-queue/internal/queue"
)

const pingTimeout = 2 * time.Second

// Queue is a session on the queue table.
type Queue struct {
	db           *DB
	visibility   time.Duration
	pollInterval time.Duration
	blockTimeout time.Duration
	logger       *slog.Logger
	open         bool
}

// New creates an unopened session on db.
func New(db *DB, cfg *config.PostgresConfig, blockTimeout time.Duration, logger *slog.Logger) *Queue {
	return &Queue{
		db:           db,
		visibility:   cfg.VisibilityTimeout,
		pollInterval: cfg.PollInterval,
		blockTimeout: blockTimeout,
		logger:       logger,
	}
}

// Open verifies the database is reachable and the table exists.
func (q *Queue) Open(ctx context.Context) error {
	if q.open {
		return nil
	}
	if err := q.db.pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping postgres: %w", err)
	}
	if err := q.db.EnsureSchema(ctx); err != nil {
		return err
	}
	q.open = true
	return nil
}

// Close ends the session. The pool belongs to DB and stays open.
func (q *Queue) Close() error {
	q.open = false
	return nil
}

// IsHealthy pings the database.
func (q *Queue) IsHealthy(ctx context.Context) bool {
	if !q.open {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := q.db.pool.Ping(ctx); err != nil {
		q.logger.Warn("postgres health check failed", "error", err)
		return false
	}
	return true
}

// Enqueue inserts msg and returns the row id.
func (q *Queue) Enqueue(ctx context.Context, msg []byte) (string, error) {
	if !q.open {
		return "", queue.ErrNotOpen
	}
	if msg == nil {
		msg = []byte{}
	}

	query := fmt.Sprintf(`INSERT INTO %s (body) VALUES ($1) RETURNING id`, q.db.table)

	var id int64
	if err := q.db.pool.QueryRow(ctx, query, msg).Scan(&id); err != nil {
		return "", fmt.Errorf("failed to insert message: %w", err)
	}
	return strconv.FormatInt(id, 10), nil
}

// Dequeue claims the oldest visible row, polling until the block timeout.
func (q *Queue) Dequeue(ctx context.Context) (*queue.Delivery, error) {
	if !q.open {
		return nil, queue.ErrNotOpen
	}

	deadline := time.Now().Add(q.blockTimeout)
	for {
		d, err := q.claim(ctx)
		if err != nil || d != nil {
			return d, err
		}

		wait := q.pollInterval
		if remaining := time.Until(deadline); remaining < wait {
			wait = remaining
		}
		if wait <= 0 {
			return nil, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// claim hides one visible row behind a fresh receipt.
func (q *Queue) claim(ctx context.Context) (*queue.Delivery, error) {
	query := fmt.Sprintf(`
		UPDATE %[1]s SET
			receipt = $1,
			visible_at = now() + make_interval(secs => $2),
			delivery_count = delivery_count + 1
		WHERE id = (
			SELECT id FROM %[1]s
			WHERE visible_at <= now()
			ORDER BY id
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING id, body, delivery_count
	`, q.db.table)

	receipt := uuid.NewString()
	var (
		id       int64
		body     []byte
		attempts int
	)
	err := q.db.pool.QueryRow(ctx, query, receipt, q.visibility.Seconds()).Scan(&id, &body, &attempts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to claim message: %w", err)
	}

	if attempts > 1 {
		q.logger.Info("redelivering message", "id", id, "attempt", attempts)
	}
	return &queue.Delivery{
		ID:       strconv.FormatInt(id, 10),
		Body:     body,
		AckToken: receipt,
	}, nil
}

// Acknowledge deletes the row holding token. A token replaced by a later
// redelivery matches nothing and is ignored.
func (q *Queue) Acknowledge(ctx context.Context, token string) error {
	if !q.open {
		return queue.ErrNotOpen
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE receipt = $1`, q.db.table)

	result, err := q.db.pool.Exec(ctx, query, token)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	if result.RowsAffected() == 0 {
		q.logger.Debug("postgres ack for unknown receipt", "receipt", token)
	}
	return nil
}

// Stats counts visible and hidden rows.
func (q *Queue) Stats(ctx context.Context) (queue.Stats, error) {
	if !q.open {
		return queue.Stats{}, queue.ErrNotOpen
	}

	query := fmt.Sprintf(`
		SELECT
			count(*) FILTER (WHERE visible_at <= now()),
			count(*) FILTER (WHERE visible_at > now())
		FROM %s
	`, q.db.table)

	var stats queue.Stats
	if err := q.db.pool.QueryRow(ctx, query).Scan(&stats.Backlog, &stats.InFlight); err != nil {
		return queue.Stats{}, fmt.Errorf("failed to count messages: %w", err)
	}
	return stats, nil
}
