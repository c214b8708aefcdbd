// Package redis implements the queue contract over a Redis stream read through
// a consumer group.
//
// Entries are read without NOACK, so a delivered entry stays in the group's
// pending list until Acknowledge. Entries left pending longer than the
// configured claim idle time are claimed by the next consumer that dequeues.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"dos-queue/internal/config"
	"dos-queue/internal/queue"
)

// bodyField is the single field every stream entry carries.
const bodyField = "body"

const pingTimeout = 2 * time.Second

// Client is the subset of the go-redis client used by Queue. A *redis.Client
// satisfies it; tests replace it with a fake.
type Client interface {
	Ping(ctx context.Context) *redis.StatusCmd
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
	XAutoClaim(ctx context.Context, a *redis.XAutoClaimArgs) *redis.XAutoClaimCmd
	XInfoGroups(ctx context.Context, key string) *redis.XInfoGroupsCmd
	Close() error
}

// NewClient builds the connection pool shared by every session of a process.
// The caller closes it after the last session.
func NewClient(cfg *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// Queue is a session on one stream and consumer group.
type Queue struct {
	client       Client
	cfg          config.RedisConfig
	blockTimeout time.Duration
	consumer     string
	open         bool
	logger       *slog.Logger
}

// New creates an unopened session over client. Sessions never close client.
func New(client Client, cfg *config.RedisConfig, blockTimeout time.Duration, logger *slog.Logger) *Queue {
	return &Queue{
		client:       client,
		cfg:          *cfg,
		blockTimeout: blockTimeout,
		logger:       logger,
	}
}

// Client returns the client the session runs on.
func (q *Queue) Client() Client {
	return q.client
}

// Consumer returns the consumer name used by this session, or "" before Open.
func (q *Queue) Consumer() string {
	return q.consumer
}

// Open makes sure the consumer group exists. The group starts at the
// beginning of the stream so entries added before it existed are delivered.
func (q *Queue) Open(ctx context.Context) error {
	if q.open {
		return nil
	}

	err := q.client.XGroupCreateMkStream(ctx, q.cfg.Stream, q.cfg.Group, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return fmt.Errorf("failed to create consumer group %s on %s: %w", q.cfg.Group, q.cfg.Stream, err)
	}

	q.open = true
	q.consumer = q.cfg.Consumer
	if q.consumer == "" {
		q.consumer = consumerName()
	}

	q.logger.Debug("redis stream session opened",
		"stream", q.cfg.Stream,
		"group", q.cfg.Group,
		"consumer", q.consumer,
	)
	return nil
}

// Close ends the session. The shared client stays open and pending entries
// stay in the group for redelivery.
func (q *Queue) Close() error {
	q.open = false
	return nil
}

// IsHealthy pings Redis.
func (q *Queue) IsHealthy(ctx context.Context) bool {
	if !q.open {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := q.client.Ping(ctx).Err(); err != nil {
		q.logger.Warn("redis health check failed", "error", err)
		return false
	}
	return true
}

// Enqueue appends msg to the stream and returns the entry id.
func (q *Queue) Enqueue(ctx context.Context, msg []byte) (string, error) {
	if !q.open {
		return "", queue.ErrNotOpen
	}

	args := &redis.XAddArgs{
		Stream: q.cfg.Stream,
		Values: map[string]interface{}{bodyField: msg},
	}
	if q.cfg.MaxLen > 0 {
		args.MaxLen = q.cfg.MaxLen
		args.Approx = true
	}

	id, err := q.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("failed to add stream entry: %w", err)
	}
	return id, nil
}

// Dequeue returns one entry for this consumer. Stale pending entries are
// claimed before new entries are read.
func (q *Queue) Dequeue(ctx context.Context) (*queue.Delivery, error) {
	if !q.open {
		return nil, queue.ErrNotOpen
	}

	if q.cfg.ClaimMinIdle > 0 {
		d, err := q.claim(ctx)
		if err != nil || d != nil {
			return d, err
		}
	}

	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.cfg.Group,
		Consumer: q.consumer,
		Streams:  []string{q.cfg.Stream, ">"},
		Count:    1,
		Block:    q.blockTimeout,
		NoAck:    false,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to read from consumer group: %w", err)
	}

	for _, s := range streams {
		for _, m := range s.Messages {
			if d := q.toDelivery(ctx, m); d != nil {
				return d, nil
			}
		}
	}
	return nil, nil
}

// claim takes over one entry left pending by another consumer.
func (q *Queue) claim(ctx context.Context) (*queue.Delivery, error) {
	msgs, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.cfg.Stream,
		Group:    q.cfg.Group,
		Consumer: q.consumer,
		MinIdle:  q.cfg.ClaimMinIdle,
		Start:    "0-0",
		Count:    1,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to claim pending entries: %w", err)
	}

	for _, m := range msgs {
		if d := q.toDelivery(ctx, m); d != nil {
			q.logger.Info("claimed stale stream entry", "id", m.ID, "consumer", q.consumer)
			return d, nil
		}
	}
	return nil, nil
}

// toDelivery converts an entry. Entries without a usable body field can never
// be processed, so they are acknowledged and skipped.
func (q *Queue) toDelivery(ctx context.Context, m redis.XMessage) *queue.Delivery {
	var body []byte
	switch v := m.Values[bodyField].(type) {
	case string:
		body = []byte(v)
	case []byte:
		body = v
	default:
		q.logger.Warn("dropping malformed stream entry",
			"id", m.ID,
			"stream", q.cfg.Stream,
			"type", fmt.Sprintf("%T", v),
		)
		if err := q.client.XAck(ctx, q.cfg.Stream, q.cfg.Group, m.ID).Err(); err != nil {
			q.logger.Error("failed to ack malformed entry", "id", m.ID, "error", err)
		}
		return nil
	}

	return &queue.Delivery{ID: m.ID, Body: body, AckToken: m.ID}
}

// Acknowledge removes the entry from the group's pending list. Unknown ids
// are ignored by Redis.
func (q *Queue) Acknowledge(ctx context.Context, token string) error {
	if !q.open {
		return queue.ErrNotOpen
	}
	if token == "" {
		return nil
	}

	if err := q.client.XAck(ctx, q.cfg.Stream, q.cfg.Group, token).Err(); err != nil {
		return fmt.Errorf("failed to ack stream entry %s: %w", token, err)
	}
	return nil
}

// Stats reports the group's lag and pending count.
func (q *Queue) Stats(ctx context.Context) (queue.Stats, error) {
	if !q.open {
		return queue.Stats{}, queue.ErrNotOpen
	}

	groups, err := q.client.XInfoGroups(ctx, q.cfg.Stream).Result()
	if err != nil {
		return queue.Stats{}, fmt.Errorf("failed to read consumer groups: %w", err)
	}
	for _, g := range groups {
		if g.Name == q.cfg.Group {
			return queue.Stats{Backlog: g.Lag, InFlight: g.Pending}, nil
		}
	}
	return queue.Stats{}, fmt.Errorf("consumer group %s not found on %s", q.cfg.Group, q.cfg.Stream)
}

// isBusyGroup reports whether err is Redis saying the group already exists.
func isBusyGroup(err error) bool {
	return strings.HasPrefix(err.Error(), "BUSYGROUP")
}

// consumerName builds a name that is unique per session and still shows
// which host it ran on.
func consumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "consumer"
	}
	return host + "-" + uuid.NewString()[:8]
}
