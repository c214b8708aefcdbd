// Package kafka implements the queue contract over a Kafka topic read by a
// consumer group.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"dos-queue/internal/config"
	"dos-queue/internal/queue"
)

const probeTimeout = 2 * time.Second

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Queue is a session on one topic and consumer group.
//
// Offsets are committed only on Acknowledge, so messages fetched but not
// acknowledged before Close are delivered again after the group rebalances.
type Queue struct {
	cfg          config.KafkaConfig
	blockTimeout time.Duration
	logger       *slog.Logger

	newReader func() messageReader
	newWriter func() messageWriter
	probe     func(ctx context.Context) error

	reader  messageReader
	writer  messageWriter
	pending map[string]kafka.Message
}

// New creates an unopened session.
func New(cfg *config.KafkaConfig, blockTimeout time.Duration, logger *slog.Logger) *Queue {
	c := *cfg
	q := &Queue{
		cfg:          c,
		blockTimeout: blockTimeout,
		logger:       logger,
	}
	q.newReader = func() messageReader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:        c.Brokers,
			Topic:          c.Topic,
			GroupID:        c.ConsumerGroup,
			StartOffset:    kafka.FirstOffset,
			MinBytes:       1,
			MaxBytes:       10e6, // 10MB
			MaxWait:        500 * time.Millisecond,
			CommitInterval: 0,
		})
	}
	q.newWriter = func() messageWriter {
		return &kafka.Writer{
			Addr:         kafka.TCP(c.Brokers...),
			Topic:        c.Topic,
			Balancer:     &kafka.Hash{}, // Use key-based partitioning
			BatchSize:    1,
			BatchTimeout: 10 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
		}
	}
	q.probe = func(ctx context.Context) error {
		return dialAny(ctx, c.Brokers)
	}
	return q
}

// dialAny succeeds when at least one broker accepts a connection.
func dialAny(ctx context.Context, brokers []string) error {
	var errs []error
	for _, b := range brokers {
		conn, err := kafka.DialContext(ctx, "tcp", b)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		return conn.Close()
	}
	return fmt.Errorf("no kafka broker reachable: %w", errors.Join(errs...))
}

// Open checks that a broker is reachable and prepares the writer. The group
// reader is created on the first Dequeue so producer-only sessions never join
// the consumer group.
func (q *Queue) Open(ctx context.Context) error {
	if q.writer != nil {
		return nil
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if err := q.probe(probeCtx); err != nil {
		return err
	}

	q.writer = q.newWriter()
	q.pending = make(map[string]kafka.Message)
	return nil
}

// Close closes the reader and writer.
func (q *Queue) Close() error {
	if q.writer == nil {
		return nil
	}

	var errs []error
	if q.reader != nil {
		if err := q.reader.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close kafka reader: %w", err))
		}
		q.reader = nil
	}
	if err := q.writer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close kafka writer: %w", err))
	}
	q.writer = nil
	q.pending = nil

	return errors.Join(errs...)
}

// IsHealthy dials the brokers.
func (q *Queue) IsHealthy(ctx context.Context) bool {
	if q.writer == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	if err := q.probe(ctx); err != nil {
		q.logger.Warn("kafka health check failed", "error", err)
		return false
	}
	return true
}

// Enqueue writes msg keyed by a fresh id and returns that id. Kafka does not
// report the offset of a written message.
func (q *Queue) Enqueue(ctx context.Context, msg []byte) (string, error) {
	if q.writer == nil {
		return "", queue.ErrNotOpen
	}

	id := uuid.NewString()
	if err := q.writer.WriteMessages(ctx, kafka.Message{Key: []byte(id), Value: msg}); err != nil {
		if errors.Is(err, kafka.MessageSizeTooLarge) {
			return "", fmt.Errorf("%w: %v", queue.ErrMessageTooLarge, err)
		}
		return "", fmt.Errorf("failed to write message to kafka: %w", err)
	}
	return id, nil
}

// Dequeue fetches one message, waiting at most the block timeout.
func (q *Queue) Dequeue(ctx context.Context) (*queue.Delivery, error) {
	if q.writer == nil {
		return nil, queue.ErrNotOpen
	}
	if q.reader == nil {
		q.reader = q.newReader()
		q.logger.Info("kafka reader initialized",
			"topic", q.cfg.Topic,
			"group", q.cfg.ConsumerGroup,
		)
	}

	readCtx, cancel := context.WithTimeout(ctx, q.blockTimeout)
	defer cancel()

	msg, err := q.reader.FetchMessage(readCtx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch message: %w", err)
	}

	token := messageToken(msg)
	q.pending[token] = msg

	id := string(msg.Key)
	if id == "" {
		id = token
	}
	return &queue.Delivery{ID: id, Body: msg.Value, AckToken: token}, nil
}

// Acknowledge commits the offset of a fetched message. Tokens not fetched by
// this session are ignored.
func (q *Queue) Acknowledge(ctx context.Context, token string) error {
	if q.writer == nil {
		return queue.ErrNotOpen
	}

	msg, ok := q.pending[token]
	if !ok {
		q.logger.Debug("kafka ack for unknown message", "token", token)
		return nil
	}
	if err := q.reader.CommitMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to commit message: %w", err)
	}
	delete(q.pending, token)
	return nil
}

// messageToken identifies a message within the topic as "partition:offset".
func messageToken(msg kafka.Message) string {
	return strconv.Itoa(msg.Partition) + ":" + strconv.FormatInt(msg.Offset, 10)
}
