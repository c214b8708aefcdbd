// Package provider selects the queue backend named in configuration and
// builds sessions for it.
package provider

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dos-queue/internal/config"
	"dos-queue/internal/dispatch"
	"dos-queue/internal/queue"
	"dos-queue/internal/queue/kafka"
	"dos-queue/internal/queue/memory"
	"dos-queue/internal/queue/postgres"
	redisq "dos-queue/internal/queue/redis"
	sqsq "dos-queue/internal/queue/sqs"
)

const drainTimeout = 5 * time.Second

// NewFactory returns a factory for sessions on the configured backend and a
// cleanup func releasing resources shared by those sessions. Transport
// clients and pools are built here once; sessions only borrow them. Call it once at
// startup; the cleanup must run after the last session is closed.
func NewFactory(ctx context.Context, cfg *config.Config, logger *slog.Logger) (queue.Factory, func(), error) {
	var (
		newQueue func() queue.Queue
		cleanup  = func() {}
	)

	blockTimeout := cfg.Queue.BlockTimeout

	switch cfg.Queue.Provider {
	case config.ProviderRedis:
		client := redisq.NewClient(&cfg.Redis)
		newQueue = func() queue.Queue {
			return redisq.New(client, &cfg.Redis, blockTimeout, logger)
		}
		cleanup = func() {
			if err := client.Close(); err != nil {
				logger.Warn("failed to close redis client", "error", err)
			}
		}

	case config.ProviderSQS:
		client, err := sqsq.NewClient(ctx, &cfg.SQS)
		if err != nil {
			return nil, nil, err
		}
		pool := dispatch.NewPool(cfg.SQS.PoolSize)
		newQueue = func() queue.Queue {
			return sqsq.New(client, &cfg.SQS, blockTimeout, pool, logger)
		}
		cleanup = func() {
			ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
			if err := pool.Close(ctx); err != nil {
				logger.Warn("sqs dispatch pool did not drain", "error", err)
			}
		}

	case config.ProviderKafka:
		newQueue = func() queue.Queue {
			return kafka.New(&cfg.Kafka, blockTimeout, logger)
		}

	case config.ProviderPostgres:
		db, err := postgres.NewDB(ctx, &cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		newQueue = func() queue.Queue {
			return postgres.New(db, &cfg.Postgres, blockTimeout, logger)
		}
		cleanup = db.Close

	case config.ProviderMemory:
		broker := memory.NewBroker(cfg.Memory.Capacity, cfg.Memory.VisibilityTimeout)
		newQueue = func() queue.Queue {
			return memory.NewQueue(broker, blockTimeout)
		}
		cleanup = func() { _ = broker.Close() }

	default:
		return nil, nil, fmt.Errorf("%w: %q", config.ErrUnknownProvider, cfg.Queue.Provider)
	}

	backend := string(cfg.Queue.Provider)
	logger.Info("queue provider selected", "provider", backend)

	factory := func() queue.Queue {
		return Instrument(newQueue(), backend)
	}
	return factory, cleanup, nil
}
