package integration

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"

	"dos-queue/internal/config"
	redisq "dos-queue/internal/queue/redis"
)

// redisConfig points at DOSQ_REDIS_ADDR (host:port), or localhost:6379, and
// uses a stream unique to this run.
func redisConfig() *config.RedisConfig {
	host, port := "localhost", 6379
	if addr := os.Getenv("DOSQ_REDIS_ADDR"); addr != "" {
		h, p, ok := strings.Cut(addr, ":")
		host = h
		if n, err := strconv.Atoi(p); ok && err == nil {
			port = n
		}
	}
	return &config.RedisConfig{
		Host:   host,
		Port:   port,
		Stream: "dosq-it-" + uuid.NewString()[:8],
		Group:  "dosq-it",
	}
}

var _ = Describe("Redis stream queue", Ordered, func() {
	var (
		cfg    *config.RedisConfig
		admin  *redis.Client
		logger *slog.Logger
		ctx    context.Context
	)

	newSession := func() *redisq.Queue {
		return redisq.New(admin, cfg, 200*time.Millisecond, logger)
	}

	BeforeAll(func() {
		ctx = context.Background()
		cfg = redisConfig()
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

		admin = redisq.NewClient(cfg)
		pingCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := admin.Ping(pingCtx).Err(); err != nil {
			Skip(fmt.Sprintf("Redis not reachable at %s: %v", cfg.RedisAddr(), err))
		}
	})

	AfterAll(func() {
		if admin != nil {
			_ = admin.Del(ctx, cfg.Stream).Err()
			_ = admin.Close()
		}
	})

	It("opens twice against the same group", func() {
		for i := 0; i < 2; i++ {
			q := newSession()
			Expect(q.Open(ctx)).To(Succeed())
			Expect(q.Close()).To(Succeed())
		}
	})

	It("round trips a task and acknowledges it", func() {
		q := newSession()
		Expect(q.Open(ctx)).To(Succeed())
		defer q.Close()

		id, err := q.Enqueue(ctx, []byte(`{"task":1}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(id).NotTo(BeEmpty())

		d, err := q.Dequeue(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(d).NotTo(BeNil())
		Expect(d.Body).To(Equal([]byte(`{"task":1}`)))
		Expect(d.AckToken).To(Equal(id))

		Expect(q.Acknowledge(ctx, d.AckToken)).To(Succeed())

		pending, err := admin.XPending(ctx, cfg.Stream, cfg.Group).Result()
		Expect(err).NotTo(HaveOccurred())
		Expect(pending.Count).To(BeZero())
	})

	It("returns no delivery on an empty stream", func() {
		q := newSession()
		Expect(q.Open(ctx)).To(Succeed())
		defer q.Close()

		d, err := q.Dequeue(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(d).To(BeNil())
	})

	It("ignores acknowledgements for unknown ids", func() {
		q := newSession()
		Expect(q.Open(ctx)).To(Succeed())
		defer q.Close()

		Expect(q.Acknowledge(ctx, "1-1")).To(Succeed())
	})

	It("redelivers an unacknowledged entry to another consumer", func() {
		crashed := newSession()
		Expect(crashed.Open(ctx)).To(Succeed())
		_, err := crashed.Enqueue(ctx, []byte("retry me"))
		Expect(err).NotTo(HaveOccurred())

		d, err := crashed.Dequeue(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(d).NotTo(BeNil())
		Expect(crashed.Close()).To(Succeed())

		claimCfg := *cfg
		claimCfg.ClaimMinIdle = 50 * time.Millisecond
		recovered := redisq.New(admin, &claimCfg, 200*time.Millisecond, logger)
		Expect(recovered.Open(ctx)).To(Succeed())
		defer recovered.Close()

		Eventually(func() []byte {
			d, err := recovered.Dequeue(ctx)
			if err != nil || d == nil {
				return nil
			}
			_ = recovered.Acknowledge(ctx, d.AckToken)
			return d.Body
		}).WithTimeout(2 * time.Second).WithPolling(100 * time.Millisecond).Should(Equal([]byte("retry me")))
	})

	It("reports health and stats", func() {
		q := newSession()
		Expect(q.Open(ctx)).To(Succeed())
		defer q.Close()

		Expect(q.IsHealthy(ctx)).To(BeTrue())

		_, err := q.Stats(ctx)
		Expect(err).NotTo(HaveOccurred())
	})
})
