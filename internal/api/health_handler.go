package api

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"dos-queue/internal/banner"
)

// QueueChecker reports whether the queue backend is reachable.
type QueueChecker interface {
	Healthy(ctx context.Context) bool
}

// HealthHandler serves liveness and dependency health checks. Both answer
// with a plain JSON body so probes need not unwrap the API envelope.
type HealthHandler struct {
	checker  QueueChecker
	service  string
	provider string
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(checker QueueChecker, service, provider string) *HealthHandler {
	return &HealthHandler{
		checker:  checker,
		service:  service,
		provider: provider,
	}
}

// Liveness handles GET /healthz
func (h *HealthHandler) Liveness(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"service": h.service,
		"version": banner.Version,
	})
}

// Queue handles GET /healthz/queue
// An unreachable queue is reported as 503, never as a server error.
func (h *HealthHandler) Queue(c *fiber.Ctx) error {
	if !h.checker.Healthy(c.Context()) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status":   "unavailable",
			"queue":    "unreachable",
			"provider": h.provider,
		})
	}

	return c.JSON(fiber.Map{
		"status":   "ok",
		"queue":    "connected",
		"provider": h.provider,
	})
}
