package api

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"dos-queue/internal/ingest"
	"dos-queue/internal/queue"
)

// MessageService submits messages and reports queue depth.
type MessageService interface {
	Submit(ctx context.Context, body []byte) (string, error)
	Stats(ctx context.Context) (queue.Stats, error)
}

// MessageHandler handles HTTP requests for message submission.
type MessageHandler struct {
	service MessageService
	logger  *slog.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(service MessageService, logger *slog.Logger) *MessageHandler {
	return &MessageHandler{
		service: service,
		logger:  logger,
	}
}

// Submit handles POST /v1/messages
// The raw request body is enqueued as is. Returns 202 Accepted with the
// backend message id; processing happens asynchronously.
func (h *MessageHandler) Submit(c *fiber.Ctx) error {
	// fiber reuses the body buffer once the handler returns.
	body := append([]byte(nil), c.Body()...)

	id, err := h.service.Submit(c.Context(), body)
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrEmptyMessage):
			return BadRequest(c, err.Error())
		case errors.Is(err, ingest.ErrMessageTooLarge):
			return PayloadTooLarge(c, err.Error())
		case errors.Is(err, ingest.ErrQueueUnavailable):
			return ServiceUnavailable(c, "queue is unavailable")
		}
		h.logger.Error("failed to submit message", "error", err)
		return InternalError(c, "failed to submit message")
	}

	h.logger.Debug("message accepted", "id", id, "bytes", len(body))

	return Accepted(c, map[string]string{
		"id": id,
	})
}

// Stats handles GET /v1/queue/stats
func (h *MessageHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.service.Stats(c.Context())
	if err != nil {
		if errors.Is(err, queue.ErrStatsUnsupported) {
			return NotImplemented(c, err.Error())
		}
		h.logger.Warn("failed to read queue stats", "error", err)
		return ServiceUnavailable(c, "queue is unavailable")
	}
	return Success(c, stats)
}
