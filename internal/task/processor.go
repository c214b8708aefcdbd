// Package task decodes and handles the JSON tasks carried by queue messages.
package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// ErrEmptyTask is returned for a message without a body.
var ErrEmptyTask = errors.New("task body is empty")

// Task is a decoded task document. Its fields are defined by producers.
type Task map[string]any

// Processor decodes task messages and logs them.
type Processor struct {
	logger *slog.Logger
}

// NewProcessor creates a new task processor.
func NewProcessor(logger *slog.Logger) *Processor {
	return &Processor{logger: logger}
}

// Decode parses body as a JSON task.
func Decode(body []byte) (Task, error) {
	if len(body) == 0 {
		return nil, ErrEmptyTask
	}

	var t Task
	if err := json.Unmarshal(body, &t); err != nil {
		return nil, fmt.Errorf("failed to decode task: %w", err)
	}
	return t, nil
}

// Process decodes body. A malformed task is returned as an error, which
// stops the worker.
func (p *Processor) Process(ctx context.Context, body []byte) error {
	t, err := Decode(body)
	if err != nil {
		return err
	}

	p.logger.Info("processing task", "fields", len(t))
	p.logger.Debug("task payload", "task", t)
	return nil
}
