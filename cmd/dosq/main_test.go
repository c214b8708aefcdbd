package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"dos-queue/internal/config"
)

func TestInitLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := initLogger(&buf, &config.LoggerConfig{Level: "warn", Format: "json"})

	logger.Info("hidden")
	logger.Warn("shown", "key", "value")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d log lines, want 1: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["msg"] != "shown" || entry["key"] != "value" {
		t.Errorf("entry = %v", entry)
	}
}

func TestInitLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := initLogger(&buf, &config.LoggerConfig{Level: "debug", Format: "text"})

	logger.Debug("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("output = %q, want text format", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"bogus": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestEnqueueCommand_Memory(t *testing.T) {
	t.Setenv("QUEUE_PROVIDER", "memory")
	t.Setenv("LOG_LEVEL", "error")

	var out bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetArgs([]string{"enqueue", `{"task":1}`})

	if err := root.Execute(); err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if strings.TrimSpace(out.String()) == "" {
		t.Error("enqueue should print the message id")
	}
}

func TestEnqueueCommand_EmptyPayload(t *testing.T) {
	t.Setenv("QUEUE_PROVIDER", "memory")
	t.Setenv("LOG_LEVEL", "error")

	root := newRootCommand()
	root.SetIn(strings.NewReader(""))
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"enqueue"})

	if err := root.Execute(); err == nil {
		t.Error("expected an error for an empty payload")
	}
}
