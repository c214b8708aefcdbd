// Package main is the entry point for dos-queue.
// The serve command runs the HTTP producer API, work runs a queue worker and
// enqueue submits a single message from the command line.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"dos-queue/internal/config"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "dosq",
		Short:         "Queue service with pluggable backends",
		Long:          "dosq accepts messages over HTTP and processes them with workers over Redis Streams, SQS, Kafka, PostgreSQL or an in-process queue.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML configuration file (environment variables override it)")

	load := func() (*config.Config, *slog.Logger, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			// No configured logger yet.
			slog.Error("failed to load configuration", "error", err, "path", configPath)
			return nil, nil, err
		}
		logger := initLogger(os.Stdout, &cfg.Logger)
		logger.Info("configuration loaded",
			"path", configPath,
			"provider", cfg.Queue.Provider,
		)
		return cfg, logger, nil
	}

	root.AddCommand(newServeCommand(load))
	root.AddCommand(newWorkCommand(load))
	root.AddCommand(newEnqueueCommand(load))
	return root
}

// loadFunc loads configuration and builds the logger for a command.
type loadFunc func() (*config.Config, *slog.Logger, error)

// initLogger creates and configures the application logger.
func initLogger(w io.Writer, cfg *config.LoggerConfig) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		fmt.Fprintf(os.Stderr, "unknown log level %q, using info\n", level)
		return slog.LevelInfo
	}
	return l
}
