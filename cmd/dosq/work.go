package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"dos-queue/internal/banner"
	"dos-queue/internal/queue/provider"
	"dos-queue/internal/server"
	"dos-queue/internal/task"
	"dos-queue/internal/worker"
)

func newWorkCommand(load loadFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "work",
		Short: "Run a worker that processes queued tasks",
		Long: "work consumes messages until interrupted. Any processing or transport error " +
			"stops the worker with a non-zero exit status so a supervisor can restart it.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			banner.Print(cmd.OutOrStdout(), "worker", string(cfg.Queue.Provider))

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			factory, cleanup, err := provider.NewFactory(ctx, cfg, logger)
			if err != nil {
				logger.Error("failed to initialize queue", "error", err)
				return err
			}
			defer cleanup()

			if cfg.Worker.ProbePort > 0 {
				probe := server.NewProbeServer(fmt.Sprintf(":%d", cfg.Worker.ProbePort), cfg.Service.Name, logger)
				go func() {
					if err := probe.Start(); err != nil {
						logger.Error("probe server error", "error", err)
					}
				}()
				defer func() {
					shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer shutdownCancel()
					_ = probe.Shutdown(shutdownCtx)
				}()
			}

			w := worker.New(factory, task.NewProcessor(logger), logger)
			if err := w.Run(ctx); err != nil {
				logger.Error("worker stopped with error", "error", err)
				return err
			}

			logger.Info("worker stopped")
			return nil
		},
	}
}
