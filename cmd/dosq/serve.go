package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"dos-queue/internal/api"
	"dos-queue/internal/banner"
	"dos-queue/internal/ingest"
	"dos-queue/internal/queue/provider"
)

func newServeCommand(load loadFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API that accepts messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			banner.Print(cmd.OutOrStdout(), "api", string(cfg.Queue.Provider))

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			factory, cleanup, err := provider.NewFactory(ctx, cfg, logger)
			if err != nil {
				logger.Error("failed to initialize queue", "error", err)
				return err
			}
			defer cleanup()

			ingestService := ingest.NewService(factory, cfg.Queue.MaxMessageBytes, logger)

			server := api.NewServer(api.ServerDeps{
				Config:         &cfg.Server,
				Logger:         logger,
				HealthHandler:  api.NewHealthHandler(ingestService, cfg.Service.Name, string(cfg.Queue.Provider)),
				MessageHandler: api.NewMessageHandler(ingestService, logger),
				// Leave room above the message limit so oversized bodies get a
				// 413 from the handler with a clear message.
				BodyLimit: cfg.Queue.MaxMessageBytes * 2,
			})

			errCh := make(chan error, 1)
			go func() {
				if err := server.Start(); err != nil {
					errCh <- err
				}
			}()

			logger.Info("dos-queue api started",
				"address", cfg.Server.Address(),
				"provider", cfg.Queue.Provider,
			)

			// Wait for shutdown signal
			select {
			case <-ctx.Done():
				logger.Info("shutdown signal received")
			case err := <-errCh:
				logger.Error("server error", "error", err)
				return fmt.Errorf("server error: %w", err)
			}

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
			defer shutdownCancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Error("server shutdown error", "error", err)
			}

			logger.Info("dos-queue api stopped")
			return nil
		},
	}
}
