package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"dos-queue/internal/ingest"
	"dos-queue/internal/queue/provider"
)

func newEnqueueCommand(load loadFunc) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "enqueue [payload]",
		Short: "Enqueue one message",
		Long:  "enqueue submits the payload argument, or standard input when it is omitted or \"-\", and prints the message id.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}

			var body []byte
			if len(args) == 1 && args[0] != "-" {
				body = []byte(args[0])
			} else {
				body, err = io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read payload: %w", err)
				}
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			factory, cleanup, err := provider.NewFactory(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			id, err := ingest.NewService(factory, cfg.Queue.MaxMessageBytes, logger).Submit(ctx, body)
			if err != nil {
				logger.Error("failed to enqueue message", "error", err)
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "give up after this long")
	return cmd
}
