package cmd

import (
	"errors"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ahoge-moe/Shiden/internal/broker"
	"github.com/ahoge-moe/Shiden/internal/observability"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume hardsub jobs from the message broker",
	Long: `Consume hardsub jobs from the configured broker queue, one at a time.

A message is acknowledged once its job succeeded, requeued when the job
failed, rejected when its payload is invalid and left unsettled when the job
was interrupted by shutdown.

The worker reconnects with exponential backoff. It exits cleanly when an
operator force-closes the connection with the configured close message, and
with an error once reconnection retries are exhausted.`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, _ []string) error {
	logger := slog.Default()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateWorker(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.startPruner(ctx); err != nil {
		return err
	}

	consumer := broker.NewConsumer(cfg.Broker.Inbound, cfg.Broker.Retry, broker.Dial, a.runner).
		WithLogger(observability.WithComponent(logger, "broker"))

	err = consumer.Run(ctx)
	if errors.Is(err, broker.ErrForcedClose) {
		logger.Info("worker stopped by operator")
		return nil
	}
	return err
}
