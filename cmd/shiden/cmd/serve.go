package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	internalhttp "github.com/ahoge-moe/Shiden/internal/http"
	"github.com/ahoge-moe/Shiden/internal/http/handlers"
	"github.com/ahoge-moe/Shiden/internal/http/middleware"
	"github.com/ahoge-moe/Shiden/internal/observability"
	"github.com/ahoge-moe/Shiden/internal/pipeline"
	"github.com/ahoge-moe/Shiden/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP ingress and queue worker",
	Long: `Start the shiden HTTP server and the persisted queue worker.

The server provides:
- POST /hardsub/file to queue a job
- GET /queue to list queued jobs
- GET /api/v1/runs for job history
- GET /health

Jobs queued before a restart are resumed on start.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().Bool("clean", false, "Wipe the job queue before starting")

	mustBindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	mustBindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := slog.Default()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	if clean, _ := cmd.Flags().GetBool("clean"); clean {
		if err := a.queue.Wipe(); err != nil {
			return fmt.Errorf("wiping queue: %w", err)
		}
		logger.Info("job queue wiped", slog.String("path", a.queue.Path()))
	}

	worker := pipeline.NewQueueWorker(a.queue, a.runner).
		WithLogger(observability.WithComponent(logger, "queue"))

	auth := middleware.NewAuthenticator(cfg.Auth.Keys, logger)
	if len(cfg.Auth.Keys) == 0 {
		logger.Warn("no auth keys configured, every job request will be rejected")
	}

	server := internalhttp.NewServer(internalhttp.ServerConfigFrom(cfg.Server), logger, version.Version)
	server.MountJobRoutes(auth,
		handlers.NewHardsubHandler(a.queue, worker, logger),
		handlers.NewQueueHandler(a.queue, logger),
	)

	health := handlers.NewHealthHandler(a.queue, worker).WithWorkspace(a.workspace.Dir())
	if a.db != nil {
		health.WithDB(a.db.DB)
	}
	health.Register(server.API())
	if a.history != nil {
		handlers.NewRunsHandler(a.history, auth).Register(server.API())
	}

	if err := a.startPruner(ctx); err != nil {
		return err
	}

	if pending, err := a.queue.Len(); err != nil {
		return fmt.Errorf("reading queue: %w", err)
	} else if pending > 0 {
		logger.Info("resuming queued jobs", slog.Int("pending", pending))
		worker.Trigger()
	}

	logger.Info("starting shiden server",
		slog.String("host", cfg.Server.Host),
		slog.Int("port", cfg.Server.Port),
		slog.String("version", version.Version),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.ListenAndServe(gctx)
	})
	g.Go(func() error {
		return worker.Run(gctx)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
