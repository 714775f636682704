package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahoge-moe/Shiden/internal/broker"
	"github.com/ahoge-moe/Shiden/internal/config"
	"github.com/ahoge-moe/Shiden/internal/database"
	"github.com/ahoge-moe/Shiden/internal/ffmpeg"
	"github.com/ahoge-moe/Shiden/internal/hardsub"
	"github.com/ahoge-moe/Shiden/internal/notify"
	"github.com/ahoge-moe/Shiden/internal/observability"
	"github.com/ahoge-moe/Shiden/internal/pipeline"
	"github.com/ahoge-moe/Shiden/internal/process"
	"github.com/ahoge-moe/Shiden/internal/queue"
	"github.com/ahoge-moe/Shiden/internal/rclone"
	"github.com/ahoge-moe/Shiden/internal/repository"
	"github.com/ahoge-moe/Shiden/internal/scheduler"
	"github.com/ahoge-moe/Shiden/internal/startup"
	"github.com/ahoge-moe/Shiden/internal/storage"
	"github.com/ahoge-moe/Shiden/internal/version"
	"github.com/ahoge-moe/Shiden/pkg/httpclient"
)

// notifyDrainTimeout bounds how long shutdown waits for in-flight notifications.
const notifyDrainTimeout = 15 * time.Second

// app holds the components shared by the serve and worker commands.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	db         *database.DB
	history    repository.JobRunRepository
	workspace  *storage.Workspace
	queue      *queue.FileQueue
	runner     *pipeline.Runner
	dispatcher *notify.Dispatcher
	pruner     *scheduler.Pruner
}

// newApp resolves external tools, opens the history database and wires the
// job runner. The workspace is emptied and interrupted runs are recovered.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	ws, err := storage.NewWorkspace(cfg.Storage.WorkspaceDir)
	if err != nil {
		return nil, fmt.Errorf("initializing workspace: %w", err)
	}
	if err := startup.PrepareWorkspace(logger, ws); err != nil {
		return nil, fmt.Errorf("preparing workspace: %w", err)
	}
	a.workspace = ws

	a.queue = queue.NewFileQueue(cfg.Storage.QueueFile)
	if removed, err := startup.CleanupOrphanedTempFiles(logger, cfg.Storage.QueueFile, startup.DefaultCleanupAge); err != nil {
		logger.Warn("failed to clean orphaned queue temp files", slog.String("error", err.Error()))
	} else if removed > 0 {
		logger.Info("cleaned orphaned queue temp files", slog.Int("removed_count", removed))
	}

	if cfg.History.Enabled {
		if err := a.openHistory(ctx); err != nil {
			return nil, err
		}
	}

	bins, err := ffmpeg.ResolveBinaries(cfg.FFmpeg)
	if err != nil {
		a.close()
		return nil, err
	}
	rcloneBin, err := rclone.ResolveBinary(cfg.Rclone)
	if err != nil {
		a.close()
		return nil, err
	}

	procRunner := process.NewExecRunner().
		WithLogger(observability.WithComponent(logger, "process"))
	if v, err := ffmpeg.Version(ctx, procRunner, bins.FFmpeg); err == nil {
		logger.Info("using ffmpeg", slog.String("path", bins.FFmpeg), slog.String("version", v))
	}

	prober := ffmpeg.NewProber(bins.FFprobe, procRunner).WithTimeout(cfg.FFmpeg.ProbeTimeout)
	burner := hardsub.NewBurner(hardsub.OptionsFromConfig(cfg.FFmpeg, bins.FFmpeg), procRunner, prober).
		WithLogger(logger)

	rcloneClient := rclone.NewClient(rcloneBin, cfg.Rclone.ConfigPath, cfg.Rclone.Flags, procRunner).
		WithLogger(logger)
	transfer := rclone.NewTransfer(rcloneClient, cfg.Rclone.DownloadSources, cfg.Rclone.UploadDestinations).
		WithLogger(logger)

	a.dispatcher = newDispatcher(cfg, logger)

	a.runner = pipeline.NewRunner(ws, transfer, burner, transfer).
		WithNotifier(a.dispatcher).
		WithLogger(logger)
	if a.history != nil {
		a.runner.WithHistory(a.history)
	}

	return a, nil
}

func (a *app) openHistory(ctx context.Context) error {
	db, err := database.New(a.cfg.Database, a.logger, nil)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("running migrations: %w", err)
	}
	a.db = db
	a.history = repository.NewJobRunRepository(db.DB)

	if _, err := startup.RecoverInterruptedRuns(ctx, a.logger, a.history); err != nil {
		a.logger.Warn("continuing without interrupted run recovery", slog.String("error", err.Error()))
	}

	pruner, err := scheduler.NewPruner(a.history, a.cfg.History.Retention, a.cfg.History.PruneSchedule)
	if err != nil {
		a.close()
		return fmt.Errorf("configuring history pruner: %w", err)
	}
	a.pruner = pruner.WithLogger(observability.WithComponent(a.logger, "pruner"))
	return nil
}

func newDispatcher(cfg *config.Config, logger *slog.Logger) *notify.Dispatcher {
	httpCfg := httpclient.DefaultConfig()
	httpCfg.Timeout = cfg.Notification.Timeout
	httpCfg.UserAgent = version.UserAgent()
	httpCfg.Logger = logger
	client := httpclient.New(httpCfg)

	d := notify.NewDispatcher(cfg.Notification, client).
		WithLogger(observability.WithComponent(logger, "notify"))
	if cfg.Notification.Metadata.Enabled {
		d.WithMetadata(notify.NewMetadataClient(cfg.Notification.Metadata, client).WithLogger(logger))
	}
	if cfg.Broker.OutboundEnabled() {
		d.WithPublisher(broker.NewPublisher(cfg.Broker.Outbound, broker.Dial).WithLogger(logger))
	}
	return d
}

// startPruner runs the history pruner until ctx is done.
func (a *app) startPruner(ctx context.Context) error {
	if a.pruner == nil {
		return nil
	}
	return a.pruner.Start(ctx)
}

// close waits for pending notifications and releases the database.
func (a *app) close() {
	if a.pruner != nil {
		a.pruner.Stop()
	}
	if a.dispatcher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), notifyDrainTimeout)
		if err := a.dispatcher.Close(ctx); err != nil {
			a.logger.Warn("notifications still pending at shutdown", slog.String("error", err.Error()))
		}
		cancel()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close database", slog.String("error", err.Error()))
		}
	}
}

// openHistoryOnly opens the history database for read-only commands.
func openHistoryOnly(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*database.DB, repository.JobRunRepository, error) {
	db, err := database.New(cfg.Database, logger, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, repository.NewJobRunRepository(db.DB), nil
}
