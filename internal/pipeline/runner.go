// Package pipeline runs hardsub jobs end to end: download, burn, upload,
// then history and notification. Both ingress paths share one Runner.
package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ahoge-moe/Shiden/internal/hardsub"
	"github.com/ahoge-moe/Shiden/internal/models"
	"github.com/ahoge-moe/Shiden/internal/notify"
	"github.com/ahoge-moe/Shiden/internal/observability"
	"github.com/ahoge-moe/Shiden/internal/storage"
)

// Fetcher downloads a job's files into a local directory.
type Fetcher interface {
	Fetch(ctx context.Context, job models.Job, dir string) error
}

// Burner produces the hardsubbed output inside the workspace.
type Burner interface {
	Burn(ctx context.Context, ws hardsub.Workspace, job models.Job) (hardsub.Result, error)
}

// Uploader copies a finished file to every upload destination.
type Uploader interface {
	Publish(ctx context.Context, localFile, outputFolder string) error
}

// Notifier reports job outcomes. Implementations must not block.
type Notifier interface {
	Notify(o notify.Outcome)
}

// History records job runs.
type History interface {
	Create(ctx context.Context, run *models.JobRun) error
	Update(ctx context.Context, run *models.JobRun) error
}

// historyTimeout bounds history writes, which must still happen after the
// job context was cancelled.
const historyTimeout = 5 * time.Second

// Result describes a completed job.
type Result struct {
	RunID      models.ULID
	OutputName string
	OutputSize int64
	Strategy   models.BurnStrategy
}

// stage is one step of a job.
type stage struct {
	id  string
	run func(ctx context.Context, st *state) error
}

// state is carried between the stages of one job.
type state struct {
	job    models.Job
	result Result
}

// Runner executes jobs one at a time in a shared workspace.
type Runner struct {
	workspace *storage.Workspace
	fetcher   Fetcher
	burner    Burner
	uploader  Uploader
	notifier  Notifier
	history   History
	logger    *slog.Logger
	now       func() time.Time

	// sem serializes jobs; the workspace holds one job at a time.
	sem  chan struct{}
	busy atomic.Bool
}

// NewRunner creates a Runner.
func NewRunner(ws *storage.Workspace, fetcher Fetcher, burner Burner, uploader Uploader) *Runner {
	return &Runner{
		workspace: ws,
		fetcher:   fetcher,
		burner:    burner,
		uploader:  uploader,
		logger:    slog.Default(),
		now:       time.Now,
		sem:       make(chan struct{}, 1),
	}
}

// WithNotifier sets where outcomes are reported.
func (r *Runner) WithNotifier(n Notifier) *Runner {
	r.notifier = n
	return r
}

// WithHistory enables job run history.
func (r *Runner) WithHistory(h History) *Runner {
	r.history = h
	return r
}

// WithLogger sets the logger.
func (r *Runner) WithLogger(logger *slog.Logger) *Runner {
	r.logger = logger
	return r
}

// Busy reports whether a job is in flight.
func (r *Runner) Busy() bool {
	return r.busy.Load()
}

// Process runs job to completion. The workspace is emptied before and after
// the job whatever the outcome. Killed jobs are recorded but not notified.
// The returned error is a *models.Error.
func (r *Runner) Process(ctx context.Context, job models.Job, trigger models.Trigger) (res Result, err error) {
	select {
	case r.sem <- struct{}{}:
	case <-ctx.Done():
		return Result{}, models.NewError(models.CodeProcessKilled, ctx.Err())
	}
	r.busy.Store(true)
	defer func() {
		r.busy.Store(false)
		<-r.sem
	}()

	logger := observability.WithJob(r.logger, job.InputFile, job.OutputFolder)
	ctx = observability.ContextWithLogger(ctx, logger)
	done := observability.TimedOperationWithError(ctx, logger, "hardsub job", &err)
	defer done()

	run := r.startRun(ctx, logger, job, trigger)
	st := &state{job: job}
	if run != nil {
		st.result.RunID = run.ID
	}

	err = r.execute(ctx, logger, st)
	res = st.result

	r.finishRun(logger, run, res, err)

	if models.IsKilled(err) {
		logger.WarnContext(ctx, "job killed, skipping notification")
		return res, err
	}
	if r.notifier != nil {
		r.notifier.Notify(notify.Outcome{
			Job:        job,
			OutputName: res.OutputName,
			OutputSize: res.OutputSize,
			Strategy:   res.Strategy,
			Err:        err,
		})
	}
	return res, err
}

func (r *Runner) execute(ctx context.Context, logger *slog.Logger, st *state) error {
	if err := r.workspace.Clear(); err != nil {
		return models.NewError(models.CodeStageFailed, err)
	}
	defer func() {
		if err := r.workspace.Clear(); err != nil {
			logger.Warn("failed to clear workspace", slog.String("error", err.Error()))
		}
	}()

	stages := []stage{
		{id: "download", run: r.download},
		{id: "hardsub", run: r.hardsub},
		{id: "upload", run: r.upload},
	}
	for i, s := range stages {
		if err := ctx.Err(); err != nil {
			return models.NewError(models.CodeProcessKilled, err)
		}

		start := r.now()
		logger.InfoContext(ctx, "executing stage",
			slog.Int("stage_num", i+1),
			slog.Int("total_stages", len(stages)),
			slog.String("stage_id", s.id),
		)
		if err := s.run(ctx, st); err != nil {
			logger.ErrorContext(ctx, "stage failed",
				slog.String("stage_id", s.id),
				slog.String("error", err.Error()),
				slog.Duration("duration", r.now().Sub(start)),
			)
			return tag(err)
		}
		logger.InfoContext(ctx, "stage completed",
			slog.String("stage_id", s.id),
			slog.Duration("duration", r.now().Sub(start)),
		)
	}
	return nil
}

func (r *Runner) download(ctx context.Context, st *state) error {
	return r.fetcher.Fetch(ctx, st.job, r.workspace.Dir())
}

func (r *Runner) hardsub(ctx context.Context, st *state) error {
	res, err := r.burner.Burn(ctx, r.workspace, st.job)
	if err != nil {
		return err
	}
	size, err := r.workspace.Size(res.OutputName)
	if err != nil {
		return models.NewError(models.CodeHardsubFailed, err)
	}
	st.result.OutputName = res.OutputName
	st.result.Strategy = res.Strategy
	st.result.OutputSize = size
	return nil
}

func (r *Runner) upload(ctx context.Context, st *state) error {
	return r.uploader.Publish(ctx, r.workspace.Path(st.result.OutputName), st.job.OutputFolder)
}

// tag makes sure err carries a job error code.
func tag(err error) error {
	if _, ok := models.AsError(err); ok {
		return err
	}
	return models.NewError(models.CodeOf(err), err)
}

func (r *Runner) startRun(ctx context.Context, logger *slog.Logger, job models.Job, trigger models.Trigger) *models.JobRun {
	if r.history == nil {
		return nil
	}
	payload, _ := json.Marshal(job)
	run := &models.JobRun{
		Trigger:      trigger,
		InputFile:    job.InputFile,
		OutputFolder: job.OutputFolder,
		ShowName:     job.ShowName,
		Payload:      string(payload),
		Status:       models.JobRunRunning,
		StartedAt:    r.now(),
	}

	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), historyTimeout)
	defer cancel()
	if err := r.history.Create(hctx, run); err != nil {
		logger.WarnContext(ctx, "failed to record job run", slog.String("error", err.Error()))
		return nil
	}
	return run
}

func (r *Runner) finishRun(logger *slog.Logger, run *models.JobRun, res Result, err error) {
	if run == nil {
		return
	}
	run.OutputName = res.OutputName
	run.OutputSize = res.OutputSize
	run.Strategy = res.Strategy
	run.Finish(r.now(), err)

	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()
	if err := r.history.Update(ctx, run); err != nil {
		logger.Warn("failed to update job run", slog.String("error", err.Error()), slog.String("run_id", run.ID.String()))
	}
}
