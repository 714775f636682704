package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/ahoge-moe/Shiden/internal/models"
)

// JobQueue is the persisted FIFO the HTTP path feeds.
type JobQueue interface {
	IsEmpty() (bool, error)
	PeekFirst() (models.Job, error)
	PopFirst() error
}

// JobProcessor runs a single job.
type JobProcessor interface {
	Process(ctx context.Context, job models.Job, trigger models.Trigger) (Result, error)
}

// ErrWorkerStopped is returned by Drain when a killed job halted the queue.
// The job stays at the head of the queue.
var ErrWorkerStopped = errors.New("queue worker stopped by killed job")

// QueueWorker drains the job queue on a single goroutine. A job is popped
// only after it finished, so a crash or shutdown mid-job resumes it on the
// next start.
type QueueWorker struct {
	queue   JobQueue
	runner  JobProcessor
	logger  *slog.Logger
	trigger chan struct{}
	busy    atomic.Bool
}

// NewQueueWorker creates a QueueWorker.
func NewQueueWorker(queue JobQueue, runner JobProcessor) *QueueWorker {
	return &QueueWorker{
		queue:   queue,
		runner:  runner,
		logger:  slog.Default(),
		trigger: make(chan struct{}, 1),
	}
}

// WithLogger sets the logger.
func (w *QueueWorker) WithLogger(logger *slog.Logger) *QueueWorker {
	w.logger = logger
	return w
}

// Trigger wakes the worker. It never blocks; wakeups coalesce.
func (w *QueueWorker) Trigger() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// Busy reports whether the worker is draining the queue.
func (w *QueueWorker) Busy() bool {
	return w.busy.Load()
}

// Run waits for triggers and drains the queue until ctx is cancelled or a
// killed job stops the worker.
func (w *QueueWorker) Run(ctx context.Context) error {
	w.logger.InfoContext(ctx, "queue worker started")
	defer w.logger.Info("queue worker stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.trigger:
		}

		err := w.Drain(ctx)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, ErrWorkerStopped):
			return err
		default:
			w.logger.ErrorContext(ctx, "queue unavailable", slog.String("error", err.Error()))
		}
	}
}

// Drain processes jobs until the queue is empty.
func (w *QueueWorker) Drain(ctx context.Context) error {
	w.busy.Store(true)
	defer w.busy.Store(false)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		empty, err := w.queue.IsEmpty()
		if err != nil {
			return fmt.Errorf("checking queue: %w", err)
		}
		if empty {
			return nil
		}

		job, err := w.queue.PeekFirst()
		if err != nil {
			return fmt.Errorf("reading queue head: %w", err)
		}

		_, err = w.runner.Process(ctx, job, models.TriggerHTTP)
		if models.IsKilled(err) {
			w.logger.WarnContext(ctx, "job killed, leaving it queued",
				slog.String("input_file", job.InputFile),
			)
			return ErrWorkerStopped
		}

		if err := w.queue.PopFirst(); err != nil {
			return fmt.Errorf("removing finished job: %w", err)
		}
	}
}
