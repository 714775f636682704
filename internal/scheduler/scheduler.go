// Package scheduler prunes the job run history on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// HistoryPruner deletes finished runs started before a cutoff.
type HistoryPruner interface {
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// Pruner periodically removes history older than the retention window.
type Pruner struct {
	mu sync.Mutex

	repo      HistoryPruner
	retention time.Duration
	schedule  cron.Schedule
	expr      string
	logger    *slog.Logger
	now       func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateCron reports whether expr is a valid five-field expression or descriptor such as @daily.
func ValidateCron(expr string) error {
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// NewPruner creates a Pruner running on the cron expression expr.
func NewPruner(repo HistoryPruner, retention time.Duration, expr string) (*Pruner, error) {
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	if retention <= 0 {
		return nil, fmt.Errorf("retention must be positive")
	}
	return &Pruner{
		repo:      repo,
		retention: retention,
		schedule:  schedule,
		expr:      expr,
		logger:    slog.Default(),
		now:       time.Now,
	}, nil
}

// WithLogger sets a custom logger.
func (p *Pruner) WithLogger(logger *slog.Logger) *Pruner {
	p.logger = logger
	return p
}

// NextRun returns the first scheduled prune after t.
func (p *Pruner) NextRun(t time.Time) time.Time {
	return p.schedule.Next(t)
}

// Start begins the background prune loop.
func (p *Pruner) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return fmt.Errorf("pruner already started")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go p.loop(loopCtx)

	p.logger.Info("history pruner started",
		slog.String("schedule", p.expr),
		slog.Duration("retention", p.retention))
	return nil
}

// Stop stops the prune loop and waits for it to exit.
func (p *Pruner) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	p.wg.Wait()
	p.logger.Info("history pruner stopped")
}

func (p *Pruner) loop(ctx context.Context) {
	defer p.wg.Done()

	for {
		now := p.now()
		timer := time.NewTimer(p.NextRun(now).Sub(now))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if _, err := p.RunOnce(ctx); err != nil {
				p.logger.Error("failed to prune job history", slog.Any("error", err))
			}
		}
	}
}

// RunOnce deletes history older than the retention window and returns how many runs were removed.
func (p *Pruner) RunOnce(ctx context.Context) (int64, error) {
	cutoff := p.now().Add(-p.retention)
	deleted, err := p.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting runs before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	if deleted > 0 {
		p.logger.Info("pruned job history",
			slog.Int64("deleted", deleted),
			slog.Time("cutoff", cutoff))
	}
	return deleted, nil
}
