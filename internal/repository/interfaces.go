// Package repository persists job run history.
package repository

import (
	"context"
	"time"

	"github.com/ahoge-moe/Shiden/internal/models"
)

// JobRunFilter narrows a history listing.
type JobRunFilter struct {
	Status    models.JobRunStatus
	ShowName  string
	InputFile string
}

// JobRunRepository defines operations for job run history.
type JobRunRepository interface {
	// Create inserts a run, assigning its ID.
	Create(ctx context.Context, run *models.JobRun) error
	// Update saves every field of an existing run.
	Update(ctx context.Context, run *models.JobRun) error
	// GetByID returns the run, or nil if it does not exist.
	GetByID(ctx context.Context, id models.ULID) (*models.JobRun, error)
	// List returns runs newest first with the total matching count.
	List(ctx context.Context, filter JobRunFilter, offset, limit int) ([]*models.JobRun, int64, error)
	// MarkInterrupted finishes every running run as killed.
	// Called at startup, when no run can legitimately still be in flight.
	MarkInterrupted(ctx context.Context, now time.Time) (int64, error)
	// DeleteOlderThan removes finished runs that started before the cutoff.
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}
