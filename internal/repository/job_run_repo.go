package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/ahoge-moe/Shiden/internal/models"
)

// MaxListLimit caps a single page of history.
const MaxListLimit = 500

// interruptedMessage is recorded on runs that were in flight when the process died.
const interruptedMessage = "interrupted by shutdown"

// jobRunRepo implements JobRunRepository using GORM.
type jobRunRepo struct {
	db *gorm.DB
}

// NewJobRunRepository creates a new JobRunRepository.
func NewJobRunRepository(db *gorm.DB) *jobRunRepo {
	return &jobRunRepo{db: db}
}

// Create inserts a new run.
func (r *jobRunRepo) Create(ctx context.Context, run *models.JobRun) error {
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("creating job run: %w", err)
	}
	return nil
}

// Update saves an existing run.
func (r *jobRunRepo) Update(ctx context.Context, run *models.JobRun) error {
	if run.ID.IsZero() {
		return fmt.Errorf("updating job run: missing ID")
	}
	if err := r.db.WithContext(ctx).Save(run).Error; err != nil {
		return fmt.Errorf("updating job run: %w", err)
	}
	return nil
}

// GetByID retrieves a run by ID.
func (r *jobRunRepo) GetByID(ctx context.Context, id models.ULID) (*models.JobRun, error) {
	var run models.JobRun
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&run).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting job run by ID: %w", err)
	}
	return &run, nil
}

// List retrieves runs with pagination, newest first.
func (r *jobRunRepo) List(ctx context.Context, filter JobRunFilter, offset, limit int) ([]*models.JobRun, int64, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > MaxListLimit {
		limit = MaxListLimit
	}

	query := r.db.WithContext(ctx).Model(&models.JobRun{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.ShowName != "" {
		query = query.Where("show_name = ?", filter.ShowName)
	}
	if filter.InputFile != "" {
		query = query.Where("input_file = ?", filter.InputFile)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting job runs: %w", err)
	}

	runs := make([]*models.JobRun, 0)
	if err := query.Order("started_at DESC, id DESC").Offset(offset).Limit(limit).Find(&runs).Error; err != nil {
		return nil, 0, fmt.Errorf("listing job runs: %w", err)
	}
	return runs, total, nil
}

// MarkInterrupted closes out runs left in the running state.
func (r *jobRunRepo) MarkInterrupted(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.JobRun{}).
		Where("status = ?", models.JobRunRunning).
		Updates(map[string]any{
			"status":        models.JobRunKilled,
			"error_code":    models.CodeProcessKilled,
			"error_name":    models.CodeProcessKilled.Name(),
			"error_message": interruptedMessage,
			"finished_at":   now,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("marking interrupted job runs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteOlderThan deletes finished runs started before the cutoff.
func (r *jobRunRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("started_at < ? AND status <> ?", before, models.JobRunRunning).
		Delete(&models.JobRun{})
	if result.Error != nil {
		return 0, fmt.Errorf("deleting job runs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Ensure jobRunRepo implements JobRunRepository at compile time.
var _ JobRunRepository = (*jobRunRepo)(nil)
