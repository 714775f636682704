package repository

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ahoge-moe/Shiden/internal/models"
)

func setupJobRunTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.JobRun{}))
	return db
}

func newRun(input string, status models.JobRunStatus, started time.Time) *models.JobRun {
	return &models.JobRun{
		Trigger:      models.TriggerHTTP,
		InputFile:    input,
		OutputFolder: "Airing [Hardsub]/Show",
		ShowName:     "Show",
		Status:       status,
		StartedAt:    started,
	}
}

func TestJobRunRepo_CreateAndGet(t *testing.T) {
	repo := NewJobRunRepository(setupJobRunTestDB(t))
	ctx := context.Background()

	run := newRun("Airing/Show/ep1.mkv", models.JobRunRunning, time.Now())
	require.NoError(t, repo.Create(ctx, run))
	assert.False(t, run.ID.IsZero())

	found, err := repo.GetByID(ctx, run.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, run.InputFile, found.InputFile)
	assert.Equal(t, models.JobRunRunning, found.Status)
}

func TestJobRunRepo_GetByIDNotFound(t *testing.T) {
	repo := NewJobRunRepository(setupJobRunTestDB(t))

	found, err := repo.GetByID(context.Background(), models.NewULID())
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestJobRunRepo_UpdateFinishedRun(t *testing.T) {
	repo := NewJobRunRepository(setupJobRunTestDB(t))
	ctx := context.Background()

	started := time.Now().Add(-time.Minute)
	run := newRun("Airing/Show/ep2.mkv", models.JobRunRunning, started)
	require.NoError(t, repo.Create(ctx, run))

	run.Finish(started.Add(30*time.Second), models.Errorf(models.CodeSourceNotFound, "not found in any source"))
	require.NoError(t, repo.Update(ctx, run))

	found, err := repo.GetByID(ctx, run.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, models.JobRunFailed, found.Status)
	assert.Equal(t, models.CodeSourceNotFound, found.ErrorCode)
	assert.Equal(t, "SourceNotFound", found.ErrorName)
	assert.Equal(t, models.StageDownload, found.ErrorStage)
	assert.Equal(t, int64(30000), found.DurationMs)
	require.NotNil(t, found.FinishedAt)
}

func TestJobRunRepo_UpdateRequiresID(t *testing.T) {
	repo := NewJobRunRepository(setupJobRunTestDB(t))
	err := repo.Update(context.Background(), &models.JobRun{})
	require.Error(t, err)
}

func TestJobRunRepo_ListPaginatesNewestFirst(t *testing.T) {
	repo := NewJobRunRepository(setupJobRunTestDB(t))
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, status := range []models.JobRunStatus{
		models.JobRunSucceeded, models.JobRunFailed, models.JobRunSucceeded, models.JobRunKilled,
	} {
		input := []string{"ep1.mkv", "ep2.mkv", "ep3.mkv", "ep4.mkv"}[i]
		run := newRun(input, status, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, repo.Create(ctx, run))
	}

	runs, total, err := repo.List(ctx, JobRunFilter{}, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	require.Len(t, runs, 2)
	assert.Equal(t, "ep4.mkv", runs[0].InputFile)
	assert.Equal(t, "ep3.mkv", runs[1].InputFile)

	runs, _, err = repo.List(ctx, JobRunFilter{}, 2, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "ep2.mkv", runs[0].InputFile)

	runs, total, err = repo.List(ctx, JobRunFilter{Status: models.JobRunSucceeded}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, runs, 2)

	runs, total, err = repo.List(ctx, JobRunFilter{InputFile: "ep2.mkv"}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, runs, 1)
	assert.Equal(t, models.JobRunFailed, runs[0].Status)
}

func TestJobRunRepo_ListEmpty(t *testing.T) {
	repo := NewJobRunRepository(setupJobRunTestDB(t))

	runs, total, err := repo.List(context.Background(), JobRunFilter{}, 0, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.NotNil(t, runs)
	assert.Empty(t, runs)
}

func TestJobRunRepo_MarkInterrupted(t *testing.T) {
	repo := NewJobRunRepository(setupJobRunTestDB(t))
	ctx := context.Background()

	running := newRun("ep1.mkv", models.JobRunRunning, time.Now())
	done := newRun("ep2.mkv", models.JobRunRunning, time.Now())
	require.NoError(t, repo.Create(ctx, running))
	require.NoError(t, repo.Create(ctx, done))
	done.Finish(time.Now(), nil)
	require.NoError(t, repo.Update(ctx, done))

	n, err := repo.MarkInterrupted(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	found, err := repo.GetByID(ctx, running.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobRunKilled, found.Status)
	assert.Equal(t, models.CodeProcessKilled, found.ErrorCode)
	assert.NotNil(t, found.FinishedAt)

	found, err = repo.GetByID(ctx, done.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobRunSucceeded, found.Status)
}

func TestJobRunRepo_DeleteOlderThan(t *testing.T) {
	repo := NewJobRunRepository(setupJobRunTestDB(t))
	ctx := context.Background()

	old := newRun("old.mkv", models.JobRunSucceeded, time.Now().Add(-48*time.Hour))
	oldRunning := newRun("stuck.mkv", models.JobRunRunning, time.Now().Add(-48*time.Hour))
	recent := newRun("new.mkv", models.JobRunFailed, time.Now())
	for _, run := range []*models.JobRun{old, oldRunning, recent} {
		require.NoError(t, repo.Create(ctx, run))
	}

	n, err := repo.DeleteOlderThan(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	found, err := repo.GetByID(ctx, old.ID)
	require.NoError(t, err)
	assert.Nil(t, found)

	_, total, err := repo.List(ctx, JobRunFilter{}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}
