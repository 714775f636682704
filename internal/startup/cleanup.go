// Package startup provides utilities for application startup tasks.
package startup

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultCleanupAge is how old an abandoned queue temp file must be before it is removed.
const DefaultCleanupAge = 1 * time.Hour

// WorkspaceClearer empties the job workspace.
type WorkspaceClearer interface {
	Dir() string
	Clear() error
}

// InterruptedRunMarker finishes history rows left running by a previous process.
type InterruptedRunMarker interface {
	MarkInterrupted(ctx context.Context, now time.Time) (int64, error)
}

// PrepareWorkspace removes leftovers of a job that was in flight when the
// previous process died.
func PrepareWorkspace(logger *slog.Logger, ws WorkspaceClearer) error {
	if err := ws.Clear(); err != nil {
		logger.Error("failed to clear workspace",
			"path", ws.Dir(),
			"error", err,
		)
		return err
	}
	logger.Debug("workspace ready", "path", ws.Dir())
	return nil
}

// CleanupOrphanedTempFiles removes temp files abandoned by interrupted atomic
// writes of the queue file. Only files named ".<queue file>.*.tmp" older than
// maxAge are touched.
//
// Returns the number of files removed and any error encountered.
func CleanupOrphanedTempFiles(logger *slog.Logger, queueFile string, maxAge time.Duration) (int, error) {
	dir := filepath.Dir(queueFile)
	prefix := "." + filepath.Base(queueFile) + "."

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		logger.Debug("queue directory does not exist, skipping cleanup", "path", dir)
		return 0, nil
	}
	if err != nil {
		logger.Error("failed to read directory for cleanup",
			"path", dir,
			"error", err,
		)
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	var removed int

	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".tmp") {
			continue
		}

		path := filepath.Join(dir, name)
		info, err := entry.Info()
		if err != nil {
			logger.Warn("failed to get file info", "path", path, "error", err)
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		if err := os.Remove(path); err != nil {
			logger.Warn("failed to remove orphaned temp file", "path", path, "error", err)
			continue
		}

		logger.Info("removed orphaned temp file",
			"path", path,
			"age", time.Since(info.ModTime()).Round(time.Second),
		)
		removed++
	}

	return removed, nil
}

// RecoverInterruptedRuns marks history rows still "running" as killed. This
// handles a crash or restart while a job was in flight; without it those rows
// would stay running forever since the in-memory runner state is lost.
//
// Returns the number of runs recovered and any error encountered.
func RecoverInterruptedRuns(ctx context.Context, logger *slog.Logger, repo InterruptedRunMarker) (int64, error) {
	n, err := repo.MarkInterrupted(ctx, time.Now())
	if err != nil {
		logger.Error("failed to recover interrupted runs", "error", err)
		return 0, err
	}
	if n > 0 {
		logger.Warn("recovered interrupted job runs", "count", n)
	}
	return n, nil
}
