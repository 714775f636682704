package migrations

import (
	"github.com/ahoge-moe/Shiden/internal/models"
	"gorm.io/gorm"
)

// AllMigrations returns every schema migration in version order.
func AllMigrations() []Migration {
	return []Migration{
		migration001JobRuns(),
		migration002JobRunListIndex(),
	}
}

func migration001JobRuns() Migration {
	return Migration{
		Version:     "001",
		Description: "Create job_runs table",
		Up: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&models.JobRun{})
		},
	}
}

// migration002JobRunListIndex backs the run listing, which filters on status
// and orders by start time.
func migration002JobRunListIndex() Migration {
	return Migration{
		Version:     "002",
		Description: "Add job_runs (status, started_at) index",
		Up: func(tx *gorm.DB) error {
			if tx.Migrator().HasIndex(&models.JobRun{}, "idx_job_runs_status_started") {
				return nil
			}
			return tx.Exec("CREATE INDEX idx_job_runs_status_started ON job_runs (status, started_at)").Error
		},
	}
}
