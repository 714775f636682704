package models

import (
	"time"
)

// JobRunStatus is the outcome of one pipeline run.
type JobRunStatus string

// Job run statuses.
const (
	JobRunRunning   JobRunStatus = "running"
	JobRunSucceeded JobRunStatus = "succeeded"
	JobRunFailed    JobRunStatus = "failed"
	JobRunKilled    JobRunStatus = "killed"
)

// Trigger names the ingress a job arrived through.
type Trigger string

// Job triggers.
const (
	TriggerHTTP   Trigger = "http"
	TriggerBroker Trigger = "broker"
)

// BurnStrategy is the way subtitles ended up in the output.
type BurnStrategy string

// Burn strategies.
const (
	StrategyNone   BurnStrategy = "none"
	StrategyText   BurnStrategy = "text"
	StrategyBitmap BurnStrategy = "bitmap"
)

// JobRun is the history record of a single Runner.Process call.
type JobRun struct {
	BaseModel

	Trigger      Trigger      `gorm:"size:20;not null" json:"trigger"`
	InputFile    string       `gorm:"size:1024;not null" json:"input_file"`
	OutputFolder string       `gorm:"size:1024;not null" json:"output_folder"`
	ShowName     string       `gorm:"size:255;index" json:"show_name,omitempty"`
	Payload      string       `gorm:"type:text" json:"payload"`
	Status       JobRunStatus `gorm:"size:20;not null;index" json:"status"`

	ErrorCode    ErrorCode `json:"error_code,omitempty"`
	ErrorName    string    `gorm:"size:50" json:"error_name,omitempty"`
	ErrorStage   Stage     `gorm:"size:20" json:"error_stage,omitempty"`
	ErrorMessage string    `gorm:"type:text" json:"error_message,omitempty"`

	OutputName string       `gorm:"size:1024" json:"output_name,omitempty"`
	Strategy   BurnStrategy `gorm:"size:20" json:"strategy,omitempty"`
	OutputSize int64        `json:"output_size,omitempty"`

	StartedAt  time.Time  `gorm:"not null;index" json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	DurationMs int64      `json:"duration_ms,omitempty"`
}

// TableName returns the table name for JobRun.
func (JobRun) TableName() string {
	return "job_runs"
}

// Finish records the terminal outcome of the run.
func (r *JobRun) Finish(now time.Time, err error) {
	r.FinishedAt = &now
	r.DurationMs = now.Sub(r.StartedAt).Milliseconds()

	if err == nil {
		r.Status = JobRunSucceeded
		return
	}

	code := CodeOf(err)
	r.ErrorCode = code
	r.ErrorName = code.Name()
	r.ErrorStage = code.Stage()
	if e, ok := AsError(err); ok {
		r.ErrorStage = e.Stage
	}
	r.ErrorMessage = err.Error()

	if code.Category() == CategoryKilled {
		r.Status = JobRunKilled
	} else {
		r.Status = JobRunFailed
	}
}

// IsTerminal reports whether the run has finished.
func (r *JobRun) IsTerminal() bool {
	return r.Status != JobRunRunning
}
