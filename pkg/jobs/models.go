package jobs

import (
	"time"

	"gorm.io/datatypes"

	"github.com/IBM/arcade/pkg/importer"
)

// JobState represents the lifecycle state of an import job.
type JobState string

const (
	JobStateQueued    JobState = "queued"
	JobStateRunning   JobState = "running"
	JobStateSucceeded JobState = "succeeded"
	JobStateFailed    JobState = "failed"
	JobStateCanceled  JobState = "canceled"
)

// Trigger records what started a job.
type Trigger string

const (
	TriggerManual   Trigger = "manual"
	TriggerSchedule Trigger = "schedule"
)

// AllSources is the source name of a job that imports every source.
const AllSources = "_all"

// ImportJob is the GORM model for one import run of a source.
type ImportJob struct {
	ID             string                             `gorm:"primaryKey;column:id;type:varchar(36)"`
	Source         string                             `gorm:"column:source;size:255;index:idx_job_source_state,priority:1;not null"`
	Trigger        Trigger                            `gorm:"column:trigger_kind;size:16;not null;default:manual"`
	RequestedBy    string                             `gorm:"column:requested_by;not null"`
	RequestedAt    time.Time                          `gorm:"column:requested_at;index;not null"`
	State          JobState                           `gorm:"column:state;size:16;index:idx_job_source_state,priority:2;index:idx_job_state;not null;default:queued"`
	Message        string                             `gorm:"column:message"`
	StartedAt      *time.Time                         `gorm:"column:started_at"`
	FinishedAt     *time.Time                         `gorm:"column:finished_at"`
	AttemptCount   int                                `gorm:"column:attempt_count;default:0"`
	LastError      string                             `gorm:"column:last_error"`
	IdempotencyKey *string                            `gorm:"column:idempotency_key;size:255;uniqueIndex:idx_job_idemp_key"`
	Stats          datatypes.JSONType[importer.Stats] `gorm:"column:stats"`
	DurationMs     int64                              `gorm:"column:duration_ms"`
}

// TableName returns the GORM table name.
func (ImportJob) TableName() string { return "import_jobs" }

// IsTerminal returns true if the job is in a terminal state.
func (j *ImportJob) IsTerminal() bool {
	switch j.State {
	case JobStateSucceeded, JobStateFailed, JobStateCanceled:
		return true
	}
	return false
}

// sourceKey is the idempotency key that allows one active job per source.
func sourceKey(source string) *string {
	k := "import:" + source
	return &k
}
