package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/IBM/arcade/pkg/importer"
)

// ErrJobNotFound is returned for an unknown job ID.
var ErrJobNotFound = errors.New("job not found")

// ErrNotCancelable is returned when canceling a job that is no longer queued.
var ErrNotCancelable = errors.New("only queued jobs can be canceled")

// JobStore provides database operations for import jobs.
type JobStore struct {
	db *gorm.DB
}

// NewJobStore creates a new JobStore.
func NewJobStore(db *gorm.DB) *JobStore {
	return &JobStore{db: db}
}

// Models returns the tables owned by the job store, for migration.
func Models() []any {
	return []any{&ImportJob{}}
}

// AutoMigrate creates or updates the import_jobs table.
func (s *JobStore) AutoMigrate() error {
	return s.db.AutoMigrate(Models()...)
}

// JobListFilter defines filters for listing jobs.
type JobListFilter struct {
	Source      string
	State       string
	Trigger     string
	RequestedBy string
}

var activeStates = []JobState{JobStateQueued, JobStateRunning}

var terminalStates = []JobState{JobStateSucceeded, JobStateFailed, JobStateCanceled}

// Enqueue queues an import of source. At most one queued or running job
// exists per source: when one does, it is returned with created false.
func (s *JobStore) Enqueue(ctx context.Context, source, requestedBy string) (*ImportJob, bool, error) {
	job := &ImportJob{
		ID:             uuid.NewString(),
		Source:         source,
		Trigger:        TriggerManual,
		RequestedBy:    requestedBy,
		RequestedAt:    time.Now(),
		State:          JobStateQueued,
		IdempotencyKey: sourceKey(source),
	}

	var result *ImportJob
	created := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing ImportJob
		err := tx.Where("idempotency_key = ? AND state IN ?", *job.IdempotencyKey, activeStates).First(&existing).Error
		if err == nil {
			result = &existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("check idempotency key: %w", err)
		}

		// Release the key held by finished jobs of this source so the unique
		// index admits the new one.
		if err := tx.Model(&ImportJob{}).
			Where("idempotency_key = ? AND state IN ?", *job.IdempotencyKey, terminalStates).
			Update("idempotency_key", nil).Error; err != nil {
			return fmt.Errorf("release idempotency key: %w", err)
		}

		if err := tx.Create(job).Error; err != nil {
			return fmt.Errorf("enqueue job: %w", err)
		}
		result, created = job, true
		return nil
	})
	if err != nil {
		// Another enqueue may have won the unique index race.
		var raced ImportJob
		if lookupErr := s.db.WithContext(ctx).
			Where("idempotency_key = ? AND state IN ?", *job.IdempotencyKey, activeStates).
			First(&raced).Error; lookupErr == nil {
			return &raced, false, nil
		}
		return nil, false, err
	}
	return result, created, nil
}

// Claim atomically picks the oldest queued job and transitions it to
// running. Returns nil if no jobs are available.
func (s *JobStore) Claim(ctx context.Context, maxRetries int) (*ImportJob, error) {
	var job ImportJob

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("state = ? AND attempt_count <= ?", JobStateQueued, maxRetries).
			Order("requested_at ASC").
			Limit(1)
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		if err := q.Find(&job).Error; err != nil {
			return err
		}
		if job.ID == "" {
			return nil
		}

		res := tx.Model(&ImportJob{}).Where("id = ? AND state = ?", job.ID, JobStateQueued).
			Updates(map[string]any{
				"state":         JobStateRunning,
				"started_at":    time.Now(),
				"attempt_count": gorm.Expr("attempt_count + 1"),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Claimed by another worker in the meantime.
			job = ImportJob{}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	if job.ID == "" {
		return nil, nil
	}

	if err := s.db.WithContext(ctx).First(&job, "id = ?", job.ID).Error; err != nil {
		return nil, fmt.Errorf("reload claimed job: %w", err)
	}
	return &job, nil
}

// Complete marks a job as succeeded with the run's stats.
func (s *JobStore) Complete(ctx context.Context, jobID string, stats importer.Stats, duration time.Duration) error {
	result := s.db.WithContext(ctx).Model(&ImportJob{}).Where("id = ?", jobID).Updates(map[string]any{
		"state":       JobStateSucceeded,
		"finished_at": time.Now(),
		"stats":       datatypes.NewJSONType(stats),
		"duration_ms": duration.Milliseconds(),
		"message": fmt.Sprintf("Imported %d artifacts, skipped %d, failed %d",
			stats.ArtifactsImported, stats.ArtifactsSkipped, stats.ArtifactsFailed),
	})
	if result.Error != nil {
		return fmt.Errorf("complete job: %w", result.Error)
	}
	return nil
}

// Fail records a failed attempt. A job within its retry budget goes back to
// the queue; otherwise it ends failed.
func (s *JobStore) Fail(ctx context.Context, jobID string, errMsg string, maxRetries int) error {
	db := s.db.WithContext(ctx)
	var job ImportJob
	if err := db.First(&job, "id = ?", jobID).Error; err != nil {
		return fmt.Errorf("load job for fail: %w", err)
	}

	updates := map[string]any{
		"last_error":  errMsg,
		"finished_at": time.Now(),
	}
	if job.AttemptCount < maxRetries {
		updates["state"] = JobStateQueued
		updates["started_at"] = nil
		updates["finished_at"] = nil
	} else {
		updates["state"] = JobStateFailed
		updates["message"] = "Max retries exceeded: " + errMsg
	}

	if err := db.Model(&ImportJob{}).Where("id = ?", jobID).Updates(updates).Error; err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return nil
}

// Cancel marks a queued job as canceled. Running jobs finish their run.
func (s *JobStore) Cancel(ctx context.Context, jobID string) error {
	db := s.db.WithContext(ctx)
	result := db.Model(&ImportJob{}).
		Where("id = ? AND state = ?", jobID, JobStateQueued).
		Updates(map[string]any{
			"state":       JobStateCanceled,
			"finished_at": time.Now(),
			"message":     "Canceled by user",
		})
	if result.Error != nil {
		return fmt.Errorf("cancel job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		job, err := s.Get(ctx, jobID)
		if err != nil {
			return err
		}
		if job == nil {
			return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		return fmt.Errorf("job %s is %s: %w", jobID, job.State, ErrNotCancelable)
	}
	return nil
}

// Get retrieves a job by ID. It returns nil when the job does not exist.
func (s *JobStore) Get(ctx context.Context, jobID string) (*ImportJob, error) {
	var job ImportJob
	if err := s.db.WithContext(ctx).First(&job, "id = ?", jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &job, nil
}

// List returns paginated jobs matching the given filter, newest first.
func (s *JobStore) List(ctx context.Context, filter JobListFilter, pageSize int, pageToken string) ([]ImportJob, string, int, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	buildQuery := func(base *gorm.DB) *gorm.DB {
		q := base.Model(&ImportJob{})
		if filter.Source != "" {
			q = q.Where("source = ?", filter.Source)
		}
		if filter.State != "" {
			q = q.Where("state = ?", filter.State)
		}
		if filter.Trigger != "" {
			q = q.Where("trigger_kind = ?", filter.Trigger)
		}
		if filter.RequestedBy != "" {
			q = q.Where("requested_by = ?", filter.RequestedBy)
		}
		return q
	}

	db := s.db.WithContext(ctx)
	var totalSize int64
	if err := buildQuery(db).Count(&totalSize).Error; err != nil {
		return nil, "", 0, fmt.Errorf("count jobs: %w", err)
	}

	query := buildQuery(db).Order("requested_at DESC").Limit(pageSize + 1)
	if pageToken != "" {
		t, err := time.Parse(time.RFC3339Nano, pageToken)
		if err != nil {
			return nil, "", 0, fmt.Errorf("invalid page token: %w", err)
		}
		query = query.Where("requested_at < ?", t)
	}

	var records []ImportJob
	if err := query.Find(&records).Error; err != nil {
		return nil, "", 0, fmt.Errorf("list jobs: %w", err)
	}

	var nextToken string
	if len(records) > pageSize {
		nextToken = records[pageSize-1].RequestedAt.Format(time.RFC3339Nano)
		records = records[:pageSize]
	}
	return records, nextToken, int(totalSize), nil
}

// CleanupStuckJobs transitions manual jobs that have been running longer
// than claimTimeout back to queued for retry. Scheduled runs are not
// retried; they end failed.
func (s *JobStore) CleanupStuckJobs(ctx context.Context, claimTimeout time.Duration) (int64, error) {
	cutoff := time.Now().Add(-claimTimeout)
	db := s.db.WithContext(ctx)
	requeued := db.Model(&ImportJob{}).
		Where("state = ? AND trigger_kind = ? AND started_at < ?", JobStateRunning, TriggerManual, cutoff).
		Updates(map[string]any{
			"state":      JobStateQueued,
			"started_at": nil,
			"last_error": "Timed out (stuck job recovery)",
		})
	if requeued.Error != nil {
		return 0, fmt.Errorf("cleanup stuck jobs: %w", requeued.Error)
	}
	abandoned := db.Model(&ImportJob{}).
		Where("state = ? AND trigger_kind = ? AND started_at < ?", JobStateRunning, TriggerSchedule, cutoff).
		Updates(map[string]any{
			"state":       JobStateFailed,
			"finished_at": time.Now(),
			"last_error":  "Timed out (stuck job recovery)",
		})
	if abandoned.Error != nil {
		return requeued.RowsAffected, fmt.Errorf("cleanup stuck runs: %w", abandoned.Error)
	}
	return requeued.RowsAffected + abandoned.RowsAffected, nil
}

// DeleteOlderThan removes terminal jobs finished before cutoff.
func (s *JobStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("state IN ? AND finished_at < ?", terminalStates, cutoff).
		Delete(&ImportJob{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete old jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// BeginRun records the start of a scheduled run of source.
func (s *JobStore) BeginRun(ctx context.Context, source string) (string, error) {
	now := time.Now()
	job := &ImportJob{
		ID:           uuid.NewString(),
		Source:       source,
		Trigger:      TriggerSchedule,
		RequestedBy:  "scheduler",
		RequestedAt:  now,
		State:        JobStateRunning,
		StartedAt:    &now,
		AttemptCount: 1,
	}
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return "", fmt.Errorf("begin run: %w", err)
	}
	return job.ID, nil
}

// FinishRun records the outcome of a run started with BeginRun.
func (s *JobStore) FinishRun(ctx context.Context, runID string, stats importer.Stats, runErr error) error {
	job, err := s.Get(ctx, runID)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("%w: %s", ErrJobNotFound, runID)
	}
	var elapsed time.Duration
	if job.StartedAt != nil {
		elapsed = time.Since(*job.StartedAt)
	}
	if runErr == nil {
		return s.Complete(ctx, runID, stats, elapsed)
	}
	if err := s.db.WithContext(ctx).Model(&ImportJob{}).Where("id = ?", runID).Updates(map[string]any{
		"state":       JobStateFailed,
		"finished_at": time.Now(),
		"stats":       datatypes.NewJSONType(stats),
		"duration_ms": elapsed.Milliseconds(),
		"last_error":  runErr.Error(),
		"message":     "Run failed: " + runErr.Error(),
	}).Error; err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

var _ importer.RunRecorder = (*JobStore)(nil)
