package jobs

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IBM/arcade/pkg/importer"
)

// mockRunner implements SourceRunner for tests. The first failCount calls
// fail.
type mockRunner struct {
	mu        sync.Mutex
	stats     importer.Stats
	failCount int
	calls     []string
}

func (m *mockRunner) RunSourceNamed(_ context.Context, name string) (importer.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, name)
	if name == "missing" {
		return importer.Stats{}, fmt.Errorf("%w: %q", importer.ErrUnknownSource, name)
	}
	if len(m.calls) <= m.failCount {
		return importer.Stats{}, fmt.Errorf("transient failure #%d", len(m.calls))
	}
	return m.stats, nil
}

func (m *mockRunner) Sources() []importer.Source {
	return importer.DefaultSources()
}

func (m *mockRunner) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func testWorkerConfig() *JobConfig {
	cfg := DefaultJobConfig()
	cfg.PollInterval = 50 * time.Millisecond
	cfg.Concurrency = 1
	// Disable cleanup to avoid accessing DB after context cancellation.
	cfg.ClaimTimeout = 0
	cfg.RetentionDays = 0
	return cfg
}

func waitForState(t *testing.T, store *JobStore, id string, state JobState) *ImportJob {
	t.Helper()
	var job *ImportJob
	require.Eventually(t, func() bool {
		j, _ := store.Get(context.Background(), id)
		job = j
		return j != nil && j.State == state
	}, 5*time.Second, 50*time.Millisecond, "job should reach %s", state)
	return job
}

func TestWorkerProcessesJob(t *testing.T) {
	store := NewJobStore(setupTestDB(t))
	runner := &mockRunner{stats: importer.Stats{ArtifactsSeen: 2, ArtifactsImported: 2, RecordsCreated: 7}}
	wp := NewWorkerPool(store, runner, testWorkerConfig(), nil)

	job, _, err := store.Enqueue(context.Background(), "UT - OEM", "test")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go wp.Run(ctx)

	result := waitForState(t, store, job.ID, JobStateSucceeded)
	assert.Equal(t, 7, result.Stats.Data().RecordsCreated)
	assert.Equal(t, 1, runner.callCount())
	assert.Equal(t, []string{"UT - OEM"}, runner.calls)
}

func TestWorkerRetriesOnFailure(t *testing.T) {
	store := NewJobStore(setupTestDB(t))
	runner := &mockRunner{failCount: 1}
	wp := NewWorkerPool(store, runner, testWorkerConfig(), nil)

	job, _, err := store.Enqueue(context.Background(), "UT - OEM", "test")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go wp.Run(ctx)

	result := waitForState(t, store, job.ID, JobStateSucceeded)
	assert.Equal(t, 2, result.AttemptCount)
	assert.Equal(t, "transient failure #1", result.LastError)
}

func TestWorkerFailsAfterMaxRetries(t *testing.T) {
	store := NewJobStore(setupTestDB(t))
	runner := &mockRunner{failCount: 100}
	cfg := testWorkerConfig()
	cfg.MaxRetries = 2
	wp := NewWorkerPool(store, runner, cfg, nil)

	job, _, err := store.Enqueue(context.Background(), "UT - OEM", "test")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go wp.Run(ctx)

	result := waitForState(t, store, job.ID, JobStateFailed)
	assert.Equal(t, 2, result.AttemptCount)
	assert.Contains(t, result.Message, "Max retries exceeded")
}

func TestWorkerAllSources(t *testing.T) {
	store := NewJobStore(setupTestDB(t))
	runner := &mockRunner{stats: importer.Stats{ArtifactsImported: 1}}
	wp := NewWorkerPool(store, runner, testWorkerConfig(), nil)

	job, _, err := store.Enqueue(context.Background(), AllSources, "test")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go wp.Run(ctx)

	result := waitForState(t, store, job.ID, JobStateSucceeded)
	assert.Equal(t, 2, result.Stats.Data().ArtifactsImported)
	assert.Equal(t, []string{"UT - OEM", "Starlink - OEM"}, runner.calls)
}

func TestWorkerUnknownSourceIsNotRetried(t *testing.T) {
	store := NewJobStore(setupTestDB(t))
	runner := &mockRunner{}
	wp := NewWorkerPool(store, runner, testWorkerConfig(), nil)

	job, _, err := store.Enqueue(context.Background(), "missing", "test")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go wp.Run(ctx)

	result := waitForState(t, store, job.ID, JobStateFailed)
	assert.Equal(t, 1, result.AttemptCount)
	assert.Contains(t, result.LastError, "unknown source")
}

func TestWorkerPoolDisabled(t *testing.T) {
	cfg := testWorkerConfig()
	cfg.Enabled = false
	wp := NewWorkerPool(NewJobStore(setupTestDB(t)), &mockRunner{}, cfg, nil)

	done := make(chan struct{})
	go func() {
		wp.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("disabled pool should return immediately")
	}
}

func TestWorkerCleanup(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	store := NewJobStore(db)
	cfg := testWorkerConfig()
	cfg.ClaimTimeout = time.Hour
	cfg.RetentionDays = 7
	wp := NewWorkerPool(store, &mockRunner{}, cfg, nil)

	stuck, _, err := store.Enqueue(ctx, "UT - OEM", "a")
	require.NoError(t, err)
	_, err = store.Claim(ctx, 3)
	require.NoError(t, err)
	setJob(t, db, stuck.ID, map[string]any{"started_at": time.Now().Add(-2 * time.Hour)})

	old, _, err := store.Enqueue(ctx, "Starlink - OEM", "a")
	require.NoError(t, err)
	require.NoError(t, store.Complete(ctx, old.ID, importer.Stats{}, time.Second))
	setJob(t, db, old.ID, map[string]any{"finished_at": time.Now().AddDate(0, 0, -8)})

	wp.cleanup(ctx)

	j, err := store.Get(ctx, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStateQueued, j.State)
	j, err = store.Get(ctx, old.ID)
	require.NoError(t, err)
	assert.Nil(t, j)
}
