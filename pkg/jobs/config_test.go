package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultJobConfig(t *testing.T) {
	cfg := DefaultJobConfig()

	assert.Equal(t, 2, cfg.Concurrency)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, 2*time.Hour, cfg.ClaimTimeout)
	assert.Equal(t, 30, cfg.RetentionDays)
	assert.True(t, cfg.Enabled)
}

func TestJobConfigFromEnv(t *testing.T) {
	tests := []struct {
		name            string
		envs            map[string]string
		wantConcurrency int
		wantMaxRetries  int
		wantEnabled     bool
	}{
		{
			name:            "defaults",
			envs:            map[string]string{},
			wantConcurrency: 2,
			wantMaxRetries:  3,
			wantEnabled:     true,
		},
		{
			name: "custom values",
			envs: map[string]string{
				"ARCADE_JOB_CONCURRENCY": "5",
				"ARCADE_JOB_MAX_RETRIES": "1",
				"ARCADE_JOB_ENABLED":     "false",
			},
			wantConcurrency: 5,
			wantMaxRetries:  1,
			wantEnabled:     false,
		},
		{
			name: "invalid concurrency falls back to default",
			envs: map[string]string{
				"ARCADE_JOB_CONCURRENCY": "invalid",
			},
			wantConcurrency: 2,
			wantMaxRetries:  3,
			wantEnabled:     true,
		},
		{
			name: "zero retries allowed",
			envs: map[string]string{
				"ARCADE_JOB_MAX_RETRIES": "0",
			},
			wantConcurrency: 2,
			wantMaxRetries:  0,
			wantEnabled:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envs {
				t.Setenv(k, v)
			}
			cfg := JobConfigFromEnv()
			assert.Equal(t, tt.wantConcurrency, cfg.Concurrency)
			assert.Equal(t, tt.wantMaxRetries, cfg.MaxRetries)
			assert.Equal(t, tt.wantEnabled, cfg.Enabled)
		})
	}
}

func TestJobConfigFromEnvDurations(t *testing.T) {
	t.Setenv("ARCADE_JOB_POLL_INTERVAL_SECONDS", "10")
	t.Setenv("ARCADE_JOB_CLAIM_TIMEOUT_MINUTES", "30")
	t.Setenv("ARCADE_JOB_RETENTION_DAYS", "14")

	cfg := JobConfigFromEnv()
	assert.Equal(t, 10*time.Second, cfg.PollInterval)
	assert.Equal(t, 30*time.Minute, cfg.ClaimTimeout)
	assert.Equal(t, 14, cfg.RetentionDays)
}
