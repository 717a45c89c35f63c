package importer

import (
	"os"
	"strconv"
	"time"
)

// Config holds import orchestration settings.
type Config struct {
	// Interval between scheduled passes over every source.
	Interval time.Duration
	// ArtifactTimeout bounds download, parse and persistence of one artifact.
	ArtifactTimeout time.Duration
	// Concurrency is the number of artifacts of one source processed at once.
	Concurrency int
	// SourcesFile is an optional YAML file replacing the built-in sources.
	SourcesFile string
}

// DefaultConfig returns the default import settings: hourly passes, one
// artifact at a time.
func DefaultConfig() *Config {
	return &Config{
		Interval:        time.Hour,
		ArtifactTimeout: 10 * time.Minute,
		Concurrency:     1,
	}
}

// ConfigFromEnv reads import configuration from environment variables.
//
// Environment variables:
//   - ARCADE_IMPORT_INTERVAL: time between passes (default: "1h")
//   - ARCADE_IMPORT_ARTIFACT_TIMEOUT: per-artifact deadline (default: "10m")
//   - ARCADE_IMPORT_CONCURRENCY: artifacts in flight per source (default: 1)
//   - ARCADE_SOURCES_FILE: YAML sources file (default: built-in sources)
func ConfigFromEnv() *Config {
	cfg := DefaultConfig()
	if v := os.Getenv("ARCADE_IMPORT_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Interval = d
		}
	}
	if v := os.Getenv("ARCADE_IMPORT_ARTIFACT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.ArtifactTimeout = d
		}
	}
	if v := os.Getenv("ARCADE_IMPORT_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Concurrency = n
		}
	}
	cfg.SourcesFile = os.Getenv("ARCADE_SOURCES_FILE")
	return cfg
}
