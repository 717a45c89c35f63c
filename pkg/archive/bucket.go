// Package archive lists and downloads named archive objects from a bucket.
// Every failure degrades to an empty listing or an absent download: callers
// treat both as "nothing to do right now" and retry on the next pass.
package archive

import (
	"context"
	"fmt"
	"log/slog"
)

// Bucket is a named container of archive objects.
type Bucket interface {
	// Name identifies the bucket for provenance tracking.
	Name() string

	// ListNames returns every object name in the bucket, or nil when the
	// listing fails.
	ListNames(ctx context.Context) []string

	// Download returns the object contents. ok is false when the object is
	// missing or could not be read.
	Download(ctx context.Context, name string) (data []byte, ok bool)
}

// NewBucket builds the Bucket selected by cfg.Backend.
func NewBucket(ctx context.Context, cfg *Config, logger *slog.Logger) (Bucket, error) {
	switch cfg.Backend {
	case BackendS3:
		return NewS3Bucket(ctx, cfg, logger)
	case BackendFileSystem:
		return NewFileSystemBucket(cfg.Root, logger), nil
	default:
		return nil, fmt.Errorf("unsupported archive backend %q", cfg.Backend)
	}
}
