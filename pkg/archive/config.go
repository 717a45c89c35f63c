package archive

import (
	"os"
	"strconv"
	"strings"
)

// Backend selects the Bucket implementation.
type Backend string

const (
	BackendS3         Backend = "s3"
	BackendFileSystem Backend = "filesystem"
)

// Config holds the archive bucket configuration.
type Config struct {
	// Backend is either "s3" (any S3-compatible object store, including
	// IBM Cloud Object Storage) or "filesystem".
	Backend Backend

	// Bucket is the bucket name for the s3 backend.
	Bucket string

	// Root is the directory served by the filesystem backend.
	Root string

	// Endpoint overrides the S3 endpoint URL. Empty uses the AWS default.
	Endpoint string

	Region          string
	AccessKeyID     string
	SecretAccessKey string

	// UsePathStyle addresses buckets as endpoint/bucket/key. COS and
	// LocalStack endpoints need it.
	UsePathStyle bool

	// MaxAttempts bounds SDK retries per request.
	MaxAttempts int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Backend:      BackendS3,
		Bucket:       "arcade-oem",
		Root:         "./data",
		Region:       "us-east-1",
		UsePathStyle: true,
		MaxAttempts:  3,
	}
}

// ConfigFromEnv reads archive configuration from environment variables,
// falling back to defaults for any unset variable.
//
// Environment variables:
//   - ARCADE_ARCHIVE_BACKEND: "s3" or "filesystem" (default: "s3")
//   - ARCADE_ARCHIVE_ROOT: filesystem backend directory (default: "./data")
//   - ARCADE_COS_BUCKET: bucket name (default: "arcade-oem")
//   - ARCADE_COS_ENDPOINT: endpoint URL
//   - ARCADE_COS_REGION: signing region (default: "us-east-1")
//   - ARCADE_COS_ACCESS_KEY_ID, ARCADE_COS_SECRET_ACCESS_KEY: HMAC credentials
//   - ARCADE_COS_PATH_STYLE: "true" or "false" (default: "true")
//   - ARCADE_COS_MAX_ATTEMPTS: retries per request (default: 3)
func ConfigFromEnv() *Config {
	cfg := DefaultConfig()

	if v := os.Getenv("ARCADE_ARCHIVE_BACKEND"); v != "" {
		cfg.Backend = Backend(strings.ToLower(v))
	}
	if v := os.Getenv("ARCADE_ARCHIVE_ROOT"); v != "" {
		cfg.Root = v
	}
	if v := os.Getenv("ARCADE_COS_BUCKET"); v != "" {
		cfg.Bucket = v
	}
	if v := os.Getenv("ARCADE_COS_ENDPOINT"); v != "" {
		cfg.Endpoint = v
	}
	if v := os.Getenv("ARCADE_COS_REGION"); v != "" {
		cfg.Region = v
	}
	if v := os.Getenv("ARCADE_COS_ACCESS_KEY_ID"); v != "" {
		cfg.AccessKeyID = v
	}
	if v := os.Getenv("ARCADE_COS_SECRET_ACCESS_KEY"); v != "" {
		cfg.SecretAccessKey = v
	}
	if v := os.Getenv("ARCADE_COS_PATH_STYLE"); v != "" {
		cfg.UsePathStyle = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("ARCADE_COS_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxAttempts = n
		}
	}

	return cfg
}
