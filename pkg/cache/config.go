package cache

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// CacheConfig holds configuration for the caching layer.
type CacheConfig struct {
	// Enabled controls whether caching is active. When false, no middleware
	// is applied and interpolation results are recomputed on every request.
	Enabled bool

	// CatalogTTL is the TTL for /asos listing responses.
	CatalogTTL time.Duration

	// InterpolationTTL is the TTL for interpolated ephemerides.
	InterpolationTTL time.Duration

	// MaxSize is the maximum number of entries per cache instance.
	MaxSize int
}

// DefaultCacheConfig returns a CacheConfig with sensible defaults.
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		Enabled:          true,
		CatalogTTL:       60 * time.Second,
		InterpolationTTL: 10 * time.Minute,
		MaxSize:          1000,
	}
}

// CacheConfigFromEnv reads cache configuration from environment variables,
// falling back to defaults for any unset variable.
//
// Environment variables:
//   - ARCADE_CACHE_ENABLED: "true" or "false" (default: "true")
//   - ARCADE_CACHE_CATALOG_TTL: duration in seconds (default: 60)
//   - ARCADE_CACHE_INTERPOLATION_TTL: duration in seconds (default: 600)
//   - ARCADE_CACHE_MAX_SIZE: max entries per cache (default: 1000)
func CacheConfigFromEnv() *CacheConfig {
	cfg := DefaultCacheConfig()

	if v := os.Getenv("ARCADE_CACHE_ENABLED"); v != "" {
		cfg.Enabled = strings.EqualFold(v, "true") || v == "1"
	}

	if v := os.Getenv("ARCADE_CACHE_CATALOG_TTL"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.CatalogTTL = time.Duration(secs) * time.Second
		}
	}

	if v := os.Getenv("ARCADE_CACHE_INTERPOLATION_TTL"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.InterpolationTTL = time.Duration(secs) * time.Second
		}
	}

	if v := os.Getenv("ARCADE_CACHE_MAX_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxSize = n
		}
	}

	return cfg
}
