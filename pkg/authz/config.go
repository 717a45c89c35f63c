package authz

import (
	"os"
	"strings"
	"time"
)

// AuthzMode selects the authorization backend.
type AuthzMode string

const (
	// AuthzModeNone disables grant checks (development only).
	AuthzModeNone AuthzMode = "none"
	// AuthzModeGrants checks the principal's data source grants.
	AuthzModeGrants AuthzMode = "grants"
)

// Config configures principal resolution and grant checks.
type Config struct {
	Mode     AuthzMode
	CacheTTL time.Duration
	// UserHeader carries the principal name set by a trusted proxy.
	UserHeader string
	JWT        JWTConfig
}

// DefaultConfig returns grant checks with a short decision cache.
func DefaultConfig() *Config {
	return &Config{
		Mode:       AuthzModeGrants,
		CacheTTL:   DefaultCacheTTL,
		UserHeader: DefaultUserHeader,
	}
}

// ConfigFromEnv reads ARCADE_AUTHZ_MODE, ARCADE_AUTHZ_CACHE_TTL,
// ARCADE_AUTHZ_USER_HEADER and the ARCADE_JWT_* variables.
func ConfigFromEnv() *Config {
	cfg := DefaultConfig()
	if v := strings.ToLower(os.Getenv("ARCADE_AUTHZ_MODE")); v != "" {
		cfg.Mode = AuthzMode(v)
	}
	if v := os.Getenv("ARCADE_AUTHZ_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			cfg.CacheTTL = d
		}
	}
	if v := os.Getenv("ARCADE_AUTHZ_USER_HEADER"); v != "" {
		cfg.UserHeader = v
	}
	cfg.JWT = JWTConfig{
		PublicKeyPath: os.Getenv("ARCADE_JWT_PUBLIC_KEY_FILE"),
		Issuer:        os.Getenv("ARCADE_JWT_ISSUER"),
		Audience:      os.Getenv("ARCADE_JWT_AUDIENCE"),
	}
	return cfg
}

// NewAuthorizer builds the Authorizer selected by cfg.
func NewAuthorizer(cfg *Config, grants *GrantAuthorizer) Authorizer {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Mode == AuthzModeNone {
		return &NoopAuthorizer{}
	}
	if cfg.CacheTTL > 0 {
		return NewCachedAuthorizer(grants, cfg.CacheTTL)
	}
	return grants
}
