// Package ha lets several arcade replicas share one database: schema
// migrations are serialized with a lock, and the background importers run
// only on the replica holding a Kubernetes Lease.
package ha

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// HAConfig holds configuration for multi-replica deployments.
type HAConfig struct {
	// LeaderElectionEnabled turns on Lease-based leader election. When false
	// the process acts as the only replica and runs every background loop.
	LeaderElectionEnabled bool

	LeaseName      string
	LeaseNamespace string

	// Kubeconfig is used instead of the in-cluster config when set.
	Kubeconfig string

	LeaseDuration time.Duration
	RenewDeadline time.Duration
	RetryPeriod   time.Duration

	// MigrationLockEnabled serializes AutoMigrate across replicas.
	MigrationLockEnabled bool

	// Identity names this replica in the Lease and the migration lock.
	Identity string
}

// DefaultHAConfig returns the single-replica defaults.
func DefaultHAConfig() *HAConfig {
	ns := os.Getenv("POD_NAMESPACE")
	if ns == "" {
		ns = "arcade"
	}
	return &HAConfig{
		LeaseName:            "arcade-importer-leader",
		LeaseNamespace:       ns,
		LeaseDuration:        15 * time.Second,
		RenewDeadline:        10 * time.Second,
		RetryPeriod:          2 * time.Second,
		MigrationLockEnabled: true,
		Identity:             defaultIdentity(),
	}
}

// HAConfigFromEnv reads HA configuration from the environment:
//   - ARCADE_LEADER_ELECTION_ENABLED: "true" or "false" (default: "false")
//   - ARCADE_LEADER_LEASE_NAME, ARCADE_LEADER_LEASE_NAMESPACE
//   - ARCADE_LEADER_LEASE_DURATION, ARCADE_LEADER_RENEW_DEADLINE,
//     ARCADE_LEADER_RETRY_PERIOD: seconds
//   - ARCADE_MIGRATION_LOCK_ENABLED: "true" or "false" (default: "true")
//   - KUBECONFIG: out-of-cluster client configuration
//   - POD_NAME: replica identity
func HAConfigFromEnv() *HAConfig {
	cfg := DefaultHAConfig()

	if v := os.Getenv("ARCADE_LEADER_ELECTION_ENABLED"); v != "" {
		cfg.LeaderElectionEnabled = parseBool(v)
	}
	if v := os.Getenv("ARCADE_LEADER_LEASE_NAME"); v != "" {
		cfg.LeaseName = v
	}
	if v := os.Getenv("ARCADE_LEADER_LEASE_NAMESPACE"); v != "" {
		cfg.LeaseNamespace = v
	}
	setSeconds(&cfg.LeaseDuration, "ARCADE_LEADER_LEASE_DURATION")
	setSeconds(&cfg.RenewDeadline, "ARCADE_LEADER_RENEW_DEADLINE")
	setSeconds(&cfg.RetryPeriod, "ARCADE_LEADER_RETRY_PERIOD")
	if v := os.Getenv("ARCADE_MIGRATION_LOCK_ENABLED"); v != "" {
		cfg.MigrationLockEnabled = parseBool(v)
	}
	if v := os.Getenv("KUBECONFIG"); v != "" {
		cfg.Kubeconfig = v
	}
	return cfg
}

func parseBool(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}

func setSeconds(dst *time.Duration, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		*dst = time.Duration(secs) * time.Second
	}
}

func defaultIdentity() string {
	if v := os.Getenv("POD_NAME"); v != "" {
		return v
	}
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		return "unknown"
	}
	return hostname
}
