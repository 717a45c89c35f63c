package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/IBM/arcade/pkg/ha"
)

// Config selects and tunes the database.
type Config struct {
	Type            string // sqlite, postgres or mysql
	DSN             string
	Debug           bool // log every SQL statement
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// DefaultConfig returns a Config for a local SQLite file.
func DefaultConfig() *Config {
	return &Config{
		Type:            "sqlite",
		DSN:             "arcade.db",
		MaxOpenConns:    10,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

// ConfigFromEnv reads database configuration from environment variables.
//
// Environment variables:
//   - ARCADE_DB_TYPE: "sqlite", "postgres" or "mysql" (default: "sqlite")
//   - ARCADE_DB_DSN: connection string (default: "arcade.db")
//   - ARCADE_DB_DEBUG: "true" to log SQL
//   - ARCADE_DB_MAX_OPEN_CONNS: pool size (default: 10)
func ConfigFromEnv() *Config {
	cfg := DefaultConfig()
	if v := os.Getenv("ARCADE_DB_TYPE"); v != "" {
		cfg.Type = strings.ToLower(v)
	}
	if v := os.Getenv("ARCADE_DB_DSN"); v != "" {
		cfg.DSN = v
	}
	if v := os.Getenv("ARCADE_DB_DEBUG"); v != "" {
		cfg.Debug = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("ARCADE_DB_MAX_OPEN_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxOpenConns = n
		}
	}
	return cfg
}

// Dialector returns the gorm dialector for cfg.
func Dialector(cfg *Config) (gorm.Dialector, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}
	switch cfg.Type {
	case "sqlite", "":
		return sqlite.Open(cfg.DSN), nil
	case "postgres", "postgresql":
		return postgres.Open(cfg.DSN), nil
	case "mysql":
		return mysql.Open(cfg.DSN), nil
	default:
		return nil, fmt.Errorf("unsupported database type %q (expected sqlite, postgres or mysql)", cfg.Type)
	}
}

// Handle owns an open database. Open it once at process start, pass the
// store down, and Close it at shutdown.
type Handle struct {
	*GormStore
	logger *slog.Logger
}

// Open connects to the database described by cfg and migrates the schema,
// plus any extra models owned by other packages, under the migration lock.
func Open(ctx context.Context, cfg *Config, log *slog.Logger, extra ...any) (*Handle, error) {
	if log == nil {
		log = slog.Default()
	}
	dialector, err := Dialector(cfg)
	if err != nil {
		return nil, err
	}
	level := logger.Silent
	if cfg.Debug {
		level = logger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(level)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database pool: %w", err)
	}
	switch {
	case isMemorySQLite(cfg):
		// Every connection to :memory: opens a separate database.
		sqlDB.SetMaxOpenConns(1)
	case cfg.MaxOpenConns > 0:
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	models := append(Models(), extra...)
	if err := Migrate(ctx, db, ha.NewMigrationLocker(db), models...); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	log.Info("database ready", "type", cfg.Type)
	return &Handle{GormStore: NewGormStore(db), logger: log}, nil
}

// Migrate creates or updates the tables of models while holding locker.
func Migrate(ctx context.Context, db *gorm.DB, locker ha.MigrationLocker, models ...any) error {
	return locker.WithLock(ctx, func() error {
		if err := db.WithContext(ctx).AutoMigrate(models...); err != nil {
			return fmt.Errorf("auto-migrate: %w", err)
		}
		return nil
	})
}

func isMemorySQLite(cfg *Config) bool {
	return (cfg.Type == "sqlite" || cfg.Type == "") && strings.Contains(cfg.DSN, ":memory:")
}

// Close releases the connection pool.
func (h *Handle) Close() error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	h.logger.Info("closing database")
	return sqlDB.Close()
}
