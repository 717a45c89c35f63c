package ha

import (
	"context"
	"fmt"
	"hash/crc32"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const migrationLockName = "arcade-schema"

// MigrationLocker serializes schema migrations between replicas.
type MigrationLocker interface {
	// WithLock runs fn while holding the lock.
	WithLock(ctx context.Context, fn func() error) error
}

// NewMigrationLocker picks a lock for the database dialect: an advisory lock
// on PostgreSQL, a lock row everywhere else.
func NewMigrationLocker(db *gorm.DB) MigrationLocker {
	return NewMigrationLockerWithConfig(db, DefaultHAConfig())
}

// NewMigrationLockerWithConfig is NewMigrationLocker honoring
// cfg.MigrationLockEnabled and cfg.Identity.
func NewMigrationLockerWithConfig(db *gorm.DB, cfg *HAConfig) MigrationLocker {
	if db == nil || !cfg.MigrationLockEnabled {
		return noopLock{}
	}
	if db.Dialector.Name() == "postgres" {
		return &advisoryLock{db: db, key: int64(crc32.ChecksumIEEE([]byte(migrationLockName)))}
	}
	// The lock table must exist before the first concurrent WithLock call.
	_ = db.AutoMigrate(&migrationLock{})
	return &rowLock{
		db:         db,
		holder:     cfg.Identity,
		retryEvery: time.Second,
		attempts:   30,
		staleAfter: 5 * time.Minute,
	}
}

type noopLock struct{}

func (noopLock) WithLock(_ context.Context, fn func() error) error { return fn() }

type advisoryLock struct {
	db  *gorm.DB
	key int64
}

func (l *advisoryLock) WithLock(ctx context.Context, fn func() error) error {
	// Session-level advisory locks belong to one connection.
	conn, err := l.db.DB()
	if err != nil {
		return fmt.Errorf("migration lock: %w", err)
	}
	c, err := conn.Conn(ctx)
	if err != nil {
		return fmt.Errorf("migration lock: %w", err)
	}
	defer c.Close()

	if _, err := c.ExecContext(ctx, "SELECT pg_advisory_lock($1)", l.key); err != nil {
		return fmt.Errorf("acquire migration advisory lock: %w", err)
	}
	defer func() {
		_, _ = c.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", l.key)
	}()
	return fn()
}

type migrationLock struct {
	Name     string    `gorm:"primaryKey;column:name;size:64"`
	Holder   string    `gorm:"column:holder;size:255"`
	LockedAt time.Time `gorm:"column:locked_at"`
}

func (migrationLock) TableName() string { return "arcade_migration_lock" }

// rowLock holds the lock while its row exists. Rows older than staleAfter
// belong to a crashed holder and are removed before each attempt.
type rowLock struct {
	db         *gorm.DB
	holder     string
	retryEvery time.Duration
	attempts   int
	staleAfter time.Duration
}

func (l *rowLock) WithLock(ctx context.Context, fn func() error) error {
	if err := l.acquire(ctx); err != nil {
		return err
	}
	defer l.db.Where("name = ?", migrationLockName).Delete(&migrationLock{})
	return fn()
}

func (l *rowLock) acquire(ctx context.Context) error {
	db := l.db.WithContext(ctx)
	for i := 0; i < l.attempts; i++ {
		db.Where("name = ? AND locked_at < ?", migrationLockName, time.Now().Add(-l.staleAfter)).
			Delete(&migrationLock{})

		res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&migrationLock{
			Name:     migrationLockName,
			Holder:   l.holder,
			LockedAt: time.Now(),
		})
		if res.Error != nil {
			return fmt.Errorf("acquire migration lock: %w", res.Error)
		}
		if res.RowsAffected == 1 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.retryEvery):
		}
	}
	return fmt.Errorf("migration lock still held after %d attempts", l.attempts)
}
