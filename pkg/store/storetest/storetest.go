// Package storetest provides an in-memory entity store for tests.
package storetest

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/IBM/arcade/pkg/store"
)

// NewDB opens a migrated in-memory SQLite database holding the store models
// and any extra models. The pool is limited to one connection so that every
// goroutine sees the same database.
func NewDB(t testing.TB, extra ...any) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(append(store.Models(), extra...)...))
	return db
}

// New returns a GormStore over NewDB.
func New(t testing.TB, extra ...any) *store.GormStore {
	t.Helper()
	return store.NewGormStore(NewDB(t, extra...))
}

// DataSource creates a data source.
func DataSource(t testing.TB, s store.EntityStore, name string, public bool) *store.DataSource {
	t.Helper()
	ds := &store.DataSource{Name: name, Public: public}
	require.NoError(t, s.Create(context.Background(), ds))
	return ds
}

// TrackedObject creates a tracked object.
func TrackedObject(t testing.TB, s store.EntityStore, trackingID, name string) *store.TrackedObject {
	t.Helper()
	obj := &store.TrackedObject{TrackingID: trackingID, CatalogID: trackingID, Name: name}
	require.NoError(t, s.Create(context.Background(), obj))
	return obj
}

// Artifact creates a bucket (when needed) and an artifact inside it.
func Artifact(t testing.TB, s store.EntityStore, bucket, name string) *store.Artifact {
	t.Helper()
	ctx := context.Background()
	b, _, err := store.FindOrCreate(ctx, s, store.Where{"name": bucket}, &store.Bucket{Name: bucket})
	require.NoError(t, err)
	a := &store.Artifact{BucketID: b.ID, Name: name}
	require.NoError(t, s.Create(ctx, a))
	return a
}
