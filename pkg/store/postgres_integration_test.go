//go:build integration

package store_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/IBM/arcade/pkg/store"
	"github.com/IBM/arcade/pkg/store/storetest"
)

// postgresConfig starts a PostgreSQL container and returns a Config for it.
// Requires Docker.
func postgresConfig(t *testing.T) *store.Config {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("arcade"),
		postgres.WithUsername("arcade"),
		postgres.WithPassword("arcade"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			t.Errorf("failed to terminate container: %v", err)
		}
	})

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	cfg := store.DefaultConfig()
	cfg.Type = "postgres"
	cfg.DSN = dsn
	return cfg
}

func TestPostgresConcurrentOpen(t *testing.T) {
	cfg := postgresConfig(t)
	ctx := context.Background()

	// Replicas starting together migrate one at a time.
	handles := make([]*store.Handle, 3)
	errs := make([]error, len(handles))
	var wg sync.WaitGroup
	for i := range handles {
		wg.Add(1)
		go func() {
			defer wg.Done()
			handles[i], errs[i] = store.Open(ctx, cfg, nil)
		}()
	}
	wg.Wait()
	for i, err := range errs {
		require.NoError(t, err, "replica %d", i)
		t.Cleanup(func() { _ = handles[i].Close() })
	}

	s := handles[0]
	obj := storetest.TrackedObject(t, s, "25544", "ISS (ZARYA)")
	ds := storetest.DataSource(t, s, "UT - OEM", true)
	art := storetest.Artifact(t, s, "arcade-oem", "20201124_block_25.tar")

	require.NoError(t, s.Create(ctx, newRecord(obj, ds, art, "2020-11-26T00:00:00.000000")))
	assert.Error(t, handles[1].Create(ctx, newRecord(obj, ds, art, "2020-11-27T00:00:00.000000")))

	rec, err := store.First[store.EphemerisRecord](ctx, handles[2], store.Where{"tracked_object_id": obj.ID})
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "2020-11-26T00:00:00.000000", rec.StopTime)
	assert.Len(t, rec.Lines, 1)
}
