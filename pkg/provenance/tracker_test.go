package provenance

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IBM/arcade/pkg/store"
	"github.com/IBM/arcade/pkg/store/storetest"
)

func TestResolveArtifactIsFindOrCreate(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	tr := NewTracker(s)

	b, err := tr.ResolveBucket(ctx, "oem")
	require.NoError(t, err)

	a1, err := tr.ResolveArtifact(ctx, b, "20201124_block_25.tar")
	require.NoError(t, err)
	assert.False(t, a1.Imported)

	a2, err := tr.ResolveArtifact(ctx, b, "20201124_block_25.tar")
	require.NoError(t, err)
	assert.Equal(t, a1.ID, a2.ID)

	other, err := tr.ResolveBucket(ctx, "other")
	require.NoError(t, err)
	a3, err := tr.ResolveArtifact(ctx, other, "20201124_block_25.tar")
	require.NoError(t, err)
	assert.NotEqual(t, a1.ID, a3.ID)

	n, err := s.Count(ctx, &store.Artifact{}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestMarkImportedPersists(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	tr := NewTracker(s)
	b, err := tr.ResolveBucket(ctx, "oem")
	require.NoError(t, err)
	a, err := tr.ResolveArtifact(ctx, b, "x.tar")
	require.NoError(t, err)

	require.NoError(t, tr.MarkImported(ctx, a))
	assert.True(t, a.Imported)
	assert.NotNil(t, a.ImportedAt)

	again, err := tr.ResolveArtifact(ctx, b, "x.tar")
	require.NoError(t, err)
	assert.True(t, again.Imported)
}

func TestRefreshSeesOtherWriters(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	tr := NewTracker(s)
	b, _ := tr.ResolveBucket(ctx, "oem")
	stale, err := tr.ResolveArtifact(ctx, b, "x.tar")
	require.NoError(t, err)
	fresh, err := tr.ResolveArtifact(ctx, b, "x.tar")
	require.NoError(t, err)

	require.NoError(t, tr.MarkImported(ctx, fresh))
	assert.False(t, stale.Imported)
	require.NoError(t, tr.Refresh(ctx, stale))
	assert.True(t, stale.Imported)
}

func TestResolveDataSourceKeepsVisibility(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(storetest.New(t))

	ds, err := tr.ResolveDataSource(ctx, "UT - OEM", true)
	require.NoError(t, err)
	assert.True(t, ds.Public)

	again, err := tr.ResolveDataSource(ctx, "UT - OEM", false)
	require.NoError(t, err)
	assert.Equal(t, ds.ID, again.ID)
	assert.True(t, again.Public)
}

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	km := NewKeyedMutex()
	var active, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("25544/UT - OEM")
			defer unlock()
			n := atomic.AddInt32(&active, 1)
			if n > atomic.LoadInt32(&peak) {
				atomic.StoreInt32(&peak, n)
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&active, -1)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), peak)
	assert.Empty(t, km.locks)
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	km := NewKeyedMutex()
	unlockA := km.Lock("a")
	done := make(chan struct{})
	go func() {
		unlockB := km.Lock("b")
		unlockB()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}
	unlockA()
}
