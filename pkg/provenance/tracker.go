// Package provenance records where imported data came from and which archive
// artifacts have already been imported.
package provenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/arcade/pkg/store"
)

// Tracker resolves buckets, artifacts and data sources, and owns the
// artifact import flag.
type Tracker struct {
	store store.EntityStore
	locks *KeyedMutex
}

// NewTracker creates a Tracker over s.
func NewTracker(s store.EntityStore) *Tracker {
	return &Tracker{store: s, locks: NewKeyedMutex()}
}

// ResolveBucket finds or creates the bucket named name.
func (t *Tracker) ResolveBucket(ctx context.Context, name string) (*store.Bucket, error) {
	b, _, err := store.FindOrCreate(ctx, t.store, store.Where{"name": name}, &store.Bucket{Name: name})
	if err != nil {
		return nil, fmt.Errorf("resolve bucket %q: %w", name, err)
	}
	return b, nil
}

// ResolveDataSource finds or creates the data source named name. public
// only applies on creation; an existing source keeps its visibility.
func (t *Tracker) ResolveDataSource(ctx context.Context, name string, public bool) (*store.DataSource, error) {
	ds, _, err := store.FindOrCreate(ctx, t.store, store.Where{"name": name}, &store.DataSource{Name: name, Public: public})
	if err != nil {
		return nil, fmt.Errorf("resolve data source %q: %w", name, err)
	}
	return ds, nil
}

// ResolveArtifact finds or creates the artifact objectName inside bucket.
// New artifacts start out not imported.
func (t *Tracker) ResolveArtifact(ctx context.Context, bucket *store.Bucket, objectName string) (*store.Artifact, error) {
	a, _, err := store.FindOrCreate(ctx, t.store,
		store.Where{"bucket_id": bucket.ID, "name": objectName},
		&store.Artifact{BucketID: bucket.ID, Name: objectName})
	if err != nil {
		return nil, fmt.Errorf("resolve artifact %q: %w", objectName, err)
	}
	return a, nil
}

// MarkImported flags a as imported. Call it only after every record in the
// artifact was persisted.
func (t *Tracker) MarkImported(ctx context.Context, a *store.Artifact) error {
	if a.Imported {
		return nil
	}
	now := time.Now().UTC()
	if err := t.store.Update(ctx, a, map[string]any{"imported": true, "imported_at": now}); err != nil {
		return fmt.Errorf("mark artifact %q imported: %w", a.Name, err)
	}
	a.Imported = true
	a.ImportedAt = &now
	return nil
}

// Refresh reloads the import flag, which another worker may have set since a
// was resolved.
func (t *Tracker) Refresh(ctx context.Context, a *store.Artifact) error {
	var current store.Artifact
	found, err := t.store.FindFirst(ctx, &current, store.Where{"id": a.ID})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("artifact %q: %w", a.Name, store.ErrNotFound)
	}
	a.Imported, a.ImportedAt = current.Imported, current.ImportedAt
	return nil
}

// LockArtifact serializes processing of one artifact in this process. The
// returned function releases the lock.
func (t *Tracker) LockArtifact(bucket *store.Bucket, objectName string) func() {
	return t.locks.Lock(fmt.Sprintf("%d/%s", bucket.ID, objectName))
}

// KeyedMutex hands out one mutex per key and forgets keys nobody holds.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedMutex creates an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock blocks until key is free and returns its unlock function.
func (k *KeyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
