package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/IBM/arcade/pkg/store"
	"github.com/IBM/arcade/pkg/store/storetest"
)

func newTestAccessStore(t *testing.T) (*AccessStore, *gorm.DB) {
	t.Helper()
	db := storetest.NewDB(t)
	return NewAccessStore(db), db
}

func principal(t *testing.T, db *gorm.DB, name string) *store.Principal {
	t.Helper()
	p := &store.Principal{Name: name}
	require.NoError(t, db.Create(p).Error)
	return p
}

func appendEvents(t *testing.T, s *AccessStore, p *store.Principal, n int, endpoint string) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, s.Append(context.Background(), &store.AccessEvent{
			PrincipalID: p.ID,
			RecordKind:  store.KindEphemeris,
			RecordID:    uint(i + 1),
			Endpoint:    endpoint,
		}))
	}
}

func TestAccessStore_AppendAndList(t *testing.T) {
	ctx := context.Background()
	s, db := newTestAccessStore(t)
	alice := principal(t, db, "alice")
	bob := principal(t, db, "bob")
	appendEvents(t, s, alice, 3, "/ephemeris")
	appendEvents(t, s, bob, 1, "/interpolate")

	events, next, total, err := s.List(ctx, EventFilter{}, 10, "")
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Empty(t, next)
	require.Len(t, events, 4)
	assert.Equal(t, "bob", events[0].Principal.Name)

	events, _, total, err = s.ListByPrincipal(ctx, alice.ID, 10, "")
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	for _, ev := range events {
		assert.Equal(t, alice.ID, ev.PrincipalID)
	}

	events, _, _, err = s.List(ctx, EventFilter{Endpoint: "/interpolate"}, 10, "")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, bob.ID, events[0].PrincipalID)
}

func TestAccessStore_ListPagination(t *testing.T) {
	ctx := context.Background()
	s, db := newTestAccessStore(t)
	appendEvents(t, s, principal(t, db, "alice"), 5, "/ephemeris")

	page1, next, total, err := s.List(ctx, EventFilter{}, 2, "")
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page1, 2)
	require.NotEmpty(t, next)

	page2, next, _, err := s.List(ctx, EventFilter{}, 2, next)
	require.NoError(t, err)
	require.Len(t, page2, 2)
	assert.Greater(t, page1[1].ID, page2[0].ID)

	page3, next, _, err := s.List(ctx, EventFilter{}, 2, next)
	require.NoError(t, err)
	assert.Len(t, page3, 1)
	assert.Empty(t, next)

	_, _, _, err = s.List(ctx, EventFilter{}, 2, "not-a-number")
	assert.Error(t, err)
}

func TestAccessStore_CountAndGet(t *testing.T) {
	ctx := context.Background()
	s, db := newTestAccessStore(t)
	alice := principal(t, db, "alice")
	appendEvents(t, s, alice, 2, "/ephemeris")

	n, err := s.Count(ctx, EventFilter{PrincipalID: alice.ID, RecordID: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	events, _, _, err := s.List(ctx, EventFilter{}, 1, "")
	require.NoError(t, err)
	ev, err := s.GetByID(ctx, events[0].ID)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, "alice", ev.Principal.Name)

	ev, err = s.GetByID(ctx, 999)
	require.NoError(t, err)
	assert.Nil(t, ev)
}

func TestAccessStore_UserReport(t *testing.T) {
	ctx := context.Background()
	s, db := newTestAccessStore(t)
	appendEvents(t, s, principal(t, db, "bob"), 1, "/ephemeris")
	appendEvents(t, s, principal(t, db, "alice"), 3, "/ephemeris")
	principal(t, db, "carol")

	rows, err := s.UserReport(ctx)
	require.NoError(t, err)
	assert.Equal(t, []UserReport{
		{Principal: "alice", AccessCount: 3},
		{Principal: "bob", AccessCount: 1},
	}, rows)
}

func TestAccessStore_DeleteOlderThan(t *testing.T) {
	ctx := context.Background()
	s, db := newTestAccessStore(t)
	alice := principal(t, db, "alice")
	old := &store.AccessEvent{PrincipalID: alice.ID, RecordKind: store.KindEphemeris, RecordID: 1, Endpoint: "/ephemeris",
		CreatedAt: time.Now().Add(-48 * time.Hour)}
	require.NoError(t, s.Append(ctx, old))
	appendEvents(t, s, alice, 1, "/ephemeris")

	deleted, err := s.DeleteOlderThan(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	n, err := s.Count(ctx, EventFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
