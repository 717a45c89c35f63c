package authz

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// mockAuthorizer is a test Authorizer that counts calls and returns a configurable result.
type mockAuthorizer struct {
	allowed bool
	err     error
	calls   atomic.Int64
}

func (m *mockAuthorizer) Authorize(_ context.Context, _ AccessRequest) (bool, error) {
	m.calls.Add(1)
	return m.allowed, m.err
}

func TestCachedAuthorizer_CacheHit(t *testing.T) {
	inner := &mockAuthorizer{allowed: true}
	cached := NewCachedAuthorizer(inner, 1*time.Minute)
	req := AccessRequest{PrincipalID: 1, SourceID: 7}

	allowed, err := cached.Authorize(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Error("expected allowed=true")
	}

	allowed, err = cached.Authorize(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Error("expected allowed=true from cache")
	}
	if inner.calls.Load() != 1 {
		t.Errorf("inner calls = %d, want 1 (cache hit should not call inner)", inner.calls.Load())
	}
}

func TestCachedAuthorizer_CacheExpiry(t *testing.T) {
	inner := &mockAuthorizer{allowed: true}
	cached := NewCachedAuthorizer(inner, 10*time.Millisecond)
	req := AccessRequest{PrincipalID: 1, SourceID: 7}

	_, _ = cached.Authorize(context.Background(), req)
	time.Sleep(20 * time.Millisecond)
	_, _ = cached.Authorize(context.Background(), req)

	if inner.calls.Load() != 2 {
		t.Errorf("inner calls = %d, want 2 after cache expiry", inner.calls.Load())
	}
}

func TestCachedAuthorizer_DifferentKeys(t *testing.T) {
	inner := &mockAuthorizer{allowed: true}
	cached := NewCachedAuthorizer(inner, 1*time.Minute)

	_, _ = cached.Authorize(context.Background(), AccessRequest{PrincipalID: 1, SourceID: 7})
	_, _ = cached.Authorize(context.Background(), AccessRequest{PrincipalID: 2, SourceID: 7})
	_, _ = cached.Authorize(context.Background(), AccessRequest{PrincipalID: 1, SourceID: 8})

	if inner.calls.Load() != 3 {
		t.Errorf("inner calls = %d, want 3 (different cache keys)", inner.calls.Load())
	}
}

func TestCachedAuthorizer_CachesDenials(t *testing.T) {
	inner := &mockAuthorizer{allowed: false}
	cached := NewCachedAuthorizer(inner, 1*time.Minute)
	req := AccessRequest{PrincipalID: 1, SourceID: 7}

	allowed, _ := cached.Authorize(context.Background(), req)
	if allowed {
		t.Error("expected allowed=false")
	}
	allowed, _ = cached.Authorize(context.Background(), req)
	if allowed {
		t.Error("expected allowed=false from cache")
	}
	if inner.calls.Load() != 1 {
		t.Errorf("inner calls = %d, want 1 (denial should be cached)", inner.calls.Load())
	}
}

func TestCachedAuthorizer_DoesNotCacheErrors(t *testing.T) {
	inner := &mockAuthorizer{err: errors.New("db down")}
	cached := NewCachedAuthorizer(inner, 1*time.Minute)
	req := AccessRequest{PrincipalID: 1, SourceID: 7}

	if _, err := cached.Authorize(context.Background(), req); err == nil {
		t.Fatal("expected error")
	}
	_, _ = cached.Authorize(context.Background(), req)
	if inner.calls.Load() != 2 {
		t.Errorf("inner calls = %d, want 2", inner.calls.Load())
	}
}

func TestCachedAuthorizer_Invalidate(t *testing.T) {
	inner := &mockAuthorizer{allowed: false}
	cached := NewCachedAuthorizer(inner, 1*time.Minute)

	_, _ = cached.Authorize(context.Background(), AccessRequest{PrincipalID: 1, SourceID: 7})
	_, _ = cached.Authorize(context.Background(), AccessRequest{PrincipalID: 11, SourceID: 7})

	cached.Invalidate(1)
	inner.allowed = true

	allowed, _ := cached.Authorize(context.Background(), AccessRequest{PrincipalID: 1, SourceID: 7})
	if !allowed {
		t.Error("expected fresh decision after invalidation")
	}
	allowed, _ = cached.Authorize(context.Background(), AccessRequest{PrincipalID: 11, SourceID: 7})
	if allowed {
		t.Error("principal 11 must keep its cached decision")
	}
	if inner.calls.Load() != 3 {
		t.Errorf("inner calls = %d, want 3", inner.calls.Load())
	}
}
