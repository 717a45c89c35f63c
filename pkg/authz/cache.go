package authz

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultCacheTTL is the default time-to-live for cached authorization results.
const DefaultCacheTTL = 10 * time.Second

type cacheEntry struct {
	allowed   bool
	expiresAt time.Time
}

// CachedAuthorizer wraps another Authorizer with a short-lived in-memory
// cache so that listing many records of one source costs one grant lookup.
type CachedAuthorizer struct {
	inner Authorizer
	ttl   time.Duration
	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// NewCachedAuthorizer creates a CachedAuthorizer that wraps inner with the given TTL.
func NewCachedAuthorizer(inner Authorizer, ttl time.Duration) *CachedAuthorizer {
	return &CachedAuthorizer{
		inner: inner,
		ttl:   ttl,
		cache: make(map[string]cacheEntry),
	}
}

// Authorize checks the cache first and delegates to the inner Authorizer on miss.
func (c *CachedAuthorizer) Authorize(ctx context.Context, req AccessRequest) (bool, error) {
	key := cacheKey(req)

	c.mu.RLock()
	entry, ok := c.cache[key]
	c.mu.RUnlock()

	if ok && time.Now().Before(entry.expiresAt) {
		return entry.allowed, nil
	}

	allowed, err := c.inner.Authorize(ctx, req)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	c.cache[key] = cacheEntry{
		allowed:   allowed,
		expiresAt: time.Now().Add(c.ttl),
	}
	c.mu.Unlock()

	return allowed, nil
}

// Invalidate drops every cached decision of a principal, e.g. after a grant.
func (c *CachedAuthorizer) Invalidate(principalID uint) {
	prefix := fmt.Sprintf("%d:", principalID)
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.cache {
		if strings.HasPrefix(k, prefix) {
			delete(c.cache, k)
		}
	}
}

func cacheKey(req AccessRequest) string {
	return fmt.Sprintf("%d:%d", req.PrincipalID, req.SourceID)
}
