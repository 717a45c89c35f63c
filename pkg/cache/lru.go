// Package cache provides an in-memory LRU cache with TTL, used for catalog
// listing responses and interpolation results.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
	lastUsed  time.Time
}

// LRUCache is a thread-safe in-memory cache with TTL and max-size eviction.
// When the cache reaches maxSize, the least recently used entry is evicted
// to make room for new entries. Expired entries are lazily evicted on Get.
type LRUCache[V any] struct {
	mu      sync.Mutex
	items   map[string]*entry[V]
	maxSize int
	ttl     time.Duration
	now     func() time.Time
}

// NewLRUCache creates a new LRU cache with the given maximum size and TTL.
// maxSize must be >= 1; ttl must be > 0.
func NewLRUCache[V any](maxSize int, ttl time.Duration) *LRUCache[V] {
	if maxSize < 1 {
		maxSize = 1
	}
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &LRUCache[V]{
		items:   make(map[string]*entry[V], maxSize),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get retrieves a cached value by key and marks it recently used. Returns
// the zero value and false if the key is missing or expired.
func (c *LRUCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.items[key]
	if !ok {
		return zero, false
	}

	now := c.now()
	if now.After(e.expiresAt) {
		delete(c.items, key)
		return zero, false
	}

	e.lastUsed = now
	return e.value, true
}

// Set stores a value in the cache. If the cache is at capacity, the least
// recently used entry is evicted before inserting.
func (c *LRUCache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, ok := c.items[key]; !ok && len(c.items) >= c.maxSize {
		c.evictLeastRecentlyUsed()
	}
	c.items[key] = &entry[V]{
		value:     value,
		expiresAt: now.Add(c.ttl),
		lastUsed:  now,
	}
}

// Invalidate removes a specific key from the cache.
func (c *LRUCache[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// InvalidateAll removes all entries from the cache.
func (c *LRUCache[V]) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*entry[V], c.maxSize)
}

// Size returns the number of entries currently in the cache (including
// potentially expired ones that haven't been lazily cleaned).
func (c *LRUCache[V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Must be called with c.mu held.
func (c *LRUCache[V]) evictLeastRecentlyUsed() {
	var oldestKey string
	var oldest time.Time
	first := true

	for k, e := range c.items {
		if first || e.lastUsed.Before(oldest) {
			oldestKey = k
			oldest = e.lastUsed
			first = false
		}
	}

	if !first {
		delete(c.items, oldestKey)
	}
}
