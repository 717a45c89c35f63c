package cache

import (
	"net/http"
)

// CacheManager holds the catalog response cache. Imports add tracked
// objects, so a finished import pass invalidates it.
type CacheManager struct {
	catalog *LRUCache[Response]
}

// NewCacheManager creates a CacheManager from the given configuration.
// If cfg is nil or disabled, it returns nil.
func NewCacheManager(cfg *CacheConfig) *CacheManager {
	if cfg == nil || !cfg.Enabled {
		return nil
	}
	return &CacheManager{
		catalog: NewLRUCache[Response](cfg.MaxSize, cfg.CatalogTTL),
	}
}

// InvalidateCatalog clears every cached catalog response.
func (cm *CacheManager) InvalidateCatalog() {
	if cm == nil {
		return
	}
	cm.catalog.InvalidateAll()
}

// CatalogMiddleware returns HTTP middleware that caches catalog listing
// responses. A nil manager passes requests through.
func (cm *CacheManager) CatalogMiddleware() func(http.Handler) http.Handler {
	if cm == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return CacheMiddleware(cm.catalog)
}
