package rbac

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache is the injectable permission cache contract. Stale cached permissions
// are a security defect, not a freshness defect: every mutation path must call
// Invalidate (identity-level changes) or InvalidateAll (role-level changes,
// since role membership is not indexed in the cache key) synchronously.
type Cache interface {
	Get(identityID int64) (*PermissionSet, bool)
	Set(identityID int64, set *PermissionSet)
	Invalidate(identityID int64)
	InvalidateAll()
}

// MemoryCache is a process-local, time-bounded LRU permission cache. Entries
// are immutable once stored; concurrent readers share them without locking
// beyond the LRU's own synchronization.
type MemoryCache struct {
	cache *lru.LRU[int64, *PermissionSet]
}

// NewMemoryCache creates a cache holding up to size identities for ttl.
func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	if size <= 0 {
		size = 1024
	}
	return &MemoryCache{
		cache: lru.NewLRU[int64, *PermissionSet](size, nil, ttl),
	}
}

// Get returns the cached permission set for an identity, if present and fresh.
func (c *MemoryCache) Get(identityID int64) (*PermissionSet, bool) {
	return c.cache.Get(identityID)
}

// Set stores a flattened permission set.
func (c *MemoryCache) Set(identityID int64, set *PermissionSet) {
	c.cache.Add(identityID, set)
}

// Invalidate drops the entry for one identity.
func (c *MemoryCache) Invalidate(identityID int64) {
	c.cache.Remove(identityID)
}

// InvalidateAll drops every entry.
func (c *MemoryCache) InvalidateAll() {
	c.cache.Purge()
}

var _ Cache = (*MemoryCache)(nil)
