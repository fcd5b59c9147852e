package tenant

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/constructive-io/apigateway/internal/telemetry"
)

// ServiceCache is a bounded, concurrency-safe mapping from TenantKey
// strings to ApiStructure, with LRU eviction and an optional TTL. A
// ttl of zero disables expiry, leaving pure LRU-by-size behaviour.
type ServiceCache struct {
	mu  sync.RWMutex
	lru *lru.LRU[string, *ApiStructure]
}

// NewServiceCache creates a cache bounded to size entries.
func NewServiceCache(size int, ttl time.Duration) *ServiceCache {
	return &ServiceCache{lru: lru.NewLRU[string, *ApiStructure](size, nil, ttl)}
}

// Get returns the cached ApiStructure for key, if present.
func (c *ServiceCache) Get(key string) (*ApiStructure, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.lru.Get(key)
	outcome := "miss"
	if ok {
		outcome = "hit"
	}
	telemetry.ServiceCacheLookupsTotal.WithLabelValues(outcome).Inc()
	return v, ok
}

// Set inserts or replaces the entry for key.
func (c *ServiceCache) Set(key string, value *ApiStructure) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, value)
}

// Delete removes key, if present.
func (c *ServiceCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
}

// DeleteMatching removes every entry for which predicate returns true,
// returning the keys removed so a caller can also evict the
// corresponding handler-cache entries.
func (c *ServiceCache) DeleteMatching(predicate func(key string, value *ApiStructure) bool) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var removed []string
	for _, key := range c.lru.Keys() {
		v, ok := c.lru.Peek(key)
		if !ok {
			continue
		}
		if predicate(key, v) {
			c.lru.Remove(key)
			removed = append(removed, key)
		}
	}
	return removed
}

// Clear empties the cache.
func (c *ServiceCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// Len reports the current number of cached entries.
func (c *ServiceCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lru.Len()
}
