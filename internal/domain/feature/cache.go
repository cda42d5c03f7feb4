package feature

import (
	"sync"
	"time"

	"github.com/merchkit/stockcast/pkg/metrics"
)

// Default cache configuration constants.
const (
	defaultCacheTTL       = 5 * time.Minute
	defaultCacheThreshold = 1000
	noScopeKey            = "none"
)

// cacheEntry holds one built vector and its build time.
type cacheEntry struct {
	features Vector
	builtAt  time.Time
}

// Cache maps (itemID, scopeID) to a previously built feature vector.
// Expiry is passive: Get treats stale entries as misses without deleting
// them; a sweep runs only when the entry count crosses the size
// threshold. There is no background timer, so staleness is bounded only
// by write volume. A non-stale entry is always safe to serve in place of
// recomputation.
type Cache struct {
	mu        sync.RWMutex
	entries   map[string]*cacheEntry
	ttl       time.Duration
	threshold int
	now       func() time.Time
}

// CacheOption applies a configuration option to the Cache.
type CacheOption func(*Cache)

// WithTTL sets the entry time-to-live.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithThreshold sets the entry count that triggers a sweep.
func WithThreshold(threshold int) CacheOption {
	return func(c *Cache) {
		if threshold > 0 {
			c.threshold = threshold
		}
	}
}

// WithClock injects a clock, used by tests to control entry age.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCache creates a feature cache with configuration options.
func NewCache(opts ...CacheOption) *Cache {
	c := &Cache{
		entries:   make(map[string]*cacheEntry),
		ttl:       defaultCacheTTL,
		threshold: defaultCacheThreshold,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Key builds the cache key for an item/scope pair.
func Key(itemID, scopeID string) string {
	if scopeID == "" {
		scopeID = noScopeKey
	}
	return itemID + ":" + scopeID
}

// Get returns the cached vector for key, treating entries older than the
// TTL as misses. Stale entries are not deleted here. The returned vector
// is a copy so callers can never mutate cached state.
func (c *Cache) Get(key string) (Vector, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || c.now().Sub(entry.builtAt) > c.ttl {
		metrics.RecordCacheMiss()
		return nil, false
	}

	metrics.RecordCacheHit()
	out := make(Vector, len(entry.features))
	for k, v := range entry.features {
		out[k] = v
	}
	return out, true
}

// Put stores a vector unconditionally, overwriting any previous entry.
// When the entry count exceeds the threshold a sweep removes every stale
// entry; if that frees nothing (high churn of fresh keys) the stalest
// entry is evicted so the cache stays bounded at threshold+1.
func (c *Cache) Put(key string, features Vector) {
	stored := make(Vector, len(features))
	for k, v := range features {
		stored[k] = v
	}

	c.mu.Lock()
	c.entries[key] = &cacheEntry{features: stored, builtAt: c.now()}
	if len(c.entries) > c.threshold {
		if c.sweepLocked() == 0 && len(c.entries) > c.threshold {
			c.evictOldestLocked()
		}
	}
	size := len(c.entries)
	c.mu.Unlock()

	metrics.UpdateCacheSize(size)
}

// Sweep removes every entry whose age exceeds the TTL and returns the
// number of entries removed.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	removed := c.sweepLocked()
	size := len(c.entries)
	c.mu.Unlock()

	metrics.UpdateCacheSize(size)
	return removed
}

// sweepLocked deletes stale entries. Caller must hold c.mu.
func (c *Cache) sweepLocked() int {
	now := c.now()
	removed := 0
	for key, entry := range c.entries {
		if now.Sub(entry.builtAt) > c.ttl {
			delete(c.entries, key)
			removed++
		}
	}
	metrics.RecordCacheSweep()
	return removed
}

// evictOldestLocked removes the entry with the oldest build time.
// Caller must hold c.mu.
func (c *Cache) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	first := true

	for key, entry := range c.entries {
		if first || entry.builtAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = entry.builtAt
			first = false
		}
	}

	if !first {
		delete(c.entries, oldestKey)
	}
}

// Len returns the current number of entries, stale ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
