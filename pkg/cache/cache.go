// Package cache provides an in-memory key/value cache with per-entry TTL,
// used to memoize responses from the upstream test-management API.
package cache

import (
	"strings"
	"sync"
	"time"
)

// entry holds a cached value with its expiration time and insertion order.
type entry struct {
	value      any
	expiresAt  time.Time
	insertedAt time.Time
}

// TTLCache is a thread-safe in-memory cache with per-entry TTL and max-size
// eviction. When the cache reaches maxSize, the oldest entry (by insertion
// time) is evicted to make room. Expired entries are lazily evicted on Get.
//
// A nil *TTLCache is valid: Get always misses and mutations are no-ops, so
// callers can disable caching without guarding every call site.
type TTLCache struct {
	mu         sync.RWMutex
	items      map[string]*entry
	maxSize    int
	defaultTTL time.Duration
}

// New creates a TTLCache with the given maximum size and default TTL.
// maxSize must be >= 1; defaultTTL must be > 0.
func New(maxSize int, defaultTTL time.Duration) *TTLCache {
	if maxSize < 1 {
		maxSize = 1
	}
	if defaultTTL <= 0 {
		defaultTTL = 60 * time.Second
	}
	return &TTLCache{
		items:      make(map[string]*entry, maxSize),
		maxSize:    maxSize,
		defaultTTL: defaultTTL,
	}
}

// FromConfig creates a TTLCache from the given configuration, or nil when
// the config is nil or disabled.
func FromConfig(cfg *Config) *TTLCache {
	if cfg == nil || !cfg.Enabled {
		return nil
	}
	return New(cfg.MaxSize, cfg.DefaultTTL)
}

// Get retrieves a cached value by key. Returns (nil, false) if the key is
// missing or expired. Expired entries are lazily deleted.
func (c *TTLCache) Get(key string) (any, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		return nil, false
	}

	if time.Now().After(e.expiresAt) {
		delete(c.items, key)
		return nil, false
	}

	return e.value, true
}

// Set stores a value under key with the given TTL. A ttl <= 0 uses the
// cache's default TTL. If the cache is at capacity, the oldest entry (by
// insertion time) is evicted before inserting.
func (c *TTLCache) Set(key string, value any, ttl time.Duration) {
	if c == nil {
		return
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()

	// If key already exists, update it in place.
	if _, ok := c.items[key]; ok {
		c.items[key] = &entry{value: value, expiresAt: now.Add(ttl), insertedAt: now}
		return
	}

	if len(c.items) >= c.maxSize {
		c.evictOldest()
	}

	c.items[key] = &entry{value: value, expiresAt: now.Add(ttl), insertedAt: now}
}

// Invalidate removes a specific key from the cache.
func (c *TTLCache) Invalidate(key string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// InvalidateAll removes all entries from the cache.
func (c *TTLCache) InvalidateAll() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*entry, c.maxSize)
}

// InvalidatePrefix removes all entries whose key starts with prefix. Keys
// are derived from endpoint paths, so a prefix maps to one upstream resource
// family (e.g. "get_tests/").
func (c *TTLCache) InvalidatePrefix(prefix string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.items {
		if strings.HasPrefix(k, prefix) {
			delete(c.items, k)
		}
	}
}

// Len returns the number of entries currently in the cache (including
// potentially expired ones that haven't been lazily cleaned).
func (c *TTLCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// evictOldest removes the entry with the oldest insertedAt timestamp.
// Must be called with c.mu held.
func (c *TTLCache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time
	first := true

	for k, e := range c.items {
		if first || e.insertedAt.Before(oldestTime) {
			oldestKey = k
			oldestTime = e.insertedAt
			first = false
		}
	}

	if !first {
		delete(c.items, oldestKey)
	}
}
