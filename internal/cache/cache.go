// Package cache implements the Action Cache (spec §4.4): a
// stale-while-revalidate store for pre-request action output, keyed by
// "actionName:userId". Structurally grounded on the teacher repository's
// internal/cache.DedupeCache (mutex+map idiom, an injectable-timestamp
// CheckAt/Check pairing for testability); the get/getStale/isStale/set
// contract itself is grounded on the original Python implementation's
// modules/actions/cache.py, which this package ports key-for-key.
package cache

import (
	"sync"
	"time"
)

type entry struct {
	data     any
	storedAt time.Time
}

// Cache is the concurrency-safe store behind spec §4.4's contract.
// Readers never block writers for longer than a single map lookup.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

// New constructs an empty Cache.
func New() *Cache {
	return &Cache{entries: make(map[string]entry), now: time.Now}
}

// NewWithClock is used by tests to control TTL expiry deterministically.
func NewWithClock(now func() time.Time) *Cache {
	return &Cache{entries: make(map[string]entry), now: now}
}

func key(actionName, userID string) string {
	return actionName + ":" + userID
}

// Get returns the cached data for (actionName, userID) if present and not
// stale under ttl. ttl <= 0 disables caching entirely.
func (c *Cache) Get(actionName, userID string, ttl time.Duration) (any, bool) {
	if ttl <= 0 {
		return nil, false
	}
	c.mu.RLock()
	e, ok := c.entries[key(actionName, userID)]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.storedAt) >= ttl {
		return nil, false
	}
	return e.data, true
}

// GetStale returns cached data regardless of age, used when a fresh
// lookup misses and the caller wants to serve stale data while a refresh
// is dispatched in the background (spec §4.1 step 5).
func (c *Cache) GetStale(actionName, userID string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key(actionName, userID)]
	if !ok {
		return nil, false
	}
	return e.data, true
}

// IsStale reports whether the entry is absent or older than ttl.
func (c *Cache) IsStale(actionName, userID string, ttl time.Duration) bool {
	if ttl <= 0 {
		return true
	}
	c.mu.RLock()
	e, ok := c.entries[key(actionName, userID)]
	c.mu.RUnlock()
	if !ok {
		return true
	}
	return c.now().Sub(e.storedAt) >= ttl
}

// Set stores data for (actionName, userID). ttl <= 0 makes this a no-op so
// callers don't need to branch before calling Set.
func (c *Cache) Set(actionName, userID string, data any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key(actionName, userID)] = entry{data: data, storedAt: c.now()}
}

// Invalidate removes a single entry.
func (c *Cache) Invalidate(actionName, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key(actionName, userID))
}

// ClearUser removes every entry belonging to userID, across all actions.
func (c *Cache) ClearUser(userID string) {
	suffix := ":" + userID
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if len(k) >= len(suffix) && k[len(k)-len(suffix):] == suffix {
			delete(c.entries, k)
		}
	}
}
