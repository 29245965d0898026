package registry

import (
	"sync"
	"time"
)

type cacheEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTLCache is an expiring key-value store. A single mutex guards the backing
// map; expired entries are removed lazily on access and in bulk by Cleanup.
type TTLCache[V any] struct {
	mu         sync.Mutex
	defaultTTL time.Duration
	entries    map[string]cacheEntry[V]
}

// NewTTLCache creates a cache whose entries expire after defaultTTL unless a
// per-entry TTL is supplied
func NewTTLCache[V any](defaultTTL time.Duration) *TTLCache[V] {
	return &TTLCache[V]{
		defaultTTL: defaultTTL,
		entries:    make(map[string]cacheEntry[V]),
	}
}

// Get returns the value for key. An entry at or past its expiry is treated as
// absent and deleted.
func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if !time.Now().Before(entry.expiresAt) {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return entry.value, true
}

// Put stores value under key with the default TTL
func (c *TTLCache[V]) Put(key string, value V) {
	c.PutTTL(key, value, c.defaultTTL)
}

// PutTTL stores value under key with an explicit TTL
func (c *TTLCache[V]) PutTTL(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry[V]{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
}

// Remove deletes key from the cache
func (c *TTLCache[V]) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
}

// Clear removes all entries
func (c *TTLCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]cacheEntry[V])
}

// Cleanup removes all expired entries in one pass and returns how many were
// removed
func (c *TTLCache[V]) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for key, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Size returns the number of entries currently stored, including any that
// have expired but not yet been swept
func (c *TTLCache[V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}
