// Package cache provides an in-memory cache whose entries expire after a fixed TTL.
package cache

import (
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

// Cache maps keys to values stamped with their insertion time. Entries older
// than the TTL are treated as absent and evicted on read. A non-positive TTL
// disables the cache: Set is a no-op and Get always misses.
type Cache[K comparable, V any] struct {
	ttl   time.Duration
	items *xsync.Map[K, entry[V]]
	now   func() time.Time
}

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// New creates a cache with the given TTL.
func New[K comparable, V any](ttl time.Duration) *Cache[K, V] {
	return &Cache[K, V]{
		ttl:   ttl,
		items: xsync.NewMap[K, entry[V]](),
		now:   time.Now,
	}
}

// Get returns the cached value for key if it was stored less than TTL ago.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	var zero V
	if c.ttl <= 0 {
		return zero, false
	}
	e, ok := c.items.Load(key)
	if !ok {
		return zero, false
	}
	if c.now().Sub(e.storedAt) >= c.ttl {
		// A Set racing with this Delete is lost; the next Get misses and the caller refetches.
		c.items.Delete(key)
		return zero, false
	}
	return e.value, true
}

// Set stores value under key, replacing any previous entry.
func (c *Cache[K, V]) Set(key K, value V) {
	if c.ttl <= 0 {
		return
	}
	c.items.Store(key, entry[V]{value: value, storedAt: c.now()})
}

// Delete removes key.
func (c *Cache[K, V]) Delete(key K) {
	c.items.Delete(key)
}

// Clear removes every entry.
func (c *Cache[K, V]) Clear() {
	c.items.Clear()
}

// Len reports the number of stored entries, expired ones included until they are read.
func (c *Cache[K, V]) Len() int {
	return c.items.Size()
}
