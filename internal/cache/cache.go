// Package cache is a small TTL cache for derived metadata responses. It only
// affects latency: a miss or an evicted entry is always recomputable from the
// live session, so correctness never depends on what is cached.
package cache

import (
	"sync"
	"time"
)

const defaultMaxEntries = 400

type entry[V any] struct {
	value     V
	updatedAt time.Time
	expiresAt time.Time
}

type Cache[K comparable, V any] struct {
	ttl        time.Duration
	maxEntries int

	mu      sync.Mutex
	entries map[K]entry[V]
}

func New[K comparable, V any](ttl time.Duration, maxEntries int) *Cache[K, V] {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	return &Cache[K, V]{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[K]entry[V]),
	}
}

func (c *Cache[K, V]) Get(key K) (V, bool) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if now.After(e.expiresAt) {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

func (c *Cache[K, V]) Set(key K, value V) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry[V]{
		value:     value,
		updatedAt: now,
		expiresAt: now.Add(c.ttl),
	}
	c.trimLocked(now)
}

func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// trimLocked drops expired entries, then the oldest ones beyond maxEntries.
func (c *Cache[K, V]) trimLocked(now time.Time) {
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
		}
	}
	for len(c.entries) > c.maxEntries {
		var oldestKey K
		var oldestAt time.Time
		first := true
		for key, e := range c.entries {
			if first || e.updatedAt.Before(oldestAt) {
				oldestKey = key
				oldestAt = e.updatedAt
				first = false
			}
		}
		delete(c.entries, oldestKey)
	}
}
