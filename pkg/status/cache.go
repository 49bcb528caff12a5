// Package status provides the connectivity checker and the TTL cache its
// results are published through for display by operators.
package status

import (
	"sync"
	"time"
)

// entry is a single cached value with its expiry.
type entry struct {
	value     any
	expiresAt time.Time
}

// Cache is an in-memory key/value cache with per-entry TTL.
//
// Thread safety: safe for concurrent use. Expired entries are dropped on
// read; Sweep may be called periodically to reclaim memory eagerly.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]entry)}
}

// Set stores a value with the given TTL. A non-positive TTL removes the key.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ttl <= 0 {
		delete(c.entries, key)
		return
	}
	c.entries[key] = entry{value: value, expiresAt: time.Now().Add(ttl)}
}

// Get returns the value for key, or false if absent or expired.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

// Sweep removes all expired entries.
func (c *Cache) Sweep() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
