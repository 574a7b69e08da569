package cache

import (
	"context"
	"sync"
	"time"
)

type localEntry struct {
	value     string
	expiresAt time.Time
}

// LocalCache implements Cache in process memory.
// This is suitable for single-instance deployments.
type LocalCache struct {
	mu      sync.RWMutex
	entries map[string]localEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewLocalCache creates an in-memory cache whose entries live for ttl.
func NewLocalCache(ttl time.Duration) *LocalCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &LocalCache{
		entries: make(map[string]localEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get retrieves a live entry. Expired entries are dropped lazily.
func (c *LocalCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return "", false, nil
	}
	if !c.now().Before(e.expiresAt) {
		c.mu.Lock()
		if cur, still := c.entries[key]; still && cur.expiresAt.Equal(e.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return "", false, nil
	}
	return e.value, true, nil
}

// Set stores value under key.
func (c *LocalCache) Set(_ context.Context, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = localEntry{value: value, expiresAt: c.now().Add(c.ttl)}
	return nil
}

// Delete removes key.
func (c *LocalCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

// Len reports the number of stored entries, including expired ones not yet dropped.
func (c *LocalCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close empties the cache.
func (c *LocalCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]localEntry)
	return nil
}
