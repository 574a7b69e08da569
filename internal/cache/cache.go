// Package cache provides a small key/value cache used to memoize lookups.
// Supports both local (in-memory) and Redis backends for multi-instance deployments.
package cache

import (
	"context"
	"fmt"
	"time"
)

// DefaultTTL is used when a cache is created without an explicit TTL.
const DefaultTTL = 5 * time.Minute

// Cache stores string values under string keys.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns the value for key. ok is false on a miss or an expired entry.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set stores value under key for the cache's TTL.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the cache.
	Close() error
}

// Config selects and configures a cache backend.
type Config struct {
	// Type is "local" or "redis"
	Type     string
	TTL      time.Duration
	RedisURL string
	// Prefix namespaces Redis keys
	Prefix string
}

// New creates the cache described by cfg.
func New(cfg Config) (Cache, error) {
	switch cfg.Type {
	case "", "local":
		return NewLocalCache(cfg.TTL), nil
	case "redis":
		return NewRedisCache(RedisConfig{URL: cfg.RedisURL, Prefix: cfg.Prefix, TTL: cfg.TTL})
	default:
		return nil, fmt.Errorf("unknown cache type: %s", cfg.Type)
	}
}
