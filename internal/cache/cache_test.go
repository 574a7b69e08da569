package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalCache(t *testing.T) {
	ctx := context.Background()

	t.Run("GetSetRoundTrip", func(t *testing.T) {
		c := NewLocalCache(time.Minute)

		_, ok, err := c.Get(ctx, "user-1")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, c.Set(ctx, "user-1", "ws-1"))

		got, ok, err := c.Get(ctx, "user-1")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "ws-1", got)
	})

	t.Run("EntriesExpire", func(t *testing.T) {
		now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		c := NewLocalCache(time.Minute)
		c.now = func() time.Time { return now }

		require.NoError(t, c.Set(ctx, "k", "v"))

		now = now.Add(59 * time.Second)
		_, ok, _ := c.Get(ctx, "k")
		assert.True(t, ok)

		now = now.Add(time.Second)
		_, ok, _ = c.Get(ctx, "k")
		assert.False(t, ok)
		assert.Equal(t, 0, c.Len(), "expired entry should be dropped")
	})

	t.Run("SetRefreshesTTL", func(t *testing.T) {
		now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		c := NewLocalCache(time.Minute)
		c.now = func() time.Time { return now }

		require.NoError(t, c.Set(ctx, "k", "old"))
		now = now.Add(50 * time.Second)
		require.NoError(t, c.Set(ctx, "k", "new"))
		now = now.Add(50 * time.Second)

		got, ok, _ := c.Get(ctx, "k")
		assert.True(t, ok)
		assert.Equal(t, "new", got)
	})

	t.Run("Delete", func(t *testing.T) {
		c := NewLocalCache(time.Minute)
		require.NoError(t, c.Set(ctx, "k", "v"))
		require.NoError(t, c.Delete(ctx, "k"))
		require.NoError(t, c.Delete(ctx, "missing"))

		_, ok, _ := c.Get(ctx, "k")
		assert.False(t, ok)
	})

	t.Run("DefaultTTL", func(t *testing.T) {
		c := NewLocalCache(0)
		assert.Equal(t, DefaultTTL, c.ttl)
	})

	t.Run("Close", func(t *testing.T) {
		c := NewLocalCache(time.Minute)
		require.NoError(t, c.Set(ctx, "k", "v"))
		require.NoError(t, c.Close())
		assert.Equal(t, 0, c.Len())
	})

	t.Run("ConcurrentAccess", func(t *testing.T) {
		c := NewLocalCache(time.Minute)
		var wg sync.WaitGroup
		for i := range 20 {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				key := fmt.Sprintf("k%d", i%5)
				_ = c.Set(ctx, key, "v")
				_, _, _ = c.Get(ctx, key)
			}(i)
		}
		wg.Wait()
		assert.Equal(t, 5, c.Len())
	})
}

func TestNew(t *testing.T) {
	t.Run("local by default", func(t *testing.T) {
		c, err := New(Config{})
		require.NoError(t, err)
		assert.IsType(t, &LocalCache{}, c)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := New(Config{Type: "memcached"})
		assert.Error(t, err)
	})

	t.Run("invalid redis URL", func(t *testing.T) {
		_, err := New(Config{Type: "redis", RedisURL: "not-a-url"})
		assert.ErrorContains(t, err, "invalid redis URL")
	})
}

func TestRedisDefaults(t *testing.T) {
	assert.Equal(t, DefaultRedisPrefix, prefixOrDefault(""))
	assert.Equal(t, "app:", prefixOrDefault("app:"))
	assert.Equal(t, DefaultTTL, ttlOrDefault(0))
	assert.Equal(t, time.Hour, ttlOrDefault(time.Hour))
}
