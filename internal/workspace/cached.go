package workspace

import (
	"context"
	"log/slog"

	"sirchat/internal/auth"
	"sirchat/internal/cache"
	"sirchat/internal/observability"
)

const cacheKeyPrefix = "home-workspace:"

// Cached memoizes found workspace ids. Misses and errors are never cached,
// so a workspace created after the first visit is picked up immediately.
type Cached struct {
	next  Lookup
	cache cache.Cache
}

// NewCached wraps next with c.
func NewCached(next Lookup, c cache.Cache) *Cached {
	return &Cached{next: next, cache: c}
}

func (c *Cached) HomeWorkspaceID(ctx context.Context, sess *auth.Session) (string, error) {
	key := cacheKeyPrefix + sess.UserID

	id, ok, err := c.cache.Get(ctx, key)
	switch {
	case err != nil:
		observability.RecordWorkspaceCacheLookup("error")
		slog.Warn("workspace cache read failed", "error", err)
	case ok:
		observability.RecordWorkspaceCacheLookup("hit")
		return id, nil
	default:
		observability.RecordWorkspaceCacheLookup("miss")
	}

	id, err = c.next.HomeWorkspaceID(ctx, sess)
	if err != nil {
		return "", err
	}
	if err := c.cache.Set(ctx, key, id); err != nil {
		slog.Warn("workspace cache write failed", "error", err)
	}
	return id, nil
}
