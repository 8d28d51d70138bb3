package api

import (
	"context"
	"sync"
	"time"

	"louyass/core"
	"louyass/metrics"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jonboulle/clockwork"
)

// UserLoader loads a user by id
type UserLoader interface {
	Get(ctx context.Context, id int64) (*core.User, error)
}

type cachedUser struct {
	user      core.User
	expiresAt time.Time
}

// userCache keeps recently authenticated users so that each request does not
// hit SQLite. Entries expire after ttl and are dropped on profile changes.
type userCache struct {
	mu     sync.Mutex
	cache  *lru.Cache[int64, cachedUser]
	loader UserLoader
	ttl    time.Duration
	clock  clockwork.Clock
}

func newUserCache(loader UserLoader, size int, ttl time.Duration, clock clockwork.Clock) (*userCache, error) {
	if size <= 0 {
		size = 1024
	}
	c, err := lru.New[int64, cachedUser](size)
	if err != nil {
		return nil, err
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &userCache{cache: c, loader: loader, ttl: ttl, clock: clock}, nil
}

// Get returns a copy of the user, loading it on a miss
func (c *userCache) Get(ctx context.Context, id int64) (*core.User, error) {
	now := c.clock.Now()
	c.mu.Lock()
	entry, ok := c.cache.Get(id)
	c.mu.Unlock()
	if ok && now.Before(entry.expiresAt) {
		metrics.CacheHits.WithLabelValues("lru").Inc()
		u := entry.user
		return &u, nil
	}
	metrics.CacheMisses.WithLabelValues("lru").Inc()

	u, err := c.loader.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.ttl > 0 {
		c.mu.Lock()
		c.cache.Add(id, cachedUser{user: *u, expiresAt: now.Add(c.ttl)})
		c.mu.Unlock()
	}
	return u, nil
}

// Invalidate drops the cached copy of a user
func (c *userCache) Invalidate(id int64) {
	c.mu.Lock()
	c.cache.Remove(id)
	c.mu.Unlock()
}

// Len returns the number of cached users
func (c *userCache) Len() int {
	return c.cache.Len()
}
