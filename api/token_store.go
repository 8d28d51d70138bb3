package api

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"louyass/core"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// TokenStore remembers issued and revoked token ids
type TokenStore interface {
	// Track records a token issued to a user so RevokeAll can find it
	Track(ctx context.Context, userID int64, jti string, expiry time.Time) error
	// Revoke blacklists a token id until expiry
	Revoke(ctx context.Context, jti string, expiry time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
	// RevokeAll blacklists every tracked token of the user and returns how many
	RevokeAll(ctx context.Context, userID int64) (int, error)
}

// MemoryTokenStore keeps revoked tokens in process. Used when Redis is not
// configured; revocations are lost on restart and not shared between replicas.
type MemoryTokenStore struct {
	mu         sync.Mutex
	revoked    map[string]time.Time
	userTokens map[int64]map[string]time.Time
	clock      clockwork.Clock
}

// NewMemoryTokenStore creates an empty in-memory store
func NewMemoryTokenStore(clock clockwork.Clock) *MemoryTokenStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryTokenStore{
		revoked:    make(map[string]time.Time),
		userTokens: make(map[int64]map[string]time.Time),
		clock:      clock,
	}
}

func (m *MemoryTokenStore) Track(_ context.Context, userID int64, jti string, expiry time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tokens, ok := m.userTokens[userID]
	if !ok {
		tokens = make(map[string]time.Time)
		m.userTokens[userID] = tokens
	}
	tokens[jti] = expiry
	return nil
}

func (m *MemoryTokenStore) Revoke(_ context.Context, jti string, expiry time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[jti] = expiry
	return nil
}

func (m *MemoryTokenStore) IsRevoked(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	expiry, ok := m.revoked[jti]
	if !ok {
		return false, nil
	}
	// past its expiry the token is rejected as expired anyway
	return m.clock.Now().Before(expiry), nil
}

func (m *MemoryTokenStore) RevokeAll(_ context.Context, userID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tokens := m.userTokens[userID]
	for jti, expiry := range tokens {
		m.revoked[jti] = expiry
	}
	delete(m.userTokens, userID)
	return len(tokens), nil
}

// Cleanup removes expired entries and returns how many revocations were dropped
func (m *MemoryTokenStore) Cleanup() int {
	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	cleaned := 0
	for jti, expiry := range m.revoked {
		if now.After(expiry) {
			delete(m.revoked, jti)
			cleaned++
		}
	}
	for userID, tokens := range m.userTokens {
		for jti, expiry := range tokens {
			if now.After(expiry) {
				delete(tokens, jti)
			}
		}
		if len(tokens) == 0 {
			delete(m.userTokens, userID)
		}
	}
	return cleaned
}

// RunCleanup calls Cleanup every interval until stop is closed
func (m *MemoryTokenStore) RunCleanup(interval time.Duration, stop <-chan struct{}, logger *zap.SugaredLogger) {
	ticker := m.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.Chan():
			if n := m.Cleanup(); n > 0 {
				logger.Infow("Cleaned up expired tokens from blacklist", "count", n)
			}
		case <-stop:
			return
		}
	}
}

// RedisTokenStore shares revocations between API replicas. Keys expire with
// the token so no cleanup loop is needed.
type RedisTokenStore struct {
	cache *core.RedisCache
	clock clockwork.Clock
}

// NewRedisTokenStore wraps a RedisCache
func NewRedisTokenStore(cache *core.RedisCache, clock clockwork.Clock) *RedisTokenStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RedisTokenStore{cache: cache, clock: clock}
}

func (r *RedisTokenStore) Track(ctx context.Context, userID int64, jti string, expiry time.Time) error {
	ttl := expiry.Sub(r.clock.Now())
	if ttl <= 0 {
		return nil
	}
	member := jti + "|" + strconv.FormatInt(expiry.Unix(), 10)
	return r.cache.AddToSet(ctx, core.GetUserTokensCacheKey(userID), ttl, member)
}

func (r *RedisTokenStore) Revoke(ctx context.Context, jti string, expiry time.Time) error {
	ttl := expiry.Sub(r.clock.Now())
	if ttl <= 0 {
		return nil
	}
	return r.cache.Set(ctx, core.GetRevokedTokenCacheKey(jti), true, ttl)
}

func (r *RedisTokenStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	return r.cache.Exists(ctx, core.GetRevokedTokenCacheKey(jti))
}

func (r *RedisTokenStore) RevokeAll(ctx context.Context, userID int64) (int, error) {
	key := core.GetUserTokensCacheKey(userID)
	members, err := r.cache.SetMembers(ctx, key)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, m := range members {
		jti, unix, ok := strings.Cut(m, "|")
		if !ok {
			continue
		}
		sec, err := strconv.ParseInt(unix, 10, 64)
		if err != nil {
			continue
		}
		if err := r.Revoke(ctx, jti, time.Unix(sec, 0)); err != nil {
			return count, fmt.Errorf("revoke %s: %w", jti, err)
		}
		count++
	}
	return count, r.cache.Delete(ctx, key)
}
