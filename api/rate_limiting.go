package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"louyass/core"
	"louyass/metrics"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimiterTier names a rate limiting tier
type RateLimiterTier string

const (
	RateLimitTierLogin RateLimiterTier = "login" // login and register: per IP, per minute
	RateLimitTierAPI   RateLimiterTier = "api"   // every request: per IP, configured rps
)

const (
	defaultLoginPerMinute  = 10
	limiterIdleTTL         = time.Hour
	limiterCleanupInterval = 10 * time.Minute
)

// RateLimiterConfig holds the configuration of one tier
type RateLimiterConfig struct {
	Limit  int           // Maximum requests per Window
	Window time.Duration // Time window
	Burst  int           // Burst allowance
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-key token bucket. With Redis it falls back to a shared
// fixed window counter so replicas enforce the same budget.
type RateLimiter struct {
	config    RateLimiterConfig
	tier      RateLimiterTier
	limiters  map[string]*limiterEntry
	mu        sync.Mutex
	redis     *core.RedisCache // optional
	clock     clockwork.Clock
	logger    *zap.SugaredLogger
	stopCh    chan struct{}
	stopOnce  sync.Once
	cleanupWg sync.WaitGroup
}

// NewRateLimiter creates a limiter and starts its cleanup goroutine. redis may be nil.
func NewRateLimiter(tier RateLimiterTier, config RateLimiterConfig, redis *core.RedisCache, clock clockwork.Clock, logger *zap.SugaredLogger) *RateLimiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	rl := &RateLimiter{
		config:   config,
		tier:     tier,
		limiters: make(map[string]*limiterEntry),
		redis:    redis,
		clock:    clock,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}

	rl.cleanupWg.Add(1)
	go rl.cleanup()

	return rl
}

// Allow reports whether a request identified by key may proceed
func (rl *RateLimiter) Allow(ctx context.Context, key string) bool {
	if rl.redis != nil {
		return rl.allowRedis(ctx, key)
	}
	return rl.allowMemory(key)
}

func (rl *RateLimiter) allowMemory(key string) bool {
	rl.mu.Lock()
	entry, exists := rl.limiters[key]
	if !exists {
		entry = &limiterEntry{
			limiter: rate.NewLimiter(rate.Limit(float64(rl.config.Limit)/rl.config.Window.Seconds()), rl.config.Burst),
		}
		rl.limiters[key] = entry
	}
	entry.lastSeen = rl.clock.Now()
	// Capture limiter reference while holding lock to prevent race with cleanup
	limiter := entry.limiter
	rl.mu.Unlock()

	return limiter.AllowN(rl.clock.Now(), 1)
}

// allowRedis counts requests in the current window. Redis errors fall back
// to the in-memory limiter.
func (rl *RateLimiter) allowRedis(ctx context.Context, key string) bool {
	window := rl.clock.Now().Unix() / int64(rl.config.Window.Seconds())
	redisKey := fmt.Sprintf("ratelimit:%s:%s:%d", rl.tier, key, window)

	var count int
	found, err := rl.redis.Get(ctx, redisKey, &count)
	if err != nil {
		rl.logger.Warnw("Redis rate limit check failed, falling back to memory", "tier", rl.tier, "error", err)
		return rl.allowMemory(key)
	}
	if !found {
		count = 0
	}
	if count >= rl.config.Limit+rl.config.Burst {
		return false
	}

	count++
	if err := rl.redis.Set(ctx, redisKey, count, rl.config.Window); err != nil {
		rl.logger.Warnw("Redis rate limit increment failed", "tier", rl.tier, "error", err)
		return rl.allowMemory(key)
	}
	return true
}

// Sweep drops limiters idle for longer than limiterIdleTTL
func (rl *RateLimiter) Sweep() int {
	now := rl.clock.Now()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	removed := 0
	for key, entry := range rl.limiters {
		if now.Sub(entry.lastSeen) > limiterIdleTTL {
			delete(rl.limiters, key)
			removed++
		}
	}
	return removed
}

func (rl *RateLimiter) cleanup() {
	defer rl.cleanupWg.Done()
	ticker := rl.clock.NewTicker(limiterCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			if n := rl.Sweep(); n > 0 {
				rl.logger.Debugw("Removed idle rate limiters", "tier", rl.tier, "count", n)
			}
		case <-rl.stopCh:
			return
		}
	}
}

// Close stops the cleanup goroutine
func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
	rl.cleanupWg.Wait()
}

// rateLimitMiddleware applies the API tier to every request by client IP
func (a *API) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.apiLimiter.Allow(r.Context(), getRealIP(r, a.trustedProxies)) {
			metrics.RateLimitRejections.Inc()
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "Trop de requêtes", nil, nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// loginRateLimit applies the login tier to credential endpoints
func (a *API) loginRateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := getRealIP(r, a.trustedProxies)
		if !a.loginLimiter.Allow(r.Context(), ip) {
			metrics.RateLimitRejections.Inc()
			a.logger.Warnw("Login rate limit exceeded", "ip", ip)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "Trop de tentatives de connexion. Réessayez plus tard.", nil, nil)
			return
		}
		next(w, r)
	}
}

// apiTierConfig converts requests per second to a one second window
func apiTierConfig(rps float64, burst int) RateLimiterConfig {
	limit := int(rps)
	if limit < 1 {
		limit = 1
	}
	if burst < 1 {
		burst = 1
	}
	return RateLimiterConfig{Limit: limit, Window: time.Second, Burst: burst}
}

func loginTierConfig(perMinute int) RateLimiterConfig {
	if perMinute <= 0 {
		perMinute = defaultLoginPerMinute
	}
	return RateLimiterConfig{Limit: perMinute, Window: time.Minute, Burst: perMinute}
}
