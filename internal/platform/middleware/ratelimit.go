package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultMaxKeys bounds the number of clients the in-process limiter tracks.
const DefaultMaxKeys = 10000

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	MaxKeys           int
}

// DefaultRateLimitConfig matches the RATE_LIMIT_RPS / RATE_LIMIT_BURST defaults.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 50,
		BurstSize:         100,
		MaxKeys:           DefaultMaxKeys,
	}
}

func (c RateLimitConfig) normalized() RateLimitConfig {
	def := DefaultRateLimitConfig()
	if c.RequestsPerSecond <= 0 || c.BurstSize <= 0 {
		c.RequestsPerSecond, c.BurstSize = def.RequestsPerSecond, def.BurstSize
	}
	if c.MaxKeys <= 0 {
		c.MaxKeys = def.MaxKeys
	}
	return c
}

// refillWindow is how long an empty bucket takes to fill up again.
func (c RateLimitConfig) refillWindow() time.Duration {
	return time.Duration(float64(c.BurstSize) / c.RequestsPerSecond * float64(time.Second))
}

// Decision is the outcome of one rate limit check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter decides whether the client identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// MemoryLimiter is a per-key token bucket kept in process memory. It is used
// when REDIS_URL is not set.
type MemoryLimiter struct {
	cfg     RateLimitConfig
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	tokens float64
	last   time.Time
}

func NewMemoryLimiter(cfg RateLimitConfig) *MemoryLimiter {
	return &MemoryLimiter{
		cfg:     cfg.normalized(),
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	burst := float64(l.cfg.BurstSize)
	b, ok := l.buckets[key]
	if !ok {
		if len(l.buckets) >= l.cfg.MaxKeys {
			l.evict(now)
		}
		b = &bucket{tokens: burst, last: now}
		l.buckets[key] = b
	}
	b.tokens = math.Min(burst, b.tokens+now.Sub(b.last).Seconds()*l.cfg.RequestsPerSecond)
	b.last = now

	d := Decision{Limit: l.cfg.BurstSize}
	if b.tokens >= 1 {
		b.tokens--
		d.Allowed = true
		d.Remaining = int(b.tokens)
		return d, nil
	}
	d.RetryAfter = time.Duration((1 - b.tokens) / l.cfg.RequestsPerSecond * float64(time.Second))
	return d, nil
}

// evict drops buckets that have refilled completely, which are equivalent to
// a fresh bucket. If every tracked client is still draining, the least
// recently seen one goes.
func (l *MemoryLimiter) evict(now time.Time) {
	window := l.cfg.refillWindow()
	var oldestKey string
	var oldest time.Time
	for k, b := range l.buckets {
		if now.Sub(b.last) >= window {
			delete(l.buckets, k)
			continue
		}
		if oldestKey == "" || b.last.Before(oldest) {
			oldestKey, oldest = k, b.last
		}
	}
	if len(l.buckets) >= l.cfg.MaxKeys && oldestKey != "" {
		delete(l.buckets, oldestKey)
	}
}

// Len reports how many clients are tracked.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// RedisLimiter is a fixed-window limiter shared by every server instance.
// Each window admits BurstSize requests and lasts as long as a full refill,
// so the long-run rate matches RequestsPerSecond.
type RedisLimiter struct {
	rdb    redis.Scripter
	limit  int
	window time.Duration
	prefix string
}

// The script returns the window's count and its remaining TTL in ms.
var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {current, redis.call("PTTL", KEYS[1])}
`)

func NewRedisLimiter(rdb redis.Scripter, cfg RateLimitConfig, prefix string) *RedisLimiter {
	cfg = cfg.normalized()
	if prefix == "" {
		prefix = "ratelimit"
	}
	window := cfg.refillWindow()
	if window < time.Millisecond {
		window = time.Millisecond
	}
	return &RedisLimiter{rdb: rdb, limit: cfg.BurstSize, window: window, prefix: prefix}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	vals, err := fixedWindowScript.Run(ctx, l.rdb, []string{l.prefix + ":" + key}, l.window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("redis rate limit %s: %w", key, err)
	}
	if len(vals) != 2 {
		return Decision{}, fmt.Errorf("redis rate limit %s: unexpected reply %v", key, vals)
	}
	count, ttl := vals[0], vals[1]

	d := Decision{Limit: l.limit, Remaining: max(0, l.limit-int(count))}
	if count <= int64(l.limit) {
		d.Allowed = true
		return d, nil
	}
	d.RetryAfter = time.Duration(ttl) * time.Millisecond
	if ttl < 0 {
		d.RetryAfter = l.window
	}
	return d, nil
}

// RateLimit rejects clients over their budget with 429. Clients are keyed by
// IP, split by tenant once it is known. When the limiter itself fails the
// request goes through and the failure is logged.
func RateLimit(l Limiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.RealIP()
			if tenantID, ok := c.Get("tenant_id").(string); ok && tenantID != "" {
				key = tenantID + ":" + key
			}

			d, err := l.Allow(c.Request().Context(), key)
			if err != nil {
				zerolog.Ctx(c.Request().Context()).Warn().Err(err).Msg("rate limiter unavailable, allowing request")
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			if !d.Allowed {
				h.Set("Retry-After", strconv.Itoa(retryAfterSeconds(d.RetryAfter)))
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}

func retryAfterSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}
