package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/subgov/backend/internal/domain/shared"
	"github.com/subgov/backend/internal/infrastructure/logger"
	"github.com/subgov/backend/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// Decision is the outcome of one rate limit check
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter counts requests per key in fixed windows
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// LocalLimiter is a fixed window limiter held in process memory. Limits are
// per instance.
type LocalLimiter struct {
	mu        sync.Mutex
	windows   map[string]*window
	limit     int
	period    time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type window struct {
	count int
	start time.Time
}

// NewLocalLimiter creates a limiter allowing limit requests per period
func NewLocalLimiter(limit int, period time.Duration) *LocalLimiter {
	return &LocalLimiter{
		windows: make(map[string]*window),
		limit:   limit,
		period:  period,
		now:     time.Now,
	}
}

// Allow counts one request for key
func (l *LocalLimiter) Allow(_ context.Context, key string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > 2*l.period {
		for k, w := range l.windows {
			if now.Sub(w.start) >= l.period {
				delete(l.windows, k)
			}
		}
		l.lastSweep = now
	}

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.period {
		w = &window{start: now}
		l.windows[key] = w
	}
	w.count++
	return decide(w.count, l.limit, w.start.Add(l.period).Sub(now)), nil
}

// rateScript increments the window counter, arms its expiry on first use and
// returns the count with the remaining TTL in milliseconds
var rateScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return {n, redis.call('PTTL', KEYS[1])}
`)

// RedisLimiter shares fixed windows across instances through Redis
type RedisLimiter struct {
	client *redis.Client
	prefix string
	limit  int
	period time.Duration
}

// NewRedisLimiter creates a Redis backed limiter
func NewRedisLimiter(client *redis.Client, limit int, period time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: "subgov:ratelimit:", limit: limit, period: period}
}

// Allow counts one request for key
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	res, err := rateScript.Run(ctx, l.client, []string{l.prefix + key}, l.period.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("rate limit script returned %d values", len(res))
	}
	ttl := time.Duration(res[1]) * time.Millisecond
	if ttl < 0 {
		ttl = l.period
	}
	return decide(int(res[0]), l.limit, ttl), nil
}

func decide(count, limit int, resetIn time.Duration) Decision {
	d := Decision{Allowed: count <= limit, Limit: limit, Remaining: max(limit-count, 0)}
	if !d.Allowed {
		d.RetryAfter = resetIn
	}
	return d
}

// NewLimiter picks the Redis limiter when a client is available
func NewLimiter(client *redis.Client, limit int, period time.Duration) Limiter {
	if client != nil {
		return NewRedisLimiter(client, limit, period)
	}
	return NewLocalLimiter(limit, period)
}

// RateLimit throttles callers by tenant once authenticated and by client IP
// otherwise. Limiter failures let the request through.
func RateLimit(limiter Limiter, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		d, err := limiter.Allow(c.Request.Context(), rateKey(c))
		if err != nil {
			logger.With(c.Request.Context(), log).Warn("Rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		if !d.Allowed {
			secs := int((d.RetryAfter + time.Second - 1) / time.Second)
			c.Header("Retry-After", strconv.Itoa(max(secs, 1)))
			abort(c, http.StatusTooManyRequests, shared.KindLimitExceeded, dto.CodeRateLimited, "Too many requests, please retry later")
			return
		}
		c.Next()
	}
}

func rateKey(c *gin.Context) string {
	if p := GetPrincipal(c); p != nil {
		if p.TenantID != uuid.Nil {
			return "tenant:" + p.TenantID.String()
		}
		return "user:" + p.UserID.String()
	}
	return "ip:" + c.ClientIP()
}
