package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// IdleTTL is how long a client's limiter is kept after its last request.
	IdleTTL time.Duration
}

// DefaultRateLimitConfig returns default rate limiting settings.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 50,
		BurstSize:         100,
		IdleTTL:           10 * time.Minute,
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// visitors holds one token bucket per client key.
type visitors struct {
	mu        sync.Mutex
	cfg       RateLimitConfig
	items     map[string]*visitor
	lastSweep time.Time
	now       func() time.Time
}

func newVisitors(cfg RateLimitConfig) *visitors {
	return &visitors{
		cfg:   cfg,
		items: make(map[string]*visitor),
		now:   time.Now,
	}
}

func (v *visitors) get(key string) *rate.Limiter {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now()
	if now.Sub(v.lastSweep) > v.cfg.IdleTTL {
		for k, item := range v.items {
			if now.Sub(item.lastSeen) > v.cfg.IdleTTL {
				delete(v.items, k)
			}
		}
		v.lastSweep = now
	}

	item, ok := v.items[key]
	if !ok {
		item = &visitor{limiter: rate.NewLimiter(rate.Limit(v.cfg.RequestsPerSecond), v.cfg.BurstSize)}
		v.items[key] = item
	}
	item.lastSeen = now
	return item.limiter
}

func (v *visitors) len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.items)
}

// RateLimit limits each client IP to cfg.RequestsPerSecond with bursts of
// cfg.BurstSize. Rejected requests get 429 with a Retry-After header. A
// non-positive rate disables limiting.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	return rateLimit(newVisitors(withRateLimitDefaults(cfg)))
}

func withRateLimitDefaults(cfg RateLimitConfig) RateLimitConfig {
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = int(math.Max(1, math.Ceil(cfg.RequestsPerSecond)))
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultRateLimitConfig().IdleTTL
	}
	return cfg
}

func rateLimit(store *visitors) echo.MiddlewareFunc {
	cfg := store.cfg
	if cfg.RequestsPerSecond <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	limit := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', -1, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limit)

			r := store.get(c.RealIP()).Reserve()
			if delay := r.Delay(); delay > 0 {
				r.Cancel()
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
				h.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
