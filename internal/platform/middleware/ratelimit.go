package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// RateLimitConfig sets a per-client token bucket. A non-positive
// RequestsPerSecond disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

// DefaultRateLimitConfig allows 10 requests a second per client with
// bursts of 20.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{RequestsPerSecond: 10, BurstSize: 20}
}

// clientLimiters lazily creates one limiter per client key. Entries are
// never evicted; the key space is bounded by authenticated subjects and
// caller addresses.
type clientLimiters struct {
	limit rate.Limit
	burst int

	mu    sync.Mutex
	byKey map[string]*rate.Limiter
}

func newClientLimiters(cfg RateLimitConfig) *clientLimiters {
	return &clientLimiters{
		limit: rate.Limit(cfg.RequestsPerSecond),
		burst: cfg.BurstSize,
		byKey: make(map[string]*rate.Limiter),
	}
}

func (l *clientLimiters) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.byKey[key]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.byKey[key] = lim
	}
	return lim
}

// retryAfter is the whole number of seconds until lim holds a token again,
// never less than one.
func retryAfter(lim *rate.Limiter) int {
	if lim.Limit() <= 0 {
		return 1
	}
	wait := (1 - lim.Tokens()) / float64(lim.Limit())
	return max(1, int(math.Ceil(wait)))
}

// clientKey prefers the authenticated token subject over the remote
// address so clients behind one proxy do not share a bucket.
func clientKey(c echo.Context) string {
	if sub, ok := c.Get("auth_subject").(string); ok && sub != "" {
		return "sub:" + sub
	}
	return c.RealIP()
}

// RateLimit throttles API calls per client. Document submissions fan out
// to the field extractor, which is what the limit protects.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	if cfg.RequestsPerSecond <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	cfg.BurstSize = max(cfg.BurstSize, 1)
	limiters := newClientLimiters(cfg)
	limitHeader := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', 0, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			lim := limiters.get(clientKey(c))
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limitHeader)
			if !lim.Allow() {
				h.Set("Retry-After", strconv.Itoa(retryAfter(lim)))
				h.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
