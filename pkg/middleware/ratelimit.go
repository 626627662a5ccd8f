package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/campusiq/gatehouse/pkg/apperror"
	"github.com/campusiq/gatehouse/pkg/httputil"
	"github.com/campusiq/gatehouse/pkg/identity"
	"github.com/campusiq/gatehouse/pkg/observability"
)

// RateLimitConfig defines rate limiting behavior.
type RateLimitConfig struct {
	// RequestsPerWindow is the max requests allowed in the time window.
	RequestsPerWindow int
	// WindowDuration is the time window for rate limiting.
	WindowDuration time.Duration
}

// DefaultRateLimitConfig returns the per-client defaults.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 300,
		WindowDuration:    time.Minute,
	}
}

// RateLimiter is a process-local token bucket per key. Suitable for a single
// instance; multi-instance deployments use the Redis-backed limiter.
type RateLimiter struct {
	config  *RateLimitConfig
	buckets map[string]*bucket
	mu      sync.Mutex
}

type bucket struct {
	tokens     int
	lastUpdate time.Time
}

func NewRateLimiter(config *RateLimitConfig) *RateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	return &RateLimiter{
		config:  config,
		buckets: make(map[string]*bucket),
	}
}

// Allow reports whether the key may proceed, consuming one token.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	b, exists := rl.buckets[key]
	if !exists {
		rl.buckets[key] = &bucket{tokens: rl.config.RequestsPerWindow - 1, lastUpdate: now}
		return true
	}

	// Refill proportionally to elapsed time.
	elapsed := now.Sub(b.lastUpdate)
	refill := int(float64(rl.config.RequestsPerWindow) * (elapsed.Seconds() / rl.config.WindowDuration.Seconds()))
	if refill > 0 {
		b.tokens += refill
		if b.tokens > rl.config.RequestsPerWindow {
			b.tokens = rl.config.RequestsPerWindow
		}
		b.lastUpdate = now
	}

	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

// rateLimitKey buckets by identity when authenticated, by address otherwise.
func rateLimitKey(r *http.Request) string {
	if auth := identity.AuthFromContext(r.Context()); auth != nil {
		return "id:" + formatInt64(auth.EffectiveID())
	}
	return "ip:" + httputil.ClientIP(r)
}

// RateLimit wraps routes in the process-local limiter.
func RateLimit(limiter *RateLimiter, metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(rateLimitKey(r)) {
				metrics.RateLimitRejections.Inc()
				httputil.WriteError(w, r, apperror.RateLimited("too many requests"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
