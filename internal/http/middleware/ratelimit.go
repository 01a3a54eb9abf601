// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements per-credential rate limiting. Each authenticated API
// key gets its own bucket; a key's rate_limit (requests per minute) overrides
// the server default. Two backends implement Limiter:
//
//   - RateLimiter: in-memory token buckets (golang.org/x/time/rate) with
//     opportunistic garbage collection, for single-process deployments.
//   - RedisLimiter: a fixed one-minute window shared by all replicas.
//
// Notes:
//   - The limiter is intended for abuse control and cost protection; it is
//     not an authorization mechanism.
//   - Limiter errors fail open: the request proceeds and the error is logged.
//   - Idempotent replays (flagged by IdempotencyValidator) are never limited.
package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Quota is a token bucket: Rate tokens per second, at most Burst at once.
type Quota struct {
	Rate  float64
	Burst int
}

// QuotaPerMinute is the bucket for a "requests per minute" budget. A fresh
// bucket can spend the whole minute at once, matching the fixed window of
// RedisLimiter.
func QuotaPerMinute(n int) Quota {
	return Quota{Rate: float64(n) / 60, Burst: n}
}

// PerWindow is the number of requests q admits in one window of length w.
func (q Quota) PerWindow(w time.Duration) int64 {
	n := int64(math.Ceil(q.Rate * w.Seconds()))
	if n < 1 {
		n = 1
	}
	return n
}

// Limiter decides whether a request for key may proceed under q. When it
// may not, retryAfter estimates when it could.
type Limiter interface {
	Allow(ctx context.Context, key string, q Quota) (allowed bool, retryAfter time.Duration, err error)
}

// keyFunc selects the identity used to key a rate-limit bucket.
//
// Implementations should return a stable string for the duration of a request
// (e.g., "key:<id>" or "ip:<addr>").
type keyFunc func(*gin.Context) string

// KeyByCredentialOrIP returns a keyFunc that prefers the authenticated API
// key (set by Auth) and falls back to the client IP address.
//
// The resulting keys are prefixed to avoid collisions between the two
// namespaces (e.g., "key:7f0c…" vs "ip:203.0.113.7").
func KeyByCredentialOrIP() keyFunc {
	return func(c *gin.Context) string {
		if t, ok := TenantFrom(c); ok && t.KeyID != "" {
			return "key:" + t.KeyID
		}
		return "ip:" + c.ClientIP()
	}
}

// quotaFor returns the tenant's own budget when it has one.
func quotaFor(c *gin.Context, def Quota) Quota {
	if t, ok := TenantFrom(c); ok && t.RateLimit != nil && *t.RateLimit > 0 {
		return QuotaPerMinute(*t.RateLimit)
	}
	return def
}

// visitor holds a single rate limiter, the quota it was built for, and the
// last time it was seen. Used to opportunistically evict idle buckets.
type visitor struct {
	limiter  *rate.Limiter
	quota    Quota
	lastSeen time.Time
}

// RateLimiter implements Limiter with per-key token buckets.
//
// Buckets are created on demand and stored in an internal map guarded by a
// mutex. Idle buckets are evicted after a TTL via opportunistic cleanup during
// lookups to keep memory usage bounded.
//
// This type is safe for concurrent use.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor

	ttl      time.Duration
	cleanupN uint64
}

// NewRateLimiter constructs an empty in-memory limiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		ttl:      10 * time.Minute, // evict idle entries after TTL
	}
}

// getVisitor returns (and updates) the limiter for key, creating it if absent
// or if the key's quota changed. It also performs opportunistic GC of idle
// entries after ~5000 lookups.
//
// IMPORTANT: Run GC *before* touching the requested visitor so an "old" bucket
// can be evicted even when it's the one being fetched.
func (rl *RateLimiter) getVisitor(key string, q Quota) *rate.Limiter {
	now := time.Now()
	if q.Burst <= 0 {
		q.Burst = 1
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.cleanupN++
	if rl.cleanupN >= 5000 {
		for k, vv := range rl.visitors {
			if now.Sub(vv.lastSeen) >= rl.ttl {
				delete(rl.visitors, k)
			}
		}
		rl.cleanupN = 0
	}

	if v, ok := rl.visitors[key]; ok && v.quota == q {
		v.lastSeen = now
		return v.limiter
	}

	lim := rate.NewLimiter(rate.Limit(q.Rate), q.Burst)
	rl.visitors[key] = &visitor{limiter: lim, quota: q, lastSeen: now}
	return lim
}

// Allow implements Limiter. It never fails.
func (rl *RateLimiter) Allow(_ context.Context, key string, q Quota) (bool, time.Duration, error) {
	if rl.getVisitor(key, q).Allow() {
		return true, 0, nil
	}
	if q.Rate <= 0 {
		return false, time.Minute, nil
	}
	return false, time.Duration(float64(time.Second) / q.Rate), nil
}

// IsRateBypass reports whether IdempotencyValidator marked this request for
// rate-limit bypass (i.e., it is a replay of a previously completed request).
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// RateLimit returns a Gin middleware that enforces per-credential limits.
// Place it after Auth (and after IdempotencyValidator, so replays bypass it).
//
// Behavior:
//   - If IsRateBypass(c) is true (idempotent replay), limiting is skipped.
//   - The bucket is keyed by API key id; the key's own rate_limit, when set,
//     replaces def.
//   - When the limiter errors, the request proceeds.
//   - When the bucket is empty, the request is rejected:
//
//	HTTP/1.1 429 Too Many Requests
//	Retry-After: <seconds>
//	{ "success": false, "error": { "code": "RATE_LIMITED", "message": "Rate limit exceeded" } }
func RateLimit(l Limiter, def Quota) gin.HandlerFunc {
	keyFn := KeyByCredentialOrIP()
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		allowed, retry, err := l.Allow(c.Request.Context(), keyFn(c), quotaFor(c, def))
		if err != nil {
			LoggerFrom(c).Warn().Err(err).Msg("rate limiter unavailable; allowing request")
			c.Next()
			return
		}
		if allowed {
			c.Next()
			return
		}

		secs := int(math.Ceil(retry.Seconds()))
		if secs < 1 {
			secs = 1
		}
		c.Header("Retry-After", strconv.Itoa(secs))
		abortWithError(c, http.StatusTooManyRequests, codeRateLimited, "Rate limit exceeded")
	}
}
