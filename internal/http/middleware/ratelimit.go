// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the edge rate limiter: an in-memory token bucket per
// identity, in front of the domain limiters. It protects the service itself;
// the per-user and account limits on messages live in the services package.
//
// Features:
//   - Per-key token buckets using golang.org/x/time/rate
//   - Pluggable identity function (user ID or client IP)
//   - Opportunistic cleanup of idle buckets to bound memory
//   - Bypass for idempotent replays (when paired with IdempotencyValidator)
//
// A rejected request gets 429 with Retry-After set to the whole seconds
// needed to refill one token.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// KeyFunc maps a request to a throttling bucket.
type KeyFunc func(*gin.Context) string

// KeyByUserOrIP buckets by the identity set by UserIdentity and falls back
// to the client address.
func KeyByUserOrIP() KeyFunc {
	return func(c *gin.Context) string {
		if uid := UserID(c); uid != "" {
			return "user:" + uid
		}
		return "ip:" + c.ClientIP()
	}
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// EdgeLimiter throttles the HTTP surface itself with one token bucket per
// key. It protects the service and its database from abusive callers and is
// independent of the message limits the guard enforces. Process-local.
type EdgeLimiter struct {
	rps   rate.Limit
	burst int
	key   KeyFunc

	// idle buckets older than ttl are dropped every sweepEvery lookups
	ttl        time.Duration
	sweepEvery int
	now        func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
	lookups int
}

// NewEdgeLimiter returns a limiter allowing rps tokens per second with the
// given burst (at least 1). An rps <= 0 disables limiting.
func NewEdgeLimiter(rps float64, burst int, key KeyFunc) *EdgeLimiter {
	if key == nil {
		key = KeyByUserOrIP()
	}
	return &EdgeLimiter{
		rps:        rate.Limit(rps),
		burst:      max(burst, 1),
		key:        key,
		ttl:        10 * time.Minute,
		sweepEvery: 5000,
		now:        time.Now,
		buckets:    make(map[string]*bucket),
	}
}

func (l *EdgeLimiter) limiter(key string) *rate.Limiter {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.lookups++
	if l.lookups >= l.sweepEvery {
		for k, b := range l.buckets {
			if now.Sub(b.lastSeen) >= l.ttl {
				delete(l.buckets, k)
			}
		}
		l.lookups = 0
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.rps, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.lim
}

// Len reports the number of live buckets.
func (l *EdgeLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Handler enforces the limit. Idempotent replays flagged by
// IdempotencyValidator pass without spending a token. Rejections are 429
// with a Retry-After derived from the bucket's refill rate.
func (l *EdgeLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l.rps <= 0 || IsRateBypass(c) {
			c.Next()
			return
		}
		lim := l.limiter(l.key(c))
		if lim.AllowN(l.now(), 1) {
			c.Next()
			return
		}
		c.Header("Retry-After", strconv.Itoa(retryAfter(l.rps)))
		abort(c, http.StatusTooManyRequests, "too_many_requests", "rate limit exceeded")
	}
}

// retryAfter is the whole seconds needed to refill one token.
func retryAfter(r rate.Limit) int {
	if r <= 0 {
		return 1
	}
	return max(int(math.Ceil(1/float64(r))), 1)
}
