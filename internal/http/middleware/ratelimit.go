// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements a process-local token-bucket rate limiter built on
// golang.org/x/time/rate. Buckets are keyed per customer, per till, or per
// client IP, in that order of preference, so a busy shared till does not
// starve customers identified by loyalty id. Idle buckets are swept
// opportunistically. Replayed claims flagged by IdempotencyValidator skip the
// limiter.
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

// KeyFunc maps a request to a bucket identity.
type KeyFunc func(*gin.Context) string

// KeyByCaller prefers the customer id, then the terminal id, then the client
// IP. Prefixes keep the namespaces apart.
func KeyByCaller() KeyFunc {
	return func(c *gin.Context) string {
		if id, ok := CustomerID(c); ok {
			return "customer:" + id
		}
		if id := c.GetString(TerminalIDKey); id != "" {
			return "terminal:" + id
		}
		return "ip:" + c.ClientIP()
	}
}

// RateLimitOptions configures NewRateLimiter.
type RateLimitOptions struct {
	RPS   float64
	Burst int // coerced to 1 when <= 0
	Key   KeyFunc
	// Exempt, when set, lets matching requests through untouched. The router
	// exempts websocket upgrades and health probes.
	Exempt func(*gin.Context) bool
	// IdleTTL evicts buckets unused for this long; 10 minutes when zero.
	IdleTTL time.Duration
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter holds one token bucket per key. Safe for concurrent use.
type RateLimiter struct {
	opts RateLimitOptions

	mu      sync.Mutex
	buckets map[string]*bucket
	lookups uint64
}

const sweepEvery = 5000

// NewRateLimiter returns a limiter ready to install via Handler.
func NewRateLimiter(opts RateLimitOptions) *RateLimiter {
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.Key == nil {
		opts.Key = KeyByCaller()
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 10 * time.Minute
	}
	return &RateLimiter{opts: opts, buckets: make(map[string]*bucket)}
}

// limiterFor returns the bucket for key, sweeping idle buckets every
// sweepEvery lookups before touching key so a stale key can be evicted too.
func (rl *RateLimiter) limiterFor(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.lookups++
	if rl.lookups >= sweepEvery {
		for k, b := range rl.buckets {
			if now.Sub(b.lastSeen) >= rl.opts.IdleTTL {
				delete(rl.buckets, k)
			}
		}
		rl.lookups = 0
	}

	if b, ok := rl.buckets[key]; ok {
		b.lastSeen = now
		return b.limiter
	}
	lim := rate.NewLimiter(rate.Limit(rl.opts.RPS), rl.opts.Burst)
	rl.buckets[key] = &bucket{limiter: lim, lastSeen: now}
	return lim
}

// IsRateBypass reports whether IdempotencyValidator marked the request as a
// replay.
func IsRateBypass(c *gin.Context) bool {
	b, _ := c.Value(ctxKeyRateBypass).(bool)
	return b
}

// Handler enforces the limits. A rejected request gets 429 with the standard
// error envelope and a Retry-After of at least one second.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) || (rl.opts.Exempt != nil && rl.opts.Exempt(c)) {
			c.Next()
			return
		}

		now := time.Now()
		res := rl.limiterFor(rl.opts.Key(c), now).ReserveN(now, 1)
		if res.OK() && res.DelayFrom(now) == 0 {
			c.Next()
			return
		}

		retry := 1
		if res.OK() {
			retry = int(math.Ceil(res.DelayFrom(now).Seconds()))
			res.CancelAt(now)
		}
		if retry < 1 {
			retry = 1
		}
		c.Header("Retry-After", strconv.Itoa(retry))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get(requestIDHeader),
			"code":       "too_many_requests",
			"message":    "rate limit exceeded",
		})
	}
}
