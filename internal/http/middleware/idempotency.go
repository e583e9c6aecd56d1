// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements Idempotency-Key support for gift claims. Tills retry
// claims on flaky networks; a retried claim must return the original outcome
// instead of a 409 from the already-claimed gift. The middleware validates
// the header, looks up a stored outcome for (scope, resource, key) and
// stashes it so the handler can replay it. Persisting new outcomes stays with
// the handler, which knows when a claim actually succeeded.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the request header carrying the client key.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay" // *Replay
	ctxKeyRateBypass = "rate.bypass"
)

var defaultKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// Replay is a previously recorded outcome.
type Replay struct {
	GiftUnitID string
	Status     int
}

// IdempotencyLookup returns the stored outcome for (scope, resourceID, key)
// that is still valid at now, or nil when none exists. Errors are logged and
// treated as a miss.
type IdempotencyLookup func(ctx context.Context, scope, resourceID, key string, now time.Time) (*Replay, error)

// IdempotencyOptions configures IdempotencyValidator.
type IdempotencyOptions struct {
	// Scope namespaces keys per operation, e.g. "gift_claim".
	Scope string
	// MaxLen caps the key length; 200 when <= 0.
	MaxLen int
	// Pattern restricts key characters; ^[A-Za-z0-9._~\-:]+$ when nil.
	Pattern *regexp.Regexp
	// Resource extracts the resource id; the :id path parameter when nil.
	Resource func(*gin.Context) string
}

// GetIdempotencyKey returns the validated key, if any.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	s, _ := c.Value(ctxKeyIdemKey).(string)
	return s, s != ""
}

// ReplayFrom returns the stored outcome found for this request.
func ReplayFrom(c *gin.Context) (*Replay, bool) {
	r, _ := c.Value(ctxKeyIdemReplay).(*Replay)
	return r, r != nil
}

// IsReplay reports whether a stored outcome exists for this request.
func IsReplay(c *gin.Context) bool {
	_, ok := ReplayFrom(c)
	return ok
}

// IdempotencyValidator validates Idempotency-Key and resolves replays.
//
// Without the header it is a no-op. An invalid key yields 400
// bad_idempotency_key. A hit marks the request as a replay and lets it skip
// the rate limiter.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultKeyPattern
	}
	resource := opts.Resource
	if resource == nil {
		resource = func(c *gin.Context) string { return c.Param("id") }
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)

		if lookup != nil {
			rep, err := lookup(c.Request.Context(), opts.Scope, resource(c), key, time.Now().UTC())
			if err != nil {
				LoggerFrom(c).Warn().Err(err).Str("scope", opts.Scope).Msg("idempotency lookup failed")
			}
			if rep != nil {
				c.Set(ctxKeyIdemReplay, rep)
				c.Set(ctxKeyRateBypass, true)
			}
		}
		c.Next()
	}
}
