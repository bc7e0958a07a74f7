// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements idempotency support for outbound send records. It
// validates an Idempotency-Key request header, optionally asks a lookup
// whether the key was already recorded for the caller, and annotates the
// request context so downstream handlers can:
//   - read the normalized key (GetIdempotencyKey)
//   - detect replayed requests (IsReplay)
//   - bypass the edge rate limiter when a replay is served
//
// The middleware never stores keys itself; receipts are written by the
// service in the same unit of work as the send.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey carries the client's key for a send record. Retrying
// a send with the same key must not count the message twice.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	idemKeyCtx    = "idem.key"
	idemReplayCtx = "idem.replay"
	rateBypassCtx = "rate.bypass"
)

var defaultKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// IdempotencyOptions bounds the accepted keys. MaxLen <= 0 means 200; a nil
// Pattern means token characters only.
type IdempotencyOptions struct {
	MaxLen  int
	Pattern *regexp.Regexp
}

// ReceiptLookup reports whether a live receipt exists for (userID, key).
// Errors are treated as a miss; the handler's own write decides.
type ReceiptLookup func(ctx context.Context, userID, key string, now time.Time) (bool, error)

// GetIdempotencyKey returns the validated key, if any.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	k := stringValue(c, idemKeyCtx)
	return k, k != ""
}

// IsReplay reports whether the key was already used by this user.
func IsReplay(c *gin.Context) bool { return boolValue(c, idemReplayCtx) }

// IsRateBypass reports whether the edge limiter should let the request
// through without spending a token.
func IsRateBypass(c *gin.Context) bool { return boolValue(c, rateBypassCtx) }

// IdempotencyValidator validates Idempotency-Key when present and, when a
// user identity is known, consults lookup to flag replays. Invalid keys are
// rejected with 400; a missing key is not an error.
func IdempotencyValidator(opts IdempotencyOptions, lookup ReceiptLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultKeyPattern
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			abort(c, http.StatusBadRequest, "bad_idempotency_key", "invalid Idempotency-Key")
			return
		}
		c.Set(idemKeyCtx, key)

		if uid := UserID(c); lookup != nil && uid != "" {
			if hit, err := lookup(c.Request.Context(), uid, key, time.Now().UTC()); err == nil && hit {
				c.Set(idemReplayCtx, true)
				c.Set(rateBypassCtx, true)
			}
		}
		c.Next()
	}
}

func boolValue(c *gin.Context, key string) bool {
	v, ok := c.Get(key)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}
