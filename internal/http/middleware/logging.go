// Package middleware contains the Gin middleware shared by the guard API:
// correlation ids, caller identity, redacted access logs, panic recovery,
// Prometheus instrumentation, idempotency keys, edge throttling, admin
// authentication and security headers.
//
// Recommended order (see httpapi.RegisterRoutes):
//
//	RequestID -> UserIdentity -> RedactingLogger -> Recovery -> ... -> handlers
//
// so that every log line and error envelope carries the request id and,
// when known, the user the request is about.
package middleware

import (
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	requestIDKey    = "requestID"
	requestIDHeader = "X-Request-ID"
	userIDKey       = "userID"
	userIDHeader    = "X-User-ID"
	loggerKey       = "logger"

	maxRequestIDLen = 128
)

// RequestID reuses an incoming X-Request-ID or generates a UUIDv4, stores it
// in the Gin context and echoes it on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if rid == "" || len(rid) > maxRequestIDLen {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// UserIdentity records which user a request concerns. The ":id" route
// parameter wins for user-scoped routes; X-User-ID is the fallback. Routes
// under skipPrefix (the admin surface) never take an identity from the path
// since there the id names the target, not the caller.
func UserIdentity(skipPrefix string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var uid string
		if skipPrefix == "" || !strings.HasPrefix(c.FullPath(), skipPrefix) {
			uid = strings.TrimSpace(c.Param("id"))
		}
		if uid == "" {
			uid = strings.TrimSpace(c.GetHeader(userIDHeader))
		}
		if uid != "" {
			c.Set(userIDKey, uid)
		}
		c.Next()
	}
}

// UserID returns the identity stored by UserIdentity, or "".
func UserID(c *gin.Context) string {
	return stringValue(c, userIDKey)
}

// RequestIDFrom returns the correlation id of the request, or "".
func RequestIDFrom(c *gin.Context) string {
	if rid := stringValue(c, requestIDKey); rid != "" {
		return rid
	}
	return c.Writer.Header().Get(requestIDHeader)
}

// Recovery turns panics into a JSON 500 envelope and logs the stack.
// When the handler already wrote a response only the status is forced.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			rid := RequestIDFrom(c)
			LoggerFrom(c).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Str("request_id", rid).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			c.Header(requestIDHeader, rid)
			abort(c, http.StatusInternalServerError, "internal_error", "internal server error")
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped logger attached by RedactingLogger,
// or the global logger when none is attached.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

// abort writes the shared error envelope. It mirrors handlers.ErrorResponse
// without importing the handlers package.
func abort(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"request_id": RequestIDFrom(c),
		"code":       code,
		"message":    msg,
	})
}

func stringValue(c *gin.Context, key string) string {
	v, ok := c.Get(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
