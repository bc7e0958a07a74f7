// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements AdminAuth, a bearer-token gate for the maintenance
// routes. The token is compared in constant time. Failures answer with the
// standard JSON error envelope and a WWW-Authenticate challenge.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// AdminAuth requires "Authorization: Bearer <token>". With an empty token
// the routes are open when allowOpen is set (local debugging) and closed
// otherwise.
func AdminAuth(token string, allowOpen bool) gin.HandlerFunc {
	want := []byte(token)
	return func(c *gin.Context) {
		if token == "" {
			if allowOpen {
				c.Next()
				return
			}
			abort(c, http.StatusUnauthorized, "unauthorized", "admin token not configured")
			return
		}
		got, ok := bearer(c.GetHeader("Authorization"))
		if !ok || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			c.Header("WWW-Authenticate", `Bearer realm="admin"`)
			abort(c, http.StatusUnauthorized, "unauthorized", "invalid admin credentials")
			return
		}
		c.Next()
	}
}

func bearer(h string) (string, bool) {
	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(h[len(prefix):])
	return tok, tok != ""
}
