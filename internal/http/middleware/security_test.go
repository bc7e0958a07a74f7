package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestSecurityHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("baseline", func(t *testing.T) {
		r := gin.New()
		r.Use(RequestID(), SecurityHeaders(SecurityOptions{EnableHSTS: true}))
		r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

		w := serve(r, http.MethodGet, "/x", nil)
		h := w.Header()
		if h.Get("X-Content-Type-Options") != "nosniff" || h.Get("X-Frame-Options") != "DENY" || h.Get("Referrer-Policy") != "no-referrer" {
			t.Fatalf("baseline headers: %v", h)
		}
		if h.Get("Strict-Transport-Security") != "" {
			t.Fatalf("HSTS on plain HTTP")
		}
		if h.Get("Permissions-Policy") != "" || h.Get("Cache-Control") != "" {
			t.Fatalf("optional headers leaked: %v", h)
		}
		if h.Get("Access-Control-Expose-Headers") != requestIDHeader {
			t.Fatalf("expose = %q", h.Get("Access-Control-Expose-Headers"))
		}
	})

	t.Run("all options", func(t *testing.T) {
		r := gin.New()
		r.Use(func(c *gin.Context) {
			c.Header(requestIDHeader, "rid")
			c.Header("Access-Control-Expose-Headers", "Content-Length")
			c.Next()
		})
		r.Use(SecurityHeaders(SecurityOptions{EnableHSTS: true, HSTSMaxAge: time.Hour, NoStore: true, EnablePolicy: true}))
		r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.TLS = &tls.ConnectionState{}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		h := w.Header()
		if got := h.Get("Strict-Transport-Security"); got != "max-age=3600; includeSubDomains; preload" {
			t.Fatalf("HSTS = %q", got)
		}
		if h.Get("Cache-Control") != "no-store" || h.Get("X-Permitted-Cross-Domain-Policies") != "none" {
			t.Fatalf("optional headers: %v", h)
		}
		if got := h.Get("Access-Control-Expose-Headers"); got != "Content-Length, X-Request-ID" {
			t.Fatalf("expose = %q", got)
		}
	})
}

func TestIsHTTPS_ForwardedProto(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if isHTTPS(req) {
		t.Fatalf("plain request reported as HTTPS")
	}
	req.Header.Set("X-Forwarded-Proto", "HTTPS")
	if !isHTTPS(req) {
		t.Fatalf("forwarded HTTPS not detected")
	}
}
