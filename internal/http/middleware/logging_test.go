package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })
	return &buf
}

func serve(r *gin.Engine, method, path string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequestID_GeneratesAndPropagates(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, RequestIDFrom(c)) })

	w := serve(r, http.MethodGet, "/x", nil)
	rid := w.Header().Get(requestIDHeader)
	if len(rid) != 36 || w.Body.String() != rid {
		t.Fatalf("generated id %q, body %q", rid, w.Body.String())
	}

	w = serve(r, http.MethodGet, "/x", map[string]string{"x-request-id": "abc-123"})
	if got := w.Header().Get(requestIDHeader); got != "abc-123" {
		t.Fatalf("propagated id = %q", got)
	}

	w = serve(r, http.MethodGet, "/x", map[string]string{requestIDHeader: strings.Repeat("a", 200)})
	if got := w.Header().Get(requestIDHeader); len(got) != 36 {
		t.Fatalf("oversized id should be replaced, got %q", got)
	}
}

func TestUserIdentity_PathHeaderAndAdminPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(UserIdentity("/api/v1/admin"))
	echo := func(c *gin.Context) { c.String(http.StatusOK, UserID(c)) }
	r.POST("/api/v1/users/:id/sent", echo)
	r.POST("/api/v1/admin/users/:id/reset", echo)
	r.POST("/api/v1/messages/check", echo)

	cases := []struct {
		path   string
		header string
		want   string
	}{
		{"/api/v1/users/u1/sent", "", "u1"},
		{"/api/v1/users/u1/sent", "other", "u1"},
		{"/api/v1/admin/users/u1/reset", "", ""},
		{"/api/v1/admin/users/u1/reset", "ops", "ops"},
		{"/api/v1/messages/check", "u7", "u7"},
	}
	for _, tc := range cases {
		w := serve(r, http.MethodPost, tc.path, map[string]string{userIDHeader: tc.header})
		if w.Body.String() != tc.want {
			t.Fatalf("%s (header %q): user = %q, want %q", tc.path, tc.header, w.Body.String(), tc.want)
		}
	}
}

func TestRecovery_PanicBecomesEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLog(t)
	r := gin.New()
	r.Use(RequestID(), Recovery())
	r.GET("/boom", func(*gin.Context) { panic("kaboom") })
	r.GET("/late", func(c *gin.Context) {
		c.String(http.StatusOK, "partial")
		panic("after write")
	})

	w := serve(r, http.MethodGet, "/boom", map[string]string{requestIDHeader: "rid-1"})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body["request_id"] != "rid-1" || body["code"] != "internal_error" {
		t.Fatalf("body = %v", body)
	}
	if !strings.Contains(buf.String(), "panic recovered") {
		t.Fatalf("panic not logged: %s", buf.String())
	}

	w = serve(r, http.MethodGet, "/late", nil)
	if strings.Contains(w.Body.String(), "internal_error") {
		t.Fatalf("envelope written after partial response: %q", w.Body.String())
	}
}

func TestLoggerFrom_FallbackAndScoped(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if LoggerFrom(c) == nil {
		t.Fatalf("fallback logger is nil")
	}

	var buf bytes.Buffer
	lg := zerolog.New(&buf).With().Str("scope", "req").Logger()
	c.Set(loggerKey, &lg)
	LoggerFrom(c).Info().Msg("hi")
	if !strings.Contains(buf.String(), `"scope":"req"`) {
		t.Fatalf("scoped logger not used: %s", buf.String())
	}
}
