package handlers

import (
	"bytes"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func TestFail_LogsServerErrorsOnly(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	lg := zerolog.New(&buf)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("X-Request-ID", "rid-7")
		c.Set("logger", &lg)
		c.Next()
	})
	r.GET("/storage", func(c *gin.Context) { fail(c, http.StatusInternalServerError, ErrCodeStorage, "database is locked") })
	r.GET("/missing", func(c *gin.Context) { Fail(c, http.StatusNotFound, ErrCodeNotFound, "nope") })
	r.DELETE("/gone", noContent)

	w := do(t, r, http.MethodGet, "/storage", nil, nil)
	wantError(t, w, http.StatusInternalServerError, ErrCodeStorage)
	if er := decode[ErrorResponse](t, w); er.RequestID != "rid-7" || er.Message != "database is locked" {
		t.Fatalf("envelope = %+v", er)
	}
	if !strings.Contains(buf.String(), `"level":"error"`) || !strings.Contains(buf.String(), ErrCodeStorage) {
		t.Fatalf("5xx not logged: %s", buf.String())
	}

	buf.Reset()
	wantError(t, do(t, r, http.MethodGet, "/missing", nil, nil), http.StatusNotFound, ErrCodeNotFound)
	if buf.Len() != 0 {
		t.Fatalf("4xx should not be logged: %s", buf.String())
	}

	if w := do(t, r, http.MethodDelete, "/gone", nil, nil); w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Fatalf("noContent = %d %q", w.Code, w.Body.String())
	}
}
