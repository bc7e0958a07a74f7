// Package httpapi wires the HTTP transport (Gin) to the guard services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// compression, CORS, security headers, idempotency, and edge rate limiting.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-sales-guard/docs"
	"github.com/tbourn/go-sales-guard/internal/config"
	"github.com/tbourn/go-sales-guard/internal/http/handlers"
	"github.com/tbourn/go-sales-guard/internal/http/middleware"
	"github.com/tbourn/go-sales-guard/internal/repo"
	"github.com/tbourn/go-sales-guard/internal/services"
)

// maxBodyBytes caps every request body.
const maxBodyBytes = 1 << 20

// Deps carries what RegisterRoutes does not build itself.
//
// A nil Stack is built from db and cfg without events or domain metrics.
// A nil Registerer leaves the HTTP collectors unregistered; a nil Gatherer
// serves /metrics from the default Prometheus registry.
type Deps struct {
	Stack      *services.Stack
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the guard API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID and user identity: correlation for logs and limits
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Gzip
//  8. Idempotency validator (before rate limiter to allow bypass on replay)
//  9. Edge rate limiter (per user/IP, bypass on replay)
//  10. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config, deps Deps) {
	r.HandleMethodNotAllowed = true

	apiBase := cfg.APIBasePath
	adminPrefix := joinPath(apiBase, "/admin")

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	r.Use(middleware.RequestID())
	// Admin routes take a subject user in :id; it must not become the caller.
	r.Use(middleware.UserIdentity(adminPrefix))

	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"Proxy-Authorization"},
	}))

	r.Use(middleware.Recovery())

	r.Use(limitBody(maxBodyBytes))

	r.Use(middleware.NewHTTPMetrics(deps.Registerer).Handler())
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200},
		func(ctx context.Context, userID, key string, now time.Time) (bool, error) {
			rec, err := repo.GetReceipt(ctx, db, userID, key, now)
			if err != nil {
				return false, err
			}
			return rec != nil, nil
		},
	))

	rl := middleware.NewEdgeLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)

	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      true,
		EnablePolicy: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = apiBase
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	st := deps.Stack
	if st == nil {
		st = services.NewStack(db, cfg, services.StackOptions{})
	}
	h := handlers.New(st.Guard, st.Conversations, st.Admin)

	api := groupWithPrefix(r, apiBase)
	{
		// Guard
		api.POST("/messages/check", h.CheckMessage)
		api.POST("/users/:id/sent", h.RecordSent)
		api.POST("/flood", h.RecordFlood)

		// Conversations
		api.POST("/conversations/:id/advance", h.AdvanceConversation)
		api.GET("/conversations/:id", h.GetConversation)
		api.PATCH("/conversations/:id/slots", h.PatchSlots)
		api.PATCH("/conversations/:id/extensions", h.PatchExtensions)
	}

	admin := api.Group("/admin", middleware.AdminAuth(cfg.Admin.Token, cfg.GinMode == gin.DebugMode))
	{
		admin.GET("/status", h.Status)
		admin.GET("/blocks", h.ListBlocked)
		admin.POST("/users/:id/reset", h.ResetUser)
		admin.POST("/users/reset", h.ResetAllUsers)
		admin.DELETE("/users/:id", h.EraseUser)
		admin.POST("/global/reset", h.ResetGlobal)
		admin.GET("/flood/stats", h.FloodStats)
		admin.DELETE("/flood", h.PruneFloods)
	}
}

// corsMiddleware allows every origin when none is configured; otherwise it
// echoes allow-listed origins only.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept", "Authorization",
			"X-User-ID", middleware.HeaderIdempotencyKey,
		},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "Retry-After", "Idempotent-Replay"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}

	if len(origins) == 0 {
		base.AllowAllOrigins = true
		// ACAO: * even without an Origin header, so plain health checks see it.
		force := func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		}
		return []gin.HandlerFunc{force, cors.New(base)}
	}

	base.AllowOrigins = origins
	return []gin.HandlerFunc{cors.New(base)}
}

// limitBody caps the request body size with http.MaxBytesReader. Reads past
// the cap fail, which binding reports as a 400.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}

func joinPath(base, p string) string {
	if base == "" || base == "/" {
		return p
	}
	return base + p
}
