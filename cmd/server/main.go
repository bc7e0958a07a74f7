// Command server runs the sales guard HTTP API.
//
// @title                      Sales Guard API
// @version                    1.0
// @description                Rate limiting, flood control and sales-stage tracking for a conversational sales assistant.
// @BasePath                   /api/v1
// @securityDefinitions.apikey AdminToken
// @in                         header
// @name                       Authorization
// @description                Bearer <ADMIN_TOKEN>
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/go-sales-guard/internal/config"
	"github.com/tbourn/go-sales-guard/internal/events"
	httpapi "github.com/tbourn/go-sales-guard/internal/http"
	"github.com/tbourn/go-sales-guard/internal/observability"
	"github.com/tbourn/go-sales-guard/internal/repo"
	"github.com/tbourn/go-sales-guard/internal/services"
	"github.com/tbourn/go-sales-guard/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	shutdownTimeout = 30 * time.Second
	receiptSweep    = time.Hour
)

func main() {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	sysutil.SetupLogger(os.Stderr, cfg.LogLevel, cfg.LogPretty, cfg.OTEL.ServiceName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("server exited")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	log.Info().Str("version", version).Str("port", cfg.Port).Msg("starting sales guard")

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("tracer shutdown")
		}
	}()

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()

	bus, closeEvents, err := newEventBus(cfg.Events)
	if err != nil {
		return err
	}
	defer closeEvents()

	stack := services.NewStack(db, cfg, services.StackOptions{
		Events:  bus,
		Metrics: observability.NewMetrics(prometheus.DefaultRegisterer),
	})
	logFloodStats(ctx, stack.Global)

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, cfg, httpapi.Deps{
		Stack:      stack,
		Registerer: prometheus.DefaultRegisterer,
		Gatherer:   prometheus.DefaultGatherer,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go sweepReceipts(ctx, db, receiptSweep)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	log.Info().Msg("server stopped")
	return nil
}

func openDB(cfg config.Config) (*gorm.DB, error) {
	lvl := logger.Warn
	if cfg.GinMode == gin.DebugMode {
		lvl = logger.Info
	}
	db, err := repo.OpenSQLite(cfg.DBPath, &gorm.Config{Logger: logger.Default.LogMode(lvl)})
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.DBPath, err)
	}
	if cfg.OTEL.Enabled {
		if err := db.Use(tracing.NewPlugin()); err != nil {
			return nil, fmt.Errorf("gorm tracing: %w", err)
		}
	}
	if err := repo.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// newEventBus returns the in-process bus, forwarding to NATS when
// configured. The returned func closes the sink.
func newEventBus(cfg config.EventsConfig) (*events.Bus, func(), error) {
	bus := events.NewBus()
	if cfg.NATSURL == "" {
		return bus, func() {}, nil
	}
	pub, err := events.ConnectNATS(events.NATSConfig{
		URL:           cfg.NATSURL,
		Token:         cfg.Token,
		SubjectPrefix: cfg.SubjectPrefix,
	})
	if err != nil {
		return nil, nil, err
	}
	bus.AddSink(pub)
	log.Info().Str("url", cfg.NATSURL).Str("prefix", cfg.SubjectPrefix).Msg("publishing events to nats")
	return bus, pub.Close, nil
}

func logFloodStats(ctx context.Context, g *services.GlobalLimiter) {
	fs, err := g.FloodStats(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		log.Warn().Err(err).Msg("flood stats unavailable")
		return
	}
	c := g.Ceilings()
	log.Info().
		Int64("floods_24h", fs.Count).
		Float64("avg_wait_seconds", fs.AvgWait).
		Int("max_wait_seconds", fs.MaxWait).
		Int("ceiling_minute", c.Minute).
		Int("ceiling_hour", c.Hour).
		Msg("flood history")
}

// sweepReceipts drops expired send receipts until ctx ends.
func sweepReceipts(ctx context.Context, db *gorm.DB, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.PruneReceipts(ctx, db, now)
			if err != nil {
				log.Warn().Err(err).Msg("receipt sweep failed")
				continue
			}
			if n > 0 {
				log.Debug().Int64("deleted", n).Msg("expired receipts removed")
			}
		}
	}
}
