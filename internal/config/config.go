// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, storage, per-user and account-wide rate limiting, the adaptive
// flood controller, the sales flow, event publishing, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-sales-guard")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// LimitsConfig holds the per-user limiter and spam filter settings.
type LimitsConfig struct {
	Enabled          bool
	PerMinute        int
	PerHour          int
	MinInterval      time.Duration
	BlockDuration    time.Duration
	MaxRepeated      int
	MinMessageLength int
	MaxMessageLength int
}

// ChatLimitsConfig holds per-minute limits resolved from the chat kind.
// A zero value means "use LimitsConfig.PerMinute".
type ChatLimitsConfig struct {
	Private int
	Group   int
	Channel int
}

// GlobalConfig holds the account-wide limiter and adaptive ceiling settings.
type GlobalConfig struct {
	Enabled                  bool
	PerMinute                int
	PerHour                  int
	BlockDuration            time.Duration
	AdaptiveEnabled          bool
	ReductionPercent         int
	RecoveryPeriod           time.Duration
	RecoveryIncrementPercent int
	CriticalWait             time.Duration // waits above this are logged as critical
}

// SalesFlowConfig toggles the stage machine and its scoring knobs.
type SalesFlowConfig struct {
	Enabled               bool
	FitScoreThreshold     int
	ObjectionHistoryLimit int
}

// EventsConfig configures the optional NATS publisher.
type EventsConfig struct {
	NATSURL       string // empty disables NATS; events stay in-process
	SubjectPrefix string
	Token         string
}

// AdminConfig protects the administrative routes.
type AdminConfig struct {
	Token string
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Storage
	DBPath string // SQLite path

	// Edge rate limiting of the HTTP surface itself
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Message limiting
	Limits     LimitsConfig
	ChatLimits ChatLimitsConfig
	Global     GlobalConfig

	// Conversation
	SalesFlow SalesFlowConfig

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig
	Admin    AdminConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Events
	Events EventsConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Storage
		DBPath: getenv("DB_PATH", "salesguard.db"),

		// Edge rate limiting
		RateRPS:   getfloat("RATE_RPS", 20.0),
		RateBurst: getint("RATE_BURST", 40),

		Limits: LimitsConfig{
			Enabled:          getbool("RATE_LIMIT_ENABLED", true),
			PerMinute:        getint("RATE_MESSAGES_PER_MINUTE", 10),
			PerHour:          getint("RATE_MESSAGES_PER_HOUR", 50),
			MinInterval:      getdur("RATE_MIN_INTERVAL", 2*time.Second),
			BlockDuration:    getdur("RATE_BLOCK_DURATION", 10*time.Minute),
			MaxRepeated:      getint("SPAM_MAX_REPEATED", 3),
			MinMessageLength: getint("SPAM_MIN_LENGTH", 2),
			MaxMessageLength: getint("SPAM_MAX_LENGTH", 5000),
		},
		ChatLimits: ChatLimitsConfig{
			Private: getint("CHAT_LIMIT_PRIVATE", 20),
			Group:   getint("CHAT_LIMIT_GROUP", 10),
			Channel: getint("CHAT_LIMIT_CHANNEL", 5),
		},
		Global: GlobalConfig{
			Enabled:                  getbool("GLOBAL_LIMIT_ENABLED", true),
			PerMinute:                getint("GLOBAL_MESSAGES_PER_MINUTE", 25),
			PerHour:                  getint("GLOBAL_MESSAGES_PER_HOUR", 500),
			BlockDuration:            getdur("GLOBAL_BLOCK_DURATION", time.Minute),
			AdaptiveEnabled:          getbool("ADAPTIVE_ENABLED", true),
			ReductionPercent:         getint("ADAPTIVE_REDUCTION_PERCENT", 20),
			RecoveryPeriod:           getdur("ADAPTIVE_RECOVERY_PERIOD", 10*time.Minute),
			RecoveryIncrementPercent: getint("ADAPTIVE_RECOVERY_INCREMENT_PERCENT", 5),
			CriticalWait:             getdur("FLOOD_CRITICAL_WAIT", 60*time.Second),
		},

		SalesFlow: SalesFlowConfig{
			Enabled:               getbool("SALES_FLOW_ENABLED", true),
			FitScoreThreshold:     getint("FIT_SCORE_THRESHOLD", 60),
			ObjectionHistoryLimit: getint("OBJECTION_HISTORY_LIMIT", 10),
		},

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},
		Admin: AdminConfig{
			Token: getenv("ADMIN_TOKEN", ""),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		Events: EventsConfig{
			NATSURL:       getenv("NATS_URL", ""),
			SubjectPrefix: getenv("NATS_SUBJECT_PREFIX", "salesguard"),
			Token:         getenv("NATS_TOKEN", ""),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-sales-guard"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	cfg.Events.SubjectPrefix = strings.Trim(strings.TrimSpace(cfg.Events.SubjectPrefix), ".")

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if err := cfg.Limits.validate(); err != nil {
		return cfg, err
	}
	if cfg.ChatLimits.Private < 0 || cfg.ChatLimits.Group < 0 || cfg.ChatLimits.Channel < 0 {
		return cfg, errors.New("CHAT_LIMIT_* must be >= 0")
	}
	if err := cfg.Global.validate(); err != nil {
		return cfg, err
	}
	if cfg.SalesFlow.FitScoreThreshold < 0 || cfg.SalesFlow.FitScoreThreshold > 100 {
		return cfg, errors.New("FIT_SCORE_THRESHOLD must be between 0 and 100")
	}
	if cfg.SalesFlow.ObjectionHistoryLimit < 1 {
		return cfg, errors.New("OBJECTION_HISTORY_LIMIT must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.Events.NATSURL != "" && cfg.Events.SubjectPrefix == "" {
		return cfg, errors.New("NATS_SUBJECT_PREFIX must not be empty when NATS_URL is set")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

func (l LimitsConfig) validate() error {
	if l.PerMinute < 1 || l.PerHour < 1 {
		return errors.New("RATE_MESSAGES_PER_MINUTE and RATE_MESSAGES_PER_HOUR must be >= 1")
	}
	if l.MinInterval < 0 {
		return errors.New("RATE_MIN_INTERVAL must be >= 0")
	}
	if l.BlockDuration <= 0 {
		return errors.New("RATE_BLOCK_DURATION must be > 0")
	}
	if l.MaxRepeated < 1 {
		return errors.New("SPAM_MAX_REPEATED must be >= 1")
	}
	if l.MinMessageLength < 0 || l.MaxMessageLength < 1 || l.MinMessageLength > l.MaxMessageLength {
		return errors.New("SPAM_MIN_LENGTH must be >= 0 and <= SPAM_MAX_LENGTH")
	}
	return nil
}

func (g GlobalConfig) validate() error {
	if g.PerMinute < 1 || g.PerHour < 1 {
		return errors.New("GLOBAL_MESSAGES_PER_MINUTE and GLOBAL_MESSAGES_PER_HOUR must be >= 1")
	}
	if g.BlockDuration <= 0 {
		return errors.New("GLOBAL_BLOCK_DURATION must be > 0")
	}
	if g.ReductionPercent <= 0 || g.ReductionPercent >= 100 {
		return errors.New("ADAPTIVE_REDUCTION_PERCENT must be in (0,100)")
	}
	if g.RecoveryIncrementPercent <= 0 || g.RecoveryIncrementPercent >= 100 {
		return errors.New("ADAPTIVE_RECOVERY_INCREMENT_PERCENT must be in (0,100)")
	}
	if g.RecoveryPeriod <= 0 {
		return errors.New("ADAPTIVE_RECOVERY_PERIOD must be > 0")
	}
	if g.CriticalWait < 0 {
		return errors.New("FLOOD_CRITICAL_WAIT must be >= 0")
	}
	return nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
