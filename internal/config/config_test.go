package config

import (
	"os"
	"reflect"
	"strconv"
	"strings"
	"testing"
	"time"
)

// --- MustLoad ---

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose") // invalid -> Load() error
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

func TestMustLoad_Success_NoPanic(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("MustLoad should not panic on valid defaults, got: %v", r)
		}
	}()
	cfg := MustLoad()
	if cfg.APIBasePath == "" {
		t.Fatalf("unexpected empty config from MustLoad")
	}
}

// --- defaults ---

func TestLoad_Defaults_MatchLimiterBaseline(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	l := cfg.Limits
	if !l.Enabled || l.PerMinute != 10 || l.PerHour != 50 ||
		l.MinInterval != 2*time.Second || l.BlockDuration != 10*time.Minute ||
		l.MaxRepeated != 3 || l.MinMessageLength != 2 || l.MaxMessageLength != 5000 {
		t.Fatalf("per-user defaults unexpected: %+v", l)
	}

	if cfg.ChatLimits != (ChatLimitsConfig{Private: 20, Group: 10, Channel: 5}) {
		t.Fatalf("chat limits unexpected: %+v", cfg.ChatLimits)
	}

	g := cfg.Global
	if !g.Enabled || g.PerMinute != 25 || g.PerHour != 500 || !g.AdaptiveEnabled ||
		g.ReductionPercent != 20 || g.RecoveryPeriod != 10*time.Minute ||
		g.RecoveryIncrementPercent != 5 || g.CriticalWait != 60*time.Second {
		t.Fatalf("global defaults unexpected: %+v", g)
	}

	if !cfg.SalesFlow.Enabled || cfg.SalesFlow.FitScoreThreshold != 60 || cfg.SalesFlow.ObjectionHistoryLimit != 10 {
		t.Fatalf("sales flow defaults unexpected: %+v", cfg.SalesFlow)
	}
	if cfg.Events.NATSURL != "" || cfg.Events.SubjectPrefix != "salesguard" {
		t.Fatalf("events defaults unexpected: %+v", cfg.Events)
	}
	if cfg.APIBasePath != "/api/v1" {
		t.Fatalf("API_BASE_PATH default expected '/api/v1', got %q", cfg.APIBasePath)
	}
}

// --- Load success + normalization + parsing ---

func TestLoad_Success_Overrides(t *testing.T) {
	t.Setenv("PORT", "8088")
	t.Setenv("READ_TIMEOUT", "2s")
	t.Setenv("GIN_MODE", "weird") // normalizes to "release"
	t.Setenv("LOG_LEVEL", "warning")
	t.Setenv("LOG_PRETTY", "yes")
	t.Setenv("API_BASE_PATH", "api/v2/")
	t.Setenv("DB_PATH", "guard.sqlite")

	t.Setenv("RATE_MESSAGES_PER_MINUTE", "5")
	t.Setenv("RATE_MESSAGES_PER_HOUR", "100")
	t.Setenv("RATE_MIN_INTERVAL", "1s")
	t.Setenv("RATE_BLOCK_DURATION", "30m")
	t.Setenv("SPAM_MAX_REPEATED", "2")
	t.Setenv("CHAT_LIMIT_GROUP", "0")

	t.Setenv("GLOBAL_MESSAGES_PER_MINUTE", "30")
	t.Setenv("ADAPTIVE_ENABLED", "off")
	t.Setenv("ADAPTIVE_RECOVERY_PERIOD", "5m")

	t.Setenv("NATS_URL", "nats://localhost:4222")
	t.Setenv("NATS_SUBJECT_PREFIX", ".guard.")
	t.Setenv("ADMIN_TOKEN", "s3cret")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.com , , http://b ")
	t.Setenv("RATE_BURST", "nope") // falls back to default

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "8088" || cfg.ReadTimeout != 2*time.Second || cfg.GinMode != "release" {
		t.Fatalf("server fields unexpected: %+v", cfg)
	}
	if cfg.LogLevel != "warn" || !cfg.LogPretty || cfg.APIBasePath != "/api/v2" || cfg.DBPath != "guard.sqlite" {
		t.Fatalf("logging/storage unexpected: %+v", cfg)
	}
	if cfg.Limits.PerMinute != 5 || cfg.Limits.PerHour != 100 || cfg.Limits.MinInterval != time.Second ||
		cfg.Limits.BlockDuration != 30*time.Minute || cfg.Limits.MaxRepeated != 2 {
		t.Fatalf("limits unexpected: %+v", cfg.Limits)
	}
	if cfg.ChatLimits.Group != 0 || cfg.ChatLimits.Private != 20 {
		t.Fatalf("chat limits unexpected: %+v", cfg.ChatLimits)
	}
	if cfg.Global.PerMinute != 30 || cfg.Global.AdaptiveEnabled || cfg.Global.RecoveryPeriod != 5*time.Minute {
		t.Fatalf("global unexpected: %+v", cfg.Global)
	}
	if cfg.Events.NATSURL != "nats://localhost:4222" || cfg.Events.SubjectPrefix != "guard" {
		t.Fatalf("events unexpected: %+v", cfg.Events)
	}
	if cfg.Admin.Token != "s3cret" {
		t.Fatalf("admin token unexpected: %q", cfg.Admin.Token)
	}
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://a.com", "http://b"}) {
		t.Fatalf("cors origins unexpected: %#v", cfg.CORS.AllowedOrigins)
	}
	if cfg.RateBurst != 40 {
		t.Fatalf("rate burst fallback unexpected: %d", cfg.RateBurst)
	}
}

// --- Load validations (each case triggers exactly one validation error) ---

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name, key, val, want string
	}{
		{"invalid LOG_LEVEL", "LOG_LEVEL", "verbose", "LOG_LEVEL"},
		{"empty PORT via spaces", "PORT", "   ", "PORT must not be empty"},
		{"non-positive timeouts", "READ_TIMEOUT", "0s", "timeouts must be positive"},
		{"max header bytes", "MAX_HEADER_BYTES", "0", "MAX_HEADER_BYTES"},
		{"empty DB_PATH", "DB_PATH", "   ", "DB_PATH must not be empty"},
		{"rate rps negative", "RATE_RPS", "-1", "RATE_RPS"},
		{"rate burst", "RATE_BURST", "0", "RATE_BURST"},
		{"per minute", "RATE_MESSAGES_PER_MINUTE", "0", "RATE_MESSAGES_PER_MINUTE"},
		{"block duration", "RATE_BLOCK_DURATION", "0s", "RATE_BLOCK_DURATION"},
		{"max repeated", "SPAM_MAX_REPEATED", "0", "SPAM_MAX_REPEATED"},
		{"min length above max", "SPAM_MIN_LENGTH", "9000", "SPAM_MIN_LENGTH"},
		{"chat limit negative", "CHAT_LIMIT_CHANNEL", "-1", "CHAT_LIMIT_"},
		{"global per hour", "GLOBAL_MESSAGES_PER_HOUR", "0", "GLOBAL_MESSAGES_PER_MINUTE"},
		{"reduction percent", "ADAPTIVE_REDUCTION_PERCENT", "100", "ADAPTIVE_REDUCTION_PERCENT"},
		{"recovery increment", "ADAPTIVE_RECOVERY_INCREMENT_PERCENT", "0", "ADAPTIVE_RECOVERY_INCREMENT_PERCENT"},
		{"recovery period", "ADAPTIVE_RECOVERY_PERIOD", "0s", "ADAPTIVE_RECOVERY_PERIOD"},
		{"fit threshold", "FIT_SCORE_THRESHOLD", "101", "FIT_SCORE_THRESHOLD"},
		{"objection history", "OBJECTION_HISTORY_LIMIT", "0", "OBJECTION_HISTORY_LIMIT"},
		{"hsts max age", "HSTS_MAX_AGE", "-1s", "HSTS_MAX_AGE"},
		{"idempotency ttl", "IDEMPOTENCY_TTL", "0s", "IDEMPOTENCY_TTL"},
		{"otel sample ratio", "OTEL_TRACES_SAMPLER_ARG", "1.5", "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.val)
			if _, err := Load(); err == nil || !containsErr(err, tc.want) {
				t.Fatalf("expected %s validation error, got: %v", tc.want, err)
			}
		})
	}

	t.Run("nats prefix empty", func(t *testing.T) {
		t.Setenv("NATS_URL", "nats://x:4222")
		t.Setenv("NATS_SUBJECT_PREFIX", "...")
		if _, err := Load(); err == nil || !containsErr(err, "NATS_SUBJECT_PREFIX") {
			t.Fatalf("expected NATS_SUBJECT_PREFIX validation error, got: %v", err)
		}
	})
}

// --- helpers ---

func TestHelpers_getenv(t *testing.T) {
	t.Setenv("X_EMPTY", "")
	if getenv("X_EMPTY", "d") != "d" {
		t.Fatalf("getenv should fall back to default on empty var")
	}
	t.Setenv("X_SET", "val")
	if getenv("X_SET", "d") != "val" {
		t.Fatalf("getenv should read set value")
	}
}

func TestHelpers_getfloat_getint_getdur(t *testing.T) {
	t.Setenv("F_VALID", "3.14")
	if getfloat("F_VALID", 0) != 3.14 {
		t.Fatalf("getfloat parse failed")
	}
	t.Setenv("F_BAD", "nope")
	if getfloat("F_BAD", 1.23) != 1.23 {
		t.Fatalf("getfloat default on bad parse failed")
	}
	t.Setenv("I_VALID", "42")
	if getint("I_VALID", 0) != 42 {
		t.Fatalf("getint parse failed")
	}
	t.Setenv("I_BAD", "x")
	if getint("I_BAD", 7) != 7 {
		t.Fatalf("getint default on bad parse failed")
	}
	t.Setenv("D_VALID", "150ms")
	if getdur("D_VALID", time.Second) != 150*time.Millisecond {
		t.Fatalf("getdur parse failed")
	}
	t.Setenv("D_BAD", "zzz")
	if getdur("D_BAD", 2*time.Second) != 2*time.Second {
		t.Fatalf("getdur default on bad parse failed")
	}
}

func TestHelpers_getbool(t *testing.T) {
	for i, v := range []string{"1", "true", "TRUE", " yes ", "Y", "on"} {
		k := "B_T_" + strconv.Itoa(i)
		t.Setenv(k, v)
		if !getbool(k, false) {
			t.Fatalf("getbool(%q) = false; want true", v)
		}
	}
	for i, v := range []string{"0", "false", "FALSE", " no ", "N", "off"} {
		k := "B_F_" + strconv.Itoa(i)
		t.Setenv(k, v)
		if getbool(k, true) {
			t.Fatalf("getbool(%q) = true; want false", v)
		}
	}
	t.Setenv("B_EMPTY", "")
	if !getbool("B_EMPTY", true) || getbool("B_EMPTY", false) {
		t.Fatalf("getbool default behavior unexpected")
	}
}

func TestHelpers_splitCSV_and_normalizeBasePath(t *testing.T) {
	if out := splitCSV(""); out != nil {
		t.Fatalf("splitCSV empty should return nil")
	}
	if got := splitCSV(" a, ,b ,  c  ,"); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("splitCSV mismatch: got %#v", got)
	}
	if normalizeBasePath("") != "/" || normalizeBasePath("v1") != "/v1" ||
		normalizeBasePath("/v1/") != "/v1" || normalizeBasePath(" / ") != "/" {
		t.Fatalf("normalizeBasePath unexpected")
	}
}

func TestMain(m *testing.M) {
	os.Unsetenv("PORT")
	os.Exit(m.Run())
}

// containsErr reports whether err's message contains the given substring.
func containsErr(err error, want string) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), want)
}
