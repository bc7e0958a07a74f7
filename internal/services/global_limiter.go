// Package services – GlobalLimiter
//
// This file implements the account-wide limiter and the flood recorder. The
// single global row uses the same window shape as a user row, but its
// per-minute and per-hour ceilings adapt in memory:
//
//   - every flood event reduces both ceilings by the configured percentage,
//     never below 1/minute and 10/hour
//   - after a flood-free recovery period the ceilings grow back by the
//     recovery percentage, never above the configured base
//
// Recovery is lazy: CheckGlobalLimit tries it first on every call, at most
// once per period. Flood events are appended to the log before the ceilings
// change, and waits above the critical threshold are logged at error.
package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-sales-guard/internal/config"
	"github.com/tbourn/go-sales-guard/internal/domain"
	"github.com/tbourn/go-sales-guard/internal/events"
	"github.com/tbourn/go-sales-guard/internal/repo"
)

// Ceiling floors. Reduction never goes below these.
const (
	MinMinuteCeiling = 1
	MinHourCeiling   = 10
)

// Flood severities.
const (
	SeverityNormal   = "normal"
	SeverityCritical = "critical"
)

// Ceilings are the current adaptive account-wide limits.
type Ceilings struct {
	Minute int `json:"minute"`
	Hour   int `json:"hour"`
}

// GlobalStatus is a snapshot of the account limiter.
type GlobalStatus struct {
	Row          *domain.GlobalLimit `json:"row"`
	Ceilings     Ceilings            `json:"ceilings"`
	Base         Ceilings            `json:"base"`
	Blocked      bool                `json:"blocked"`
	LastRecovery *time.Time          `json:"last_recovery,omitempty"`
}

// GlobalLimiter guards the single account row. Its adaptive ceilings live in
// the process: they shrink on every flood event and grow back after flood
// free recovery periods, bounded by the floors and the configured base.
type GlobalLimiter struct {
	DB      *gorm.DB
	Cfg     config.GlobalConfig
	Events  events.Publisher
	Metrics Recorder
	Now     func() time.Time

	mu           sync.Mutex
	ceil         Ceilings
	lastRecovery time.Time
}

// NewGlobalLimiter returns a limiter whose ceilings start at the base.
func NewGlobalLimiter(db *gorm.DB, cfg config.GlobalConfig) *GlobalLimiter {
	return &GlobalLimiter{
		DB:   db,
		Cfg:  cfg,
		ceil: Ceilings{Minute: cfg.PerMinute, Hour: cfg.PerHour},
	}
}

func (s *GlobalLimiter) now() time.Time { return clockOr(s.Now) }

func (s *GlobalLimiter) base() Ceilings {
	return Ceilings{Minute: s.Cfg.PerMinute, Hour: s.Cfg.PerHour}
}

// current returns the ceilings; s.mu must be held.
func (s *GlobalLimiter) current() Ceilings {
	if s.ceil.Minute <= 0 || s.ceil.Hour <= 0 {
		s.ceil = s.base()
	}
	return s.ceil
}

// Ceilings returns the current adaptive ceilings.
func (s *GlobalLimiter) Ceilings() Ceilings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current()
}

// ReduceOnFlood shrinks both ceilings by the reduction percent. Results are
// floored at MinMinuteCeiling and MinHourCeiling and never exceed the base.
func (s *GlobalLimiter) ReduceOnFlood() Ceilings {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.current()
	if !s.Cfg.AdaptiveEnabled {
		return c
	}
	keep := 100 - s.Cfg.ReductionPercent
	b := s.base()
	next := Ceilings{
		Minute: min(b.Minute, max(MinMinuteCeiling, c.Minute*keep/100)),
		Hour:   min(b.Hour, max(MinHourCeiling, c.Hour*keep/100)),
	}
	s.ceil = next
	log.Info().
		Int("minute_from", c.Minute).Int("minute_to", next.Minute).
		Int("hour_from", c.Hour).Int("hour_to", next.Hour).
		Msg("global ceilings reduced")
	recorderOr(s.Metrics).Ceilings(next.Minute, next.Hour)
	return next
}

// TryRecover runs at most once per recovery period. When no flood event
// happened in the last period it grows both ceilings by the increment
// percent, at least by one, capped at the base. It reports whether the
// ceilings changed.
func (s *GlobalLimiter) TryRecover(ctx context.Context) (bool, error) {
	tr := otel.Tracer("services/GlobalLimiter")
	ctx, span := tr.Start(ctx, "TryRecover")
	defer span.End()

	if !s.Cfg.AdaptiveEnabled {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if !s.lastRecovery.IsZero() && now.Sub(s.lastRecovery) < s.Cfg.RecoveryPeriod {
		return false, nil
	}
	c, b := s.current(), s.base()
	if c == b {
		s.lastRecovery = now
		return false, nil
	}
	floods, err := repo.CountFloodEventsBetween(ctx, s.DB, now.Add(-s.Cfg.RecoveryPeriod), now)
	if err != nil {
		return false, storageErr("count floods", err)
	}
	s.lastRecovery = now
	if floods > 0 {
		return false, nil
	}

	pct := s.Cfg.RecoveryIncrementPercent
	next := Ceilings{
		Minute: min(b.Minute, c.Minute+max(1, c.Minute*pct/100)),
		Hour:   min(b.Hour, c.Hour+max(1, c.Hour*pct/100)),
	}
	s.ceil = next
	log.Info().
		Int("minute_from", c.Minute).Int("minute_to", next.Minute).
		Int("hour_from", c.Hour).Int("hour_to", next.Hour).
		Msg("global ceilings recovered")
	recorderOr(s.Metrics).Ceilings(next.Minute, next.Hour)
	return true, nil
}

// CheckGlobalLimit decides whether the account may send one more message and
// counts it when it may. Exceeding a ceiling blocks the account for the
// configured block duration.
func (s *GlobalLimiter) CheckGlobalLimit(ctx context.Context) (Decision, error) {
	tr := otel.Tracer("services/GlobalLimiter")
	ctx, span := tr.Start(ctx, "CheckGlobalLimit")
	defer span.End()

	if !s.Cfg.Enabled {
		return allow(ScopeGlobal), nil
	}
	if _, err := s.TryRecover(ctx); err != nil {
		return Decision{}, err
	}
	c := s.Ceilings()
	span.SetAttributes(attribute.Int("ceiling.minute", c.Minute), attribute.Int("ceiling.hour", c.Hour))

	var (
		d       Decision
		blocked bool
	)
	err := versioned("check global", func() error {
		d, blocked = Decision{}, false
		now := s.now()
		g, err := repo.EnsureGlobalLimit(ctx, s.DB, now)
		if err != nil {
			return err
		}
		if g.BlockedUntil != nil {
			if g.BlockedUntil.After(now) {
				d = reject(ScopeGlobal, CodeBlocked,
					fmt.Sprintf("The assistant is busy. Please try again in %d minutes.", ceilMinutes(g.BlockedUntil.Sub(now))))
				return nil
			}
			g.BlockedUntil = nil
			g.CountMinute, g.CountHour = 0, 0
			g.WindowStartMinute, g.WindowStartHour = now, now
		}

		rollWindow(&g.CountMinute, &g.WindowStartMinute, now, time.Minute)
		rollWindow(&g.CountHour, &g.WindowStartHour, now, time.Hour)

		wait := ceilMinutes(s.Cfg.BlockDuration)
		switch {
		case g.CountMinute+1 > c.Minute:
			s.blockRow(g, now)
			blocked = true
			d = reject(ScopeGlobal, CodeMinuteLimit,
				fmt.Sprintf("The assistant is handling too many messages right now. Please try again in %d minutes.", wait))
		case g.CountHour+1 > c.Hour:
			s.blockRow(g, now)
			blocked = true
			d = reject(ScopeGlobal, CodeHourLimit,
				fmt.Sprintf("The assistant reached its hourly message limit. Please try again in %d minutes.", wait))
		default:
			g.CountMinute++
			g.CountHour++
			at := now
			g.LastMessageTime = &at
			d = allow(ScopeGlobal)
		}
		return repo.SaveGlobalLimit(ctx, s.DB, g, now)
	})
	if err != nil {
		return Decision{}, err
	}
	if blocked {
		log.Warn().Str("code", d.Code).Int("minute_ceiling", c.Minute).Int("hour_ceiling", c.Hour).Msg("global limit exceeded")
	}
	return d, nil
}

func (s *GlobalLimiter) blockRow(g *domain.GlobalLimit, now time.Time) {
	until := now.Add(s.Cfg.BlockDuration)
	g.BlockedUntil = &until
	g.CountMinute, g.CountHour = 0, 0
}

// RecordSent counts a message that was sent without passing
// CheckGlobalLimit, for example a notification to the account owner.
func (s *GlobalLimiter) RecordSent(ctx context.Context) error {
	tr := otel.Tracer("services/GlobalLimiter")
	ctx, span := tr.Start(ctx, "RecordSent")
	defer span.End()

	if !s.Cfg.Enabled {
		return nil
	}
	return versioned("record global send", func() error {
		now := s.now()
		g, err := repo.EnsureGlobalLimit(ctx, s.DB, now)
		if err != nil {
			return err
		}
		rollWindow(&g.CountMinute, &g.WindowStartMinute, now, time.Minute)
		rollWindow(&g.CountHour, &g.WindowStartHour, now, time.Hour)
		g.CountMinute++
		g.CountHour++
		at := now
		g.LastMessageTime = &at
		return repo.SaveGlobalLimit(ctx, s.DB, g, now)
	})
}

// RecordFloodEvent appends a flood event and reduces the ceilings. Waits
// longer than the critical threshold are logged as critical; the reduction
// is the same.
func (s *GlobalLimiter) RecordFloodEvent(ctx context.Context, waitSeconds int, chatKind string) (*domain.FloodEvent, error) {
	tr := otel.Tracer("services/GlobalLimiter")
	ctx, span := tr.Start(ctx, "RecordFloodEvent",
		trace.WithAttributes(
			attribute.Int("flood.wait_seconds", waitSeconds),
			attribute.String("chat.kind", chatKind),
		),
	)
	defer span.End()

	if waitSeconds < 0 {
		return nil, ErrInvalidWait
	}
	now := s.now()
	ev, err := repo.CreateFloodEvent(ctx, s.DB, waitSeconds, normalizeChatKind(chatKind), now)
	if err != nil {
		return nil, storageErr("record flood", err)
	}
	next := s.ReduceOnFlood()

	severity := SeverityNormal
	wait := time.Duration(waitSeconds) * time.Second
	if wait > s.Cfg.CriticalWait {
		severity = SeverityCritical
	}
	entry := log.Warn()
	if severity == SeverityCritical {
		entry = log.Error()
	}
	entry.Int("wait_seconds", waitSeconds).
		Str("chat_kind", chatKind).
		Str("severity", severity).
		Int("minute_ceiling", next.Minute).
		Int("hour_ceiling", next.Hour).
		Msg("flood wait recorded")

	recorderOr(s.Metrics).Flood(severity)
	publish(ctx, s.Events, events.FloodRecorded, map[string]any{
		"wait_seconds": waitSeconds,
		"chat_kind":    chatKind,
		"severity":     severity,
		"ceilings":     next,
	})
	return ev, nil
}

// Reset clears the account block and counters and restores the base
// ceilings.
func (s *GlobalLimiter) Reset(ctx context.Context) error {
	if err := repo.ResetGlobalLimit(ctx, s.DB, s.now()); err != nil {
		return storageErr("reset global", err)
	}
	s.mu.Lock()
	s.ceil = s.base()
	s.lastRecovery = time.Time{}
	s.mu.Unlock()
	recorderOr(s.Metrics).Ceilings(s.Cfg.PerMinute, s.Cfg.PerHour)
	log.Info().Msg("global limits reset")
	return nil
}

// Snapshot returns the account row and the ceilings.
func (s *GlobalLimiter) Snapshot(ctx context.Context) (GlobalStatus, error) {
	now := s.now()
	g, err := repo.EnsureGlobalLimit(ctx, s.DB, now)
	if err != nil {
		return GlobalStatus{}, storageErr("get global", err)
	}
	s.mu.Lock()
	st := GlobalStatus{Row: g, Ceilings: s.current(), Base: s.base(), Blocked: g.IsBlocked(now)}
	if !s.lastRecovery.IsZero() {
		lr := s.lastRecovery
		st.LastRecovery = &lr
	}
	s.mu.Unlock()
	return st, nil
}

// FloodStats summarizes flood events since the cutoff.
func (s *GlobalLimiter) FloodStats(ctx context.Context, since time.Time) (repo.FloodStats, error) {
	st, err := repo.FloodStatsSince(ctx, s.DB, since)
	if err != nil {
		return repo.FloodStats{}, storageErr("flood stats", err)
	}
	return st, nil
}

// ListFloods returns events since the cutoff, newest first.
func (s *GlobalLimiter) ListFloods(ctx context.Context, since time.Time, limit int) ([]domain.FloodEvent, error) {
	out, err := repo.ListFloodEvents(ctx, s.DB, since, limit)
	if err != nil {
		return nil, storageErr("list floods", err)
	}
	return out, nil
}

func normalizeChatKind(k string) string {
	switch k = strings.ToLower(strings.TrimSpace(k)); k {
	case domain.ChatKindPrivate, domain.ChatKindGroup, domain.ChatKindChannel:
		return k
	default:
		return ""
	}
}
