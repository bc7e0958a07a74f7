// Package services – UserLimiter
//
// This file implements the per-user limiter. One row per user identifier
// holds a minute window, an hour window, a block deadline and the last
// accepted message, which the repeat check compares against.
//
// CheckAndRecord runs its rules in a fixed order: block, length bounds,
// minimum interval since the last accepted message, repeated content, then
// the minute and hour windows. A rejection leaves the counters alone; only
// exceeding a window or the repeat threshold blocks the user. Windows roll
// lazily on the next access after they expire.
//
// Concurrency: every read-modify-write goes through versioned(), so two
// checks for the same user cannot both count against a stale row.
//
// Observability: public methods are OpenTelemetry-instrumented with the user
// id; blocks are logged at warn and published as user.blocked.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

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

// UserLimiter enforces per-user windows, content bounds and spam rules.
type UserLimiter struct {
	DB     *gorm.DB
	Cfg    config.LimitsConfig
	Events events.Publisher
	Now    func() time.Time
}

// NewUserLimiter returns a limiter using the wall clock.
func NewUserLimiter(db *gorm.DB, cfg config.LimitsConfig) *UserLimiter {
	return &UserLimiter{DB: db, Cfg: cfg}
}

func (s *UserLimiter) now() time.Time { return clockOr(s.Now) }

// IsBlocked reports whether userID is blocked. An expired block is cleared
// together with both window counters and the repeat count.
func (s *UserLimiter) IsBlocked(ctx context.Context, userID string) (bool, string, error) {
	tr := otel.Tracer("services/UserLimiter")
	ctx, span := tr.Start(ctx, "IsBlocked", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	if strings.TrimSpace(userID) == "" {
		return false, "", ErrInvalidUserID
	}
	if !s.Cfg.Enabled {
		return false, "", nil
	}

	var (
		blocked bool
		reason  string
	)
	err := versioned("is blocked", func() error {
		blocked, reason = false, ""
		now := s.now()
		u, err := repo.GetUserLimit(ctx, s.DB, userID)
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if u.BlockedUntil == nil {
			return nil
		}
		if u.BlockedUntil.After(now) {
			blocked, reason = true, blockedReason(u.BlockedUntil.Sub(now))
			return nil
		}
		unblock(u, now)
		return repo.SaveUserLimit(ctx, s.DB, u, now)
	})
	return blocked, reason, err
}

// CheckAndRecord decides whether content from userID may proceed and, when
// it may, counts it. perMinute overrides the configured per-minute limit
// when > 0.
func (s *UserLimiter) CheckAndRecord(ctx context.Context, userID, content string, perMinute int) (Decision, error) {
	tr := otel.Tracer("services/UserLimiter")
	ctx, span := tr.Start(ctx, "CheckAndRecord",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("limit.per_minute", perMinute),
		),
	)
	defer span.End()

	if strings.TrimSpace(userID) == "" {
		return Decision{}, ErrInvalidUserID
	}
	if !s.Cfg.Enabled {
		return allow(ScopeUser), nil
	}
	minuteLimit := s.Cfg.PerMinute
	if perMinute > 0 {
		minuteLimit = perMinute
	}

	var (
		d         Decision
		blockedBy string
	)
	err := versioned("check user", func() error {
		d, blockedBy = Decision{}, ""
		now := s.now()
		u, err := repo.EnsureUserLimit(ctx, s.DB, userID, now)
		if err != nil {
			return err
		}

		dirty := false
		if u.BlockedUntil != nil {
			if u.BlockedUntil.After(now) {
				d = reject(ScopeUser, CodeBlocked, blockedReason(u.BlockedUntil.Sub(now)))
				return nil
			}
			unblock(u, now)
			dirty = true
		}
		// Rejections below leave counters alone; only a lazy unblock is
		// written back.
		rejectWith := func(code, reason string) error {
			d = reject(ScopeUser, code, reason)
			if dirty {
				return repo.SaveUserLimit(ctx, s.DB, u, now)
			}
			return nil
		}

		n := utf8.RuneCountInString(content)
		if n < s.Cfg.MinMessageLength {
			return rejectWith(CodeTooShort, fmt.Sprintf("Message is too short (minimum %d characters).", s.Cfg.MinMessageLength))
		}
		if n > s.Cfg.MaxMessageLength {
			return rejectWith(CodeTooLong, fmt.Sprintf("Message is too long (maximum %d characters).", s.Cfg.MaxMessageLength))
		}
		if u.LastMessageTime != nil {
			if since := now.Sub(*u.LastMessageTime); since < s.Cfg.MinInterval {
				return rejectWith(CodeTooSoon, fmt.Sprintf("Please wait %d seconds before the next message.", ceilSeconds(s.Cfg.MinInterval-since)))
			}
		}

		// RepeatedCount counts repeats after the first occurrence, so the
		// run length of identical messages including this one is +2.
		if u.LastMessageContent != nil && *u.LastMessageContent == content {
			repeated := u.RepeatedCount + 1
			if repeated+1 >= s.Cfg.MaxRepeated {
				blockedBy = "repeated messages"
				block(u, now, s.Cfg.BlockDuration)
				d = reject(ScopeUser, CodeRepeated, fmt.Sprintf("Too many repeated messages. Please wait %d minutes.", ceilMinutes(s.Cfg.BlockDuration)))
				return repo.SaveUserLimit(ctx, s.DB, u, now)
			}
			u.RepeatedCount = repeated
		} else {
			u.RepeatedCount = 0
		}

		rollWindow(&u.CountMinute, &u.WindowStartMinute, now, time.Minute)
		rollWindow(&u.CountHour, &u.WindowStartHour, now, time.Hour)

		switch {
		case u.CountMinute+1 > minuteLimit:
			blockedBy = "minute limit"
			block(u, now, s.Cfg.BlockDuration)
			d = reject(ScopeUser, CodeMinuteLimit, fmt.Sprintf("Too many messages per minute (limit %d). Please wait %d minutes.", minuteLimit, ceilMinutes(s.Cfg.BlockDuration)))
			return repo.SaveUserLimit(ctx, s.DB, u, now)
		case u.CountHour+1 > s.Cfg.PerHour:
			blockedBy = "hour limit"
			block(u, now, s.Cfg.BlockDuration)
			d = reject(ScopeUser, CodeHourLimit, fmt.Sprintf("Too many messages per hour (limit %d). Please wait %d minutes.", s.Cfg.PerHour, ceilMinutes(s.Cfg.BlockDuration)))
			return repo.SaveUserLimit(ctx, s.DB, u, now)
		}

		u.CountMinute++
		u.CountHour++
		at := now
		u.LastMessageTime = &at
		body := content
		u.LastMessageContent = &body
		d = allow(ScopeUser)
		return repo.SaveUserLimit(ctx, s.DB, u, now)
	})
	if err != nil {
		return Decision{}, err
	}
	if blockedBy != "" {
		s.announceBlock(ctx, userID, blockedBy)
	}
	return d, nil
}

// Block blocks userID for the configured duration and zeroes its counters.
// reason is logged only.
func (s *UserLimiter) Block(ctx context.Context, userID, reason string) error {
	tr := otel.Tracer("services/UserLimiter")
	ctx, span := tr.Start(ctx, "Block", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	if strings.TrimSpace(userID) == "" {
		return ErrInvalidUserID
	}
	err := versioned("block user", func() error {
		now := s.now()
		u, err := repo.EnsureUserLimit(ctx, s.DB, userID, now)
		if err != nil {
			return err
		}
		block(u, now, s.Cfg.BlockDuration)
		return repo.SaveUserLimit(ctx, s.DB, u, now)
	})
	if err != nil {
		return err
	}
	s.announceBlock(ctx, userID, reason)
	return nil
}

// RecordSent stamps the time of the last message actually delivered to
// userID. Counting already happened in CheckAndRecord, and the minimum
// interval keeps measuring from the last accepted inbound message.
func (s *UserLimiter) RecordSent(ctx context.Context, userID string) error {
	tr := otel.Tracer("services/UserLimiter")
	ctx, span := tr.Start(ctx, "RecordSent", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	if strings.TrimSpace(userID) == "" {
		return ErrInvalidUserID
	}
	if !s.Cfg.Enabled {
		return nil
	}
	return versioned("record user send", func() error {
		now := s.now()
		u, err := repo.EnsureUserLimit(ctx, s.DB, userID, now)
		if err != nil {
			return err
		}
		at := now
		u.LastSentAt = &at
		return repo.SaveUserLimit(ctx, s.DB, u, now)
	})
}

// Reset clears the block, counters and repeat state of userID. It reports
// whether the user had a row.
func (s *UserLimiter) Reset(ctx context.Context, userID string) (bool, error) {
	if strings.TrimSpace(userID) == "" {
		return false, ErrInvalidUserID
	}
	ok, err := repo.ResetUserLimit(ctx, s.DB, userID, s.now())
	if err != nil {
		return false, storageErr("reset user", err)
	}
	if ok {
		log.Info().Str("user_id", userID).Msg("user limits reset")
	}
	return ok, nil
}

// ResetAll resets every user and returns how many rows changed.
func (s *UserLimiter) ResetAll(ctx context.Context) (int64, error) {
	n, err := repo.ResetAllUserLimits(ctx, s.DB, s.now())
	if err != nil {
		return 0, storageErr("reset all users", err)
	}
	log.Info().Int64("users", n).Msg("all user limits reset")
	return n, nil
}

// Get returns the stored row of userID.
func (s *UserLimiter) Get(ctx context.Context, userID string) (*domain.UserLimit, error) {
	u, err := repo.GetUserLimit(ctx, s.DB, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageErr("get user", err)
	}
	return u, nil
}

// ListBlocked returns a page of currently blocked users, soonest expiry
// first, and the total count.
func (s *UserLimiter) ListBlocked(ctx context.Context, page, pageSize int) ([]domain.UserLimit, int64, error) {
	tr := otel.Tracer("services/UserLimiter")
	ctx, span := tr.Start(ctx, "ListBlocked",
		trace.WithAttributes(
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	now := s.now()
	total, err := repo.CountBlockedUsers(ctx, s.DB, now)
	if err != nil {
		return nil, 0, storageErr("count blocked", err)
	}
	if total == 0 {
		return []domain.UserLimit{}, 0, nil
	}
	items, err := repo.ListBlockedUsers(ctx, s.DB, now, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, 0, storageErr("list blocked", err)
	}
	return items, total, nil
}

func (s *UserLimiter) announceBlock(ctx context.Context, userID, reason string) {
	log.Warn().
		Str("user_id", userID).
		Str("reason", reason).
		Dur("duration", s.Cfg.BlockDuration).
		Msg("user blocked")
	publish(ctx, s.Events, events.UserBlocked, map[string]any{
		"user_id":  userID,
		"reason":   reason,
		"duration": s.Cfg.BlockDuration.String(),
	})
}

func block(u *domain.UserLimit, now time.Time, d time.Duration) {
	until := now.Add(d)
	u.BlockedUntil = &until
	u.CountMinute = 0
	u.CountHour = 0
	u.RepeatedCount = 0
}

func unblock(u *domain.UserLimit, now time.Time) {
	u.BlockedUntil = nil
	u.CountMinute = 0
	u.CountHour = 0
	u.WindowStartMinute = now
	u.WindowStartHour = now
	u.RepeatedCount = 0
}

func blockedReason(remaining time.Duration) string {
	return fmt.Sprintf("Too many messages. Please wait %d minutes.", ceilMinutes(remaining))
}
