// Package services – Guard
//
// This file implements Guard, the inbound entry point that chains the
// account-wide check before the per-user check and resolves the per-minute
// override from the chat kind. It also owns the outbound path: RecordSent
// stamps the user's last delivery, counts the send globally and records an
// idempotency receipt so a retried send is acknowledged once.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-sales-guard/internal/config"
	"github.com/tbourn/go-sales-guard/internal/domain"
	"github.com/tbourn/go-sales-guard/internal/repo"
)

// Guard is the inbound entry point: the account limiter first, then the
// per-user limiter with the chat kind's per-minute limit.
type Guard struct {
	DB         *gorm.DB
	Users      *UserLimiter
	Global     *GlobalLimiter
	ChatLimits config.ChatLimitsConfig
	Metrics    Recorder

	// ReceiptTTL is how long an Idempotency-Key on RecordSent is honored.
	ReceiptTTL time.Duration
	Now        func() time.Time
}

// PerMinuteFor resolves the per-minute override for a chat kind; 0 means
// the limiter default.
func (g *Guard) PerMinuteFor(chatKind string) int {
	switch strings.ToLower(strings.TrimSpace(chatKind)) {
	case domain.ChatKindPrivate:
		return g.ChatLimits.Private
	case domain.ChatKindGroup:
		return g.ChatLimits.Group
	case domain.ChatKindChannel:
		return g.ChatLimits.Channel
	default:
		return 0
	}
}

// CheckMessage runs both limiters for one inbound message. A nil limiter is
// skipped.
func (g *Guard) CheckMessage(ctx context.Context, userID, text, chatKind string) (Decision, error) {
	tr := otel.Tracer("services/Guard")
	ctx, span := tr.Start(ctx, "CheckMessage",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("chat.kind", chatKind),
		),
	)
	defer span.End()

	if strings.TrimSpace(userID) == "" {
		return Decision{}, ErrInvalidUserID
	}
	rec := recorderOr(g.Metrics)

	if g.Global != nil {
		d, err := g.Global.CheckGlobalLimit(ctx)
		if err != nil {
			return Decision{}, err
		}
		rec.Decision(ScopeGlobal, d.outcome())
		if !d.Allowed {
			span.SetAttributes(attribute.String("decision.code", d.Code))
			return d, nil
		}
	}

	d := allow(ScopeUser)
	if g.Users != nil {
		var err error
		if d, err = g.Users.CheckAndRecord(ctx, userID, text, g.PerMinuteFor(chatKind)); err != nil {
			return Decision{}, err
		}
		rec.Decision(ScopeUser, d.outcome())
	}
	span.SetAttributes(attribute.Bool("decision.allowed", d.Allowed), attribute.String("decision.code", d.Code))
	return d, nil
}

// RecordSent records one delivered reply to userID on both limiters. With a
// non-empty key a repeat within ReceiptTTL is acknowledged without counting
// again; the first return value reports such a duplicate.
func (g *Guard) RecordSent(ctx context.Context, userID, key string) (bool, error) {
	tr := otel.Tracer("services/Guard")
	ctx, span := tr.Start(ctx, "RecordSent", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	if strings.TrimSpace(userID) == "" {
		return false, ErrInvalidUserID
	}
	if key = strings.TrimSpace(key); key != "" && g.DB != nil {
		ttl := g.ReceiptTTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		if _, err := repo.CreateReceipt(ctx, g.DB, userID, key, ttl, clockOr(g.Now)); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return true, nil
			}
			return false, storageErr("create receipt", err)
		}
	}
	if g.Users != nil {
		if err := g.Users.RecordSent(ctx, userID); err != nil {
			return false, err
		}
	}
	if g.Global != nil {
		if err := g.Global.RecordSent(ctx); err != nil {
			return false, err
		}
	}
	return false, nil
}

// RecordFloodWait is the back-pressure feedback path.
func (g *Guard) RecordFloodWait(ctx context.Context, waitSeconds int, chatKind string) (*domain.FloodEvent, error) {
	if g.Global == nil {
		return nil, fmt.Errorf("record flood wait: %w: global", ErrNotConfigured)
	}
	return g.Global.RecordFloodEvent(ctx, waitSeconds, chatKind)
}
