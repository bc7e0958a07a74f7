// Package services – Admin
//
// This file implements the maintenance operations behind the admin routes
// and guardctl: status, blocked users, resets, user erasure and flood log
// pruning.
package services

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-sales-guard/internal/domain"
	"github.com/tbourn/go-sales-guard/internal/repo"
)

// Status is the administrative report.
type Status struct {
	Global       GlobalStatus    `json:"global"`
	Floods24h    repo.FloodStats `json:"floods_24h"`
	BlockedUsers int64           `json:"blocked_users"`
	GeneratedAt  time.Time       `json:"generated_at"`
}

// Erasure reports what EraseUser removed.
type Erasure struct {
	UserID   string `json:"user_id"`
	Limits   int64  `json:"limits"`
	Contexts int64  `json:"contexts"`
	Receipts int64  `json:"receipts"`
}

// Admin bundles maintenance operations for tooling.
type Admin struct {
	DB     *gorm.DB
	Users  *UserLimiter
	Global *GlobalLimiter
	Now    func() time.Time
}

func (a *Admin) now() time.Time { return clockOr(a.Now) }

// Status reports the account row, ceilings, flood stats of the last 24
// hours and the number of blocked users.
func (a *Admin) Status(ctx context.Context) (Status, error) {
	tr := otel.Tracer("services/Admin")
	ctx, span := tr.Start(ctx, "Status")
	defer span.End()

	now := a.now()
	g, err := a.Global.Snapshot(ctx)
	if err != nil {
		return Status{}, err
	}
	fs, err := a.Global.FloodStats(ctx, now.Add(-24*time.Hour))
	if err != nil {
		return Status{}, err
	}
	n, err := repo.CountBlockedUsers(ctx, a.DB, now)
	if err != nil {
		return Status{}, storageErr("count blocked", err)
	}
	return Status{Global: g, Floods24h: fs, BlockedUsers: n, GeneratedAt: now}, nil
}

// ListBlocked pages through users blocked now.
func (a *Admin) ListBlocked(ctx context.Context, page, pageSize int) ([]domain.UserLimit, int64, error) {
	return a.Users.ListBlocked(ctx, page, pageSize)
}

// ResetUser clears a user's block and counters.
func (a *Admin) ResetUser(ctx context.Context, userID string) (bool, error) {
	return a.Users.Reset(ctx, userID)
}

// ResetGlobal clears the account block and restores the base ceilings.
func (a *Admin) ResetGlobal(ctx context.Context) error {
	return a.Global.Reset(ctx)
}

// ResetAllUsers resets every user row.
func (a *Admin) ResetAllUsers(ctx context.Context) (int64, error) {
	return a.Users.ResetAll(ctx)
}

// EraseUser deletes every stored row of a user in one transaction.
func (a *Admin) EraseUser(ctx context.Context, userID string) (Erasure, error) {
	tr := otel.Tracer("services/Admin")
	ctx, span := tr.Start(ctx, "EraseUser", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	if strings.TrimSpace(userID) == "" {
		return Erasure{}, ErrInvalidUserID
	}
	out := Erasure{UserID: userID}
	err := a.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if out.Limits, err = repo.DeleteUserLimit(ctx, tx, userID); err != nil {
			return err
		}
		if out.Contexts, err = repo.DeleteContext(ctx, tx, userID); err != nil {
			return err
		}
		out.Receipts, err = repo.DeleteReceipts(ctx, tx, userID)
		return err
	})
	if err != nil {
		return Erasure{}, storageErr("erase user", err)
	}
	log.Info().Str("user_id", userID).Int64("limits", out.Limits).Int64("contexts", out.Contexts).Msg("user data erased")
	return out, nil
}

// FloodStats summarizes the flood log over the last window.
func (a *Admin) FloodStats(ctx context.Context, window time.Duration) (repo.FloodStats, error) {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return a.Global.FloodStats(ctx, a.now().Add(-window))
}

// PruneFloods deletes flood events older than the cutoff, and expired send
// receipts with them.
func (a *Admin) PruneFloods(ctx context.Context, before time.Time) (int64, error) {
	n, err := repo.PruneFloodEvents(ctx, a.DB, before)
	if err != nil {
		return 0, storageErr("prune floods", err)
	}
	if _, err := repo.PruneReceipts(ctx, a.DB, a.now()); err != nil {
		return n, storageErr("prune receipts", err)
	}
	log.Info().Int64("deleted", n).Time("before", before).Msg("flood events pruned")
	return n, nil
}
