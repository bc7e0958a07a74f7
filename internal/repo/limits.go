// Package repo: this file holds the limiter rows, one per user plus the
// account singleton.
//
// Writes use optimistic locking. Every update is
//
//	UPDATE ... SET ..., version = version + 1 WHERE <id> = ? AND version = ?
//
// and zero affected rows is reported as ErrConflict so the caller can
// re-read and re-evaluate. Rows are created with INSERT ... ON CONFLICT DO
// NOTHING followed by a read, so two first messages racing for the same key
// end up on one row.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-sales-guard/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrConflict reports that a versioned update lost to a concurrent writer.
var ErrConflict = errors.New("version conflict")

// ---------- user rows ----------

// EnsureUserLimit returns the row for userID, creating it with fresh windows
// starting at now when missing.
func EnsureUserLimit(ctx context.Context, db *gorm.DB, userID string, now time.Time) (*domain.UserLimit, error) {
	now = now.UTC()
	row := &domain.UserLimit{
		UserID:            userID,
		WindowStartMinute: now,
		WindowStartHour:   now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error; err != nil {
		return nil, err
	}
	return GetUserLimit(ctx, db, userID)
}

// GetUserLimit fetches the row for userID or ErrNotFound.
func GetUserLimit(ctx context.Context, db *gorm.DB, userID string) (*domain.UserLimit, error) {
	var u domain.UserLimit
	if err := db.WithContext(ctx).Where("user_id = ?", userID).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// SaveUserLimit writes every mutable field of u if the stored version still
// equals u.Version. On success u.Version is advanced.
func SaveUserLimit(ctx context.Context, db *gorm.DB, u *domain.UserLimit, now time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.UserLimit{}).
		Where("user_id = ? AND version = ?", u.UserID, u.Version).
		Updates(map[string]any{
			"count_minute":         u.CountMinute,
			"count_hour":           u.CountHour,
			"window_start_minute":  u.WindowStartMinute.UTC(),
			"window_start_hour":    u.WindowStartHour.UTC(),
			"blocked_until":        utcPtr(u.BlockedUntil),
			"last_message_time":    utcPtr(u.LastMessageTime),
			"last_sent_at":         utcPtr(u.LastSentAt),
			"repeated_count":       u.RepeatedCount,
			"last_message_content": u.LastMessageContent,
			"version":              u.Version + 1,
			"updated_at":           now.UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	u.Version++
	u.UpdatedAt = now.UTC()
	return nil
}

// ResetUserLimit clears the block, both counters and the repeat state of a
// user. It reports whether a row existed.
func ResetUserLimit(ctx context.Context, db *gorm.DB, userID string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.UserLimit{}).
		Where("user_id = ?", userID).
		Updates(resetUserColumns(now))
	return res.RowsAffected > 0, res.Error
}

// ResetAllUserLimits applies ResetUserLimit to every row and returns how
// many were touched.
func ResetAllUserLimits(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.UserLimit{}).
		Where("1 = 1").
		Updates(resetUserColumns(now))
	return res.RowsAffected, res.Error
}

func resetUserColumns(now time.Time) map[string]any {
	now = now.UTC()
	return map[string]any{
		"blocked_until":        nil,
		"count_minute":         0,
		"count_hour":           0,
		"window_start_minute":  now,
		"window_start_hour":    now,
		"repeated_count":       0,
		"last_message_content": nil,
		"version":              gorm.Expr("version + 1"),
		"updated_at":           now,
	}
}

// ListBlockedUsers returns users blocked at now, soonest expiry first.
func ListBlockedUsers(ctx context.Context, db *gorm.DB, now time.Time, offset, limit int) ([]domain.UserLimit, error) {
	var out []domain.UserLimit
	err := db.WithContext(ctx).
		Where("blocked_until IS NOT NULL AND blocked_until > ?", now.UTC()).
		Order("blocked_until asc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountBlockedUsers returns how many users are blocked at now.
func CountBlockedUsers(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.UserLimit{}).
		Where("blocked_until IS NOT NULL AND blocked_until > ?", now.UTC()).
		Count(&n).Error
	return n, err
}

// DeleteUserLimit removes the row for userID.
func DeleteUserLimit(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	res := db.WithContext(ctx).Where("user_id = ?", userID).Delete(&domain.UserLimit{})
	return res.RowsAffected, res.Error
}

// ---------- account row ----------

// EnsureGlobalLimit returns the account row, creating it on first use.
func EnsureGlobalLimit(ctx context.Context, db *gorm.DB, now time.Time) (*domain.GlobalLimit, error) {
	now = now.UTC()
	row := &domain.GlobalLimit{
		ID:                domain.GlobalLimitID,
		WindowStartMinute: now,
		WindowStartHour:   now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error; err != nil {
		return nil, err
	}
	return GetGlobalLimit(ctx, db)
}

// GetGlobalLimit fetches the account row or ErrNotFound.
func GetGlobalLimit(ctx context.Context, db *gorm.DB) (*domain.GlobalLimit, error) {
	var g domain.GlobalLimit
	if err := db.WithContext(ctx).Where("id = ?", domain.GlobalLimitID).First(&g).Error; err != nil {
		return nil, err
	}
	return &g, nil
}

// SaveGlobalLimit is the versioned write for the account row.
func SaveGlobalLimit(ctx context.Context, db *gorm.DB, g *domain.GlobalLimit, now time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.GlobalLimit{}).
		Where("id = ? AND version = ?", domain.GlobalLimitID, g.Version).
		Updates(map[string]any{
			"count_minute":        g.CountMinute,
			"count_hour":          g.CountHour,
			"window_start_minute": g.WindowStartMinute.UTC(),
			"window_start_hour":   g.WindowStartHour.UTC(),
			"blocked_until":       utcPtr(g.BlockedUntil),
			"last_message_time":   utcPtr(g.LastMessageTime),
			"version":             g.Version + 1,
			"updated_at":          now.UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	g.Version++
	g.UpdatedAt = now.UTC()
	return nil
}

// ResetGlobalLimit clears the account block and counters.
func ResetGlobalLimit(ctx context.Context, db *gorm.DB, now time.Time) error {
	if _, err := EnsureGlobalLimit(ctx, db, now); err != nil {
		return err
	}
	now = now.UTC()
	return db.WithContext(ctx).
		Model(&domain.GlobalLimit{}).
		Where("id = ?", domain.GlobalLimitID).
		Updates(map[string]any{
			"blocked_until":       nil,
			"count_minute":        0,
			"count_hour":          0,
			"window_start_minute": now,
			"window_start_hour":   now,
			"version":             gorm.Expr("version + 1"),
			"updated_at":          now,
		}).Error
}

func utcPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
