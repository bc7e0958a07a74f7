// Package repo implements the data persistence layer. This file provides
// send receipts, which make RecordSent safe to retry with an
// Idempotency-Key.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-sales-guard/internal/domain"
)

// ErrDuplicate indicates that a receipt already exists for (user_id, key).
var ErrDuplicate = errors.New("duplicate")

// GetReceipt returns a non-expired receipt or ErrNotFound.
func GetReceipt(ctx context.Context, db *gorm.DB, userID, key string, now time.Time) (*domain.SendReceipt, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}
	var rec domain.SendReceipt
	err := db.WithContext(ctx).
		Where("user_id = ? AND key = ? AND expires_at > ?", userID, key, now.UTC()).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateReceipt inserts a receipt and returns ErrDuplicate when one exists.
// An expired receipt for the same key is replaced.
func CreateReceipt(ctx context.Context, db *gorm.DB, userID, key string, ttl time.Duration, now time.Time) (*domain.SendReceipt, error) {
	now = now.UTC()
	if err := db.WithContext(ctx).
		Where("user_id = ? AND key = ? AND expires_at <= ?", userID, key, now).
		Delete(&domain.SendReceipt{}).Error; err != nil {
		return nil, err
	}
	rec := &domain.SendReceipt{
		ID:        uuid.NewString(),
		UserID:    userID,
		Key:       key,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}

// PruneReceipts deletes receipts that expired before the cutoff.
func PruneReceipts(ctx context.Context, db *gorm.DB, before time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("expires_at <= ?", before.UTC()).Delete(&domain.SendReceipt{})
	return res.RowsAffected, res.Error
}

// DeleteReceipts removes every receipt of a user.
func DeleteReceipts(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	res := db.WithContext(ctx).Where("user_id = ?", userID).Delete(&domain.SendReceipt{})
	return res.RowsAffected, res.Error
}

// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
func isUniqueViolation(err error) bool {
	low := strings.ToLower(err.Error())
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
}
