// Package repo implements the data persistence layer. This file provides the
// append-only flood event log. Rows are never updated; they are created on
// every back-pressure signal and removed only by PruneFloodEvents.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-sales-guard/internal/domain"
)

// CreateFloodEvent appends one event.
func CreateFloodEvent(ctx context.Context, db *gorm.DB, waitSeconds int, chatKind string, at time.Time) (*domain.FloodEvent, error) {
	ev := &domain.FloodEvent{
		ID:          uuid.NewString(),
		WaitSeconds: waitSeconds,
		OccurredAt:  at.UTC(),
	}
	if chatKind != "" {
		ev.ChatKind = &chatKind
	}
	if err := db.WithContext(ctx).Create(ev).Error; err != nil {
		return nil, err
	}
	return ev, nil
}

// CountFloodEventsBetween counts events with from <= occurred_at <= to.
func CountFloodEventsBetween(ctx context.Context, db *gorm.DB, from, to time.Time) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.FloodEvent{}).
		Where("occurred_at >= ? AND occurred_at <= ?", from.UTC(), to.UTC()).
		Count(&n).Error
	return n, err
}

// ListFloodEvents returns events since the cutoff, newest first. A
// non-positive limit returns every matching row.
func ListFloodEvents(ctx context.Context, db *gorm.DB, since time.Time, limit int) ([]domain.FloodEvent, error) {
	q := db.WithContext(ctx).
		Where("occurred_at >= ?", since.UTC()).
		Order("occurred_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []domain.FloodEvent
	err := q.Find(&out).Error
	return out, err
}

// PruneFloodEvents deletes events that occurred strictly before the cutoff.
func PruneFloodEvents(ctx context.Context, db *gorm.DB, before time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("occurred_at < ?", before.UTC()).
		Delete(&domain.FloodEvent{})
	return res.RowsAffected, res.Error
}
