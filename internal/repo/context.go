// Package repo implements the data persistence layer. This file stores
// conversation contexts.
//
// Writes are merge-on-write: UpdateContextReserved only touches the reserved
// columns and MergeContextExtensions only the extensions column, so neither
// writer clobbers the other. Both updates are versioned like the limiter rows.
package repo

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-sales-guard/internal/domain"
)

// GetContext fetches the context for userID or ErrNotFound.
func GetContext(ctx context.Context, db *gorm.DB, userID string) (*domain.ConversationContext, error) {
	var c domain.ConversationContext
	if err := db.WithContext(ctx).Where("user_id = ?", userID).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateContext inserts c unless a row already exists. It reports whether
// this call created the row.
func CreateContext(ctx context.Context, db *gorm.DB, c *domain.ConversationContext) (bool, error) {
	res := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(c)
	return res.RowsAffected > 0, res.Error
}

// UpdateContextReserved writes stage, intent, slots, objection history and
// the presentation counter when the stored version equals c.Version.
// Extensions are never written here; see MergeContextExtensions.
func UpdateContextReserved(ctx context.Context, db *gorm.DB, c *domain.ConversationContext, now time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.ConversationContext{}).
		Where("user_id = ? AND version = ?", c.UserID, c.Version).
		Updates(map[string]any{
			"stage":              c.Stage,
			"intent":             c.Intent,
			"slots":              c.Slots,
			"objection_history":  c.ObjectionHistory,
			"presentation_turns": c.PresentationTurns,
			"version":            c.Version + 1,
			"updated_at":         now.UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	c.Version++
	c.UpdatedAt = now.UTC()
	return nil
}

// MergeContextExtensions applies patch key by key onto the extensions of c
// when the stored version equals c.Version. A JSON null removes its key; keys
// absent from patch are kept. A malformed stored column is treated as empty.
// On success c carries the merged column and the new version.
func MergeContextExtensions(ctx context.Context, db *gorm.DB, c *domain.ConversationContext, patch map[string]json.RawMessage, now time.Time) error {
	merged := map[string]json.RawMessage{}
	if len(c.Extensions) > 0 {
		if err := json.Unmarshal(c.Extensions, &merged); err != nil || merged == nil {
			merged = map[string]json.RawMessage{}
		}
	}
	for k, v := range patch {
		if string(v) == "null" || len(v) == 0 {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}
	blob, err := json.Marshal(merged)
	if err != nil {
		return err
	}

	res := db.WithContext(ctx).
		Model(&domain.ConversationContext{}).
		Where("user_id = ? AND version = ?", c.UserID, c.Version).
		Updates(map[string]any{
			"extensions": datatypes.JSON(blob),
			"version":    c.Version + 1,
			"updated_at": now.UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	c.Extensions = datatypes.JSON(blob)
	c.Version++
	c.UpdatedAt = now.UTC()
	return nil
}

// DeleteContext removes the context for userID.
func DeleteContext(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	res := db.WithContext(ctx).Where("user_id = ?", userID).Delete(&domain.ConversationContext{})
	return res.RowsAffected, res.Error
}
