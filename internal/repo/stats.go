// Package repo implements the data persistence layer. This file provides
// small aggregate queries over the flood event log used by startup logging,
// the admin status report and the guardctl CLI.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-sales-guard/internal/domain"
)

// FloodStats summarizes flood events in a time range.
type FloodStats struct {
	Count   int64   `json:"count"`
	AvgWait float64 `json:"avg_wait_seconds"`
	MaxWait int     `json:"max_wait_seconds"`
}

// FloodStatsSince aggregates events with occurred_at >= since.
//
// It counts first and skips the aggregate query when there are no rows, so
// an empty range is {0, 0, 0} rather than NULL scans.
func FloodStatsSince(ctx context.Context, db *gorm.DB, since time.Time) (FloodStats, error) {
	q := func() *gorm.DB {
		return db.WithContext(ctx).Model(&domain.FloodEvent{}).Where("occurred_at >= ?", since.UTC())
	}

	var st FloodStats
	if err := q().Count(&st.Count).Error; err != nil {
		return FloodStats{}, err
	}
	if st.Count == 0 {
		return st, nil
	}

	var row struct {
		AvgWait float64
		MaxWait int
	}
	if err := q().Select("AVG(wait_seconds) AS avg_wait, MAX(wait_seconds) AS max_wait").Scan(&row).Error; err != nil {
		return FloodStats{}, err
	}
	st.AvgWait = row.AvgWait
	st.MaxWait = row.MaxWait
	return st, nil
}
