// Package domain defines the persistence models for message limiting, flood
// back-pressure history and conversation state. These types are mapped with
// GORM and form the Counter Store used by the limiter and conversation
// services.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// GlobalLimitID is the fixed identity of the account-wide limiter row.
const GlobalLimitID = "account"

// Chat kinds reported by the messaging channel.
const (
	ChatKindPrivate = "private"
	ChatKindGroup   = "group"
	ChatKindChannel = "channel"
)

// UserLimit holds the per-user window counters, block state and last
// accepted message used for spam detection.
//
// LastMessageTime is the last accepted inbound message and drives the
// minimum interval. LastSentAt is the last outbound delivery and never
// feeds a limit decision.
//
// Window resets are lazy: counters are zeroed on the next access after the
// window has elapsed. Version backs the optimistic-locking update path.
type UserLimit struct {
	UserID             string     `json:"user_id"              gorm:"type:varchar(64);primaryKey"`
	CountMinute        int        `json:"count_minute"         gorm:"not null;default:0"`
	CountHour          int        `json:"count_hour"           gorm:"not null;default:0"`
	WindowStartMinute  time.Time  `json:"window_start_minute"  gorm:"not null"`
	WindowStartHour    time.Time  `json:"window_start_hour"    gorm:"not null"`
	BlockedUntil       *time.Time `json:"blocked_until,omitempty" gorm:"index"`
	LastMessageTime    *time.Time `json:"last_message_time,omitempty"`
	LastSentAt         *time.Time `json:"last_sent_at,omitempty"`
	RepeatedCount      int        `json:"repeated_count"       gorm:"not null;default:0"`
	LastMessageContent *string    `json:"-"                    gorm:"type:text"`
	Version            int64      `json:"-"                    gorm:"not null;default:0"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// TableName returns the database table name for UserLimit.
func (UserLimit) TableName() string { return "user_limits" }

// IsBlocked reports whether the record is blocked at now.
func (u *UserLimit) IsBlocked(now time.Time) bool {
	return u.BlockedUntil != nil && u.BlockedUntil.After(now)
}

// GlobalLimit is the single account-wide limiter row. It has the same window
// shape as UserLimit without the spam fields. The adaptive ceilings are not
// stored here; they live in the process.
type GlobalLimit struct {
	ID                string     `json:"id"                   gorm:"type:varchar(16);primaryKey"`
	CountMinute       int        `json:"count_minute"         gorm:"not null;default:0"`
	CountHour         int        `json:"count_hour"           gorm:"not null;default:0"`
	WindowStartMinute time.Time  `json:"window_start_minute"  gorm:"not null"`
	WindowStartHour   time.Time  `json:"window_start_hour"    gorm:"not null"`
	BlockedUntil      *time.Time `json:"blocked_until,omitempty"`
	LastMessageTime   *time.Time `json:"last_message_time,omitempty"`
	Version           int64      `json:"-"                    gorm:"not null;default:0"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// TableName returns the database table name for GlobalLimit.
func (GlobalLimit) TableName() string { return "global_limits" }

// IsBlocked reports whether the account is blocked at now.
func (g *GlobalLimit) IsBlocked(now time.Time) bool {
	return g.BlockedUntil != nil && g.BlockedUntil.After(now)
}

// FloodEvent is one back-pressure signal from the messaging channel. Rows are
// append-only; they are only removed by an explicit prune.
type FloodEvent struct {
	ID          string    `json:"id"           gorm:"type:char(36);primaryKey"`
	WaitSeconds int       `json:"wait_seconds" gorm:"not null"`
	OccurredAt  time.Time `json:"occurred_at"  gorm:"not null;index"`
	ChatKind    *string   `json:"chat_kind,omitempty" gorm:"type:varchar(16)"`
}

// TableName returns the database table name for FloodEvent.
func (FloodEvent) TableName() string { return "flood_events" }

// ConversationContext stores the per-user conversation document. Stage,
// Intent and Slots are the reserved fields; Extensions carries caller-defined
// keys that must survive every write untouched.
type ConversationContext struct {
	UserID            string         `json:"user_id"            gorm:"type:varchar(64);primaryKey"`
	Stage             string         `json:"stage"              gorm:"type:varchar(32);not null;default:'greeting'"`
	Intent            string         `json:"intent"             gorm:"type:varchar(32)"`
	Slots             datatypes.JSON `json:"slots"              gorm:"type:json"`
	ObjectionHistory  datatypes.JSON `json:"objection_history"  gorm:"type:json"`
	Extensions        datatypes.JSON `json:"extensions"         gorm:"type:json"`
	PresentationTurns int            `json:"presentation_turns" gorm:"not null;default:0"`
	Version           int64          `json:"version"            gorm:"not null;default:0"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// TableName returns the database table name for ConversationContext.
func (ConversationContext) TableName() string { return "conversation_contexts" }
