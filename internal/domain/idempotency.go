package domain

import "time"

// SendReceipt records that an outbound send for (user_id, key) has already
// been counted. A repeated RecordSent call carrying the same Idempotency-Key
// is acknowledged without advancing any counter again.
type SendReceipt struct {
	ID        string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	UserID    string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_receipt_user_key,priority:1"`
	Key       string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_receipt_user_key,priority:2"`
	CreatedAt time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (SendReceipt) TableName() string { return "send_receipts" }
