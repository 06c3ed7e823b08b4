package models

import "time"

// CallbackEvent is the idempotency ledger. One row is inserted per distinct
// event id; the primary-key violation on a second insert is the sole
// duplicate signal. Rows are never updated or read beyond the insert.
type CallbackEvent struct {
	EventID   string    `gorm:"type:text;primaryKey" json:"event_id"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}
