package models

import (
	"time"

	"github.com/google/uuid"
)

// Video is an external video reference attached to a run, keyed
// idempotently by the provider's identifier.
type Video struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ExternalID string    `gorm:"type:text;uniqueIndex;not null" json:"external_id"`
	Title      string    `gorm:"type:text" json:"title,omitempty"`
	ChannelID  string    `gorm:"type:text" json:"channel_id,omitempty"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time `gorm:"not null" json:"updated_at"`
}
