package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ScanJob tracks a node-side device scan whose progress arrives through
// scan_progress events.
type ScanJob struct {
	ID        uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	NodeID    string            `gorm:"type:text;index" json:"node_id,omitempty"`
	Status    string            `gorm:"type:text;index;not null" json:"status"`
	Detail    datatypes.JSONMap `gorm:"type:json" json:"detail,omitempty"`
	CreatedAt time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time         `gorm:"not null" json:"updated_at"`
}
