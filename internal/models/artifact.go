package models

import (
	"time"

	"github.com/google/uuid"
)

// Artifact is an immutable pointer to something a node produced during a
// run (recording, screenshot, log bundle).
type Artifact struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	RunID        uuid.UUID  `gorm:"type:uuid;index;not null" json:"run_id"`
	DeviceTaskID *uuid.UUID `gorm:"type:uuid;index" json:"device_task_id,omitempty"`
	NodeID       string     `gorm:"type:text;index" json:"node_id,omitempty"`
	DeviceID     string     `gorm:"type:text" json:"device_id,omitempty"`
	DeviceIndex  *int       `json:"device_index,omitempty"`
	Kind         string     `gorm:"type:text;not null" json:"kind"`
	StoragePath  string     `gorm:"type:text;not null" json:"storage_path"`
	PublicURL    string     `gorm:"type:text" json:"public_url,omitempty"`
	CreatedAt    time.Time  `gorm:"not null" json:"created_at"`
}
