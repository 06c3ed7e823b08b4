package models

import (
	"time"

	"github.com/google/uuid"
)

// RunStep is the per-step record for one device slot within a run. The
// (run, device slot, step index) key is unique; writes assume step indices
// arrive non-decreasing per device, so the last write for a key wins.
type RunStep struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	RunID       uuid.UUID  `gorm:"type:uuid;uniqueIndex:idx_run_steps_key;not null" json:"run_id"`
	DeviceIndex int        `gorm:"uniqueIndex:idx_run_steps_key;not null" json:"device_index"`
	StepIndex   int        `gorm:"uniqueIndex:idx_run_steps_key;not null" json:"step_index"`
	StepID      string     `gorm:"type:text;not null" json:"step_id"`
	StepType    string     `gorm:"type:text" json:"step_type,omitempty"`
	Status      string     `gorm:"type:text;index" json:"status,omitempty"`
	Probability *float64   `json:"probability,omitempty"`
	Decision    string     `gorm:"type:text" json:"decision,omitempty"`
	Error       string     `gorm:"type:text" json:"error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	CreatedAt   time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"not null" json:"updated_at"`
}
