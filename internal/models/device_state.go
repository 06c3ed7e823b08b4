package models

import (
	"time"

	"github.com/google/uuid"
)

type DeviceStateStatus string

const (
	DeviceStateStatusQueued    DeviceStateStatus = "queued"
	DeviceStateStatusRunning   DeviceStateStatus = "running"
	DeviceStateStatusSucceeded DeviceStateStatus = "succeeded"
	DeviceStateStatusFailed    DeviceStateStatus = "failed"
	DeviceStateStatusStopped   DeviceStateStatus = "stopped"
)

// RunDeviceState is the authoritative per-device progress slice of a run,
// keyed by the run-scoped device slot index. Handlers may write a row only
// while holding a valid lease for it: LeaseOwner must match the writing
// node, LeaseToken (when both sides carry one) must match, and LeaseUntil
// must not have passed.
type RunDeviceState struct {
	RunID       uuid.UUID         `gorm:"type:uuid;primaryKey" json:"run_id"`
	DeviceIndex int               `gorm:"primaryKey;autoIncrement:false" json:"device_index"`
	Status      DeviceStateStatus `gorm:"type:text;index;not null" json:"status"`
	CurrentStep int               `gorm:"not null;default:0" json:"current_step"`
	LastSeen    *time.Time        `json:"last_seen,omitempty"`
	LastError   string            `gorm:"type:text" json:"last_error,omitempty"`
	LeaseOwner  string            `gorm:"type:text;index" json:"lease_owner,omitempty"`
	LeaseUntil  *time.Time        `json:"lease_until,omitempty"`
	LeaseToken  string            `gorm:"type:text" json:"-"`
	UpdatedAt   time.Time         `gorm:"not null" json:"updated_at"`
}
