package models

import (
	"time"

	"github.com/google/uuid"
)

type DeviceTaskStatus string

const (
	DeviceTaskStatusPending   DeviceTaskStatus = "pending"
	DeviceTaskStatusRunning   DeviceTaskStatus = "running"
	DeviceTaskStatusCompleted DeviceTaskStatus = "completed"
	DeviceTaskStatusFailed    DeviceTaskStatus = "failed"
)

// FailureReasonDeviceOffline marks attempts skipped because the device's
// node was unreachable; the run listing tallies these separately.
const FailureReasonDeviceOffline = "device_offline"

// DeviceTask records one logical attempt for a device within a run. It is
// the audit log of node-reported task lifecycle; RunDeviceState is the
// authoritative progress slice. Updates are last-write-wins, not lease-gated.
type DeviceTask struct {
	ID            uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	RunID         uuid.UUID        `gorm:"type:uuid;uniqueIndex:idx_device_tasks_run_device;not null" json:"run_id"`
	DeviceID      string           `gorm:"type:text;uniqueIndex:idx_device_tasks_run_device;not null" json:"device_id"`
	NodeID        string           `gorm:"type:text;index;not null" json:"node_id"`
	DeviceIndex   *int             `gorm:"index" json:"device_index,omitempty"`
	RuntimeID     string           `gorm:"type:text" json:"runtime_id,omitempty"`
	Status        DeviceTaskStatus `gorm:"type:text;index;not null" json:"status"`
	FailureReason string           `gorm:"type:text" json:"failure_reason,omitempty"`
	Error         string           `gorm:"type:text" json:"error,omitempty"`
	StartedAt     *time.Time       `json:"started_at,omitempty"`
	FinishedAt    *time.Time       `json:"finished_at,omitempty"`
	CreatedAt     time.Time        `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time        `gorm:"not null" json:"updated_at"`
}
