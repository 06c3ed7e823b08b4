package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type RunStatus string

const (
	RunStatusQueued              RunStatus = "queued"
	RunStatusRunning             RunStatus = "running"
	RunStatusCompleted           RunStatus = "completed"
	RunStatusCompletedWithErrors RunStatus = "completed_with_errors"
	RunStatusFailed              RunStatus = "failed"
	RunStatusStopped             RunStatus = "stopped"
)

// Run is one execution of a workflow or playbook across a set of devices.
// Exactly one of WorkflowID or PlaybookID is set. Runs are never deleted.
type Run struct {
	ID               uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	Status           RunStatus         `gorm:"type:text;index;not null" json:"status"`
	Trigger          string            `gorm:"type:text" json:"trigger,omitempty"`
	Scope            string            `gorm:"type:text" json:"scope,omitempty"`
	Mode             string            `gorm:"type:text" json:"mode,omitempty"`
	WorkflowID       *uuid.UUID        `gorm:"type:uuid;index" json:"workflow_id,omitempty"`
	PlaybookID       *uuid.UUID        `gorm:"type:uuid;index" json:"playbook_id,omitempty"`
	VideoID          *uuid.UUID        `gorm:"type:uuid;index" json:"video_id,omitempty"`
	Params           datatypes.JSONMap `gorm:"type:json" json:"params,omitempty"`
	TimeoutOverrides datatypes.JSONMap `gorm:"type:json" json:"timeout_overrides,omitempty"`
	GlobalTimeoutMs  int64             `gorm:"not null" json:"global_timeout_ms"`
	Target           datatypes.JSONMap `gorm:"type:json" json:"target,omitempty"`
	SummarySucceeded int               `gorm:"not null;default:0" json:"summary_succeeded"`
	SummaryFailed    int               `gorm:"not null;default:0" json:"summary_failed"`
	SummaryTimeout   int               `gorm:"not null;default:0" json:"summary_timeout"`
	StartedAt        *time.Time        `json:"started_at,omitempty"`
	FinishedAt       *time.Time        `json:"finished_at,omitempty"`
	CreatedAt        time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time         `gorm:"not null" json:"updated_at"`
}
