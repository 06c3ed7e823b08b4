package models

import (
	"time"

	"github.com/google/uuid"
)

// Workflow is a named workflow runs can reference as their executable
// source when no playbook is given.
type Workflow struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"type:text;uniqueIndex;not null" json:"name"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}
