package models

import (
	"time"

	"github.com/google/uuid"
)

// Playbook is an imported playbook definition runs can reference as their
// executable source.
type Playbook struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Alias      string    `gorm:"type:text;uniqueIndex;not null" json:"alias"`
	Definition string    `gorm:"type:text;not null" json:"definition"`
	StepCount  int       `gorm:"not null;default:0" json:"step_count"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time `gorm:"not null" json:"updated_at"`
}
