package models

import (
	"time"

	"gorm.io/datatypes"
)

// NodeHeartbeat holds the most recent heartbeat per node, overwritten on
// every node_heartbeat event. The sweeper flips Online to false when a
// heartbeat goes stale.
type NodeHeartbeat struct {
	NodeID    string            `gorm:"type:text;primaryKey" json:"node_id"`
	Payload   datatypes.JSONMap `gorm:"type:json" json:"payload,omitempty"`
	Online    bool              `gorm:"not null;default:true" json:"online"`
	CreatedAt time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time         `gorm:"not null;index" json:"updated_at"`
}
