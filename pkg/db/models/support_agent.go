package models

import (
	"time"

	"github.com/google/uuid"
)

// SupportAgent is the presence record of a customer-service representative.
// The id is the agent's principal id.
type SupportAgent struct {
	ID           uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	DisplayName  string     `gorm:"column:display_name;not null;default:''"`
	IsOnline     bool       `gorm:"column:is_online;not null;default:false"`
	ConnectionID *string    `gorm:"column:connection_id"`
	LastActiveAt *time.Time `gorm:"column:last_active_at"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (SupportAgent) TableName() string { return "support_agents" }

// AgentActiveComplaint is one entry of an agent's ordered active set.
type AgentActiveComplaint struct {
	AgentID          uuid.UUID `gorm:"column:agent_id;type:uuid;primaryKey"`
	ComplaintID      uuid.UUID `gorm:"column:complaint_id;type:uuid;primaryKey"`
	RequiresLiveChat bool      `gorm:"column:requires_live_chat;not null;default:false"`
	AssignedAt       time.Time `gorm:"column:assigned_at;not null"`
}

func (AgentActiveComplaint) TableName() string { return "agent_active_complaints" }
