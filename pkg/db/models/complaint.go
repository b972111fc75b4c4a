package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/supportdesk-backend/pkg/enums"
)

// Complaint is a customer-raised support ticket tied to an order.
type Complaint struct {
	ID               uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OrderID          string                `gorm:"column:order_id;not null"`
	UserID           uuid.UUID             `gorm:"column:user_id;type:uuid;not null"`
	Subject          string                `gorm:"column:subject;not null"`
	Description      string                `gorm:"column:description;not null"`
	RequiresLiveChat bool                  `gorm:"column:requires_live_chat;not null;default:false"`
	Status           enums.ComplaintStatus `gorm:"column:status;type:complaint_status;not null;default:'pending'"`
	AssignedTo       *uuid.UUID            `gorm:"column:assigned_to;type:uuid"`
	CreatedAt        time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time             `gorm:"column:updated_at;autoUpdateTime"`
	ResolvedAt       *time.Time            `gorm:"column:resolved_at"`
	ClosedAt         *time.Time            `gorm:"column:closed_at"`
}

func (Complaint) TableName() string { return "complaints" }

func (c *Complaint) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// IsAssignedTo reports whether agentID currently owns the complaint.
func (c *Complaint) IsAssignedTo(agentID uuid.UUID) bool {
	return c.AssignedTo != nil && *c.AssignedTo == agentID
}
