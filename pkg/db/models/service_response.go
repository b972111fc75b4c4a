package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ServiceResponse is an append-only ledger row written on every assignment.
type ServiceResponse struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ServiceID   uuid.UUID `gorm:"column:service_id;type:uuid;not null"`
	ComplaintID uuid.UUID `gorm:"column:complaint_id;type:uuid;not null"`
	OrderID     string    `gorm:"column:order_id;not null"`
	RecordedAt  time.Time `gorm:"column:recorded_at;not null"`
}

func (ServiceResponse) TableName() string { return "service_responses" }

func (r *ServiceResponse) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
