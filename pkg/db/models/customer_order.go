package models

import "github.com/google/uuid"

// CustomerOrder is the read-only slice of the orders table used for ownership checks.
type CustomerOrder struct {
	OrderID string    `gorm:"column:order_id;primaryKey"`
	UserID  uuid.UUID `gorm:"column:user_id;type:uuid;not null"`
}

func (CustomerOrder) TableName() string { return "orders" }
