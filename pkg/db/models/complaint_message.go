package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/supportdesk-backend/pkg/enums"
)

// ComplaintMessage is an immutable chat message stored encrypted at rest.
type ComplaintMessage struct {
	ID               uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	ComplaintID      uuid.UUID        `gorm:"column:complaint_id;type:uuid;not null"`
	Sender           enums.SenderType `gorm:"column:sender;type:message_sender;not null"`
	SenderID         uuid.UUID        `gorm:"column:sender_id;type:uuid;not null"`
	EncryptedContent string           `gorm:"column:encrypted_content;not null"`
	IV               string           `gorm:"column:iv;not null"`
	CreatedAt        time.Time        `gorm:"column:created_at;autoCreateTime"`
}

func (ComplaintMessage) TableName() string { return "complaint_messages" }

func (m *ComplaintMessage) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
