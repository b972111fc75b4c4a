// Package payloads defines the data section of every complaint lifecycle event.
package payloads

import (
	"time"

	"github.com/angelmondragon/supportdesk-backend/pkg/enums"
	"github.com/google/uuid"
)

// ComplaintCreatedEvent is emitted when a customer files a complaint.
type ComplaintCreatedEvent struct {
	ComplaintID      uuid.UUID             `json:"complaint_id"`
	OrderID          string                `json:"order_id"`
	UserID           uuid.UUID             `json:"user_id"`
	Subject          string                `json:"subject"`
	RequiresLiveChat bool                  `json:"requires_live_chat"`
	Status           enums.ComplaintStatus `json:"status"`
	CreatedAt        time.Time             `json:"created_at"`
}

// ComplaintAssignedEvent is emitted when a complaint is bound to an agent,
// either directly or when the waiting queue drains.
type ComplaintAssignedEvent struct {
	ComplaintID      uuid.UUID `json:"complaint_id"`
	OrderID          string    `json:"order_id"`
	UserID           uuid.UUID `json:"user_id"`
	AgentID          uuid.UUID `json:"agent_id"`
	RequiresLiveChat bool      `json:"requires_live_chat"`
	FromQueue        bool      `json:"from_queue"`
	AssignedAt       time.Time `json:"assigned_at"`
}

// ComplaintResolvedEvent is emitted when the assigned agent resolves a complaint.
type ComplaintResolvedEvent struct {
	ComplaintID uuid.UUID `json:"complaint_id"`
	UserID      uuid.UUID `json:"user_id"`
	AgentID     uuid.UUID `json:"agent_id"`
	ResolvedAt  time.Time `json:"resolved_at"`
}

// ComplaintClosedEvent is emitted when a complaint is closed by any permitted party.
type ComplaintClosedEvent struct {
	ComplaintID    uuid.UUID             `json:"complaint_id"`
	UserID         uuid.UUID             `json:"user_id"`
	AgentID        *uuid.UUID            `json:"agent_id,omitempty"`
	PreviousStatus enums.ComplaintStatus `json:"previous_status"`
	ClosedBy       uuid.UUID             `json:"closed_by"`
	ClosedAt       time.Time             `json:"closed_at"`
}
