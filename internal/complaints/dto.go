package complaints

import (
	"strings"
	"time"

	"github.com/angelmondragon/supportdesk-backend/pkg/db/models"
	"github.com/angelmondragon/supportdesk-backend/pkg/enums"
	"github.com/angelmondragon/supportdesk-backend/pkg/pagination"
	"github.com/google/uuid"
)

// SubmitInput is what a customer sends to open a complaint.
type SubmitInput struct {
	OrderID          string `json:"orderId" validate:"required,notblank,max=64"`
	Subject          string `json:"subject" validate:"required,notblank,max=200"`
	Description      string `json:"description" validate:"required,notblank,max=5000"`
	RequiresLiveChat bool   `json:"requiresLiveChat"`
}

func (in SubmitInput) normalized() SubmitInput {
	in.OrderID = strings.TrimSpace(in.OrderID)
	in.Subject = strings.TrimSpace(in.Subject)
	in.Description = strings.TrimSpace(in.Description)
	return in
}

// ListAllInput filters the admin listing.
type ListAllInput struct {
	Status string
	pagination.Params
}

// ComplaintDTO is the public shape of a complaint.
type ComplaintDTO struct {
	ID               uuid.UUID             `json:"id"`
	OrderID          string                `json:"orderId"`
	UserID           uuid.UUID             `json:"userId"`
	Subject          string                `json:"subject"`
	Description      string                `json:"description"`
	RequiresLiveChat bool                  `json:"requiresLiveChat"`
	Status           enums.ComplaintStatus `json:"status"`
	AssignedTo       *uuid.UUID            `json:"assignedTo"`
	CreatedAt        time.Time             `json:"createdAt"`
	UpdatedAt        time.Time             `json:"updatedAt"`
	ResolvedAt       *time.Time            `json:"resolvedAt,omitempty"`
	ClosedAt         *time.Time            `json:"closedAt,omitempty"`
}

// FromModel maps a complaint row into its DTO.
func FromModel(c *models.Complaint) ComplaintDTO {
	return ComplaintDTO{
		ID:               c.ID,
		OrderID:          c.OrderID,
		UserID:           c.UserID,
		Subject:          c.Subject,
		Description:      c.Description,
		RequiresLiveChat: c.RequiresLiveChat,
		Status:           c.Status,
		AssignedTo:       c.AssignedTo,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
		ResolvedAt:       c.ResolvedAt,
		ClosedAt:         c.ClosedAt,
	}
}

// PageFromModels maps a page of rows.
func PageFromModels(page pagination.Page[models.Complaint]) pagination.Page[ComplaintDTO] {
	items := make([]ComplaintDTO, len(page.Items))
	for i := range page.Items {
		items[i] = FromModel(&page.Items[i])
	}
	return pagination.Page[ComplaintDTO]{Items: items, NextCursor: page.NextCursor}
}

// AssignmentDTO tells the submitter where their complaint went.
type AssignmentDTO struct {
	Outcome Outcome    `json:"outcome"`
	AgentID *uuid.UUID `json:"agentId,omitempty"`
}

// SubmitResult is the acknowledgement of a submission.
type SubmitResult struct {
	Complaint  ComplaintDTO  `json:"complaint"`
	Assignment AssignmentDTO `json:"assignment"`
}

// TransitionResult is returned by resolve and close. Changed is false when
// the complaint was already in the requested state.
type TransitionResult struct {
	Complaint ComplaintDTO `json:"complaint"`
	Changed   bool         `json:"changed"`
}

// StatusPayload is the body of complaint-status notifications.
type StatusPayload struct {
	ComplaintID uuid.UUID             `json:"complaintId"`
	Status      enums.ComplaintStatus `json:"status"`
	AssignedTo  *uuid.UUID            `json:"assignedTo"`
	Message     string                `json:"message,omitempty"`
}

// StatusOf builds a complaint-status payload from a row.
func StatusOf(c *models.Complaint, message string) StatusPayload {
	return StatusPayload{ComplaintID: c.ID, Status: c.Status, AssignedTo: c.AssignedTo, Message: message}
}

// LifecyclePayload is the body of complaint-resolved and complaint-closed.
type LifecyclePayload struct {
	ComplaintID uuid.UUID             `json:"complaintId"`
	Status      enums.ComplaintStatus `json:"status"`
	By          uuid.UUID             `json:"by"`
	At          time.Time             `json:"at"`
}

// NewComplaintPayload announces an intake to the service room.
type NewComplaintPayload struct {
	ComplaintID      uuid.UUID `json:"complaintId"`
	OrderID          string    `json:"orderId"`
	Subject          string    `json:"subject"`
	RequiresLiveChat bool      `json:"requiresLiveChat"`
	CreatedAt        time.Time `json:"createdAt"`
}
