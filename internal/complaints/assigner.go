package complaints

import (
	"context"

	"github.com/angelmondragon/supportdesk-backend/pkg/auth"
	"github.com/angelmondragon/supportdesk-backend/pkg/db/models"
	"github.com/angelmondragon/supportdesk-backend/pkg/enums"
	"github.com/google/uuid"
)

// Outcome is what happened to a complaint when assignment was attempted.
type Outcome string

const (
	OutcomeAssigned Outcome = "assigned"
	OutcomeQueued   Outcome = "queued"
	OutcomePending  Outcome = "pending"
)

// Assignment reports the result of Assign or Drain. Complaint is nil when a
// drain found nothing to bind.
type Assignment struct {
	Outcome   Outcome
	Complaint *models.Complaint
	AgentID   *uuid.UUID
	FromQueue bool
}

// Bound reports whether the complaint ended up with an agent.
func (a *Assignment) Bound() bool {
	return a != nil && a.Outcome == OutcomeAssigned && a.AgentID != nil
}

// ReleaseInput moves a complaint into a terminal state. Guard runs against
// the locked row and must reject transitions the actor may not perform.
type ReleaseInput struct {
	ComplaintID uuid.UUID
	Target      enums.ComplaintStatus
	Actor       auth.Principal
	Guard       func(*models.Complaint) error
}

// Release is the result of a terminal transition.
type Release struct {
	Complaint      *models.Complaint
	PreviousStatus enums.ComplaintStatus
	FreedAgent     *uuid.UUID
	Changed        bool
}

// Assigner owns every write that binds or unbinds a complaint and an agent.
type Assigner interface {
	Assign(ctx context.Context, complaintID uuid.UUID) (*Assignment, error)
	Drain(ctx context.Context, agentID uuid.UUID) (*Assignment, error)
	Release(ctx context.Context, input ReleaseInput) (*Release, error)
}
