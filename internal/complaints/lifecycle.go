package complaints

import (
	"fmt"

	"github.com/angelmondragon/supportdesk-backend/pkg/auth"
	"github.com/angelmondragon/supportdesk-backend/pkg/db/models"
	"github.com/angelmondragon/supportdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/supportdesk-backend/pkg/errors"
)

var transitions = map[enums.ComplaintStatus][]enums.ComplaintStatus{
	enums.ComplaintStatusPending:    {enums.ComplaintStatusAssigned, enums.ComplaintStatusClosed},
	enums.ComplaintStatusAssigned:   {enums.ComplaintStatusInProgress, enums.ComplaintStatusResolved, enums.ComplaintStatusClosed},
	enums.ComplaintStatusInProgress: {enums.ComplaintStatusResolved, enums.ComplaintStatusClosed},
	enums.ComplaintStatusResolved:   {enums.ComplaintStatusClosed},
}

// CanTransition reports whether a complaint may move from one status to another.
func CanTransition(from, to enums.ComplaintStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func stateConflict(c *models.Complaint, to enums.ComplaintStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("complaint cannot move from %s to %s", c.Status, to)).
		WithDetails(map[string]any{"status": c.Status, "target": to})
}

// GuardResolve allows only the assigned agent to resolve. A complaint that is
// already resolved passes so the caller can treat the request as a no-op.
func GuardResolve(p auth.Principal, c *models.Complaint) error {
	if !p.Is(enums.RoleService) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "only support agents can resolve complaints")
	}
	switch c.Status {
	case enums.ComplaintStatusResolved:
		return nil
	case enums.ComplaintStatusClosed:
		return stateConflict(c, enums.ComplaintStatusResolved)
	}
	if !c.IsAssignedTo(p.ID) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "complaint is not assigned to you")
	}
	if !CanTransition(c.Status, enums.ComplaintStatusResolved) {
		return stateConflict(c, enums.ComplaintStatusResolved)
	}
	return nil
}

// GuardClose allows the owner, the assigned agent or an admin to close. An
// already closed complaint passes for anyone who could have closed it.
func GuardClose(p auth.Principal, c *models.Complaint) error {
	switch p.Role {
	case enums.RoleAdmin:
	case enums.RoleCustomer:
		if c.UserID != p.ID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "complaint belongs to another customer")
		}
	case enums.RoleService:
		if c.Status != enums.ComplaintStatusClosed && !c.IsAssignedTo(p.ID) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "complaint is not assigned to you")
		}
	default:
		return pkgerrors.New(pkgerrors.CodeForbidden, "unknown role")
	}
	if c.Status == enums.ComplaintStatusClosed {
		return nil
	}
	if !CanTransition(c.Status, enums.ComplaintStatusClosed) {
		return stateConflict(c, enums.ComplaintStatusClosed)
	}
	return nil
}
