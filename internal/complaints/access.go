package complaints

import (
	"github.com/angelmondragon/supportdesk-backend/pkg/auth"
	"github.com/angelmondragon/supportdesk-backend/pkg/db/models"
	"github.com/angelmondragon/supportdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/supportdesk-backend/pkg/errors"
)

// ValidateAccess decides whether the principal may read a complaint and its
// chat: the owning customer, the assigned agent, or any admin.
func ValidateAccess(p auth.Principal, c *models.Complaint) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "complaint not found")
	}
	switch p.Role {
	case enums.RoleAdmin:
		return nil
	case enums.RoleCustomer:
		if c.UserID == p.ID {
			return nil
		}
		return pkgerrors.New(pkgerrors.CodeForbidden, "you do not have permission to view this complaint")
	case enums.RoleService:
		if c.IsAssignedTo(p.ID) {
			return nil
		}
		return pkgerrors.New(pkgerrors.CodeForbidden, "complaint is not assigned to you")
	default:
		return pkgerrors.New(pkgerrors.CodeForbidden, "unknown role")
	}
}
