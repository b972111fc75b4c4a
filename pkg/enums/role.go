package enums

import (
	"fmt"
	"strings"
)

// Role is the caller's role, resolved once from the access token.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleService  Role = "service"
	RoleAdmin    Role = "admin"
)

var validRoles = []Role{
	RoleCustomer,
	RoleService,
	RoleAdmin,
}

// String implements fmt.Stringer.
func (r Role) String() string {
	return string(r)
}

// IsValid reports whether the value is a known Role.
func (r Role) IsValid() bool {
	for _, candidate := range validRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// IsStaff reports whether the role belongs to the support organisation.
func (r Role) IsStaff() bool {
	return r == RoleService || r == RoleAdmin
}

// ParseRole converts raw input into a Role. "customer service" is accepted
// as an alias for service because older tokens carry it.
func ParseRole(value string) (Role, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "customer service" || normalized == "customer_service" {
		return RoleService, nil
	}
	for _, candidate := range validRoles {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid role %q", value)
}
