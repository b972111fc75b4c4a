package auth

import (
	"github.com/angelmondragon/supportdesk-backend/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Role   enums.Role
	Name   string
	JTI    string
}

// AccessTokenClaims represents the typed JWT issued by the identity provider.
type AccessTokenClaims struct {
	UserID uuid.UUID  `json:"user_id"`
	Role   enums.Role `json:"role"`
	Name   string     `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller every operation receives.
type Principal struct {
	ID   uuid.UUID
	Role enums.Role
	Name string
}

// PrincipalFromClaims normalizes token claims into a Principal.
func PrincipalFromClaims(claims *AccessTokenClaims) (Principal, error) {
	if claims == nil || claims.UserID == uuid.Nil {
		return Principal{}, ErrMissingSubject
	}
	role, err := enums.ParseRole(string(claims.Role))
	if err != nil {
		return Principal{}, err
	}
	return Principal{ID: claims.UserID, Role: role, Name: claims.Name}, nil
}

// Is reports whether the principal holds one of the provided roles.
func (p Principal) Is(roles ...enums.Role) bool {
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}
