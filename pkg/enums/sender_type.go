package enums

import "fmt"

// SenderType records which side of the conversation wrote a message.
type SenderType string

const (
	SenderCustomer SenderType = "customer"
	SenderService  SenderType = "service"
)

var validSenderTypes = []SenderType{
	SenderCustomer,
	SenderService,
}

// IsValid reports whether the value is a known SenderType.
func (s SenderType) IsValid() bool {
	for _, candidate := range validSenderTypes {
		if candidate == s {
			return true
		}
	}
	return false
}

// SenderForRole maps a caller role onto the conversation side. Admins speak
// for the support side.
func SenderForRole(role Role) SenderType {
	if role == RoleCustomer {
		return SenderCustomer
	}
	return SenderService
}

// ParseSenderType converts raw input into a SenderType.
func ParseSenderType(value string) (SenderType, error) {
	for _, candidate := range validSenderTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid sender type %q", value)
}
