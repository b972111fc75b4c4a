package enums

import "fmt"

// ComplaintStatus maps to the complaint_status enum in Postgres.
type ComplaintStatus string

const (
	ComplaintStatusPending    ComplaintStatus = "pending"
	ComplaintStatusAssigned   ComplaintStatus = "assigned"
	ComplaintStatusInProgress ComplaintStatus = "in-progress"
	ComplaintStatusResolved   ComplaintStatus = "resolved"
	ComplaintStatusClosed     ComplaintStatus = "closed"
)

var validComplaintStatuses = []ComplaintStatus{
	ComplaintStatusPending,
	ComplaintStatusAssigned,
	ComplaintStatusInProgress,
	ComplaintStatusResolved,
	ComplaintStatusClosed,
}

// String implements fmt.Stringer.
func (s ComplaintStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ComplaintStatus.
func (s ComplaintStatus) IsValid() bool {
	for _, candidate := range validComplaintStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsActive reports whether the complaint is currently bound to an agent.
func (s ComplaintStatus) IsActive() bool {
	return s == ComplaintStatusAssigned || s == ComplaintStatusInProgress
}

// IsTerminal reports whether the complaint can no longer be reassigned.
func (s ComplaintStatus) IsTerminal() bool {
	return s == ComplaintStatusResolved || s == ComplaintStatusClosed
}

// ParseComplaintStatus converts raw input into a ComplaintStatus.
func ParseComplaintStatus(value string) (ComplaintStatus, error) {
	for _, candidate := range validComplaintStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid complaint status %q", value)
}
