// Package notify fans lifecycle notifications out to the parties of a complaint.
package notify

import (
	"fmt"

	"github.com/google/uuid"
)

// Outbound event names as seen by socket clients.
const (
	EventComplaintStatus     = "complaint-status"
	EventComplaintAssigned   = "complaint-assigned"
	EventNewComplaint        = "new-complaint"
	EventNewAssignment       = "new-assignment"
	EventServiceStatusChange = "service-status-change"
	EventChatHistory         = "chat-history"
	EventNewMessage          = "new-message"
	EventComplaintResolved   = "complaint-resolved"
	EventComplaintClosed     = "complaint-closed"
	EventUserJoined          = "user-joined"
	EventUserLeft            = "user-left"
	EventError               = "error"
	EventAck                 = "ack"
)

// AudienceKind selects how an event is routed.
type AudienceKind string

const (
	AudienceAgent       AudienceKind = "agent"
	AudienceCustomer    AudienceKind = "customer"
	AudienceComplaint   AudienceKind = "complaint"
	AudienceServiceRoom AudienceKind = "service_room"
	AudienceAdminRoom   AudienceKind = "admin_room"
	AudienceConnection  AudienceKind = "connection"
)

// Audience addresses one recipient set. ID is empty for the shared rooms.
type Audience struct {
	Kind AudienceKind
	ID   string
}

// Room names the hub room the audience maps to.
func (a Audience) Room() string {
	switch a.Kind {
	case AudienceAgent, AudienceCustomer:
		return "user:" + a.ID
	case AudienceComplaint:
		return "complaint:" + a.ID
	case AudienceServiceRoom:
		return "service-room"
	case AudienceAdminRoom:
		return "admin-room"
	case AudienceConnection:
		return "conn:" + a.ID
	default:
		return fmt.Sprintf("%s:%s", a.Kind, a.ID)
	}
}

// Shared reports whether the audience is a broadcast room rather than a party.
func (a Audience) Shared() bool {
	return a.Kind == AudienceServiceRoom || a.Kind == AudienceAdminRoom
}

func Agent(id uuid.UUID) Audience     { return Audience{Kind: AudienceAgent, ID: id.String()} }
func Customer(id uuid.UUID) Audience  { return Audience{Kind: AudienceCustomer, ID: id.String()} }
func Complaint(id uuid.UUID) Audience { return Audience{Kind: AudienceComplaint, ID: id.String()} }
func Connection(id string) Audience   { return Audience{Kind: AudienceConnection, ID: id} }
func ServiceRoom() Audience           { return Audience{Kind: AudienceServiceRoom} }
func AdminRoom() Audience             { return Audience{Kind: AudienceAdminRoom} }

// Event is one outbound notification.
type Event struct {
	Name     string
	Audience Audience
	Payload  any
}
