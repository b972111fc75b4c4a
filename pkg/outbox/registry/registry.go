// Package registry maps stored outbox rows to their topic and typed payload.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/supportdesk-backend/pkg/config"
	"github.com/angelmondragon/supportdesk-backend/pkg/db/models"
	"github.com/angelmondragon/supportdesk-backend/pkg/enums"
	"github.com/angelmondragon/supportdesk-backend/pkg/outbox"
	"github.com/angelmondragon/supportdesk-backend/pkg/outbox/payloads"
)

// EventDescriptor binds an event type to its aggregate, topic and payload.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() any
}

// ResolvedEvent is a row that passed validation, with its decoded payload.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// NonRetryableError marks rows that no amount of retrying will fix.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func reject(format string, args ...any) error {
	return NewNonRetryableError(fmt.Errorf(format, args...))
}

func complaintEvent[T any](eventType enums.OutboxEventType, topic string) EventDescriptor {
	return EventDescriptor{
		EventType:      eventType,
		AggregateType:  enums.AggregateComplaint,
		Topic:          topic,
		PayloadFactory: func() any { return new(T) },
	}
}

// EventRegistry is read-only after construction.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NewEventRegistry sends every complaint lifecycle event to the support
// topic; subscribers filter on the event_type attribute.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	topic := strings.TrimSpace(cfg.SupportTopic)
	if topic == "" {
		return nil, errors.New("support topic is required")
	}
	return newEventRegistry(
		complaintEvent[payloads.ComplaintCreatedEvent](enums.EventComplaintCreated, topic),
		complaintEvent[payloads.ComplaintAssignedEvent](enums.EventComplaintAssigned, topic),
		complaintEvent[payloads.ComplaintResolvedEvent](enums.EventComplaintResolved, topic),
		complaintEvent[payloads.ComplaintClosedEvent](enums.EventComplaintClosed, topic),
	), nil
}

func newEventRegistry(descs ...EventDescriptor) *EventRegistry {
	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(descs))}
	for _, d := range descs {
		if d.PayloadFactory != nil {
			reg.entries[d.EventType] = d
		}
	}
	return reg
}

// Topics lists the distinct topics in sorted order.
func (r *EventRegistry) Topics() []string {
	seen := make(map[string]struct{}, len(r.entries))
	out := make([]string, 0, len(r.entries))
	for _, d := range r.entries {
		if _, dup := seen[d.Topic]; !dup {
			seen[d.Topic] = struct{}{}
			out = append(out, d.Topic)
		}
	}
	sort.Strings(out)
	return out
}

// Resolve validates event against its descriptor and decodes the payload.
// Every failure is a NonRetryableError.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, reject("unsupported event type %s", event.EventType)
	case desc.AggregateType != event.AggregateType:
		return nil, reject("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, reject("missing aggregate_id")
	}

	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, reject("%s: %w", event.EventType, err)
	}
	payload := desc.PayloadFactory()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, reject("decode %s payload: %w", event.EventType, err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
