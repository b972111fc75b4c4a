package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CurrentVersion is the envelope schema the API writes. The publisher
// accepts this version and older ones.
const CurrentVersion = 1

// ActorRef names the principal behind the change; nil for system work such
// as queue drains.
type ActorRef struct {
	UserID uuid.UUID `json:"userId"`
	Role   string    `json:"role,omitempty"`
}

// PayloadEnvelope is what outbox_events.payload holds.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

var errEmptyData = errors.New("envelope data is empty")

// newEnvelope wraps event under id, which is also the outbox row id so the
// published event_id attribute traces back to its row.
func newEnvelope(id uuid.UUID, event DomainEvent) (PayloadEnvelope, error) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return PayloadEnvelope{}, fmt.Errorf("encode %s data: %w", event.EventType, err)
	}
	env := PayloadEnvelope{
		Version:    event.Version,
		EventID:    id.String(),
		OccurredAt: event.OccurredAt,
		Actor:      event.Actor,
		Data:       data,
	}
	if env.Version == 0 {
		env.Version = CurrentVersion
	}
	if env.OccurredAt.IsZero() {
		env.OccurredAt = time.Now().UTC()
	}
	return env, nil
}

// DecodeEnvelope parses a stored payload and rejects versions newer than
// CurrentVersion or an empty data section.
func DecodeEnvelope(raw []byte) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Version < 1 || env.Version > CurrentVersion {
		return env, fmt.Errorf("unsupported envelope version %d", env.Version)
	}
	trimmed := bytes.TrimSpace(env.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return env, errEmptyData
	}
	return env, nil
}
