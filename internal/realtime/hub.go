// Package realtime carries notifications and chat over websocket connections.
package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/angelmondragon/supportdesk-backend/internal/notify"
	"github.com/angelmondragon/supportdesk-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/supportdesk-backend/pkg/errors"
	"github.com/angelmondragon/supportdesk-backend/pkg/logger"
	"github.com/angelmondragon/supportdesk-backend/pkg/metrics"
)

// Frame is the envelope exchanged with socket clients in both directions.
type Frame struct {
	Event     string          `json:"event"`
	RequestID string          `json:"requestId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ErrorPayload is the data of an error frame.
type ErrorPayload struct {
	RequestID string         `json:"requestId,omitempty"`
	Code      pkgerrors.Code `json:"code"`
	Message   string         `json:"message"`
	Details   any            `json:"details,omitempty"`
	Retryable bool           `json:"retryable"`
}

func errorPayload(requestID string, err error) ErrorPayload {
	code, msg, details := pkgerrors.Public(err)
	return ErrorPayload{
		RequestID: requestID,
		Code:      code,
		Message:   msg,
		Details:   details,
		Retryable: pkgerrors.MetadataFor(code).Retryable,
	}
}

// Client is one live socket session.
type Client struct {
	id        string
	principal auth.Principal
	send      chan []byte

	mu     sync.Mutex
	rooms  map[string]struct{}
	closed bool
}

func newClient(id string, principal auth.Principal, buffer int) *Client {
	if buffer <= 0 {
		buffer = 1
	}
	return &Client{
		id:        id,
		principal: principal,
		send:      make(chan []byte, buffer),
		rooms:     map[string]struct{}{},
	}
}

// ID returns the connection id.
func (c *Client) ID() string { return c.id }

// Principal returns the authenticated caller behind the connection.
func (c *Client) Principal() auth.Principal { return c.principal }

// enqueue never blocks; a full buffer drops the frame.
func (c *Client) enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Client) joined() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		out = append(out, room)
	}
	return out
}

// Hub is the room registry. It implements notify.Sink.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]map[*Client]struct{}
	clients map[string]*Client
	logg    *logger.Logger
	metrics *metrics.RealtimeMetrics
}

var _ notify.Sink = (*Hub)(nil)

// NewHub builds an empty hub.
func NewHub(logg *logger.Logger, m *metrics.RealtimeMetrics) *Hub {
	return &Hub{
		rooms:   map[string]map[*Client]struct{}{},
		clients: map[string]*Client{},
		logg:    logg,
		metrics: m,
	}
}

// Register adds the client and joins it to its own connection room.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	h.Join(c, notify.Connection(c.id).Room())
	h.metrics.ConnectionOpened()
}

// Unregister removes the client from every room and closes its send buffer.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.id)
	for _, room := range c.joined() {
		h.removeLocked(c, room)
	}
	h.mu.Unlock()
	c.close()
	h.metrics.ConnectionClosed()
}

// Join subscribes the client to a room.
func (h *Hub) Join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[room]
	if !ok {
		members = map[*Client]struct{}{}
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.mu.Lock()
	c.rooms[room] = struct{}{}
	c.mu.Unlock()
}

// Leave unsubscribes the client from a room.
func (h *Hub) Leave(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c, room)
}

func (h *Hub) removeLocked(c *Client, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	c.mu.Lock()
	delete(c.rooms, room)
	c.mu.Unlock()
}

// Members returns how many clients are subscribed to a room.
func (h *Hub) Members(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Connections returns the number of registered clients.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Deliver encodes the event once and offers it to every member of the audience room.
func (h *Hub) Deliver(ctx context.Context, event notify.Event) error {
	frame, err := encodeFrame(event.Name, "", event.Payload)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode frame")
	}

	h.mu.RLock()
	members := make([]*Client, 0, len(h.rooms[event.Audience.Room()]))
	for c := range h.rooms[event.Audience.Room()] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	for _, c := range members {
		if !c.enqueue(frame) {
			h.metrics.IncDropped(event.Name)
			if h.logg != nil {
				logCtx := h.logg.WithFields(ctx, map[string]any{
					"event":         event.Name,
					"connection_id": c.id,
				})
				h.logg.Warn(logCtx, "dropped frame for slow client")
			}
		}
	}
	return nil
}

// SendTo writes a frame to one client only.
func (h *Hub) SendTo(c *Client, event, requestID string, payload any) bool {
	frame, err := encodeFrame(event, requestID, payload)
	if err != nil {
		return false
	}
	if !c.enqueue(frame) {
		h.metrics.IncDropped(event)
		return false
	}
	return true
}

func encodeFrame(event, requestID string, payload any) ([]byte, error) {
	var data json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		data = raw
	}
	return json.Marshal(Frame{Event: event, RequestID: requestID, Data: data})
}
