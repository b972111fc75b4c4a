package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/supportdesk-backend/internal/chat"
	"github.com/angelmondragon/supportdesk-backend/internal/complaints"
	"github.com/angelmondragon/supportdesk-backend/internal/notify"
	pkgerrors "github.com/angelmondragon/supportdesk-backend/pkg/errors"
	"github.com/angelmondragon/supportdesk-backend/pkg/logger"
	"github.com/angelmondragon/supportdesk-backend/pkg/metrics"
)

// Inbound event names.
const (
	EventSubmitComplaint  = "submit-complaint"
	EventJoinChat         = "join-chat"
	EventSendMessage      = "send-message"
	EventResolveComplaint = "resolve-complaint"
	EventCloseComplaint   = "close-complaint"
	EventLeaveChat        = "leave-chat"
)

// Deduper replays the outcome of a request id that was already handled.
type Deduper interface {
	Do(ctx context.Context, scope, key string, fn func() (any, error)) (json.RawMessage, bool, error)
}

// RouterParams groups the inbound event router's collaborators.
type RouterParams struct {
	Hub        *Hub
	Complaints complaints.Service
	Chat       chat.Service
	Dedupe     Deduper
	Logger     *logger.Logger
	Metrics    *metrics.RealtimeMetrics
}

// Router dispatches inbound frames to the complaint and chat services.
type Router struct {
	hub        *Hub
	complaints complaints.Service
	chat       chat.Service
	dedupe     Deduper
	logg       *logger.Logger
	metrics    *metrics.RealtimeMetrics
	handlers   map[string]handlerFunc
}

// handlerFunc returns the ack payload; nil means no ack.
type handlerFunc func(ctx context.Context, c *Client, frame Frame) (any, error)

// NewRouter validates params and registers the inbound event handlers.
func NewRouter(params RouterParams) (*Router, error) {
	if params.Hub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "hub is required")
	}
	if params.Complaints == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "complaint service is required")
	}
	if params.Chat == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "chat service is required")
	}
	r := &Router{
		hub:        params.Hub,
		complaints: params.Complaints,
		chat:       params.Chat,
		dedupe:     params.Dedupe,
		logg:       params.Logger,
		metrics:    params.Metrics,
	}
	r.handlers = map[string]handlerFunc{
		EventSubmitComplaint:  r.submitComplaint,
		EventJoinChat:         r.joinChat,
		EventSendMessage:      r.sendMessage,
		EventResolveComplaint: r.resolveComplaint,
		EventCloseComplaint:   r.closeComplaint,
		EventLeaveChat:        r.leaveChat,
	}
	return r, nil
}

// Dispatch handles one raw inbound frame. Failures are reported to the
// originating connection only and never propagate to the caller.
func (r *Router) Dispatch(ctx context.Context, c *Client, raw []byte) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		r.fail(ctx, c, Frame{Event: "malformed"}, pkgerrors.New(pkgerrors.CodeValidation, "frame must be a json object"))
		return
	}
	handler, ok := r.handlers[frame.Event]
	if !ok {
		r.fail(ctx, c, frame, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown event %q", frame.Event)))
		return
	}

	ack, err := r.invoke(ctx, handler, c, frame)
	if err != nil {
		r.fail(ctx, c, frame, err)
		return
	}
	r.metrics.IncInbound(frame.Event, "ok")
	if ack != nil {
		r.hub.SendTo(c, notify.EventAck, frame.RequestID, ack)
	}
}

func (r *Router) invoke(ctx context.Context, handler handlerFunc, c *Client, frame Frame) (ack any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("handler panic: %v", rec))
		}
	}()
	return handler(ctx, c, frame)
}

func (r *Router) fail(ctx context.Context, c *Client, frame Frame, err error) {
	r.metrics.IncInbound(frame.Event, "error")
	payload := errorPayload(frame.RequestID, err)
	r.hub.SendTo(c, notify.EventError, frame.RequestID, payload)
	if r.logg == nil {
		return
	}
	logCtx := r.logg.WithFields(ctx, map[string]any{
		"event":      frame.Event,
		"request_id": frame.RequestID,
		"error_code": string(payload.Code),
	})
	if pkgerrors.MetadataFor(payload.Code).HTTPStatus >= 500 {
		r.logg.Error(logCtx, "socket event failed", err)
		return
	}
	r.logg.Warn(logCtx, "socket event rejected")
}

func (r *Router) submitComplaint(ctx context.Context, c *Client, frame Frame) (any, error) {
	var input complaints.SubmitInput
	if err := decodeData(frame.Data, &input); err != nil {
		return nil, err
	}
	submit := func() (any, error) {
		return r.complaints.Submit(ctx, c.principal, input)
	}
	if r.dedupe == nil || strings.TrimSpace(frame.RequestID) == "" {
		return submit()
	}
	result, _, err := r.dedupe.Do(ctx, "socket:"+c.principal.ID.String(), frame.RequestID, submit)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *Router) joinChat(ctx context.Context, c *Client, frame Frame) (any, error) {
	id, err := complaintRef(frame.Data)
	if err != nil {
		return nil, err
	}
	history, err := r.chat.Join(ctx, c.principal, id)
	if err != nil {
		return nil, err
	}
	r.hub.Join(c, notify.Complaint(id).Room())
	r.hub.SendTo(c, notify.EventChatHistory, frame.RequestID, history)
	return nil, nil
}

type sendMessageData struct {
	ComplaintID string `json:"complaintId"`
	Content     string `json:"content"`
}

func (r *Router) sendMessage(ctx context.Context, c *Client, frame Frame) (any, error) {
	var data sendMessageData
	if err := decodeData(frame.Data, &data); err != nil {
		return nil, err
	}
	id, err := parseComplaintID(data.ComplaintID)
	if err != nil {
		return nil, err
	}
	return r.chat.Send(ctx, c.principal, chat.SendInput{ComplaintID: id, Content: data.Content})
}

func (r *Router) resolveComplaint(ctx context.Context, c *Client, frame Frame) (any, error) {
	id, err := complaintRef(frame.Data)
	if err != nil {
		return nil, err
	}
	return r.complaints.Resolve(ctx, c.principal, id)
}

func (r *Router) closeComplaint(ctx context.Context, c *Client, frame Frame) (any, error) {
	id, err := complaintRef(frame.Data)
	if err != nil {
		return nil, err
	}
	return r.complaints.Close(ctx, c.principal, id)
}

func (r *Router) leaveChat(ctx context.Context, c *Client, frame Frame) (any, error) {
	id, err := complaintRef(frame.Data)
	if err != nil {
		return nil, err
	}
	r.hub.Leave(c, notify.Complaint(id).Room())
	if err := r.chat.Leave(ctx, c.principal, id); err != nil {
		return nil, err
	}
	return map[string]string{"complaintId": id.String()}, nil
}

func decodeData(data json.RawMessage, dest any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "data is required")
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "data is malformed")
	}
	return nil
}

// complaintRef accepts either a bare id string or {"complaintId": "..."}.
func complaintRef(data json.RawMessage) (uuid.UUID, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var raw string
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "data is malformed")
		}
		return parseComplaintID(raw)
	}
	var ref struct {
		ComplaintID string `json:"complaintId"`
	}
	if err := decodeData(data, &ref); err != nil {
		return uuid.Nil, err
	}
	return parseComplaintID(ref.ComplaintID)
}

func parseComplaintID(raw string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "complaintId is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "complaintId must be a valid uuid")
	}
	return id, nil
}
