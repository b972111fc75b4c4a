package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/supportdesk-backend/internal/chat"
	"github.com/angelmondragon/supportdesk-backend/internal/complaints"
	"github.com/angelmondragon/supportdesk-backend/pkg/auth"
	"github.com/angelmondragon/supportdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/supportdesk-backend/pkg/errors"
	"github.com/angelmondragon/supportdesk-backend/pkg/pagination"
)

type stubComplaints struct {
	mu         sync.Mutex
	submits    int
	submitErr  error
	resolveErr error
	closed     []uuid.UUID
	panicOn    string
}

func (s *stubComplaints) Submit(_ context.Context, p auth.Principal, in complaints.SubmitInput) (*complaints.SubmitResult, error) {
	if s.panicOn == "submit" {
		panic("submit exploded")
	}
	s.mu.Lock()
	s.submits++
	s.mu.Unlock()
	if s.submitErr != nil {
		return nil, s.submitErr
	}
	return &complaints.SubmitResult{
		Complaint:  complaints.ComplaintDTO{ID: uuid.New(), UserID: p.ID, OrderID: in.OrderID, Status: enums.ComplaintStatusPending},
		Assignment: complaints.AssignmentDTO{Outcome: complaints.OutcomePending},
	}, nil
}

func (s *stubComplaints) Resolve(_ context.Context, _ auth.Principal, id uuid.UUID) (*complaints.TransitionResult, error) {
	if s.resolveErr != nil {
		return nil, s.resolveErr
	}
	return &complaints.TransitionResult{Complaint: complaints.ComplaintDTO{ID: id, Status: enums.ComplaintStatusResolved}, Changed: true}, nil
}

func (s *stubComplaints) Close(_ context.Context, _ auth.Principal, id uuid.UUID) (*complaints.TransitionResult, error) {
	s.mu.Lock()
	s.closed = append(s.closed, id)
	s.mu.Unlock()
	return &complaints.TransitionResult{Complaint: complaints.ComplaintDTO{ID: id, Status: enums.ComplaintStatusClosed}, Changed: true}, nil
}

func (s *stubComplaints) Get(context.Context, auth.Principal, uuid.UUID) (*complaints.ComplaintDTO, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "complaint not found")
}

func (s *stubComplaints) ListMine(context.Context, auth.Principal, pagination.Params) (pagination.Page[complaints.ComplaintDTO], error) {
	return pagination.Page[complaints.ComplaintDTO]{}, nil
}

func (s *stubComplaints) ListAssigned(context.Context, auth.Principal, pagination.Params) (pagination.Page[complaints.ComplaintDTO], error) {
	return pagination.Page[complaints.ComplaintDTO]{}, nil
}

func (s *stubComplaints) ListAll(context.Context, auth.Principal, complaints.ListAllInput) (pagination.Page[complaints.ComplaintDTO], error) {
	return pagination.Page[complaints.ComplaintDTO]{}, nil
}

type stubChat struct {
	mu      sync.Mutex
	joinErr error
	sent    []chat.SendInput
	left    []uuid.UUID
}

func (s *stubChat) Join(_ context.Context, _ auth.Principal, id uuid.UUID) (*chat.History, error) {
	if s.joinErr != nil {
		return nil, s.joinErr
	}
	return &chat.History{ComplaintID: id, Status: enums.ComplaintStatusAssigned, Messages: []chat.MessageView{}}, nil
}

func (s *stubChat) Leave(_ context.Context, _ auth.Principal, id uuid.UUID) error {
	s.mu.Lock()
	s.left = append(s.left, id)
	s.mu.Unlock()
	return nil
}

func (s *stubChat) Send(_ context.Context, p auth.Principal, in chat.SendInput) (*chat.MessageView, error) {
	s.mu.Lock()
	s.sent = append(s.sent, in)
	s.mu.Unlock()
	return &chat.MessageView{ID: uuid.New(), ComplaintID: in.ComplaintID, Sender: enums.SenderForRole(p.Role), SenderID: p.ID, Content: in.Content}, nil
}

func (s *stubChat) History(ctx context.Context, p auth.Principal, id uuid.UUID) (*chat.History, error) {
	return s.Join(ctx, p, id)
}

type memoryDeduper struct {
	mu     sync.Mutex
	stored map[string]json.RawMessage
}

func (d *memoryDeduper) Do(_ context.Context, scope, key string, fn func() (any, error)) (json.RawMessage, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stored == nil {
		d.stored = map[string]json.RawMessage{}
	}
	if v, ok := d.stored[scope+"|"+key]; ok {
		return v, true, nil
	}
	value, err := fn()
	if err != nil {
		return nil, false, err
	}
	raw, _ := json.Marshal(value)
	d.stored[scope+"|"+key] = raw
	return raw, false, nil
}

// recv waits for the next frame buffered for the client.
func recv(t *testing.T, c *Client) Frame {
	t.Helper()
	select {
	case raw, ok := <-c.send:
		if !ok {
			t.Fatalf("client buffer closed")
		}
		var f Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		return f
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for frame")
	}
	return Frame{}
}

func expectNoFrame(t *testing.T, c *Client) {
	t.Helper()
	select {
	case raw := <-c.send:
		t.Fatalf("unexpected frame %s", raw)
	default:
	}
}

func principal(role enums.Role) auth.Principal {
	return auth.Principal{ID: uuid.New(), Role: role}
}
