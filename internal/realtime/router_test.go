package realtime

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/supportdesk-backend/internal/complaints"
	"github.com/angelmondragon/supportdesk-backend/internal/notify"
	"github.com/angelmondragon/supportdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/supportdesk-backend/pkg/errors"
)

type routerHarness struct {
	hub        *Hub
	router     *Router
	complaints *stubComplaints
	chat       *stubChat
}

func newRouterHarness(t *testing.T, dedupe Deduper) *routerHarness {
	t.Helper()
	h := &routerHarness{hub: NewHub(nil, nil), complaints: &stubComplaints{}, chat: &stubChat{}}
	router, err := NewRouter(RouterParams{Hub: h.hub, Complaints: h.complaints, Chat: h.chat, Dedupe: dedupe})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	h.router = router
	return h
}

func (h *routerHarness) connect(role enums.Role) *Client {
	c := newClient(uuid.NewString(), principal(role), 16)
	h.hub.Register(c)
	return c
}

func frame(t *testing.T, event, requestID string, data any) []byte {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}
	out, err := json.Marshal(Frame{Event: event, RequestID: requestID, Data: raw})
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	return out
}

func decodeError(t *testing.T, f Frame) ErrorPayload {
	t.Helper()
	if f.Event != notify.EventError {
		t.Fatalf("expected error frame, got %q", f.Event)
	}
	var p ErrorPayload
	if err := json.Unmarshal(f.Data, &p); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	return p
}

func TestSubmitComplaintIsAckedAndDeduplicated(t *testing.T) {
	h := newRouterHarness(t, &memoryDeduper{})
	c := h.connect(enums.RoleCustomer)
	data := complaints.SubmitInput{OrderID: "ORD-1", Subject: "Late", Description: "Still waiting"}

	h.router.Dispatch(context.Background(), c, frame(t, EventSubmitComplaint, "req-1", data))
	first := recv(t, c)
	if first.Event != notify.EventAck || first.RequestID != "req-1" {
		t.Fatalf("expected ack for req-1, got %+v", first)
	}

	h.router.Dispatch(context.Background(), c, frame(t, EventSubmitComplaint, "req-1", data))
	second := recv(t, c)
	if string(second.Data) != string(first.Data) {
		t.Fatalf("expected replayed ack %s, got %s", first.Data, second.Data)
	}
	if h.complaints.submits != 1 {
		t.Fatalf("expected one submission, got %d", h.complaints.submits)
	}

	var result complaints.SubmitResult
	if err := json.Unmarshal(first.Data, &result); err != nil || result.Complaint.OrderID != "ORD-1" {
		t.Fatalf("unexpected ack payload %s (%v)", first.Data, err)
	}
}

func TestSubmitWithoutRequestIDSkipsDedupe(t *testing.T) {
	h := newRouterHarness(t, &memoryDeduper{})
	c := h.connect(enums.RoleCustomer)
	data := complaints.SubmitInput{OrderID: "ORD-1", Subject: "s", Description: "d"}
	h.router.Dispatch(context.Background(), c, frame(t, EventSubmitComplaint, "", data))
	h.router.Dispatch(context.Background(), c, frame(t, EventSubmitComplaint, "", data))
	_ = recv(t, c)
	_ = recv(t, c)
	if h.complaints.submits != 2 {
		t.Fatalf("expected two submissions, got %d", h.complaints.submits)
	}
}

func TestFailuresReplyToOriginOnly(t *testing.T) {
	h := newRouterHarness(t, nil)
	h.complaints.submitErr = pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	origin := h.connect(enums.RoleCustomer)
	bystander := h.connect(enums.RoleCustomer)
	h.hub.Join(bystander, notify.ServiceRoom().Room())

	h.router.Dispatch(context.Background(), origin, frame(t, EventSubmitComplaint, "req-9", complaints.SubmitInput{OrderID: "x"}))
	p := decodeError(t, recv(t, origin))
	if p.RequestID != "req-9" || p.Code != pkgerrors.CodeNotFound || p.Message != "order not found" {
		t.Fatalf("unexpected error payload %+v", p)
	}
	expectNoFrame(t, bystander)
}

func TestDependencyFailuresAreMasked(t *testing.T) {
	h := newRouterHarness(t, nil)
	h.complaints.resolveErr = pkgerrors.Wrap(pkgerrors.CodeDependency, context.DeadlineExceeded, "db timeout")
	c := h.connect(enums.RoleService)

	h.router.Dispatch(context.Background(), c, frame(t, EventResolveComplaint, "r", uuid.NewString()))
	p := decodeError(t, recv(t, c))
	if p.Code != pkgerrors.CodeDependency || p.Message != "service temporarily unavailable" {
		t.Fatalf("unexpected error payload %+v", p)
	}
}

func TestPanickingHandlerBecomesErrorFrame(t *testing.T) {
	h := newRouterHarness(t, nil)
	h.complaints.panicOn = "submit"
	c := h.connect(enums.RoleCustomer)

	h.router.Dispatch(context.Background(), c, frame(t, EventSubmitComplaint, "p", complaints.SubmitInput{}))
	if p := decodeError(t, recv(t, c)); p.Code != pkgerrors.CodeInternal || !p.Retryable {
		t.Fatalf("expected retryable internal error, got %+v", p)
	}
}

func TestMalformedAndUnknownFrames(t *testing.T) {
	h := newRouterHarness(t, nil)
	c := h.connect(enums.RoleCustomer)

	h.router.Dispatch(context.Background(), c, []byte("not json"))
	if p := decodeError(t, recv(t, c)); p.Code != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %+v", p)
	}

	h.router.Dispatch(context.Background(), c, frame(t, "dance", "u", nil))
	if p := decodeError(t, recv(t, c)); p.Code != pkgerrors.CodeValidation || p.RequestID != "u" {
		t.Fatalf("expected validation error for unknown event, got %+v", p)
	}

	h.router.Dispatch(context.Background(), c, frame(t, EventCloseComplaint, "bad", "not-a-uuid"))
	if p := decodeError(t, recv(t, c)); p.Code != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error for bad id, got %+v", p)
	}
}

func TestJoinChatSendsHistoryAndSubscribes(t *testing.T) {
	h := newRouterHarness(t, nil)
	c := h.connect(enums.RoleCustomer)
	id := uuid.New()

	h.router.Dispatch(context.Background(), c, frame(t, EventJoinChat, "j", map[string]string{"complaintId": id.String()}))
	f := recv(t, c)
	if f.Event != notify.EventChatHistory || f.RequestID != "j" {
		t.Fatalf("expected chat-history, got %+v", f)
	}
	expectNoFrame(t, c)
	if h.hub.Members(notify.Complaint(id).Room()) != 1 {
		t.Fatalf("expected client subscribed to the complaint room")
	}
}

func TestJoinChatDeniedDoesNotSubscribe(t *testing.T) {
	h := newRouterHarness(t, nil)
	h.chat.joinErr = pkgerrors.New(pkgerrors.CodeForbidden, "access denied")
	c := h.connect(enums.RoleCustomer)
	id := uuid.New()

	h.router.Dispatch(context.Background(), c, frame(t, EventJoinChat, "j", id.String()))
	if p := decodeError(t, recv(t, c)); p.Code != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %+v", p)
	}
	if h.hub.Members(notify.Complaint(id).Room()) != 0 {
		t.Fatalf("denied client must not join the room")
	}
}

func TestSendMessageAndLeaveChat(t *testing.T) {
	h := newRouterHarness(t, nil)
	c := h.connect(enums.RoleService)
	id := uuid.New()
	h.hub.Join(c, notify.Complaint(id).Room())

	h.router.Dispatch(context.Background(), c, frame(t, EventSendMessage, "m", sendMessageData{ComplaintID: id.String(), Content: "hello"}))
	if f := recv(t, c); f.Event != notify.EventAck {
		t.Fatalf("expected ack, got %+v", f)
	}
	if len(h.chat.sent) != 1 || h.chat.sent[0].Content != "hello" || h.chat.sent[0].ComplaintID != id {
		t.Fatalf("unexpected sends %+v", h.chat.sent)
	}

	h.router.Dispatch(context.Background(), c, frame(t, EventLeaveChat, "l", id.String()))
	_ = recv(t, c)
	if h.hub.Members(notify.Complaint(id).Room()) != 0 || len(h.chat.left) != 1 {
		t.Fatalf("expected leave to unsubscribe and notify")
	}
}

func TestCloseComplaintAcks(t *testing.T) {
	h := newRouterHarness(t, nil)
	c := h.connect(enums.RoleAdmin)
	id := uuid.New()
	h.router.Dispatch(context.Background(), c, frame(t, EventCloseComplaint, "c", map[string]string{"complaintId": id.String()}))
	f := recv(t, c)
	var result complaints.TransitionResult
	if err := json.Unmarshal(f.Data, &result); err != nil || result.Complaint.ID != id || !result.Changed {
		t.Fatalf("unexpected close ack %s (%v)", f.Data, err)
	}
}

func TestNewRouterValidates(t *testing.T) {
	if _, err := NewRouter(RouterParams{}); err == nil {
		t.Fatal("expected error without hub")
	}
	if _, err := NewRouter(RouterParams{Hub: NewHub(nil, nil)}); err == nil {
		t.Fatal("expected error without services")
	}
}
