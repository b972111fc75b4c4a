package realtime

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/supportdesk-backend/internal/notify"
	"github.com/angelmondragon/supportdesk-backend/pkg/enums"
	"github.com/angelmondragon/supportdesk-backend/pkg/metrics"
)

func TestHubDeliversToRoomMembersOnly(t *testing.T) {
	hub := NewHub(nil, nil)
	complaintID := uuid.New()

	inRoom := newClient("a", principal(enums.RoleCustomer), 4)
	outside := newClient("b", principal(enums.RoleCustomer), 4)
	hub.Register(inRoom)
	hub.Register(outside)
	hub.Join(inRoom, notify.Complaint(complaintID).Room())

	err := hub.Deliver(context.Background(), notify.Event{
		Name:     notify.EventNewMessage,
		Audience: notify.Complaint(complaintID),
		Payload:  map[string]string{"content": "hi"},
	})
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	f := recv(t, inRoom)
	if f.Event != notify.EventNewMessage {
		t.Fatalf("unexpected event %q", f.Event)
	}
	var payload map[string]string
	if err := json.Unmarshal(f.Data, &payload); err != nil || payload["content"] != "hi" {
		t.Fatalf("unexpected payload %s (%v)", f.Data, err)
	}
	expectNoFrame(t, outside)
}

func TestHubConnectionAudienceReachesOneClient(t *testing.T) {
	hub := NewHub(nil, nil)
	a := newClient("conn-a", principal(enums.RoleService), 2)
	b := newClient("conn-b", principal(enums.RoleService), 2)
	hub.Register(a)
	hub.Register(b)

	_ = hub.Deliver(context.Background(), notify.Event{Name: notify.EventError, Audience: notify.Connection("conn-b")})
	expectNoFrame(t, a)
	if f := recv(t, b); f.Event != notify.EventError {
		t.Fatalf("unexpected event %q", f.Event)
	}
}

func TestHubDropsFramesForFullBuffers(t *testing.T) {
	reg := prometheus.NewRegistry()
	hub := NewHub(nil, metrics.NewRealtimeMetrics(reg))
	slow := newClient("slow", principal(enums.RoleAdmin), 1)
	hub.Register(slow)
	hub.Join(slow, notify.AdminRoom().Room())

	for i := 0; i < 3; i++ {
		if err := hub.Deliver(context.Background(), notify.Event{Name: notify.EventServiceStatusChange, Audience: notify.AdminRoom()}); err != nil {
			t.Fatalf("Deliver must not fail on a slow client: %v", err)
		}
	}
	if len(slow.send) != 1 {
		t.Fatalf("expected exactly one buffered frame, got %d", len(slow.send))
	}
}

func TestHubUnregisterLeavesRoomsAndClosesBuffer(t *testing.T) {
	hub := NewHub(nil, nil)
	c := newClient("gone", principal(enums.RoleService), 2)
	hub.Register(c)
	hub.Join(c, notify.ServiceRoom().Room())
	if hub.Members(notify.ServiceRoom().Room()) != 1 || hub.Connections() != 1 {
		t.Fatalf("expected client registered")
	}

	hub.Unregister(c)
	hub.Unregister(c)
	if hub.Members(notify.ServiceRoom().Room()) != 0 || hub.Connections() != 0 {
		t.Fatalf("expected client removed from every room")
	}
	if _, ok := <-c.send; ok {
		t.Fatalf("expected send buffer closed")
	}
	if c.enqueue([]byte("late")) {
		t.Fatalf("closed client must not accept frames")
	}
	_ = hub.Deliver(context.Background(), notify.Event{Name: notify.EventNewComplaint, Audience: notify.ServiceRoom()})
}

func TestHubLeave(t *testing.T) {
	hub := NewHub(nil, nil)
	c := newClient("c", principal(enums.RoleCustomer), 2)
	hub.Register(c)
	room := notify.Complaint(uuid.New()).Room()
	hub.Join(c, room)
	hub.Leave(c, room)
	if hub.Members(room) != 0 {
		t.Fatalf("expected room empty after leave")
	}
}
