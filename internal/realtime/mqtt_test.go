package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/angelmondragon/supportdesk-backend/internal/notify"
	"github.com/angelmondragon/supportdesk-backend/pkg/config"
)

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakePublisher struct {
	connected bool
	err       error
	messages  []published
}

func (f *fakePublisher) IsConnected() bool { return f.connected }

func (f *fakePublisher) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	f.messages = append(f.messages, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return &fakeToken{err: f.err}
}

func TestMQTTBridgeMirrorsSharedRooms(t *testing.T) {
	pub := &fakePublisher{connected: true}
	bridge, err := NewMQTTBridge(pub, "/desk/")
	if err != nil {
		t.Fatalf("NewMQTTBridge: %v", err)
	}

	err = bridge.Deliver(context.Background(), notify.Event{
		Name:     notify.EventServiceStatusChange,
		Audience: notify.AdminRoom(),
		Payload:  map[string]any{"isOnline": true},
	})
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	_ = bridge.Deliver(context.Background(), notify.Event{Name: notify.EventNewComplaint, Audience: notify.ServiceRoom()})

	if len(pub.messages) != 2 {
		t.Fatalf("expected two publishes, got %d", len(pub.messages))
	}
	if pub.messages[0].topic != "desk/admin-room/service-status-change" || pub.messages[0].qos != 0 {
		t.Fatalf("unexpected publish %+v", pub.messages[0])
	}
	if pub.messages[1].topic != "desk/service-room/new-complaint" {
		t.Fatalf("unexpected topic %q", pub.messages[1].topic)
	}
	var payload map[string]any
	if err := json.Unmarshal(pub.messages[0].payload, &payload); err != nil || payload["isOnline"] != true {
		t.Fatalf("unexpected payload %s (%v)", pub.messages[0].payload, err)
	}
}

func TestMQTTBridgeSkipsPrivateAudiences(t *testing.T) {
	pub := &fakePublisher{connected: true}
	bridge, _ := NewMQTTBridge(pub, "")
	id := uuid.New()
	for _, audience := range []notify.Audience{notify.Complaint(id), notify.Customer(id), notify.Agent(id), notify.Connection("c")} {
		if err := bridge.Deliver(context.Background(), notify.Event{Name: notify.EventNewMessage, Audience: audience, Payload: "secret"}); err != nil {
			t.Fatalf("Deliver: %v", err)
		}
	}
	if len(pub.messages) != 0 {
		t.Fatalf("expected nothing mirrored, got %+v", pub.messages)
	}
}

func TestMQTTBridgeDisconnectedAndFailingBroker(t *testing.T) {
	pub := &fakePublisher{connected: false}
	bridge, _ := NewMQTTBridge(pub, "supportdesk")
	if err := bridge.Deliver(context.Background(), notify.Event{Name: notify.EventNewComplaint, Audience: notify.ServiceRoom()}); err != nil {
		t.Fatalf("disconnected bridge should skip silently, got %v", err)
	}
	if len(pub.messages) != 0 {
		t.Fatalf("expected no publish while disconnected")
	}

	pub.connected = true
	pub.err = errors.New("broker gone")
	if err := bridge.Deliver(context.Background(), notify.Event{Name: notify.EventNewComplaint, Audience: notify.ServiceRoom()}); err == nil {
		t.Fatalf("expected publish error to surface to the dispatcher")
	}
}

func TestConnectMQTTRequiresBroker(t *testing.T) {
	if _, err := ConnectMQTT(context.Background(), config.MQTTConfig{}, nil); err == nil {
		t.Fatal("expected error without broker url")
	}
	if _, err := NewMQTTBridge(nil, "x"); err == nil {
		t.Fatal("expected error without client")
	}
}
