package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRealtimeMetricsTrackConnectionsAndDrops(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRealtimeMetrics(reg)
	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.IncDropped("new-message")
	m.IncInbound("send-message", "ok")

	if got := sample(t, reg, "supportdesk_ws_connections", nil).GetGauge().GetValue(); got != 1 {
		t.Fatalf("expected one open connection, got %v", got)
	}
	if got := sample(t, reg, "supportdesk_ws_dropped_frames_total", map[string]string{"event": "new-message"}).GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected one dropped frame, got %v", got)
	}
	if got := sample(t, reg, "supportdesk_ws_inbound_total", map[string]string{"event": "send-message", "result": "ok"}).GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected one inbound frame, got %v", got)
	}
}

func TestNilRealtimeMetricsAreSafe(t *testing.T) {
	var m *RealtimeMetrics
	m.ConnectionOpened()
	m.IncDropped("x")
	NewRealtimeMetrics(nil).IncInbound("x", "y")
}
