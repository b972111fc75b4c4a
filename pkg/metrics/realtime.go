package metrics

import "github.com/prometheus/client_golang/prometheus"

// RealtimeMetrics tracks socket connections and dropped outbound frames.
type RealtimeMetrics struct {
	connections prometheus.Gauge
	dropped     *prometheus.CounterVec
	inbound     *prometheus.CounterVec
}

// NewRealtimeMetrics registers the socket metrics on the provided registerer.
func NewRealtimeMetrics(reg prometheus.Registerer) *RealtimeMetrics {
	if reg == nil {
		return &RealtimeMetrics{}
	}
	connections := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "supportdesk_ws_connections",
		Help: "Open websocket connections.",
	})
	dropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "supportdesk_ws_dropped_frames_total",
		Help: "Outbound frames dropped because a client buffer was full.",
	}, []string{"event"})
	inbound := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "supportdesk_ws_inbound_total",
		Help: "Inbound socket events by name and result.",
	}, []string{"event", "result"})
	reg.MustRegister(connections, dropped, inbound)
	return &RealtimeMetrics{
		connections: connections,
		dropped:     dropped,
		inbound:     inbound,
	}
}

// ConnectionOpened bumps the open connection gauge.
func (m *RealtimeMetrics) ConnectionOpened() {
	if m == nil || m.connections == nil {
		return
	}
	m.connections.Inc()
}

// ConnectionClosed lowers the open connection gauge.
func (m *RealtimeMetrics) ConnectionClosed() {
	if m == nil || m.connections == nil {
		return
	}
	m.connections.Dec()
}

// IncDropped counts one frame dropped for a slow client.
func (m *RealtimeMetrics) IncDropped(event string) {
	if m == nil || m.dropped == nil {
		return
	}
	m.dropped.WithLabelValues(normalizeLabel(event)).Inc()
}

// IncInbound counts one handled inbound event.
func (m *RealtimeMetrics) IncInbound(event, result string) {
	if m == nil || m.inbound == nil {
		return
	}
	m.inbound.WithLabelValues(normalizeLabel(event), normalizeLabel(result)).Inc()
}
