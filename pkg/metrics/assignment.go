package metrics

import "github.com/prometheus/client_golang/prometheus"

// Assignment outcomes.
const (
	OutcomeAssigned = "assigned"
	OutcomeQueued   = "queued"
	OutcomePending  = "pending"
	OutcomeFailed   = "failed"
)

// Drain results.
const (
	DrainAssigned = "assigned"
	DrainEmpty    = "empty"
	DrainBusy     = "agent_busy"
	DrainOffline  = "agent_offline"
	DrainStale    = "stale_dropped"
	DrainFailed   = "failed"
)

// AssignmentMetrics tracks routing decisions and waiting queue depth.
type AssignmentMetrics struct {
	outcomes   *prometheus.CounterVec
	queueDepth prometheus.Gauge
	drains     *prometheus.CounterVec
}

// NewAssignmentMetrics registers the routing metrics on the provided registerer.
func NewAssignmentMetrics(reg prometheus.Registerer) *AssignmentMetrics {
	if reg == nil {
		return &AssignmentMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "supportdesk_assignment_total",
		Help: "Assignment attempts by outcome.",
	}, []string{"outcome"})
	depth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "supportdesk_waiting_queue_depth",
		Help: "Live-chat complaints waiting for an agent.",
	})
	drains := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "supportdesk_queue_drain_total",
		Help: "Waiting queue drain attempts by result.",
	}, []string{"result"})
	reg.MustRegister(outcomes, depth, drains)
	return &AssignmentMetrics{
		outcomes:   outcomes,
		queueDepth: depth,
		drains:     drains,
	}
}

// IncOutcome counts one assignment decision.
func (m *AssignmentMetrics) IncOutcome(outcome string) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// SetQueueDepth records the current waiting queue length.
func (m *AssignmentMetrics) SetQueueDepth(depth int) {
	if m == nil || m.queueDepth == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}

// IncDrain counts one drain attempt.
func (m *AssignmentMetrics) IncDrain(result string) {
	if m == nil || m.drains == nil {
		return
	}
	m.drains.WithLabelValues(normalizeLabel(result)).Inc()
}
