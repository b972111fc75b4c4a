package metrics

import "github.com/prometheus/client_golang/prometheus"

// OutboxMetrics counts publisher outcomes per event type.
type OutboxMetrics struct {
	published    *prometheus.CounterVec
	retried      *prometheus.CounterVec
	deadLettered *prometheus.CounterVec
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	m := &OutboxMetrics{
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "supportdesk_outbox_published_total",
			Help: "Outbox events acknowledged by Pub/Sub.",
		}, []string{"event_type"}),
		retried: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "supportdesk_outbox_retried_total",
			Help: "Outbox publishes that failed and will be retried.",
		}, []string{"event_type"}),
		deadLettered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "supportdesk_outbox_dead_lettered_total",
			Help: "Outbox events moved to the DLQ.",
		}, []string{"event_type", "reason"}),
	}
	reg.MustRegister(m.published, m.retried, m.deadLettered)
	return m
}

func (m *OutboxMetrics) Published(eventType string) {
	if m == nil || m.published == nil {
		return
	}
	m.published.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func (m *OutboxMetrics) Retried(eventType string) {
	if m == nil || m.retried == nil {
		return
	}
	m.retried.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func (m *OutboxMetrics) DeadLettered(eventType, reason string) {
	if m == nil || m.deadLettered == nil {
		return
	}
	m.deadLettered.WithLabelValues(normalizeLabel(eventType), normalizeLabel(reason)).Inc()
}
