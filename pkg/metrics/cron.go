package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Cron cycle outcomes.
const (
	CycleLeader    = "leader"
	CycleSkipped   = "skipped"
	CycleLockError = "lock_error"
)

// CronJobMetrics covers the in-process scheduler: how each cycle went for
// this replica and how each job run went.
type CronJobMetrics struct {
	cycles      *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	runs        *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
}

func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return nil
	}
	m := &CronJobMetrics{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "supportdesk_cron_cycles_total",
			Help: "Scheduler ticks by lock outcome on this replica.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "supportdesk_cron_job_duration_seconds",
			Help:    "Cron job wall time in seconds.",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 60},
		}, []string{"job"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "supportdesk_cron_job_runs_total",
			Help: "Cron job runs by result (success or failure).",
		}, []string{"job", "result"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "supportdesk_cron_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run per job.",
		}, []string{"job"}),
	}
	reg.MustRegister(m.cycles, m.duration, m.runs, m.lastSuccess)
	return m
}

// Cycle counts one scheduler tick.
func (c *CronJobMetrics) Cycle(outcome string) {
	if c == nil {
		return
	}
	c.cycles.WithLabelValues(outcome).Inc()
}

// Observe records one run of job; a non-nil err counts as a failure.
func (c *CronJobMetrics) Observe(job string, took time.Duration, err error) {
	if c == nil {
		return
	}
	job = normalizeLabel(job)
	c.duration.WithLabelValues(job).Observe(took.Seconds())
	if err != nil {
		c.runs.WithLabelValues(job, "failure").Inc()
		return
	}
	c.runs.WithLabelValues(job, "success").Inc()
	c.lastSuccess.WithLabelValues(job).SetToCurrentTime()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
