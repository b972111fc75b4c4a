package cron

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Job is one unit of scheduled maintenance.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type scheduled struct {
	job   Job
	every time.Duration
	last  time.Time
}

// Registry holds jobs and the cadence each one runs at. A zero cadence means
// every cycle.
type Registry struct {
	mu      sync.Mutex
	entries []*scheduled
	names   map[string]struct{}
}

// NewRegistry registers jobs that run on every cycle. Nil and duplicate
// names are skipped.
func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{names: map[string]struct{}{}}
	for _, job := range jobs {
		_ = r.Schedule(job, 0)
	}
	return r
}

// Register adds a job that runs on every cycle.
func (r *Registry) Register(job Job) error {
	return r.Schedule(job, 0)
}

// Schedule adds a job that runs at most once per every.
func (r *Registry) Schedule(job Job, every time.Duration) error {
	if job == nil {
		return fmt.Errorf("nil job")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.names[job.Name()]; dup {
		return fmt.Errorf("job %s already registered", job.Name())
	}
	if every < 0 {
		every = 0
	}
	r.names[job.Name()] = struct{}{}
	r.entries = append(r.entries, &scheduled{job: job, every: every})
	return nil
}

// Jobs returns every registered job in registration order.
func (r *Registry) Jobs() []Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	jobs := make([]Job, 0, len(r.entries))
	for _, e := range r.entries {
		jobs = append(jobs, e.job)
	}
	return jobs
}

// Due returns the jobs whose cadence has elapsed at now and marks them run.
func (r *Registry) Due(now time.Time) []Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []Job
	for _, e := range r.entries {
		if !e.last.IsZero() && now.Sub(e.last) < e.every {
			continue
		}
		e.last = now
		due = append(due, e.job)
	}
	return due
}
