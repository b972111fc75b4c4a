package cron

import (
	"context"
	"testing"
	"time"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	registry := NewRegistry(&stubJob{name: "sweep"}, nil)
	if err := registry.Register(&stubJob{name: "sweep"}); err == nil {
		t.Fatalf("expected duplicate name error")
	}
	if err := registry.Register(nil); err == nil {
		t.Fatalf("expected nil job error")
	}
	if n := len(registry.Jobs()); n != 1 {
		t.Fatalf("expected 1 job, got %d", n)
	}
}

func TestRegistryDueHonoursCadence(t *testing.T) {
	every := &stubJob{name: "every-cycle"}
	hourly := &stubJob{name: "hourly"}
	registry := NewRegistry(every)
	if err := registry.Schedule(hourly, time.Hour); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if due := registry.Due(start); len(due) != 2 {
		t.Fatalf("expected both jobs on first cycle, got %d", len(due))
	}
	due := registry.Due(start.Add(time.Minute))
	if len(due) != 1 || due[0] != every {
		t.Fatalf("expected only the every-cycle job, got %v", due)
	}
	due = registry.Due(start.Add(time.Hour))
	if len(due) != 2 {
		t.Fatalf("expected hourly job due again, got %d", len(due))
	}
}

func TestRegistryJobsIsACopy(t *testing.T) {
	registry := NewRegistry(&stubJob{name: "a"})
	jobs := registry.Jobs()
	jobs[0] = nil
	if registry.Jobs()[0] == nil {
		t.Fatalf("internal slice leaked")
	}
}
