package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/supportdesk-backend/pkg/logger"
)

var retentionNow = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

type pruneCall struct {
	cutoff   time.Time
	attempts int
}

type fakePruner struct {
	outbox []pruneCall
	dlq    []time.Time
	err    error
}

func (f *fakePruner) Prune(_ context.Context, _ *gorm.DB, cutoff time.Time, attempts int) (int64, error) {
	f.outbox = append(f.outbox, pruneCall{cutoff: cutoff, attempts: attempts})
	return 3, f.err
}

func (f *fakePruner) DeleteFailedBefore(_ context.Context, _ *gorm.DB, cutoff time.Time) (int64, error) {
	f.dlq = append(f.dlq, cutoff)
	return 1, nil
}

type passthroughTx struct{}

func (passthroughTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func newTestRetentionJob(t *testing.T, p RetentionJobParams) *RetentionJob {
	t.Helper()
	p.Logger = logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})
	p.DB = passthroughTx{}
	job, err := NewRetentionJob(p)
	if err != nil {
		t.Fatalf("new retention job: %v", err)
	}
	job.now = func() time.Time { return retentionNow }
	return job
}

func TestRetentionJobDefaults(t *testing.T) {
	pruner := &fakePruner{}
	job := newTestRetentionJob(t, RetentionJobParams{Outbox: pruner, DLQ: pruner})

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(pruner.outbox) != 1 {
		t.Fatalf("expected one outbox prune, got %d", len(pruner.outbox))
	}
	call := pruner.outbox[0]
	if !call.cutoff.Equal(retentionNow.AddDate(0, 0, -defaultOutboxRetentionDays)) || call.attempts != defaultParkedAttempts {
		t.Fatalf("unexpected outbox prune %+v", call)
	}
	if len(pruner.dlq) != 1 || !pruner.dlq[0].Equal(retentionNow.AddDate(0, 0, -defaultDLQRetentionDays)) {
		t.Fatalf("unexpected dlq prune %v", pruner.dlq)
	}
}

func TestRetentionJobHonoursConfiguredWindows(t *testing.T) {
	pruner := &fakePruner{}
	job := newTestRetentionJob(t, RetentionJobParams{Outbox: pruner, DLQ: pruner, OutboxDays: 7, DLQDays: 14, ParkedAttempts: 3})

	_ = job.Run(context.Background())
	if got := pruner.outbox[0]; !got.cutoff.Equal(retentionNow.AddDate(0, 0, -7)) || got.attempts != 3 {
		t.Fatalf("unexpected outbox prune %+v", got)
	}
	if !pruner.dlq[0].Equal(retentionNow.AddDate(0, 0, -14)) {
		t.Fatalf("unexpected dlq cutoff %s", pruner.dlq[0])
	}
}

func TestRetentionJobWithoutDLQ(t *testing.T) {
	pruner := &fakePruner{}
	job := newTestRetentionJob(t, RetentionJobParams{Outbox: pruner})
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(pruner.dlq) != 0 {
		t.Fatalf("dlq must not be touched without a pruner")
	}
}

func TestRetentionJobStopsOnOutboxError(t *testing.T) {
	pruner := &fakePruner{err: errors.New("boom")}
	job := newTestRetentionJob(t, RetentionJobParams{Outbox: pruner, DLQ: pruner})
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(pruner.dlq) != 0 {
		t.Fatalf("dlq prune should not run after an outbox failure")
	}
}

func TestNewRetentionJobValidates(t *testing.T) {
	if _, err := NewRetentionJob(RetentionJobParams{}); err == nil {
		t.Fatal("expected missing logger error")
	}
}
