package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/supportdesk-backend/pkg/logger"
)

const (
	defaultOutboxRetentionDays = 30
	defaultDLQRetentionDays    = 90
	defaultParkedAttempts      = 10
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPruner interface {
	Prune(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

type dlqPruner interface {
	DeleteFailedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type RetentionJobParams struct {
	Logger *logger.Logger
	DB     txRunner
	Outbox outboxPruner
	// DLQ is optional; without it dead letters are kept forever.
	DLQ dlqPruner

	OutboxDays int
	DLQDays    int
	// ParkedAttempts is the publisher's attempt cap. Unpublished rows at the
	// cap are parked and already copied to the DLQ.
	ParkedAttempts int
}

// RetentionJob deletes published outbox rows, parked outbox rows and old
// dead letters once they fall out of their windows.
type RetentionJob struct {
	logg           *logger.Logger
	db             txRunner
	outbox         outboxPruner
	dlq            dlqPruner
	outboxWindow   int
	dlqWindow      int
	parkedAttempts int
	now            func() time.Time
}

func NewRetentionJob(p RetentionJobParams) (*RetentionJob, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger required")
	case p.DB == nil:
		return nil, errors.New("db runner required")
	case p.Outbox == nil:
		return nil, errors.New("outbox repository required")
	}
	j := &RetentionJob{
		logg:           p.Logger,
		db:             p.DB,
		outbox:         p.Outbox,
		dlq:            p.DLQ,
		outboxWindow:   positiveOr(p.OutboxDays, defaultOutboxRetentionDays),
		dlqWindow:      positiveOr(p.DLQDays, defaultDLQRetentionDays),
		parkedAttempts: positiveOr(p.ParkedAttempts, defaultParkedAttempts),
		now:            time.Now,
	}
	return j, nil
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func (j *RetentionJob) Name() string { return "outbox-retention" }

func (j *RetentionJob) Run(ctx context.Context) error {
	today := j.now().UTC()
	outboxCutoff := today.AddDate(0, 0, -j.outboxWindow)
	dlqCutoff := today.AddDate(0, 0, -j.dlqWindow)

	var outboxRows, dlqRows int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		if outboxRows, err = j.outbox.Prune(ctx, tx, outboxCutoff, j.parkedAttempts); err != nil {
			return fmt.Errorf("prune outbox: %w", err)
		}
		if j.dlq == nil {
			return nil
		}
		if dlqRows, err = j.dlq.DeleteFailedBefore(ctx, tx, dlqCutoff); err != nil {
			return fmt.Errorf("prune dlq: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if outboxRows+dlqRows > 0 {
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"outbox_cutoff": outboxCutoff,
			"outbox_rows":   outboxRows,
			"dlq_cutoff":    dlqCutoff,
			"dlq_rows":      dlqRows,
		}), "retention cleanup complete")
	}
	return nil
}
