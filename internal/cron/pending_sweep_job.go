package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/supportdesk-backend/internal/assignment"
	"github.com/angelmondragon/supportdesk-backend/internal/complaints"
	"github.com/angelmondragon/supportdesk-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/supportdesk-backend/pkg/errors"
	"github.com/angelmondragon/supportdesk-backend/pkg/logger"
)

const (
	defaultSweepMinAge = 5 * time.Minute
	defaultSweepBatch  = 50
)

type pendingLister interface {
	ListPendingOlderThan(ctx context.Context, cutoff time.Time, liveChat bool, limit int) ([]models.Complaint, error)
}

type assigner interface {
	Assign(ctx context.Context, complaintID uuid.UUID) (*complaints.Assignment, error)
	Requeue(ctx context.Context, candidates []uuid.UUID) (*assignment.RequeueResult, error)
}

// PendingSweepJobParams configures the pending sweep. AssignIdle turns on the
// retry of non-live-chat complaints.
type PendingSweepJobParams struct {
	Logger     *logger.Logger
	Complaints pendingLister
	Assigner   assigner
	MinAge     time.Duration
	Batch      int
	AssignIdle bool
}

// NewPendingSweepJob builds the job that looks after complaints stuck in
// pending. Live-chat complaints missing from the waiting queue are always
// requeued; non-live-chat ones are retried only with AssignIdle.
func NewPendingSweepJob(params PendingSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Complaints == nil {
		return nil, fmt.Errorf("complaint repository required")
	}
	if params.Assigner == nil {
		return nil, fmt.Errorf("assigner required")
	}
	minAge := params.MinAge
	if minAge <= 0 {
		minAge = defaultSweepMinAge
	}
	batch := params.Batch
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	return &pendingSweepJob{
		logg:     params.Logger,
		repo:     params.Complaints,
		assigner: params.Assigner,
		minAge:     minAge,
		batch:      batch,
		assignIdle: params.AssignIdle,
		now:        time.Now,
	}, nil
}

type pendingSweepJob struct {
	logg     *logger.Logger
	repo     pendingLister
	assigner assigner
	minAge     time.Duration
	batch      int
	assignIdle bool
	now        func() time.Time
}

func (j *pendingSweepJob) Name() string { return "pending-sweep" }

func (j *pendingSweepJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.minAge)
	if err := j.requeueLiveChat(ctx, cutoff); err != nil {
		return err
	}
	if !j.assignIdle {
		return nil
	}
	return j.assignNonLiveChat(ctx, cutoff)
}

func (j *pendingSweepJob) requeueLiveChat(ctx context.Context, cutoff time.Time) error {
	rows, err := j.repo.ListPendingOlderThan(ctx, cutoff, true, j.batch)
	if err != nil {
		return fmt.Errorf("list pending live-chat complaints: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	res, err := j.assigner.Requeue(ctx, ids)
	if err != nil {
		return fmt.Errorf("requeue live-chat complaints: %w", err)
	}
	if res.Assigned > 0 || res.Requeued > 0 {
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"candidates": len(rows),
			"assigned":   res.Assigned,
			"requeued":   res.Requeued,
		})
		j.logg.Warn(logCtx, "recovered live-chat complaints missing from the waiting queue")
	}
	return nil
}

func (j *pendingSweepJob) assignNonLiveChat(ctx context.Context, cutoff time.Time) error {
	rows, err := j.repo.ListPendingOlderThan(ctx, cutoff, false, j.batch)
	if err != nil {
		return fmt.Errorf("list pending complaints: %w", err)
	}

	assigned := 0
	for _, row := range rows {
		result, err := j.assigner.Assign(ctx, row.ID)
		if err != nil {
			// picked up or closed since it was listed
			if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) || pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				continue
			}
			return fmt.Errorf("assign complaint %s: %w", row.ID, err)
		}
		if !result.Bound() {
			break
		}
		assigned++
	}

	if len(rows) > 0 {
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"candidates": len(rows),
			"assigned":   assigned,
			"cutoff":     cutoff,
		})
		j.logg.Info(logCtx, "pending sweep complete")
	}
	return nil
}
