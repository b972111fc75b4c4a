package assignment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/supportdesk-backend/internal/agents"
	"github.com/angelmondragon/supportdesk-backend/internal/complaints"
	"github.com/angelmondragon/supportdesk-backend/internal/ledger"
	"github.com/angelmondragon/supportdesk-backend/internal/notify"
	"github.com/angelmondragon/supportdesk-backend/internal/queue"
	"github.com/angelmondragon/supportdesk-backend/pkg/db/models"
	"github.com/angelmondragon/supportdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/supportdesk-backend/pkg/errors"
	"github.com/angelmondragon/supportdesk-backend/pkg/logger"
	"github.com/angelmondragon/supportdesk-backend/pkg/metrics"
	"github.com/angelmondragon/supportdesk-backend/pkg/outbox"
	"github.com/angelmondragon/supportdesk-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// EngineParams groups the engine's collaborators.
type EngineParams struct {
	DB         txRunner
	Complaints complaints.Repository
	Agents     agents.Repository
	Ledger     ledger.Repository
	Queue      queue.Queue
	Outbox     outbox.Emitter
	Notifier   notify.Notifier
	Metrics    *metrics.AssignmentMetrics
	Logger     *logger.Logger
	Now        func() time.Time
}

// Engine serialises every bind, drain and release behind one mutex and runs
// each of them in a single transaction.
type Engine struct {
	mu sync.Mutex

	db         txRunner
	complaints complaints.Repository
	agents     agents.Repository
	ledger     ledger.Repository
	queue      queue.Queue
	outbox     outbox.Emitter
	notifier   notify.Notifier
	metrics    *metrics.AssignmentMetrics
	logg       *logger.Logger
	now        func() time.Time
}

var _ complaints.Assigner = (*Engine)(nil)

// NewEngine validates params and builds an Engine.
func NewEngine(params EngineParams) (*Engine, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "db is required")
	}
	if params.Complaints == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "complaint repo is required")
	}
	if params.Agents == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "agent repo is required")
	}
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ledger repo is required")
	}
	if params.Queue == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "queue is required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "outbox is required")
	}
	if params.Notifier == nil {
		params.Notifier = notify.Nop{}
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &Engine{
		db:         params.DB,
		complaints: params.Complaints,
		agents:     params.Agents,
		ledger:     params.Ledger,
		queue:      params.Queue,
		outbox:     params.Outbox,
		notifier:   params.Notifier,
		metrics:    params.Metrics,
		logg:       params.Logger,
		now:        params.Now,
	}, nil
}

// Assign routes a pending complaint: bind it to the least loaded eligible
// agent, queue it when it needs live chat and nobody can take it, or leave
// it pending.
func (e *Engine) Assign(ctx context.Context, complaintID uuid.UUID) (*complaints.Assignment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	result, err := e.route(ctx, complaintID)
	if err != nil {
		e.metrics.IncOutcome(metrics.OutcomeFailed)
		return nil, err
	}

	if result.Outcome == complaints.OutcomeQueued {
		if err := e.queue.Push(ctx, complaintID); err != nil {
			e.metrics.IncOutcome(metrics.OutcomeFailed)
			return nil, err
		}
		e.recordDepth(ctx)
		if e.logg != nil {
			e.logg.Info(e.logg.WithComplaintID(ctx, complaintID.String()), "no live-chat agent free, complaint queued")
		}
	}
	e.metrics.IncOutcome(string(result.Outcome))

	if result.Bound() {
		e.notifyBound(ctx, result.Complaint, *result.AgentID, false)
	}
	return result, nil
}

// route runs the assignment transaction. A queued outcome is only a
// decision; the caller owns the queue write. The caller holds e.mu.
func (e *Engine) route(ctx context.Context, complaintID uuid.UUID) (*complaints.Assignment, error) {
	var result *complaints.Assignment
	err := e.db.WithTx(ctx, func(tx *gorm.DB) error {
		c, err := e.complaints.WithTx(tx).FindForUpdate(ctx, complaintID)
		if err != nil {
			return err
		}
		if c.Status != enums.ComplaintStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "complaint is not pending").
				WithDetails(map[string]any{"status": c.Status})
		}

		loads, err := e.agents.WithTx(tx).LockOnline(ctx)
		if err != nil {
			return err
		}
		agent, ok := pickAgent(loads, c.RequiresLiveChat)
		if !ok {
			outcome := complaints.OutcomePending
			if c.RequiresLiveChat {
				outcome = complaints.OutcomeQueued
			}
			result = &complaints.Assignment{Outcome: outcome, Complaint: c}
			return nil
		}

		bound, err := e.bind(ctx, tx, c, agent.Agent.ID, false)
		if err != nil {
			return err
		}
		agentID := agent.Agent.ID
		result = &complaints.Assignment{Outcome: complaints.OutcomeAssigned, Complaint: bound, AgentID: &agentID}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RequeueResult counts what Requeue did.
type RequeueResult struct {
	Assigned int
	Requeued int
}

// Requeue recovers live-chat complaints that are pending but absent from the
// waiting queue, which happens when a queue write failed or a memory queue
// was lost on restart. Each candidate is routed again; those that still
// have to wait are merged into the queue by submission time.
func (e *Engine) Requeue(ctx context.Context, candidates []uuid.UUID) (*RequeueResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	res := &RequeueResult{}
	waiting, err := e.queue.Snapshot(ctx)
	if err != nil {
		return res, err
	}
	queued := make(map[uuid.UUID]struct{}, len(waiting))
	for _, id := range waiting {
		queued[id] = struct{}{}
	}

	var missing []models.Complaint
	for _, id := range candidates {
		if _, ok := queued[id]; ok {
			continue
		}
		result, err := e.route(ctx, id)
		if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) || pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			continue
		}
		if err != nil {
			e.metrics.IncOutcome(metrics.OutcomeFailed)
			return res, err
		}
		switch {
		case result.Bound():
			res.Assigned++
			e.metrics.IncOutcome(string(result.Outcome))
			e.notifyBound(ctx, result.Complaint, *result.AgentID, false)
		case result.Outcome == complaints.OutcomeQueued:
			missing = append(missing, *result.Complaint)
		}
	}
	if len(missing) == 0 {
		return res, nil
	}

	if err := e.merge(ctx, waiting, missing); err != nil {
		return res, err
	}
	res.Requeued = len(missing)
	for range missing {
		e.metrics.IncOutcome(string(complaints.OutcomeQueued))
	}
	e.recordDepth(ctx)
	return res, nil
}

// merge rewrites the queue as waiting plus missing ordered by created_at,
// dropping waiting entries that are no longer assignable. Entries lost to a
// failure half way are pending live-chat rows and come back on the next
// Requeue. The caller holds e.mu.
func (e *Engine) merge(ctx context.Context, waiting []uuid.UUID, missing []models.Complaint) error {
	entries := make([]models.Complaint, 0, len(waiting)+len(missing))
	for _, id := range waiting {
		c, err := e.complaints.Find(ctx, id)
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if c.Status == enums.ComplaintStatusPending && c.RequiresLiveChat {
			entries = append(entries, *c)
		}
	}
	entries = append(entries, missing...)
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})

	for range waiting {
		if _, _, err := e.queue.Pop(ctx); err != nil {
			return err
		}
	}
	for _, c := range entries {
		if err := e.queue.Push(ctx, c.ID); err != nil {
			return err
		}
	}
	if e.logg != nil {
		logCtx := e.logg.WithFields(ctx, map[string]any{"waiting": len(waiting), "requeued": len(missing), "depth": len(entries)})
		e.logg.Info(logCtx, "waiting queue rebuilt")
	}
	return nil
}

// Drain hands the head of the waiting queue to agentID if the agent is
// online and has no live chat in progress. Stale heads are dropped. The head
// is only removed after a successful bind, so a failure keeps its place.
func (e *Engine) Drain(ctx context.Context, agentID uuid.UUID) (*complaints.Assignment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	idle := &complaints.Assignment{Outcome: complaints.OutcomePending}

	agent, err := e.agents.Find(ctx, agentID)
	if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) || (err == nil && !agent.IsOnline) {
		e.metrics.IncDrain(metrics.DrainOffline)
		return idle, nil
	}
	if err != nil {
		e.metrics.IncDrain(metrics.DrainFailed)
		return nil, err
	}
	busy, err := e.agents.HasLiveChat(ctx, agentID)
	if err != nil {
		e.metrics.IncDrain(metrics.DrainFailed)
		return nil, err
	}
	if busy {
		e.metrics.IncDrain(metrics.DrainBusy)
		return idle, nil
	}

	for {
		head, ok, err := e.queue.Peek(ctx)
		if err != nil {
			e.metrics.IncDrain(metrics.DrainFailed)
			return nil, err
		}
		if !ok {
			e.metrics.IncDrain(metrics.DrainEmpty)
			return idle, nil
		}

		var (
			bound *models.Complaint
			stale bool
		)
		err = e.db.WithTx(ctx, func(tx *gorm.DB) error {
			c, err := e.complaints.WithTx(tx).FindForUpdate(ctx, head)
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				stale = true
				return nil
			}
			if err != nil {
				return err
			}
			if c.Status != enums.ComplaintStatusPending || !c.RequiresLiveChat {
				stale = true
				return nil
			}
			bound, err = e.bind(ctx, tx, c, agentID, true)
			return err
		})
		if err != nil {
			e.metrics.IncDrain(metrics.DrainFailed)
			return nil, err
		}

		if _, _, err := e.queue.Pop(ctx); err != nil {
			// The head is now stale or bound; the next drain discards it.
			e.logError(ctx, head, "pop waiting queue head failed", err)
		}
		e.recordDepth(ctx)

		if stale {
			e.metrics.IncDrain(metrics.DrainStale)
			if e.logg != nil {
				e.logg.Debug(e.logg.WithComplaintID(ctx, head.String()), "dropped stale waiting queue entry")
			}
			continue
		}

		e.metrics.IncDrain(metrics.DrainAssigned)
		e.notifyBound(ctx, bound, agentID, true)
		return &complaints.Assignment{
			Outcome:   complaints.OutcomeAssigned,
			Complaint: bound,
			AgentID:   &agentID,
			FromQueue: true,
		}, nil
	}
}

// Release applies a terminal transition after input.Guard accepts the
// locked row, and frees the agent's slot when the complaint was bound.
// Requesting the status the complaint already has changes nothing.
func (e *Engine) Release(ctx context.Context, input complaints.ReleaseInput) (*complaints.Release, error) {
	if input.ComplaintID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "complaint id is required")
	}
	if !input.Target.IsTerminal() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "release target must be resolved or closed")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var result *complaints.Release
	err := e.db.WithTx(ctx, func(tx *gorm.DB) error {
		crepo := e.complaints.WithTx(tx)
		c, err := crepo.FindForUpdate(ctx, input.ComplaintID)
		if err != nil {
			return err
		}
		if input.Guard != nil {
			if err := input.Guard(c); err != nil {
				return err
			}
		}
		previous := c.Status
		if previous == input.Target {
			result = &complaints.Release{Complaint: c, PreviousStatus: previous}
			return nil
		}
		if !complaints.CanTransition(previous, input.Target) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "complaint cannot move to "+input.Target.String()).
				WithDetails(map[string]any{"status": previous, "target": input.Target})
		}

		now := e.now().UTC()
		if err := crepo.UpdateTerminal(ctx, c.ID, input.Target, now); err != nil {
			return err
		}
		holder, removed, err := e.agents.WithTx(tx).RemoveActive(ctx, c.ID)
		if err != nil {
			return err
		}
		var freed *uuid.UUID
		if removed {
			freed = &holder
		}
		if err := e.emitRelease(ctx, tx, c, input, freed, now); err != nil {
			return err
		}

		c.Status = input.Target
		c.AssignedTo = nil
		c.UpdatedAt = now
		if input.Target == enums.ComplaintStatusResolved {
			c.ResolvedAt = &now
		} else {
			c.ClosedAt = &now
		}
		result = &complaints.Release{Complaint: c, PreviousStatus: previous, FreedAgent: freed, Changed: true}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// bind performs the assignment writes inside tx and returns the updated row.
func (e *Engine) bind(ctx context.Context, tx *gorm.DB, c *models.Complaint, agentID uuid.UUID, fromQueue bool) (*models.Complaint, error) {
	now := e.now().UTC()
	if err := e.complaints.WithTx(tx).Bind(ctx, c.ID, agentID, now); err != nil {
		return nil, err
	}
	err := e.agents.WithTx(tx).AddActive(ctx, &models.AgentActiveComplaint{
		AgentID:          agentID,
		ComplaintID:      c.ID,
		RequiresLiveChat: c.RequiresLiveChat,
		AssignedAt:       now,
	})
	if err != nil {
		return nil, err
	}
	err = e.ledger.WithTx(tx).Record(ctx, &models.ServiceResponse{
		ServiceID:   agentID,
		ComplaintID: c.ID,
		OrderID:     c.OrderID,
		RecordedAt:  now,
	})
	if err != nil {
		return nil, err
	}
	err = e.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventComplaintAssigned,
		AggregateType: enums.AggregateComplaint,
		AggregateID:   c.ID,
		OccurredAt:    now,
		Data: payloads.ComplaintAssignedEvent{
			ComplaintID:      c.ID,
			OrderID:          c.OrderID,
			UserID:           c.UserID,
			AgentID:          agentID,
			RequiresLiveChat: c.RequiresLiveChat,
			FromQueue:        fromQueue,
			AssignedAt:       now,
		},
	})
	if err != nil {
		return nil, err
	}

	bound := *c
	bound.Status = enums.ComplaintStatusAssigned
	bound.AssignedTo = &agentID
	bound.UpdatedAt = now
	return &bound, nil
}

func (e *Engine) emitRelease(ctx context.Context, tx *gorm.DB, c *models.Complaint, input complaints.ReleaseInput, freed *uuid.UUID, at time.Time) error {
	event := outbox.DomainEvent{
		AggregateType: enums.AggregateComplaint,
		AggregateID:   c.ID,
		Actor:         &outbox.ActorRef{UserID: input.Actor.ID, Role: input.Actor.Role.String()},
		OccurredAt:    at,
	}
	if input.Target == enums.ComplaintStatusResolved {
		event.EventType = enums.EventComplaintResolved
		event.Data = payloads.ComplaintResolvedEvent{
			ComplaintID: c.ID,
			UserID:      c.UserID,
			AgentID:     input.Actor.ID,
			ResolvedAt:  at,
		}
	} else {
		event.EventType = enums.EventComplaintClosed
		event.Data = payloads.ComplaintClosedEvent{
			ComplaintID:    c.ID,
			UserID:         c.UserID,
			AgentID:        freed,
			PreviousStatus: c.Status,
			ClosedBy:       input.Actor.ID,
			ClosedAt:       at,
		}
	}
	return e.outbox.Emit(ctx, tx, event)
}

// AssignedPayload is the body of complaint-assigned.
type AssignedPayload struct {
	Complaint complaints.ComplaintDTO `json:"complaint"`
	FromQueue bool                    `json:"fromQueue"`
}

// NewAssignmentPayload is the body of new-assignment.
type NewAssignmentPayload struct {
	ComplaintID uuid.UUID `json:"complaintId"`
	AgentID     uuid.UUID `json:"agentId"`
	FromQueue   bool      `json:"fromQueue"`
}

func (e *Engine) notifyBound(ctx context.Context, c *models.Complaint, agentID uuid.UUID, fromQueue bool) {
	e.notifier.Emit(ctx,
		notify.Event{Name: notify.EventComplaintAssigned, Audience: notify.Agent(agentID), Payload: AssignedPayload{
			Complaint: complaints.FromModel(c),
			FromQueue: fromQueue,
		}},
		notify.Event{Name: notify.EventComplaintStatus, Audience: notify.Customer(c.UserID), Payload: complaints.StatusOf(c, "an agent has been assigned")},
		notify.Event{Name: notify.EventNewAssignment, Audience: notify.ServiceRoom(), Payload: NewAssignmentPayload{
			ComplaintID: c.ID,
			AgentID:     agentID,
			FromQueue:   fromQueue,
		}},
	)
}

func (e *Engine) recordDepth(ctx context.Context) {
	depth, err := e.queue.Len(ctx)
	if err != nil {
		return
	}
	e.metrics.SetQueueDepth(depth)
}

func (e *Engine) logError(ctx context.Context, complaintID uuid.UUID, msg string, err error) {
	if e.logg == nil {
		return
	}
	e.logg.Error(e.logg.WithComplaintID(ctx, complaintID.String()), msg, err)
}
