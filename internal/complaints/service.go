package complaints

import (
	"context"
	"time"

	"github.com/angelmondragon/supportdesk-backend/internal/notify"
	"github.com/angelmondragon/supportdesk-backend/internal/orders"
	"github.com/angelmondragon/supportdesk-backend/internal/repo"
	"github.com/angelmondragon/supportdesk-backend/pkg/auth"
	"github.com/angelmondragon/supportdesk-backend/pkg/db/models"
	"github.com/angelmondragon/supportdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/supportdesk-backend/pkg/errors"
	"github.com/angelmondragon/supportdesk-backend/pkg/logger"
	"github.com/angelmondragon/supportdesk-backend/pkg/outbox"
	"github.com/angelmondragon/supportdesk-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/supportdesk-backend/pkg/pagination"
	"github.com/angelmondragon/supportdesk-backend/pkg/validate"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams groups dependencies for the complaint service.
type ServiceParams struct {
	DB       txRunner
	Repo     Repository
	Orders   orders.Lookup
	Outbox   outbox.Emitter
	Assigner Assigner
	Notifier notify.Notifier
	Logger   *logger.Logger
	Now      func() time.Time
}

// Service exposes the complaint lifecycle to transports.
type Service interface {
	Submit(ctx context.Context, principal auth.Principal, input SubmitInput) (*SubmitResult, error)
	Resolve(ctx context.Context, principal auth.Principal, complaintID uuid.UUID) (*TransitionResult, error)
	Close(ctx context.Context, principal auth.Principal, complaintID uuid.UUID) (*TransitionResult, error)
	Get(ctx context.Context, principal auth.Principal, complaintID uuid.UUID) (*ComplaintDTO, error)
	ListMine(ctx context.Context, principal auth.Principal, params pagination.Params) (pagination.Page[ComplaintDTO], error)
	ListAssigned(ctx context.Context, principal auth.Principal, params pagination.Params) (pagination.Page[ComplaintDTO], error)
	ListAll(ctx context.Context, principal auth.Principal, input ListAllInput) (pagination.Page[ComplaintDTO], error)
}

type service struct {
	db       txRunner
	repo     Repository
	orders   orders.Lookup
	outbox   outbox.Emitter
	assigner Assigner
	notifier notify.Notifier
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds a complaint service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "db is required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "complaint repo is required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order lookup is required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "outbox is required")
	}
	if params.Assigner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "assigner is required")
	}
	if params.Notifier == nil {
		params.Notifier = notify.Nop{}
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &service{
		db:       params.DB,
		repo:     params.Repo,
		orders:   params.Orders,
		outbox:   params.Outbox,
		assigner: params.Assigner,
		notifier: params.Notifier,
		logg:     params.Logger,
		now:      params.Now,
	}, nil
}

// Submit files a complaint for one of the caller's orders and tries to
// route it straight away.
func (s *service) Submit(ctx context.Context, principal auth.Principal, input SubmitInput) (*SubmitResult, error) {
	if !principal.Is(enums.RoleCustomer) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only customers can submit complaints")
	}
	input = input.normalized()
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	if err := s.orders.OwnedBy(ctx, input.OrderID, principal.ID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	complaint := &models.Complaint{
		ID:               uuid.New(),
		OrderID:          input.OrderID,
		UserID:           principal.ID,
		Subject:          input.Subject,
		Description:      input.Description,
		RequiresLiveChat: input.RequiresLiveChat,
		Status:           enums.ComplaintStatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, complaint); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventComplaintCreated,
			AggregateType: enums.AggregateComplaint,
			AggregateID:   complaint.ID,
			Actor:         &outbox.ActorRef{UserID: principal.ID, Role: principal.Role.String()},
			OccurredAt:    now,
			Data: payloads.ComplaintCreatedEvent{
				ComplaintID:      complaint.ID,
				OrderID:          complaint.OrderID,
				UserID:           complaint.UserID,
				Subject:          complaint.Subject,
				RequiresLiveChat: complaint.RequiresLiveChat,
				Status:           complaint.Status,
				CreatedAt:        now,
			},
		})
	})
	if err != nil {
		return nil, repo.MapError(err, "complaint")
	}

	s.notifier.Emit(ctx,
		notify.Event{Name: notify.EventNewComplaint, Audience: notify.ServiceRoom(), Payload: NewComplaintPayload{
			ComplaintID:      complaint.ID,
			OrderID:          complaint.OrderID,
			Subject:          complaint.Subject,
			RequiresLiveChat: complaint.RequiresLiveChat,
			CreatedAt:        complaint.CreatedAt,
		}},
		notify.Event{Name: notify.EventComplaintStatus, Audience: notify.Customer(principal.ID), Payload: StatusOf(complaint, "complaint received")},
	)

	result := &SubmitResult{Assignment: AssignmentDTO{Outcome: OutcomePending}}
	assignment, err := s.assigner.Assign(ctx, complaint.ID)
	switch {
	case err != nil:
		// The complaint is committed; a failed routing attempt leaves it pending.
		s.logError(ctx, complaint.ID, "assign after submit failed", err)
	case assignment != nil:
		result.Assignment = AssignmentDTO{Outcome: assignment.Outcome, AgentID: assignment.AgentID}
		if assignment.Complaint != nil {
			complaint = assignment.Complaint
		}
	}
	result.Complaint = FromModel(complaint)
	return result, nil
}

func (s *service) Resolve(ctx context.Context, principal auth.Principal, complaintID uuid.UUID) (*TransitionResult, error) {
	if complaintID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "complaint id is required")
	}
	release, err := s.assigner.Release(ctx, ReleaseInput{
		ComplaintID: complaintID,
		Target:      enums.ComplaintStatusResolved,
		Actor:       principal,
		Guard:       func(c *models.Complaint) error { return GuardResolve(principal, c) },
	})
	if err != nil {
		return nil, err
	}
	if release.Changed {
		c := release.Complaint
		payload := LifecyclePayload{ComplaintID: c.ID, Status: c.Status, By: principal.ID, At: c.UpdatedAt}
		s.notifier.Emit(ctx,
			notify.Event{Name: notify.EventComplaintResolved, Audience: notify.Complaint(c.ID), Payload: payload},
			notify.Event{Name: notify.EventComplaintResolved, Audience: notify.Customer(c.UserID), Payload: payload},
			notify.Event{Name: notify.EventComplaintStatus, Audience: notify.Customer(c.UserID), Payload: StatusOf(c, "complaint resolved")},
		)
		s.drainFreed(ctx, release)
	}
	return &TransitionResult{Complaint: FromModel(release.Complaint), Changed: release.Changed}, nil
}

func (s *service) Close(ctx context.Context, principal auth.Principal, complaintID uuid.UUID) (*TransitionResult, error) {
	if complaintID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "complaint id is required")
	}
	release, err := s.assigner.Release(ctx, ReleaseInput{
		ComplaintID: complaintID,
		Target:      enums.ComplaintStatusClosed,
		Actor:       principal,
		Guard:       func(c *models.Complaint) error { return GuardClose(principal, c) },
	})
	if err != nil {
		return nil, err
	}
	if release.Changed {
		c := release.Complaint
		payload := LifecyclePayload{ComplaintID: c.ID, Status: c.Status, By: principal.ID, At: c.UpdatedAt}
		events := []notify.Event{
			{Name: notify.EventComplaintClosed, Audience: notify.Complaint(c.ID), Payload: payload},
			{Name: notify.EventComplaintClosed, Audience: notify.Customer(c.UserID), Payload: payload},
			{Name: notify.EventComplaintStatus, Audience: notify.Customer(c.UserID), Payload: StatusOf(c, "complaint closed")},
		}
		if release.FreedAgent != nil {
			events = append(events, notify.Event{Name: notify.EventComplaintClosed, Audience: notify.Agent(*release.FreedAgent), Payload: payload})
		}
		s.notifier.Emit(ctx, events...)
		s.drainFreed(ctx, release)
	}
	return &TransitionResult{Complaint: FromModel(release.Complaint), Changed: release.Changed}, nil
}

// drainFreed hands the agent's released capacity to the waiting queue.
// Failures are logged; the transition itself already committed.
func (s *service) drainFreed(ctx context.Context, release *Release) {
	if release.FreedAgent == nil {
		return
	}
	if _, err := s.assigner.Drain(ctx, *release.FreedAgent); err != nil {
		s.logError(ctx, release.Complaint.ID, "drain after release failed", err)
	}
}

func (s *service) Get(ctx context.Context, principal auth.Principal, complaintID uuid.UUID) (*ComplaintDTO, error) {
	if complaintID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "complaint id is required")
	}
	c, err := s.repo.Find(ctx, complaintID)
	if err != nil {
		return nil, err
	}
	if err := ValidateAccess(principal, c); err != nil {
		return nil, err
	}
	dto := FromModel(c)
	return &dto, nil
}

func (s *service) ListMine(ctx context.Context, principal auth.Principal, params pagination.Params) (pagination.Page[ComplaintDTO], error) {
	if !principal.Is(enums.RoleCustomer) {
		return pagination.Page[ComplaintDTO]{}, pkgerrors.New(pkgerrors.CodeForbidden, "only customers have their own complaints")
	}
	page, err := s.repo.ListByUser(ctx, principal.ID, params)
	if err != nil {
		return pagination.Page[ComplaintDTO]{}, err
	}
	return PageFromModels(page), nil
}

func (s *service) ListAssigned(ctx context.Context, principal auth.Principal, params pagination.Params) (pagination.Page[ComplaintDTO], error) {
	var agentID *uuid.UUID
	switch principal.Role {
	case enums.RoleService:
		id := principal.ID
		agentID = &id
	case enums.RoleAdmin:
	default:
		return pagination.Page[ComplaintDTO]{}, pkgerrors.New(pkgerrors.CodeForbidden, "assigned complaints are restricted to support staff")
	}
	page, err := s.repo.ListActive(ctx, agentID, params)
	if err != nil {
		return pagination.Page[ComplaintDTO]{}, err
	}
	return PageFromModels(page), nil
}

func (s *service) ListAll(ctx context.Context, principal auth.Principal, input ListAllInput) (pagination.Page[ComplaintDTO], error) {
	if !principal.Is(enums.RoleAdmin) {
		return pagination.Page[ComplaintDTO]{}, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	var status *enums.ComplaintStatus
	if input.Status != "" {
		parsed, err := enums.ParseComplaintStatus(input.Status)
		if err != nil {
			return pagination.Page[ComplaintDTO]{}, pkgerrors.New(pkgerrors.CodeValidation, err.Error())
		}
		status = &parsed
	}
	page, err := s.repo.ListAll(ctx, status, input.Params)
	if err != nil {
		return pagination.Page[ComplaintDTO]{}, err
	}
	return PageFromModels(page), nil
}

func (s *service) logError(ctx context.Context, complaintID uuid.UUID, msg string, err error) {
	if s.logg == nil {
		return
	}
	s.logg.Error(s.logg.WithComplaintID(ctx, complaintID.String()), msg, err)
}
