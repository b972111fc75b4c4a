package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/supportdesk-backend/api/responses"
	"github.com/angelmondragon/supportdesk-backend/api/validators"
	"github.com/angelmondragon/supportdesk-backend/internal/complaints"
	"github.com/angelmondragon/supportdesk-backend/internal/presence"
	"github.com/angelmondragon/supportdesk-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/supportdesk-backend/pkg/errors"
	"github.com/angelmondragon/supportdesk-backend/pkg/logger"
)

// AgentLister lists agents with their presence and load.
type AgentLister interface {
	List(ctx context.Context) ([]presence.AgentView, error)
}

// QueueReader exposes the waiting queue front to back.
type QueueReader interface {
	Snapshot(ctx context.Context) ([]uuid.UUID, error)
}

// DeadLetterLister reads the outbox dead-letter table.
type DeadLetterLister interface {
	ListForAggregate(ctx context.Context, aggregateID uuid.UUID, limit int) ([]models.OutboxDLQ, error)
}

type failedEventView struct {
	EventID      uuid.UUID `json:"eventId"`
	EventType    string    `json:"eventType"`
	Reason       string    `json:"reason"`
	Error        string    `json:"error,omitempty"`
	AttemptCount int       `json:"attemptCount"`
	FailedAt     time.Time `json:"failedAt"`
}

type queueView struct {
	Length  int         `json:"length"`
	Waiting []uuid.UUID `json:"waiting"`
}

// AdminComplaints lists every complaint, optionally filtered by ?status=.
func AdminComplaints(svc complaints.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, err := requirePrincipal(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.ListAll(r.Context(), principal, complaints.ListAllInput{
			Status: strings.TrimSpace(r.URL.Query().Get("status")),
			Params: params,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func AdminAgents(agents AgentLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		views, err := agents.List(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list agents"))
			return
		}
		responses.WriteSuccess(w, views)
	}
}

func AdminQueue(q QueueReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ids, err := q.Snapshot(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read waiting queue"))
			return
		}
		if ids == nil {
			ids = []uuid.UUID{}
		}
		responses.WriteSuccess(w, queueView{Length: len(ids), Waiting: ids})
	}
}

// AdminFailedEvents lists the lifecycle events of one complaint that the
// publisher gave up on, newest first.
func AdminFailedEvents(dlq DeadLetterLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if dlq == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "dead letter store unavailable"))
			return
		}
		complaintID, err := validators.ParseUUIDParam(r, complaintIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := dlq.ListForAggregate(r.Context(), complaintID, params.Limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Transient(err, "list failed events"))
			return
		}
		views := make([]failedEventView, 0, len(rows))
		for _, row := range rows {
			view := failedEventView{
				EventID:      row.EventID,
				EventType:    string(row.EventType),
				Reason:       string(row.ErrorReason),
				AttemptCount: row.AttemptCount,
				FailedAt:     row.FailedAt,
			}
			if row.ErrorMessage != nil {
				view.Error = *row.ErrorMessage
			}
			views = append(views, view)
		}
		responses.WriteSuccess(w, views)
	}
}
