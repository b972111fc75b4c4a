package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/supportdesk-backend/api/responses"
	"github.com/angelmondragon/supportdesk-backend/api/validators"
	"github.com/angelmondragon/supportdesk-backend/internal/complaints"
	"github.com/angelmondragon/supportdesk-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/supportdesk-backend/pkg/errors"
	"github.com/angelmondragon/supportdesk-backend/pkg/logger"
)

const complaintIDParam = "complaintId"

// SubmitComplaint files a complaint for the calling customer. The body is
// the acknowledgement: the complaint plus where it was routed.
func SubmitComplaint(svc complaints.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "complaint service unavailable"))
			return
		}
		principal, err := requirePrincipal(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body complaints.SubmitInput
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Submit(r.Context(), principal, body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// MyComplaints lists the caller's complaints, newest first.
func MyComplaints(svc complaints.Service, logg *logger.Logger) http.HandlerFunc {
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
		page, err := svc.ListMine(r.Context(), principal, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func GetComplaint(svc complaints.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, err := requirePrincipal(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		complaintID, err := validators.ParseUUIDParam(r, complaintIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		complaint, err := svc.Get(r.Context(), principal, complaintID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, complaint)
	}
}

func ResolveComplaint(svc complaints.Service, logg *logger.Logger) http.HandlerFunc {
	return transition(logg, svc.Resolve)
}

func CloseComplaint(svc complaints.Service, logg *logger.Logger) http.HandlerFunc {
	return transition(logg, svc.Close)
}

type transitionFunc func(ctx context.Context, principal auth.Principal, complaintID uuid.UUID) (*complaints.TransitionResult, error)

func transition(logg *logger.Logger, fn transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, err := requirePrincipal(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		complaintID, err := validators.ParseUUIDParam(r, complaintIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithComplaintID(ctx, complaintID.String())
		}
		result, err := fn(ctx, principal, complaintID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
