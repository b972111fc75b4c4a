package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/supportdesk-backend/api/responses"
	"github.com/angelmondragon/supportdesk-backend/api/validators"
	"github.com/angelmondragon/supportdesk-backend/internal/complaints"
	"github.com/angelmondragon/supportdesk-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/supportdesk-backend/pkg/errors"
	"github.com/angelmondragon/supportdesk-backend/pkg/logger"
)

// StatusSetter toggles an agent's presence.
type StatusSetter interface {
	SetStatus(ctx context.Context, principal auth.Principal, online bool, connectionID string) error
}

type agentStatusBody struct {
	Online *bool `json:"online" validate:"required"`
}

// AgentComplaints returns the open complaints assigned to the agent, or to
// everybody when the caller is an admin.
func AgentComplaints(svc complaints.Service, logg *logger.Logger) http.HandlerFunc {
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
		page, err := svc.ListAssigned(r.Context(), principal, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// AgentStatus sets the agent online or offline without a socket.
func AgentStatus(presence StatusSetter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if presence == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "presence unavailable"))
			return
		}
		principal, err := requirePrincipal(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body agentStatusBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := presence.SetStatus(r.Context(), principal, *body.Online, ""); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"serviceId": principal.ID, "isOnline": *body.Online})
	}
}
