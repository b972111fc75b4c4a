package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/supportdesk-backend/api/responses"
	"github.com/angelmondragon/supportdesk-backend/api/validators"
	"github.com/angelmondragon/supportdesk-backend/internal/ledger"
	"github.com/angelmondragon/supportdesk-backend/pkg/logger"
)

// Performance counts the responses an agent handled in ?period=today|week|month|all.
// Admins name the agent with ?serviceId=.
func Performance(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, err := requirePrincipal(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		serviceID, err := validators.ParseOptionalUUIDQuery(r, "serviceId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		stats, err := svc.Performance(r.Context(), principal, ledger.PerformanceInput{
			Period:    strings.TrimSpace(r.URL.Query().Get("period")),
			ServiceID: serviceID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stats)
	}
}
