package controllers

import (
	"net/http"

	"github.com/angelmondragon/supportdesk-backend/api/middleware"
	"github.com/angelmondragon/supportdesk-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/supportdesk-backend/pkg/errors"
)

func requirePrincipal(r *http.Request) (auth.Principal, error) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		return auth.Principal{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	return principal, nil
}
