package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/supportdesk-backend/api/responses"
	pkgAuth "github.com/angelmondragon/supportdesk-backend/pkg/auth"
	"github.com/angelmondragon/supportdesk-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/supportdesk-backend/pkg/errors"
	"github.com/angelmondragon/supportdesk-backend/pkg/logger"
)

const accessTokenQueryParam = "access_token"

// Auth validates a bearer token and seeds the request context with the principal.
// Browsers cannot set headers on a websocket upgrade, so the token may also
// arrive as the access_token query parameter.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	verifier := pkgAuth.NewVerifier(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			principal, err := verifier.Principal(token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			ctx := WithPrincipal(r.Context(), principal)
			if logg != nil {
				ctx = logg.WithFields(ctx, map[string]any{
					"user_id":    principal.ID.String(),
					"actor_role": principal.Role.String(),
				})
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	token := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	if token == "" {
		token = strings.TrimSpace(r.URL.Query().Get(accessTokenQueryParam))
	}
	return token
}
