package middleware

import (
	"context"

	"github.com/angelmondragon/supportdesk-backend/pkg/auth"
)

type contextKey string

const ctxPrincipal contextKey = "principal"

// WithPrincipal injects the authenticated caller into the context.
func WithPrincipal(ctx context.Context, principal auth.Principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxPrincipal, principal)
}

// PrincipalFromContext returns the caller resolved by Auth.
func PrincipalFromContext(ctx context.Context) (auth.Principal, bool) {
	if ctx == nil {
		return auth.Principal{}, false
	}
	p, ok := ctx.Value(ctxPrincipal).(auth.Principal)
	return p, ok
}

func UserIDFromContext(ctx context.Context) string {
	if p, ok := PrincipalFromContext(ctx); ok {
		return p.ID.String()
	}
	return ""
}

func RoleFromContext(ctx context.Context) string {
	if p, ok := PrincipalFromContext(ctx); ok {
		return p.Role.String()
	}
	return ""
}
