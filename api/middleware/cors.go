package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"

	"github.com/angelmondragon/supportdesk-backend/api/responses"
)

// Local dashboard dev servers are always allowed.
var devOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
}

// CORS allows the dashboard origins plus the websocket allow-list so the
// REST and chat surfaces accept the same browsers.
func CORS(allowed []string) func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: mergeOrigins(devOrigins, allowed),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			IdempotencyKeyHeader,
			responses.RequestIDHeader,
		},
		ExposedHeaders:   []string{responses.RequestIDHeader, "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}

func mergeOrigins(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, origin := range append(append([]string{}, base...), extra...) {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "" {
			continue
		}
		if _, dup := seen[origin]; dup {
			continue
		}
		seen[origin] = struct{}{}
		out = append(out, origin)
	}
	return out
}
