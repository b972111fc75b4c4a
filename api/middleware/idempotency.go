package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/supportdesk-backend/api/responses"
	pkgerrors "github.com/angelmondragon/supportdesk-backend/pkg/errors"
	"github.com/angelmondragon/supportdesk-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/supportdesk-backend/pkg/redis"
)

const (
	IdempotencyKeyHeader   = "Idempotency-Key"
	defaultIdempotencyTTL  = 24 * time.Hour
	inFlightTTL            = 30 * time.Second
	idempotencyInFlightTag = "in-flight"
)

// idempotentRoute matches paths by prefix and suffix so ids in between
// are ignored.
type idempotentRoute struct {
	method   string
	prefix   string
	suffix   string
	required bool
}

var idempotentRoutes = []idempotentRoute{
	{method: http.MethodPost, prefix: "/api/v1/complaints", required: true},
	{method: http.MethodPost, prefix: "/api/v1/chat/", suffix: "/messages"},
	{method: http.MethodPut, prefix: "/api/v1/complaints/", suffix: "/resolve"},
	{method: http.MethodPut, prefix: "/api/v1/complaints/", suffix: "/close"},
}

func (rt idempotentRoute) matches(method, path string) bool {
	if rt.method != method {
		return false
	}
	if rt.suffix == "" {
		return path == rt.prefix
	}
	return len(path) > len(rt.prefix)+len(rt.suffix) &&
		strings.HasPrefix(path, rt.prefix) && strings.HasSuffix(path, rt.suffix)
}

func lookupRoute(method, path string) (idempotentRoute, bool) {
	path = strings.TrimSuffix(path, "/")
	for _, rt := range idempotentRoutes {
		if rt.matches(method, path) {
			return rt, true
		}
	}
	return idempotentRoute{}, false
}

// storedResponse is what a replay writes back.
type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"contentType,omitempty"`
	Body        []byte `json:"body"`
	RequestHash string `json:"requestHash"`
}

// Idempotency replays the first non-5xx response for a repeated
// Idempotency-Key on the write routes above. Keys are scoped per caller and
// path. A duplicate arriving while the first is still running gets 409.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, ok := lookupRoute(r.Method, r.URL.Path)
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			clientKey := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
			if clientKey == "" {
				if route.required {
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			sum := sha256.Sum256(body)
			hash := hex.EncodeToString(sum[:])
			key := store.IdempotencyKey(UserIDFromContext(ctx)+"|"+r.Method+"|"+r.URL.Path, clientKey)

			claimed, err := store.SetNX(ctx, key, idempotencyInFlightTag, inFlightTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key"))
				return
			}
			if !claimed {
				replay(ctx, logg, w, store, key, hash)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			status := capture.statusCode()
			if status >= http.StatusInternalServerError {
				release(ctx, logg, store, key)
				return
			}
			record, err := json.Marshal(storedResponse{
				Status:      status,
				ContentType: capture.Header().Get("Content-Type"),
				Body:        capture.body.Bytes(),
				RequestHash: hash,
			})
			if err == nil {
				err = store.Set(ctx, key, string(record), defaultIdempotencyTTL)
			}
			if err != nil && logg != nil {
				logg.Error(ctx, "persist idempotency record", err)
			}
		})
	}
}

func replay(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, store pkgredis.IdempotencyStore, key, hash string) {
	stored, err := store.Get(ctx, key)
	switch {
	case errors.Is(err, pkgredis.Nil), err == nil && stored == idempotencyInFlightTag:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this Idempotency-Key is still in progress"))
		return
	case err != nil:
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read idempotency record"))
		return
	}

	var rec storedResponse
	if err := json.Unmarshal([]byte(stored), &rec); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode idempotency record"))
		return
	}
	if rec.RequestHash != hash {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
		return
	}
	if rec.ContentType != "" {
		w.Header().Set("Content-Type", rec.ContentType)
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(rec.Status)
	_, _ = w.Write(rec.Body)
}

// release frees the claim so a retry after a server error reaches the handler.
func release(ctx context.Context, logg *logger.Logger, store pkgredis.IdempotencyStore, key string) {
	if err := store.Del(context.WithoutCancel(ctx), key); err != nil && logg != nil {
		logg.Error(ctx, "release idempotency key", err)
	}
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *responseCapture) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *responseCapture) statusCode() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}
