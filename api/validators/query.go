package validators

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/supportdesk-backend/pkg/errors"
	"github.com/angelmondragon/supportdesk-backend/pkg/pagination"
)

func invalid(field, message string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, field+" "+message).
		WithDetails(map[string]any{"field": field})
}

func query(r *http.Request, key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}

// ParseQueryInt reads key as an int within [min, max], or fallback when absent.
func ParseQueryInt(r *http.Request, key string, fallback, min, max int) (int, error) {
	raw := query(r, key)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalid(key, "must be numeric")
	}
	if value < min || value > max {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, key+" out of range").
			WithDetails(map[string]any{"field": key, "min": min, "max": max})
	}
	return value, nil
}

// ParsePagination reads limit and cursor. The cursor stays opaque here; the
// listing that issued it validates it.
func ParsePagination(r *http.Request) (pagination.Params, error) {
	limit, err := ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{Limit: limit, Cursor: query(r, "cursor")}, nil
}

// ParseUUIDParam reads a chi URL parameter as a uuid.
func ParseUUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	if raw == "" {
		return uuid.Nil, invalid(name, "is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, invalid(name, "must be a valid uuid")
	}
	return id, nil
}

// ParseOptionalUUIDQuery returns nil when key is absent.
func ParseOptionalUUIDQuery(r *http.Request, key string) (*uuid.UUID, error) {
	raw := query(r, key)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, invalid(key, "must be a valid uuid")
	}
	return &id, nil
}
