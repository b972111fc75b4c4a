package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	pkgerrors "github.com/angelmondragon/supportdesk-backend/pkg/errors"
	"github.com/angelmondragon/supportdesk-backend/pkg/logger"
)

// encodeFailure is written verbatim when a payload cannot be marshalled.
var encodeFailure = []byte(`{"error":{"code":"INTERNAL_ERROR","message":"internal server error","retryable":false}}` + "\n")

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Envelope{Data: data})
}

// WriteError renders err as the error envelope. Only client-safe messages and
// details leave the process; the full chain goes to the log.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	code, msg, details := pkgerrors.Public(err)
	meta := pkgerrors.MetadataFor(code)

	if logg != nil {
		ctx = logg.WithFields(ctx, pkgerrors.Dump(err).Fields())
		if meta.HTTPStatus >= http.StatusInternalServerError {
			logg.Error(ctx, "request.error", err)
		} else {
			logg.Warn(ctx, "request.rejected")
		}
	}

	writeJSON(w, meta.HTTPStatus, ErrorEnvelope{Error: ErrorBody{
		Code:      code,
		Message:   msg,
		Details:   details,
		RequestID: w.Header().Get(RequestIDHeader),
		Retryable: meta.Retryable,
	}})
}

// writeJSON marshals before touching the header so an unencodable payload
// still yields a well-formed 500.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		status, body = http.StatusInternalServerError, encodeFailure
	} else {
		body = append(body, '\n')
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
