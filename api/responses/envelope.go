package responses

import pkgerrors "github.com/angelmondragon/supportdesk-backend/pkg/errors"

// RequestIDHeader is set by the request id middleware before handlers run.
const RequestIDHeader = "X-Request-Id"

// Envelope wraps every successful body.
type Envelope struct {
	Data any `json:"data"`
}

// ErrorBody is the client-visible part of a failed request.
type ErrorBody struct {
	Code      pkgerrors.Code `json:"code"`
	Message   string         `json:"message"`
	Details   any            `json:"details,omitempty"`
	RequestID string         `json:"requestId,omitempty"`
	Retryable bool           `json:"retryable"`
}

// ErrorEnvelope wraps every failed body.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}
