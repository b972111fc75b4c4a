// Package errors carries a client-facing Code alongside the Go error chain.
// Domain code raises NOT_FOUND, FORBIDDEN, VALIDATION_ERROR and friends
// directly; storage and broker failures become DEPENDENCY_ERROR so clients
// see a generic message while logs keep the cause.
package errors

import (
	stderrors "errors"
	"fmt"
)

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap attaches code and message to err. A nil err behaves like New.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

// Transient wraps an unexpected storage or broker failure.
func Transient(err error, message string) *Error {
	return Wrap(CodeDependency, err, message)
}

// WithDetails sets structured details, exposed only for codes that allow it.
func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.cause == nil:
		return fmt.Sprintf("%s: %s", e.code, e.message)
	default:
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost *Error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if stderrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether the outermost *Error in err's chain has code.
func IsCode(err error, code Code) bool {
	return As(err).codeOr("") == code
}

func (e *Error) codeOr(fallback Code) Code {
	if e == nil {
		return fallback
	}
	return e.code
}

// Public returns what a client may see for err: the code, a safe message and
// any details the code allows. Errors without a Code surface as
// INTERNAL_ERROR.
func Public(err error) (Code, string, any) {
	typed := As(err)
	code := typed.codeOr(CodeInternal)
	meta := MetadataFor(code)

	msg := meta.PublicMessage
	if meta.ownMessage && typed.Message() != "" {
		msg = typed.Message()
	}
	var details any
	if meta.DetailsAllowed {
		details = typed.Details()
	}
	return code, msg, details
}
