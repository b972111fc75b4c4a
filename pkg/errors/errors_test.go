package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeStateConflict, status: http.StatusConflict, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeRateLimit, status: http.StatusTooManyRequests, publicMsg: "rate limit exceeded", retryable: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "service temporarily unavailable", retryable: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	detail := map[string]any{"field": "foo"}
	base.WithDetails(detail)
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stderrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stderrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestErrorStringIncludesCause(t *testing.T) {
	if got := New(CodeNotFound, "complaint not found").Error(); got != "NOT_FOUND: complaint not found" {
		t.Fatalf("unexpected error string %q", got)
	}
	got := Transient(stderrors.New("timeout"), "load queue").Error()
	if got != "DEPENDENCY_ERROR: load queue: timeout" {
		t.Fatalf("unexpected wrapped string %q", got)
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeForbidden, "no entry")
	if got := As(err); got == nil || got.Code() != CodeForbidden {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestTransientHidesCauseButKeepsChain(t *testing.T) {
	cause := stderrors.New("pq: connection refused")
	err := Transient(cause, "load complaint")
	if err.Code() != CodeDependency {
		t.Fatalf("expected dependency code, got %s", err.Code())
	}
	if !stderrors.Is(err, cause) {
		t.Fatalf("expected cause in chain")
	}
	if MetadataFor(err.Code()).DetailsAllowed {
		t.Fatalf("transient errors must not expose details")
	}
}

func TestIsCodeFollowsWrapping(t *testing.T) {
	inner := New(CodeNotFound, "complaint not found")
	outer := fmt.Errorf("assign: %w", inner)
	if !IsCode(outer, CodeNotFound) {
		t.Fatalf("expected IsCode to see wrapped typed error")
	}
	if IsCode(outer, CodeForbidden) {
		t.Fatalf("unexpected code match")
	}
	if IsCode(nil, CodeNotFound) {
		t.Fatalf("nil error has no code")
	}
}

func TestDumpCollectsChain(t *testing.T) {
	err := fmt.Errorf("outer: %w", Wrap(CodeDependency, stderrors.New("socket closed"), "ping"))
	d := Dump(err)
	if d.Code != CodeDependency {
		t.Fatalf("expected dependency code in dump, got %s", d.Code)
	}
	if len(d.Chain) != 3 {
		t.Fatalf("expected 3 chain entries, got %d: %v", len(d.Chain), d.Chain)
	}
	if _, ok := d.Fields()["pg_code"]; ok {
		t.Fatalf("empty pg fields should be omitted")
	}
}

func TestDumpReadsPostgresDetailFromEitherDriver(t *testing.T) {
	pgxErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_agent_active_complaints_complaint"}
	d := Dump(fmt.Errorf("insert: %w", pgxErr))
	if d.PG.Code != "23505" || d.Fields()["pg_constraint"] != "ux_agent_active_complaints_complaint" {
		t.Fatalf("unexpected pgx dump %+v", d.PG)
	}

	pqErr := &pq.Error{Code: "23503", Table: "complaint_messages"}
	if detail, ok := PostgresDetail(pqErr); !ok || detail.Code != "23503" || detail.Table != "complaint_messages" {
		t.Fatalf("unexpected pq detail %+v", detail)
	}
	if _, ok := PostgresDetail(stderrors.New("plain")); ok {
		t.Fatalf("plain errors carry no postgres detail")
	}
}

func TestPublicHidesInternalDetail(t *testing.T) {
	code, msg, details := Public(Wrap(CodeDependency, stderrors.New("dial tcp 10.0.0.1"), "load agents").WithDetails("secret"))
	if code != CodeDependency || msg != "service temporarily unavailable" || details != nil {
		t.Fatalf("unexpected public view: %s %q %v", code, msg, details)
	}

	code, msg, details = Public(New(CodeValidation, "invalid input").WithDetails(map[string]string{"subject": "is required"}))
	if code != CodeValidation || msg != "invalid input" || details == nil {
		t.Fatalf("expected validation message and details, got %s %q %v", code, msg, details)
	}

	code, msg, _ = Public(stderrors.New("raw"))
	if code != CodeInternal || msg == "raw" {
		t.Fatalf("expected untyped errors to be masked, got %s %q", code, msg)
	}
}
