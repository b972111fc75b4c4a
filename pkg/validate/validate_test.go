package validate

import (
	"strings"
	"testing"

	pkgerrors "github.com/angelmondragon/supportdesk-backend/pkg/errors"
)

type sample struct {
	Subject string `json:"subject" validate:"required,max=5"`
	Kind    string `json:"kind" validate:"omitempty,oneof=a b"`
}

func TestStructReportsFieldsByJSONName(t *testing.T) {
	err := Struct(sample{Subject: strings.Repeat("x", 6), Kind: "c"})
	if err == nil {
		t.Fatal("expected validation error")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
	details, ok := typed.Details().(map[string]string)
	if !ok {
		t.Fatalf("expected field details, got %T", typed.Details())
	}
	if details["subject"] != "must be at most 5" {
		t.Fatalf("unexpected subject message %q", details["subject"])
	}
	if details["kind"] != "must be one of a b" {
		t.Fatalf("unexpected kind message %q", details["kind"])
	}
}

func TestStructAcceptsValidInput(t *testing.T) {
	if err := Struct(sample{Subject: "ok"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMaxCountsRunes(t *testing.T) {
	if err := Struct(sample{Subject: "ñññññ"}); err != nil {
		t.Fatalf("five runes should pass max=5: %v", err)
	}
}

func TestNotBlankRejectsWhitespace(t *testing.T) {
	type note struct {
		Body string `json:"body" validate:"required,notblank"`
	}
	err := Struct(note{Body: " \t\n "})
	typed := pkgerrors.As(err)
	if typed == nil {
		t.Fatalf("expected validation error, got %v", err)
	}
	if details := typed.Details().(map[string]string); details["body"] != "must not be blank" {
		t.Fatalf("unexpected details %v", details)
	}
	if err := Struct(note{Body: "  hi "}); err != nil {
		t.Fatalf("padded text should pass: %v", err)
	}
}
