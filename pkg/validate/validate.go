// Package validate runs struct-tag validation and renders failures as
// VALIDATION_ERROR with per-field details.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	pkgerrors "github.com/angelmondragon/supportdesk-backend/pkg/errors"
	"github.com/go-playground/validator/v10"
)

var instance = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return f.Name
		}
		return tag
	})
	_ = v.RegisterValidation("notblank", notBlank)
	return v
}

// notBlank rejects strings made only of whitespace.
func notBlank(fl validator.FieldLevel) bool {
	field := fl.Field()
	if field.Kind() != reflect.String {
		return true
	}
	return strings.IndexFunc(field.String(), func(r rune) bool { return !unicode.IsSpace(r) }) >= 0
}

// Struct validates dest and returns nil or a *errors.Error.
func Struct(dest any) error {
	if err := instance.Struct(dest); err != nil {
		return format(err)
	}
	return nil
}

func format(err error) *pkgerrors.Error {
	var errs validator.ValidationErrors
	if errors.As(err, &errs) {
		details := map[string]string{}
		for _, fieldErr := range errs {
			details[fieldErr.Field()] = message(fieldErr)
		}
		return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "notblank":
		return "must not be blank"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of %s", fe.Param())
	case "uuid", "uuid4":
		return "must be a valid uuid"
	}
	return "is invalid"
}
