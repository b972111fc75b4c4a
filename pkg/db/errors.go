package db

import (
	"strings"

	pkgerrors "github.com/angelmondragon/supportdesk-backend/pkg/errors"
)

const pgUniqueViolation = "23505"

// IsUniqueViolation reports a unique constraint failure from pgx, lib/pq or
// sqlite. A non-empty constraintName must match as well.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	if detail, ok := pkgerrors.PostgresDetail(err); ok {
		if detail.Code != pgUniqueViolation {
			return false
		}
		return constraintName == "" || detail.Constraint == constraintName
	}
	msg := err.Error()
	if constraintName != "" {
		return strings.Contains(msg, constraintName)
	}
	return strings.Contains(msg, "duplicate key value") || strings.Contains(msg, "UNIQUE constraint failed")
}
