// Package repo holds the pieces every gorm-backed repository shares.
package repo

import (
	"context"
	"errors"
	"fmt"

	pkgerrors "github.com/angelmondragon/supportdesk-backend/pkg/errors"
	"gorm.io/gorm"
)

// Postgres SQLSTATE codes MapError understands.
const (
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgCheckViolation       = "23514"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// Base is embedded by repositories. It is either bound to the pool or to a
// transaction handed in by the caller.
type Base struct {
	db *gorm.DB
}

func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB returns the handle scoped to ctx.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// Tx rebinds the repository to tx. A nil tx keeps the current handle.
func (b Base) Tx(tx *gorm.DB) Base {
	if tx == nil {
		return b
	}
	return Base{db: tx}
}

// MapError turns a storage failure into a service error for entity.
// Typed errors pass through untouched.
func MapError(err error, entity string) error {
	if err == nil {
		return nil
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, entity+" not found")
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return pkgerrors.Transient(err, entity+" query interrupted")
	}
	if pg, ok := pkgerrors.PostgresDetail(err); ok {
		switch pg.Code {
		case pgUniqueViolation:
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, fmt.Sprintf("%s already exists", entity))
		case pgForeignKeyViolation, pgCheckViolation:
			return pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, fmt.Sprintf("%s violates %s", entity, constraintName(pg.Constraint)))
		case pgSerializationFailure, pgDeadlockDetected:
			return pkgerrors.Transient(err, entity+" write contended")
		}
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, entity+" storage failure")
}

func constraintName(name string) string {
	if name == "" {
		return "a constraint"
	}
	return name
}
