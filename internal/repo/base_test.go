package repo

import (
	"context"
	"errors"
	"fmt"
	"testing"

	pkgerrors "github.com/angelmondragon/supportdesk-backend/pkg/errors"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	return conn
}

type ctxKey struct{}

func TestBaseDBBindsContext(t *testing.T) {
	db := newTestDB(t)
	base := NewBase(db)

	ctx := context.WithValue(context.Background(), ctxKey{}, "value")
	withCtx := base.DB(ctx)
	if withCtx.Statement == nil || withCtx.Statement.Context != ctx {
		t.Fatalf("expected context to flow through")
	}

	if base.DB(nil) != db {
		t.Fatalf("expected nil context to return raw connection")
	}
}

func TestBaseTxSwapsHandle(t *testing.T) {
	db := newTestDB(t)
	base := NewBase(db)
	if base.Tx(nil).db != db {
		t.Fatalf("nil tx should keep the base connection")
	}
	tx := db.Session(&gorm.Session{})
	if base.Tx(tx).db != tx {
		t.Fatalf("expected tx handle")
	}
}

func TestMapError(t *testing.T) {
	if MapError(nil, "complaint") != nil {
		t.Fatalf("nil should stay nil")
	}
	if err := MapError(gorm.ErrRecordNotFound, "complaint"); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := MapError(errors.New("disk I/O error"), "complaint"); !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
	typed := pkgerrors.New(pkgerrors.CodeStateConflict, "busy")
	if err := MapError(typed, "complaint"); err != typed {
		t.Fatalf("typed errors should pass through")
	}
}

func TestMapErrorPostgresCodes(t *testing.T) {
	cases := []struct {
		sqlState string
		want     pkgerrors.Code
	}{
		{"23505", pkgerrors.CodeConflict},
		{"23503", pkgerrors.CodeStateConflict},
		{"23514", pkgerrors.CodeStateConflict},
		{"40001", pkgerrors.CodeDependency},
		{"57014", pkgerrors.CodeDependency},
	}
	for _, tc := range cases {
		pgErr := &pgconn.PgError{Code: tc.sqlState, ConstraintName: "complaints_status_check"}
		err := MapError(fmt.Errorf("exec: %w", pgErr), "complaint")
		if !pkgerrors.IsCode(err, tc.want) {
			t.Fatalf("%s: expected %s, got %v", tc.sqlState, tc.want, err)
		}
		if !errors.Is(err, pgErr) {
			t.Fatalf("%s: cause should stay reachable", tc.sqlState)
		}
	}
}

func TestMapErrorInterruptedQueryIsRetryable(t *testing.T) {
	err := MapError(context.DeadlineExceeded, "agent")
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) || !pkgerrors.MetadataFor(pkgerrors.CodeDependency).Retryable {
		t.Fatalf("expected retryable dependency error, got %v", err)
	}
}
