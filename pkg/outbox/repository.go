package outbox

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/supportdesk-backend/pkg/db/models"
)

const maxLastErrorLen = 1024

var errNoTx = errors.New("outbox: transaction required")

// Repository reads and writes outbox_events. Every write goes through the
// caller's transaction so event rows commit or roll back with the state
// change, or with the publisher's claim.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(tx *gorm.DB, event models.OutboxEvent) error {
	if tx == nil {
		return errNoTx
	}
	return tx.Create(&event).Error
}

// pending selects unpublished rows that still have attempts left.
func pending(maxAttempts int) func(*gorm.DB) *gorm.DB {
	return func(q *gorm.DB) *gorm.DB {
		return q.Where("published_at IS NULL AND attempt_count < ?", maxAttempts)
	}
}

// ClaimBatch returns up to limit pending rows, oldest first. On Postgres the
// rows stay locked (SKIP LOCKED) until tx ends so publishers do not overlap.
func (r *Repository) ClaimBatch(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if tx == nil {
		return nil, errNoTx
	}
	q := tx.Scopes(pending(maxAttempts)).Order("created_at ASC, id ASC").Limit(limit)
	if tx.Dialector != nil && tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}
	rows := make([]models.OutboxEvent, 0, limit)
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Repository) update(tx *gorm.DB, id uuid.UUID, values map[string]any) error {
	if tx == nil {
		return errNoTx
	}
	return tx.Model(&models.OutboxEvent{}).Where("id = ?", id).Updates(values).Error
}

// MarkPublished stamps the row as delivered and clears any earlier error.
func (r *Repository) MarkPublished(tx *gorm.DB, id uuid.UUID) error {
	return r.update(tx, id, map[string]any{
		"published_at": time.Now().UTC(),
		"last_error":   nil,
	})
}

// RecordFailure burns one attempt and remembers why.
func (r *Repository) RecordFailure(tx *gorm.DB, id uuid.UUID, cause error) error {
	return r.update(tx, id, map[string]any{
		"attempt_count": gorm.Expr("attempt_count + 1"),
		"last_error":    lastError(cause),
	})
}

// Park pins attempt_count at the cap so ClaimBatch skips the row for good.
// The DLQ holds the copy.
func (r *Repository) Park(tx *gorm.DB, id uuid.UUID, cause error, capAttempts int) error {
	return r.update(tx, id, map[string]any{
		"attempt_count": capAttempts,
		"last_error":    lastError(cause),
	})
}

// Prune deletes rows created or published before cutoff that are either
// delivered or parked at parkedAttempts.
func (r *Repository) Prune(ctx context.Context, tx *gorm.DB, cutoff time.Time, parkedAttempts int) (int64, error) {
	if tx == nil {
		return 0, errNoTx
	}
	res := tx.WithContext(ctx).
		Where("(published_at < ?) OR (published_at IS NULL AND attempt_count >= ? AND created_at < ?)",
			cutoff, parkedAttempts, cutoff).
		Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}

// CountPending reports rows not yet published, parked rows included.
func (r *Repository) CountPending(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.OutboxEvent{}).
		Where("published_at IS NULL").
		Count(&count).Error
	return count, err
}

func lastError(err error) *string {
	if err == nil {
		return nil
	}
	msg := clip(err.Error())
	return &msg
}

// clip cuts msg to maxLastErrorLen bytes without splitting a rune.
func clip(msg string) string {
	if len(msg) <= maxLastErrorLen {
		return msg
	}
	msg = msg[:maxLastErrorLen]
	for !utf8.ValidString(msg) {
		msg = msg[:len(msg)-1]
	}
	return msg
}
