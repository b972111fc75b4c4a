package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/supportdesk-backend/pkg/db/models"
)

const maxDLQPage = 100

// DLQRepository keeps copies of outbox rows that were given up on, so
// operators can inspect and replay them by hand.
type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

// InsertTx must run in the transaction that parks the source row.
func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errNoTx
	}
	if entry.ErrorMessage != nil {
		msg := clip(*entry.ErrorMessage)
		entry.ErrorMessage = &msg
	}
	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("insert dlq entry for %s: %w", entry.EventID, err)
	}
	return nil
}

// ListForAggregate returns one complaint's dead-lettered events, newest
// first. limit is clamped to [1, 100].
func (r *DLQRepository) ListForAggregate(ctx context.Context, aggregateID uuid.UUID, limit int) ([]models.OutboxDLQ, error) {
	if limit <= 0 || limit > maxDLQPage {
		limit = maxDLQPage
	}
	rows := make([]models.OutboxDLQ, 0)
	err := r.db.WithContext(ctx).
		Where("aggregate_id = ?", aggregateID).
		Order("failed_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// DeleteFailedBefore prunes entries that failed before cutoff.
func (r *DLQRepository) DeleteFailedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	if tx == nil {
		return 0, errNoTx
	}
	res := tx.WithContext(ctx).Where("failed_at < ?", cutoff).Delete(&models.OutboxDLQ{})
	return res.RowsAffected, res.Error
}
