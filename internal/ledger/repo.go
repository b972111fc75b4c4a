// Package ledger keeps the append-only record of agent assignments used for
// performance statistics.
package ledger

import (
	"context"
	"time"

	"github.com/angelmondragon/supportdesk-backend/internal/repo"
	"github.com/angelmondragon/supportdesk-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository manages persistence for service responses. Rows are never
// updated or deleted.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Record(ctx context.Context, row *models.ServiceResponse) error
	Count(ctx context.Context, serviceID uuid.UUID, since *time.Time) (int64, error)
	ListByComplaint(ctx context.Context, complaintID uuid.UUID) ([]models.ServiceResponse, error)
}

type repository struct {
	repo.Base
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: r.Tx(tx)}
}

func (r *repository) Record(ctx context.Context, row *models.ServiceResponse) error {
	if row.RecordedAt.IsZero() {
		row.RecordedAt = time.Now().UTC()
	}
	return repo.MapError(r.DB(ctx).Create(row).Error, "service response")
}

func (r *repository) Count(ctx context.Context, serviceID uuid.UUID, since *time.Time) (int64, error) {
	q := r.DB(ctx).Model(&models.ServiceResponse{}).Where("service_id = ?", serviceID)
	if since != nil {
		q = q.Where("recorded_at >= ?", since.UTC())
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return 0, repo.MapError(err, "service response")
	}
	return count, nil
}

func (r *repository) ListByComplaint(ctx context.Context, complaintID uuid.UUID) ([]models.ServiceResponse, error) {
	var rows []models.ServiceResponse
	err := r.DB(ctx).
		Where("complaint_id = ?", complaintID).
		Order("recorded_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, repo.MapError(err, "service response")
	}
	return rows, nil
}
