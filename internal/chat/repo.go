// Package chat carries the per-complaint conversation between a customer and
// support staff. Messages are encrypted at rest.
package chat

import (
	"context"

	"github.com/angelmondragon/supportdesk-backend/internal/repo"
	"github.com/angelmondragon/supportdesk-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository stores immutable chat messages.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, msg *models.ComplaintMessage) error
	ListByComplaint(ctx context.Context, complaintID uuid.UUID) ([]models.ComplaintMessage, error)
}

type repository struct {
	repo.Base
}

// NewRepository builds a message repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: r.Tx(tx)}
}

func (r *repository) Create(ctx context.Context, msg *models.ComplaintMessage) error {
	return repo.MapError(r.DB(ctx).Create(msg).Error, "message")
}

func (r *repository) ListByComplaint(ctx context.Context, complaintID uuid.UUID) ([]models.ComplaintMessage, error) {
	var rows []models.ComplaintMessage
	err := r.DB(ctx).
		Where("complaint_id = ?", complaintID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, repo.MapError(err, "message")
	}
	return rows, nil
}
