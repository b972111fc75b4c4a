// Package orders answers the one question the support desk asks of the
// order system: does this order belong to this customer.
package orders

import (
	"context"
	"strings"

	"github.com/angelmondragon/supportdesk-backend/internal/repo"
	"github.com/angelmondragon/supportdesk-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/supportdesk-backend/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Lookup verifies order ownership.
type Lookup interface {
	// OwnedBy returns NOT_FOUND when the order does not exist or belongs to
	// someone else; the two cases are indistinguishable to the caller.
	OwnedBy(ctx context.Context, orderID string, userID uuid.UUID) error
}

type repository struct {
	repo.Base
}

// NewRepository builds an order lookup over the read-only orders table.
func NewRepository(db *gorm.DB) Lookup {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) OwnedBy(ctx context.Context, orderID string, userID uuid.UUID) error {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	var order models.CustomerOrder
	err := r.DB(ctx).
		Where("order_id = ? AND user_id = ?", orderID, userID).
		Take(&order).Error
	return repo.MapError(err, "order")
}
