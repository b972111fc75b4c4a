// Package complaints owns the complaint lifecycle: intake, permissions and
// terminal transitions.
package complaints

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/supportdesk-backend/internal/repo"
	"github.com/angelmondragon/supportdesk-backend/pkg/db/models"
	"github.com/angelmondragon/supportdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/supportdesk-backend/pkg/errors"
	"github.com/angelmondragon/supportdesk-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists complaints.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, complaint *models.Complaint) error
	Find(ctx context.Context, id uuid.UUID) (*models.Complaint, error)
	// FindForUpdate locks the row for the rest of the transaction where the
	// driver supports it.
	FindForUpdate(ctx context.Context, id uuid.UUID) (*models.Complaint, error)
	// Bind moves a pending complaint to assigned. It fails with STATE_CONFLICT
	// when the row is no longer pending.
	Bind(ctx context.Context, id, agentID uuid.UUID, at time.Time) error
	// MarkInProgress flips assigned to in-progress and reports whether it did.
	MarkInProgress(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	UpdateTerminal(ctx context.Context, id uuid.UUID, target enums.ComplaintStatus, at time.Time) error
	ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (pagination.Page[models.Complaint], error)
	// ListActive lists assigned and in-progress complaints, optionally for a
	// single agent, most recently updated first.
	ListActive(ctx context.Context, agentID *uuid.UUID, params pagination.Params) (pagination.Page[models.Complaint], error)
	ListAll(ctx context.Context, status *enums.ComplaintStatus, params pagination.Params) (pagination.Page[models.Complaint], error)
	ListPendingOlderThan(ctx context.Context, cutoff time.Time, liveChat bool, limit int) ([]models.Complaint, error)
}

type repository struct {
	repo.Base
	lockRows bool
}

// NewRepository returns a complaint repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{
		Base:     repo.NewBase(db),
		lockRows: db != nil && db.Dialector != nil && db.Dialector.Name() != "sqlite",
	}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: r.Tx(tx), lockRows: r.lockRows}
}

func (r *repository) Create(ctx context.Context, complaint *models.Complaint) error {
	if complaint.Status == "" {
		complaint.Status = enums.ComplaintStatusPending
	}
	return repo.MapError(r.DB(ctx).Create(complaint).Error, "complaint")
}

func (r *repository) Find(ctx context.Context, id uuid.UUID) (*models.Complaint, error) {
	var complaint models.Complaint
	if err := r.DB(ctx).Where("id = ?", id).Take(&complaint).Error; err != nil {
		return nil, repo.MapError(err, "complaint")
	}
	return &complaint, nil
}

func (r *repository) FindForUpdate(ctx context.Context, id uuid.UUID) (*models.Complaint, error) {
	q := r.DB(ctx).Where("id = ?", id)
	if r.lockRows {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var complaint models.Complaint
	if err := q.Take(&complaint).Error; err != nil {
		return nil, repo.MapError(err, "complaint")
	}
	return &complaint, nil
}

func (r *repository) Bind(ctx context.Context, id, agentID uuid.UUID, at time.Time) error {
	res := r.DB(ctx).Model(&models.Complaint{}).
		Where("id = ? AND status = ?", id, enums.ComplaintStatusPending).
		Updates(map[string]any{
			"status":      enums.ComplaintStatusAssigned,
			"assigned_to": agentID,
			"updated_at":  at.UTC(),
		})
	if res.Error != nil {
		return repo.MapError(res.Error, "complaint")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "complaint is no longer pending")
	}
	return nil
}

func (r *repository) MarkInProgress(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.DB(ctx).Model(&models.Complaint{}).
		Where("id = ? AND status = ?", id, enums.ComplaintStatusAssigned).
		Updates(map[string]any{
			"status":     enums.ComplaintStatusInProgress,
			"updated_at": at.UTC(),
		})
	if res.Error != nil {
		return false, repo.MapError(res.Error, "complaint")
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) UpdateTerminal(ctx context.Context, id uuid.UUID, target enums.ComplaintStatus, at time.Time) error {
	at = at.UTC()
	updates := map[string]any{
		"status":      target,
		"assigned_to": nil,
		"updated_at":  at,
	}
	switch target {
	case enums.ComplaintStatusResolved:
		updates["resolved_at"] = at
	case enums.ComplaintStatusClosed:
		updates["closed_at"] = at
	default:
		return pkgerrors.New(pkgerrors.CodeInternal, "terminal status expected")
	}
	err := r.DB(ctx).Model(&models.Complaint{}).Where("id = ?", id).Updates(updates).Error
	return repo.MapError(err, "complaint")
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (pagination.Page[models.Complaint], error) {
	q := r.DB(ctx).Where("user_id = ?", userID)
	return r.page(q, "created_at", params, createdKey)
}

func (r *repository) ListActive(ctx context.Context, agentID *uuid.UUID, params pagination.Params) (pagination.Page[models.Complaint], error) {
	q := r.DB(ctx).Where("status IN ?", []enums.ComplaintStatus{enums.ComplaintStatusAssigned, enums.ComplaintStatusInProgress})
	if agentID != nil {
		q = q.Where("assigned_to = ?", *agentID)
	}
	return r.page(q, "updated_at", params, updatedKey)
}

func (r *repository) ListAll(ctx context.Context, status *enums.ComplaintStatus, params pagination.Params) (pagination.Page[models.Complaint], error) {
	q := r.DB(ctx).Model(&models.Complaint{})
	if status != nil {
		q = q.Where("status = ?", *status)
	}
	return r.page(q, "created_at", params, createdKey)
}

func (r *repository) ListPendingOlderThan(ctx context.Context, cutoff time.Time, liveChat bool, limit int) ([]models.Complaint, error) {
	var rows []models.Complaint
	err := r.DB(ctx).
		Where("status = ? AND requires_live_chat = ? AND created_at <= ?", enums.ComplaintStatusPending, liveChat, cutoff.UTC()).
		Order("created_at ASC, id ASC").
		Limit(pagination.NormalizeLimit(limit)).
		Find(&rows).Error
	if err != nil {
		return nil, repo.MapError(err, "complaint")
	}
	return rows, nil
}

func createdKey(c models.Complaint) pagination.Cursor {
	return pagination.Cursor{At: c.CreatedAt, ID: c.ID}
}

func updatedKey(c models.Complaint) pagination.Cursor {
	return pagination.Cursor{At: c.UpdatedAt, ID: c.ID}
}

// page runs a keyset listing and maps a bad cursor to a validation error.
func (r *repository) page(q *gorm.DB, column string, params pagination.Params, key func(models.Complaint) pagination.Cursor) (pagination.Page[models.Complaint], error) {
	page, err := pagination.Keyset(q, column, params, key)
	switch {
	case errors.Is(err, pagination.ErrInvalidCursor):
		return page, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	case err != nil:
		return page, repo.MapError(err, "complaint")
	}
	return page, nil
}
