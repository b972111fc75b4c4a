// Package agents stores agent presence records and each agent's active set.
package agents

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/supportdesk-backend/internal/repo"
	pkgdb "github.com/angelmondragon/supportdesk-backend/pkg/db"
	"github.com/angelmondragon/supportdesk-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/supportdesk-backend/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Load is an agent together with its current workload.
type Load struct {
	Agent    models.SupportAgent
	Active   int
	LiveChat int
}

// Repository persists agents and agent_active_complaints rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	MarkOnline(ctx context.Context, agentID uuid.UUID, displayName, connectionID string, at time.Time) (*models.SupportAgent, error)
	MarkOffline(ctx context.Context, agentID uuid.UUID) error
	Touch(ctx context.Context, agentID uuid.UUID, at time.Time) error
	Find(ctx context.Context, agentID uuid.UUID) (*models.SupportAgent, error)
	// LockOnline returns online agents with their load, locking the agent
	// rows for the rest of the transaction where the driver supports it.
	LockOnline(ctx context.Context) ([]Load, error)
	ListWithLoad(ctx context.Context) ([]Load, error)
	AddActive(ctx context.Context, row *models.AgentActiveComplaint) error
	// RemoveActive deletes the binding of complaintID and reports the agent
	// that held it.
	RemoveActive(ctx context.Context, complaintID uuid.UUID) (uuid.UUID, bool, error)
	HasLiveChat(ctx context.Context, agentID uuid.UUID) (bool, error)
	ActiveComplaintIDs(ctx context.Context, agentID uuid.UUID) ([]uuid.UUID, error)
}

type repository struct {
	repo.Base
	lockRows bool
}

// NewRepository builds an agents repository bound to the provided DB.
// Row locks are skipped on sqlite, which has no SELECT ... FOR UPDATE.
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

func (r *repository) MarkOnline(ctx context.Context, agentID uuid.UUID, displayName, connectionID string, at time.Time) (*models.SupportAgent, error) {
	agent := models.SupportAgent{
		ID:           agentID,
		DisplayName:  displayName,
		IsOnline:     true,
		LastActiveAt: &at,
	}
	if connectionID != "" {
		agent.ConnectionID = &connectionID
	}
	updates := []string{"is_online", "connection_id", "last_active_at", "updated_at"}
	if displayName != "" {
		updates = append(updates, "display_name")
	}
	err := r.DB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(updates),
	}).Create(&agent).Error
	if err != nil {
		return nil, repo.MapError(err, "agent")
	}
	return r.Find(ctx, agentID)
}

func (r *repository) MarkOffline(ctx context.Context, agentID uuid.UUID) error {
	err := r.DB(ctx).Model(&models.SupportAgent{}).
		Where("id = ?", agentID).
		Updates(map[string]any{
			"is_online":     false,
			"connection_id": nil,
		}).Error
	return repo.MapError(err, "agent")
}

func (r *repository) Touch(ctx context.Context, agentID uuid.UUID, at time.Time) error {
	err := r.DB(ctx).Model(&models.SupportAgent{}).
		Where("id = ?", agentID).
		Update("last_active_at", at).Error
	return repo.MapError(err, "agent")
}

func (r *repository) Find(ctx context.Context, agentID uuid.UUID) (*models.SupportAgent, error) {
	var agent models.SupportAgent
	if err := r.DB(ctx).Where("id = ?", agentID).Take(&agent).Error; err != nil {
		return nil, repo.MapError(err, "agent")
	}
	return &agent, nil
}

func (r *repository) LockOnline(ctx context.Context) ([]Load, error) {
	q := r.DB(ctx).Where("is_online = ?", true).Order("created_at ASC, id ASC")
	if r.lockRows {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var agents []models.SupportAgent
	if err := q.Find(&agents).Error; err != nil {
		return nil, repo.MapError(err, "agent")
	}
	return r.attachLoad(ctx, agents)
}

func (r *repository) ListWithLoad(ctx context.Context) ([]Load, error) {
	var agents []models.SupportAgent
	if err := r.DB(ctx).Order("created_at ASC, id ASC").Find(&agents).Error; err != nil {
		return nil, repo.MapError(err, "agent")
	}
	return r.attachLoad(ctx, agents)
}

type loadRow struct {
	AgentID  uuid.UUID
	Active   int
	LiveChat int
}

func (r *repository) attachLoad(ctx context.Context, agents []models.SupportAgent) ([]Load, error) {
	if len(agents) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, len(agents))
	for i, a := range agents {
		ids[i] = a.ID
	}
	var rows []loadRow
	err := r.DB(ctx).Model(&models.AgentActiveComplaint{}).
		Select("agent_id, COUNT(*) AS active, SUM(CASE WHEN requires_live_chat THEN 1 ELSE 0 END) AS live_chat").
		Where("agent_id IN ?", ids).
		Group("agent_id").
		Scan(&rows).Error
	if err != nil {
		return nil, repo.MapError(err, "agent load")
	}
	byAgent := make(map[uuid.UUID]loadRow, len(rows))
	for _, row := range rows {
		byAgent[row.AgentID] = row
	}
	out := make([]Load, len(agents))
	for i, a := range agents {
		row := byAgent[a.ID]
		out[i] = Load{Agent: a, Active: row.Active, LiveChat: row.LiveChat}
	}
	return out, nil
}

// AddActive binds a complaint to an agent. Both unique indexes (one binding
// per complaint, one live chat per agent) surface as STATE_CONFLICT so a
// racing assignment backs off instead of failing the request.
func (r *repository) AddActive(ctx context.Context, row *models.AgentActiveComplaint) error {
	err := r.DB(ctx).Create(row).Error
	if pkgdb.IsUniqueViolation(err, "") {
		return pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "agent slot or complaint already bound")
	}
	return repo.MapError(err, "agent active complaint")
}

func (r *repository) RemoveActive(ctx context.Context, complaintID uuid.UUID) (uuid.UUID, bool, error) {
	var row models.AgentActiveComplaint
	err := r.DB(ctx).Where("complaint_id = ?", complaintID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, repo.MapError(err, "agent active complaint")
	}
	err = r.DB(ctx).
		Where("agent_id = ? AND complaint_id = ?", row.AgentID, complaintID).
		Delete(&models.AgentActiveComplaint{}).Error
	if err != nil {
		return uuid.Nil, false, repo.MapError(err, "agent active complaint")
	}
	return row.AgentID, true, nil
}

func (r *repository) HasLiveChat(ctx context.Context, agentID uuid.UUID) (bool, error) {
	var count int64
	err := r.DB(ctx).Model(&models.AgentActiveComplaint{}).
		Where("agent_id = ? AND requires_live_chat = ?", agentID, true).
		Count(&count).Error
	if err != nil {
		return false, repo.MapError(err, "agent active complaint")
	}
	return count > 0, nil
}

func (r *repository) ActiveComplaintIDs(ctx context.Context, agentID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.DB(ctx).Model(&models.AgentActiveComplaint{}).
		Where("agent_id = ?", agentID).
		Order("assigned_at ASC").
		Pluck("complaint_id", &ids).Error
	if err != nil {
		return nil, repo.MapError(err, "agent active complaint")
	}
	return ids, nil
}
