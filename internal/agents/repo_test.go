package agents

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/supportdesk-backend/pkg/db"
	"github.com/angelmondragon/supportdesk-backend/pkg/db/dbtest"
	"github.com/angelmondragon/supportdesk-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/supportdesk-backend/pkg/errors"
)

func TestMarkOnlineUpsertsAndOffline(t *testing.T) {
	client := dbtest.Open(t)
	r := NewRepository(client.DB())
	ctx := context.Background()
	id := uuid.New()
	now := time.Now().UTC()

	agent, err := r.MarkOnline(ctx, id, "Ana", "conn-1", now)
	require.NoError(t, err)
	assert.True(t, agent.IsOnline)
	require.NotNil(t, agent.ConnectionID)
	assert.Equal(t, "conn-1", *agent.ConnectionID)
	assert.Equal(t, "Ana", agent.DisplayName)

	agent, err = r.MarkOnline(ctx, id, "", "conn-2", now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "conn-2", *agent.ConnectionID, "last write wins")
	assert.Equal(t, "Ana", agent.DisplayName, "empty name keeps the stored one")

	require.NoError(t, r.MarkOffline(ctx, id))
	agent, err = r.Find(ctx, id)
	require.NoError(t, err)
	assert.False(t, agent.IsOnline)
	assert.Nil(t, agent.ConnectionID)
}

func TestFindMissingAgent(t *testing.T) {
	client := dbtest.Open(t)
	_, err := NewRepository(client.DB()).Find(context.Background(), uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestLockOnlineReportsLoadInStableOrder(t *testing.T) {
	client := dbtest.Open(t)
	r := NewRepository(client.DB())
	ctx := context.Background()
	base := time.Now().UTC()

	first := seedAgent(t, client, base, true)
	second := seedAgent(t, client, base.Add(time.Second), true)
	seedAgent(t, client, base.Add(2*time.Second), false)

	require.NoError(t, r.AddActive(ctx, &models.AgentActiveComplaint{AgentID: first, ComplaintID: uuid.New(), RequiresLiveChat: true, AssignedAt: base}))
	require.NoError(t, r.AddActive(ctx, &models.AgentActiveComplaint{AgentID: first, ComplaintID: uuid.New(), AssignedAt: base}))

	loads, err := r.LockOnline(ctx)
	require.NoError(t, err)
	require.Len(t, loads, 2)
	assert.Equal(t, first, loads[0].Agent.ID)
	assert.Equal(t, 2, loads[0].Active)
	assert.Equal(t, 1, loads[0].LiveChat)
	assert.Equal(t, second, loads[1].Agent.ID)
	assert.Zero(t, loads[1].Active)

	all, err := r.ListWithLoad(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestActiveSetBookkeeping(t *testing.T) {
	client := dbtest.Open(t)
	r := NewRepository(client.DB())
	ctx := context.Background()
	agent := seedAgent(t, client, time.Now().UTC(), true)
	live := uuid.New()
	other := uuid.New()
	now := time.Now().UTC()

	require.NoError(t, r.AddActive(ctx, &models.AgentActiveComplaint{AgentID: agent, ComplaintID: live, RequiresLiveChat: true, AssignedAt: now}))
	require.NoError(t, r.AddActive(ctx, &models.AgentActiveComplaint{AgentID: agent, ComplaintID: other, AssignedAt: now.Add(time.Second)}))

	err := r.AddActive(ctx, &models.AgentActiveComplaint{AgentID: agent, ComplaintID: uuid.New(), RequiresLiveChat: true, AssignedAt: now})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "second live chat must violate the partial unique index, got %v", err)

	err = r.AddActive(ctx, &models.AgentActiveComplaint{AgentID: uuid.New(), ComplaintID: other, AssignedAt: now})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "a complaint can only be bound once, got %v", err)

	hasLive, err := r.HasLiveChat(ctx, agent)
	require.NoError(t, err)
	assert.True(t, hasLive)

	ids, err := r.ActiveComplaintIDs(ctx, agent)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{live, other}, ids)

	freed, ok, err := r.RemoveActive(ctx, live)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, agent, freed)

	_, ok, err = r.RemoveActive(ctx, live)
	require.NoError(t, err)
	assert.False(t, ok)

	hasLive, err = r.HasLiveChat(ctx, agent)
	require.NoError(t, err)
	assert.False(t, hasLive)
}

func seedAgent(t *testing.T, client *db.Client, createdAt time.Time, online bool) uuid.UUID {
	t.Helper()
	agent := models.SupportAgent{ID: uuid.New(), IsOnline: online, CreatedAt: createdAt, UpdatedAt: createdAt}
	require.NoError(t, client.DB().Create(&agent).Error)
	return agent.ID
}
