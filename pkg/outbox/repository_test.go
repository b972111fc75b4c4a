package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/supportdesk-backend/pkg/db/dbtest"
	"github.com/angelmondragon/supportdesk-backend/pkg/db/models"
	"github.com/angelmondragon/supportdesk-backend/pkg/enums"
)

func TestEmitWritesEnvelopeInsideTransaction(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	svc := NewService(repo, nil)
	ctx := context.Background()
	complaintID := uuid.New()
	actor := &ActorRef{UserID: uuid.New(), Role: string(enums.RoleCustomer)}

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return svc.Emit(ctx, tx, DomainEvent{
			EventType:     enums.EventComplaintCreated,
			AggregateType: enums.AggregateComplaint,
			AggregateID:   complaintID,
			Actor:         actor,
			Data:          map[string]string{"complaintId": complaintID.String()},
		})
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, client.DB().Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, complaintID, rows[0].AggregateID)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	assert.Equal(t, 1, envelope.Version)
	assert.Equal(t, rows[0].ID.String(), envelope.EventID, "envelope id doubles as the row id")
	require.NotNil(t, envelope.Actor)
	assert.Equal(t, actor.UserID, envelope.Actor.UserID)
	assert.JSONEq(t, `{"complaintId":"`+complaintID.String()+`"}`, string(envelope.Data))
}

func TestEmitRollsBackWithTransaction(t *testing.T) {
	client := dbtest.Open(t)
	svc := NewService(NewRepository(client.DB()), nil)
	ctx := context.Background()

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := svc.Emit(ctx, tx, DomainEvent{
			EventType:     enums.EventComplaintClosed,
			AggregateType: enums.AggregateComplaint,
			AggregateID:   uuid.New(),
			Data:          struct{}{},
		}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, client.DB().Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestEmitRequiresTransaction(t *testing.T) {
	svc := NewService(NewRepository(nil), nil)
	err := svc.Emit(context.Background(), nil, DomainEvent{EventType: enums.EventComplaintCreated})
	require.Error(t, err)
}

func TestEmitRejectsMissingAggregate(t *testing.T) {
	client := dbtest.Open(t)
	svc := NewService(NewRepository(client.DB()), nil)
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventComplaintCreated,
			AggregateType: enums.AggregateComplaint,
		})
	})
	require.Error(t, err)
}

func TestDecodeEnvelope(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"version":1,"eventId":"e1","data":{"a":1}}`))
	require.NoError(t, err)
	assert.Equal(t, "e1", env.EventID)

	for name, raw := range map[string]string{
		"future version": `{"version":2,"data":{}}`,
		"zero version":   `{"data":{}}`,
		"null data":      `{"version":1,"data":null}`,
		"missing data":   `{"version":1}`,
		"broken json":    `{"version":`,
	} {
		_, err := DecodeEnvelope([]byte(raw))
		assert.Error(t, err, name)
	}
}

func TestPublishBookkeeping(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	ctx := context.Background()
	db := client.DB()

	first := seedEvent(t, db, time.Now().UTC().Add(-time.Minute))
	second := seedEvent(t, db, time.Now().UTC())

	var fetched []models.OutboxEvent
	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		fetched, err = repo.ClaimBatch(tx, 10, 3)
		return err
	}))
	require.Len(t, fetched, 2)
	assert.Equal(t, first, fetched[0].ID)

	require.NoError(t, repo.MarkPublished(db, first))
	require.NoError(t, repo.RecordFailure(db, second, errors.New(strings.Repeat("x", 2000))))

	var failed models.OutboxEvent
	require.NoError(t, db.Where("id = ?", second).Take(&failed).Error)
	assert.Equal(t, 1, failed.AttemptCount)
	require.NotNil(t, failed.LastError)
	assert.Len(t, *failed.LastError, maxLastErrorLen)

	require.NoError(t, repo.Park(db, second, errors.New("gave up"), 3))
	fetched, err := repo.ClaimBatch(db, 10, 3)
	require.NoError(t, err)
	assert.Empty(t, fetched, "published and parked rows are not fetched again")

	pending, err := repo.CountPending(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, pending)
}

func TestPrune(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	db := client.DB()
	old := time.Now().UTC().Add(-40 * 24 * time.Hour)

	published := seedEvent(t, db, old)
	require.NoError(t, db.Model(&models.OutboxEvent{}).Where("id = ?", published).Update("published_at", old).Error)
	parked := seedEvent(t, db, old)
	require.NoError(t, repo.Park(db, parked, errors.New("bad"), 10))
	waiting := seedEvent(t, db, old)
	fresh := seedEvent(t, db, time.Now().UTC())
	require.NoError(t, repo.MarkPublished(db, fresh))

	deleted, err := repo.Prune(context.Background(), db, time.Now().UTC().Add(-30*24*time.Hour), 5)
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)

	var remaining []uuid.UUID
	require.NoError(t, db.Model(&models.OutboxEvent{}).Order("created_at").Pluck("id", &remaining).Error)
	assert.ElementsMatch(t, []uuid.UUID{waiting, fresh}, remaining)
}

func TestDLQRepository(t *testing.T) {
	client := dbtest.Open(t)
	dlq := NewDLQRepository(client.DB())
	ctx := context.Background()
	aggregate := uuid.New()
	now := time.Now().UTC()
	msg := strings.Repeat("e", 1500)

	insert := func(failedAt time.Time, reason enums.OutboxDLQErrorReason) {
		require.NoError(t, dlq.InsertTx(client.DB(), models.OutboxDLQ{
			EventID:       uuid.New(),
			EventType:     enums.EventComplaintAssigned,
			AggregateType: enums.AggregateComplaint,
			AggregateID:   aggregate,
			Payload:       json.RawMessage(`{}`),
			ErrorReason:   reason,
			ErrorMessage:  &msg,
			FailedAt:      failedAt,
		}))
	}
	insert(now.Add(-48*time.Hour), enums.OutboxDLQReasonMaxAttempts)
	insert(now, enums.OutboxDLQReasonNonRetryable)

	rows, err := dlq.ListForAggregate(ctx, aggregate, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, rows[0].ErrorReason, "newest first")
	assert.Len(t, *rows[0].ErrorMessage, maxLastErrorLen)

	other, err := dlq.ListForAggregate(ctx, uuid.New(), 10)
	require.NoError(t, err)
	assert.NotNil(t, other)
	assert.Empty(t, other)

	deleted, err := dlq.DeleteFailedBefore(ctx, client.DB(), now.Add(-time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	_, err = dlq.DeleteFailedBefore(ctx, nil, now)
	require.Error(t, err)
}

func seedEvent(t *testing.T, db *gorm.DB, createdAt time.Time) uuid.UUID {
	t.Helper()
	row := models.OutboxEvent{
		EventType:     enums.EventComplaintCreated,
		AggregateType: enums.AggregateComplaint,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1}`),
		CreatedAt:     createdAt,
	}
	require.NoError(t, db.Create(&row).Error)
	return row.ID
}

func TestClipKeepsRunesWhole(t *testing.T) {
	msg := strings.Repeat("é", maxLastErrorLen)
	got := clip(msg)
	assert.LessOrEqual(t, len(got), maxLastErrorLen)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "short", clip("short"))
}
