package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/sanctuarypay/tithe-backend/pkg/db/models"
	"github.com/sanctuarypay/tithe-backend/pkg/enums"
)

func openOutboxDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.Exec(`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload BLOB NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`).Error)
	require.NoError(t, conn.Exec(`CREATE TABLE outbox_dlq (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL UNIQUE,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload_json BLOB NOT NULL,
		error_reason TEXT NOT NULL,
		error_message TEXT,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		failed_at DATETIME
	)`).Error)
	return conn
}

func TestEmitWritesEnvelope(t *testing.T) {
	conn := openOutboxDB(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	intentID := uuid.New()
	memberID := uuid.New()
	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventIntentCompleted,
			AggregateType: enums.AggregatePaymentIntent,
			AggregateID:   intentID,
			Actor:         &ActorRef{MemberID: &memberID, Source: enums.TransitionSourceCallback},
			Data:          map[string]any{"intent_id": intentID.String()},
		})
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	row := rows[0]
	assert.Equal(t, enums.EventIntentCompleted, row.EventType)
	assert.Equal(t, intentID, row.AggregateID)
	assert.True(t, row.CreatedAt.Equal(fixed))

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(row.Payload, &envelope))
	assert.Equal(t, CurrentVersion, envelope.Version)
	assert.NotEmpty(t, envelope.EventID)
	require.NotNil(t, envelope.Actor)
	assert.Equal(t, enums.TransitionSourceCallback, envelope.Actor.Source)
	assert.JSONEq(t, fmt.Sprintf(`{"intent_id":%q}`, intentID.String()), string(envelope.Data))
}

func TestEmitRollsBackWithTransaction(t *testing.T) {
	conn := openOutboxDB(t)
	svc := NewService(NewRepository(conn), nil)

	boom := errors.New("state change failed")
	err := conn.Transaction(func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventIntentFailed,
			AggregateType: enums.AggregatePaymentIntent,
			AggregateID:   uuid.New(),
			Data:          map[string]string{"reason": "declined"},
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestEmitValidation(t *testing.T) {
	conn := openOutboxDB(t)
	svc := NewService(NewRepository(conn), nil)

	assert.Error(t, svc.Emit(context.Background(), nil, DomainEvent{}))
	assert.Error(t, svc.Emit(context.Background(), conn, DomainEvent{
		EventType:     enums.OutboxEventType("nope"),
		AggregateType: enums.AggregatePaymentIntent,
		AggregateID:   uuid.New(),
	}))
	assert.Error(t, svc.Emit(context.Background(), conn, DomainEvent{
		EventType:     enums.EventIntentOpened,
		AggregateType: enums.AggregatePaymentIntent,
	}))
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	conn := openOutboxDB(t)
	repo := NewRepository(conn)
	base := time.Now().UTC().Add(-time.Hour)

	ids := make([]uuid.UUID, 3)
	for i := range ids {
		ids[i] = uuid.New()
		require.NoError(t, repo.Insert(conn, models.OutboxEvent{
			ID:            ids[i],
			EventType:     enums.EventIntentOpened,
			AggregateType: enums.AggregatePaymentIntent,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{}`),
			CreatedAt:     base.Add(time.Duration(i) * time.Minute),
		}))
	}

	rows, err := repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, ids[0], rows[0].ID)

	require.NoError(t, repo.MarkPublishedTx(conn, ids[0]))
	require.NoError(t, repo.MarkFailedTx(conn, ids[1], errors.New("pubsub unavailable")))
	require.NoError(t, repo.MarkTerminalTx(conn, ids[2], errors.New("bad payload"), 3))

	rows, err = repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, ids[1], rows[0].ID)
	assert.Equal(t, 1, rows[0].AttemptCount)
	require.NotNil(t, rows[0].LastError)
	assert.Equal(t, "pubsub unavailable", *rows[0].LastError)

	pending, err := repo.CountPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), pending)
}

func TestRepositoryMarkFailedKeepsLastErrorValidUTF8(t *testing.T) {
	conn := openOutboxDB(t)
	repo := NewRepository(conn)
	id := uuid.New()
	require.NoError(t, repo.Insert(conn, models.OutboxEvent{
		ID:            id,
		EventType:     enums.EventIntentFailed,
		AggregateType: enums.AggregatePaymentIntent,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		CreatedAt:     time.Now().UTC(),
	}))

	// "é" is two bytes, so byte 1024 lands inside a rune.
	long := "x" + strings.Repeat("é", maxDLQErrorLen)
	require.NoError(t, repo.MarkFailedTx(conn, id, errors.New(long)))

	var row models.OutboxEvent
	require.NoError(t, conn.Where("id = ?", id).First(&row).Error)
	require.NotNil(t, row.LastError)
	assert.True(t, utf8.ValidString(*row.LastError))
	assert.Len(t, *row.LastError, maxDLQErrorLen-1)
	assert.Equal(t, "", errorText(nil))
}

func TestRepositoryDeletePublishedBefore(t *testing.T) {
	conn := openOutboxDB(t)
	repo := NewRepository(conn)
	old := time.Now().UTC().Add(-48 * time.Hour)
	recent := time.Now().UTC().Add(-time.Minute)

	insert := func(publishedAt *time.Time) {
		require.NoError(t, conn.Create(&models.OutboxEvent{
			ID:            uuid.New(),
			EventType:     enums.EventIntentCompleted,
			AggregateType: enums.AggregatePaymentIntent,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{}`),
			CreatedAt:     old,
			PublishedAt:   publishedAt,
		}).Error)
	}
	insert(&old)
	insert(&recent)
	insert(nil)

	deleted, err := repo.DeletePublishedBefore(context.Background(), time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestDLQRepositoryTruncatesAndFinds(t *testing.T) {
	conn := openOutboxDB(t)
	dlq := NewDLQRepository(conn)
	eventID := uuid.New()
	long := strings.Repeat("x", maxDLQErrorLen+50)

	require.NoError(t, dlq.InsertTx(conn, models.OutboxDLQ{
		EventID:       eventID,
		EventType:     enums.EventIntentExpired,
		AggregateType: enums.AggregatePaymentIntent,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
		ErrorMessage:  &long,
		AttemptCount:  10,
		FailedAt:      time.Now().UTC(),
	}))

	found, err := dlq.FindByEventID(context.Background(), eventID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Len(t, *found.ErrorMessage, maxDLQErrorLen)
	assert.Equal(t, enums.OutboxDLQReasonMaxAttempts, found.ErrorReason)

	missing, err := dlq.FindByEventID(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)

	rows, err := dlq.List(context.Background(), DLQFilter{})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestDLQRepositoryListFiltersByIntent(t *testing.T) {
	conn := openOutboxDB(t)
	dlq := NewDLQRepository(conn)
	intentID := uuid.New()

	for _, aggregate := range []uuid.UUID{intentID, uuid.New(), intentID} {
		require.NoError(t, dlq.InsertTx(conn, models.OutboxDLQ{
			EventID:       uuid.New(),
			EventType:     enums.EventIntentFailed,
			AggregateType: enums.AggregatePaymentIntent,
			AggregateID:   aggregate,
			Payload:       json.RawMessage(`{}`),
			ErrorReason:   enums.OutboxDLQReasonNonRetryable,
			FailedAt:      time.Now().UTC(),
		}))
	}

	rows, err := dlq.List(context.Background(), DLQFilter{AggregateID: &intentID})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = dlq.List(context.Background(), DLQFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestDLQRepositoryRequeueResetsOutboxRow(t *testing.T) {
	conn := openOutboxDB(t)
	dlq := NewDLQRepository(conn)
	lastErr := "publish timeout"
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventIntentCompleted,
		AggregateType: enums.AggregatePaymentIntent,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		CreatedAt:     time.Now().UTC(),
		AttemptCount:  10,
		LastError:     &lastErr,
	}
	require.NoError(t, conn.Create(&event).Error)
	require.NoError(t, dlq.InsertTx(conn, models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
		AttemptCount:  10,
		FailedAt:      time.Now().UTC(),
	}))

	require.NoError(t, dlq.Requeue(context.Background(), event.ID))

	var reloaded models.OutboxEvent
	require.NoError(t, conn.First(&reloaded, "id = ?", event.ID).Error)
	assert.Equal(t, 0, reloaded.AttemptCount)
	assert.Nil(t, reloaded.LastError)

	parked, err := dlq.FindByEventID(context.Background(), event.ID)
	require.NoError(t, err)
	assert.Nil(t, parked)

	err = dlq.Requeue(context.Background(), event.ID)
	assert.True(t, errors.Is(err, ErrNotParked))
}
