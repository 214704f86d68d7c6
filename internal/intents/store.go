package intents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/sanctuarypay/tithe-backend/internal/repo"
	"github.com/sanctuarypay/tithe-backend/pkg/db"
	"github.com/sanctuarypay/tithe-backend/pkg/db/models"
	"github.com/sanctuarypay/tithe-backend/pkg/enums"
	"github.com/sanctuarypay/tithe-backend/pkg/outbox"
	"github.com/sanctuarypay/tithe-backend/pkg/outbox/payloads"
	"github.com/sanctuarypay/tithe-backend/pkg/pagination"
)

const (
	providerReferenceIndex  = "ux_payment_intents_provider_reference"
	providerReferenceColumn = "payment_intents.provider_reference"
)

// Change carries the columns a transition may set alongside the new state.
type Change struct {
	Source            enums.TransitionSource
	Reason            string
	ProviderReference *string
	FailureCode       *enums.FailureCode
	FailureReason     *string
	SettlementReceipt *string
	FlagForReview     bool
	// Payload is stored on the history row, typically the normalized callback.
	Payload any
}

// Store is the single writer of payment intent state.
type Store interface {
	Create(ctx context.Context, intent *models.PaymentIntent) (uuid.UUID, error)
	Get(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error)
	FindByProviderReference(ctx context.Context, provider enums.Provider, reference string) (*models.PaymentIntent, error)
	Transition(ctx context.Context, id uuid.UUID, expected, next enums.IntentState, change Change) (*models.PaymentIntent, error)
	ListStale(ctx context.Context, state enums.IntentState, olderThan time.Time, limit int) ([]models.PaymentIntent, error)
	ListFlagged(ctx context.Context, params pagination.Params) (pagination.Page[models.PaymentIntent], error)
	History(ctx context.Context, id uuid.UUID) ([]models.IntentTransition, error)
}

type Repository struct {
	repo.Base
	emitter outbox.Emitter
}

// NewRepository builds the gorm-backed store. Every state change is written
// together with its history row and outbox event.
func NewRepository(conn *gorm.DB, emitter outbox.Emitter, queryTimeout time.Duration) *Repository {
	return &Repository{Base: repo.NewBase(conn, queryTimeout), emitter: emitter}
}

// WithTx scopes the repository to an outer transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Base.WithTx(tx), emitter: r.emitter}
}

// WithClock overrides the timestamp source.
func (r *Repository) WithClock(now func() time.Time) *Repository {
	return &Repository{Base: r.Base.WithClock(now), emitter: r.emitter}
}

func (r *Repository) Create(ctx context.Context, intent *models.PaymentIntent) (uuid.UUID, error) {
	if intent == nil {
		return uuid.Nil, fmt.Errorf("%w: nil intent", ErrInvalidIntent)
	}
	if intent.State == "" {
		intent.State = enums.IntentStateCreated
	}
	if intent.State != enums.IntentStateCreated {
		return uuid.Nil, fmt.Errorf("%w: new intents start in %s", ErrInvalidIntent, enums.IntentStateCreated)
	}
	if intent.AmountMinor <= 0 {
		return uuid.Nil, fmt.Errorf("%w: amount must be positive", ErrInvalidIntent)
	}
	if !intent.Provider.IsValid() {
		return uuid.Nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidIntent, intent.Provider)
	}
	if intent.ID == uuid.Nil {
		intent.ID = uuid.New()
	}
	now := r.Now()
	intent.CreatedAt = now
	intent.UpdatedAt = now

	ctx, cancel := r.Bound(ctx)
	defer cancel()

	err := r.Transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(intent).Error; err != nil {
			if isDuplicateReference(err) {
				return ErrDuplicateReference
			}
			return err
		}
		if err := r.appendHistory(tx, intent.ID, nil, enums.IntentStateCreated, Change{Source: enums.TransitionSourceEngine}, now); err != nil {
			return err
		}
		return r.emit(ctx, tx, *intent, nil, enums.TransitionSourceEngine)
	})
	if err != nil {
		return uuid.Nil, err
	}
	return intent.ID, nil
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error) {
	ctx, cancel := r.Bound(ctx)
	defer cancel()

	var intent models.PaymentIntent
	err := r.DB(ctx).Where("id = ?", id).First(&intent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

func (r *Repository) FindByProviderReference(ctx context.Context, provider enums.Provider, reference string) (*models.PaymentIntent, error) {
	if reference == "" {
		return nil, ErrNotFound
	}
	ctx, cancel := r.Bound(ctx)
	defer cancel()

	var intent models.PaymentIntent
	err := r.DB(ctx).
		Where("provider = ? AND provider_reference = ?", string(provider), reference).
		First(&intent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

// Transition moves id from expected to next. The UPDATE is guarded on the
// expected state so concurrent writers cannot both win.
func (r *Repository) Transition(ctx context.Context, id uuid.UUID, expected, next enums.IntentState, change Change) (*models.PaymentIntent, error) {
	if !expected.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, expected, next)
	}
	if next == enums.IntentStateFailed && (change.FailureReason == nil || *change.FailureReason == "") {
		return nil, fmt.Errorf("%w: failed intents need a failure reason", ErrInvalidIntent)
	}
	if next != enums.IntentStateFailed && (change.FailureReason != nil || change.FailureCode != nil) {
		return nil, fmt.Errorf("%w: failure fields only apply to %s", ErrInvalidIntent, enums.IntentStateFailed)
	}
	if next != enums.IntentStateCompleted && change.SettlementReceipt != nil {
		return nil, fmt.Errorf("%w: settlement receipt only applies to %s", ErrInvalidIntent, enums.IntentStateCompleted)
	}
	if change.Source == "" {
		change.Source = enums.TransitionSourceEngine
	}

	ctx, cancel := r.Bound(ctx)
	defer cancel()

	var updated models.PaymentIntent
	err := r.Transaction(ctx, func(tx *gorm.DB) error {
		now := r.Now()
		updates := map[string]any{
			"state":      string(next),
			"updated_at": now,
		}
		if change.ProviderReference != nil {
			updates["provider_reference"] = *change.ProviderReference
		}
		if change.FailureCode != nil {
			updates["failure_code"] = string(*change.FailureCode)
		}
		if change.FailureReason != nil {
			updates["failure_reason"] = *change.FailureReason
		}
		if change.SettlementReceipt != nil {
			updates["settlement_receipt"] = *change.SettlementReceipt
		}
		if change.FlagForReview {
			updates["flagged_for_review"] = true
		}

		res := tx.Model(&models.PaymentIntent{}).
			Where("id = ? AND state = ?", id, string(expected)).
			Updates(updates)
		if res.Error != nil {
			if isDuplicateReference(res.Error) {
				return ErrDuplicateReference
			}
			return res.Error
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.PaymentIntent{}).Where("id = ?", id).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return ErrNotFound
			}
			return ErrStateConflict
		}

		if err := tx.Where("id = ?", id).First(&updated).Error; err != nil {
			return err
		}
		from := expected
		if err := r.appendHistory(tx, id, &from, next, change, now); err != nil {
			return err
		}
		return r.emit(ctx, tx, updated, &from, change.Source)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// ListStale returns intents sitting in state since before olderThan, oldest first.
func (r *Repository) ListStale(ctx context.Context, state enums.IntentState, olderThan time.Time, limit int) ([]models.PaymentIntent, error) {
	if limit <= 0 {
		limit = pagination.MaxLimit
	}
	ctx, cancel := r.Bound(ctx)
	defer cancel()

	var rows []models.PaymentIntent
	err := r.DB(ctx).
		Where("state = ? AND updated_at < ?", string(state), olderThan.UTC()).
		Order("updated_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ListFlagged pages through intents held for manual reconciliation, newest first.
func (r *Repository) ListFlagged(ctx context.Context, params pagination.Params) (pagination.Page[models.PaymentIntent], error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return pagination.Page[models.PaymentIntent]{}, err
	}
	ctx, cancel := r.Bound(ctx)
	defer cancel()

	query := r.DB(ctx).Where("flagged_for_review = ?", true)
	if cursor != nil {
		query = query.Where("(updated_at < ?) OR (updated_at = ? AND id < ?)", cursor.At, cursor.At, cursor.ID.String())
	}

	var rows []models.PaymentIntent
	err = query.
		Order("updated_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error
	if err != nil {
		return pagination.Page[models.PaymentIntent]{}, err
	}
	return pagination.Trim(rows, params.Limit, func(intent models.PaymentIntent) pagination.Cursor {
		return pagination.Cursor{At: intent.UpdatedAt, ID: intent.ID}
	}), nil
}

// History returns the transition rows for id in the order they were written.
func (r *Repository) History(ctx context.Context, id uuid.UUID) ([]models.IntentTransition, error) {
	ctx, cancel := r.Bound(ctx)
	defer cancel()

	var rows []models.IntentTransition
	err := r.DB(ctx).
		Where("intent_id = ?", id).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Repository) appendHistory(tx *gorm.DB, id uuid.UUID, from *enums.IntentState, to enums.IntentState, change Change, at time.Time) error {
	row := models.IntentTransition{
		ID:        uuid.New(),
		IntentID:  id,
		FromState: from,
		ToState:   to,
		Source:    change.Source,
		CreatedAt: at,
	}
	if change.Reason != "" {
		reason := change.Reason
		row.Reason = &reason
	}
	if change.Payload != nil {
		raw, err := json.Marshal(change.Payload)
		if err != nil {
			return fmt.Errorf("encode transition payload: %w", err)
		}
		row.Payload = datatypes.JSON(raw)
	}
	return tx.Create(&row).Error
}

func (r *Repository) emit(ctx context.Context, tx *gorm.DB, intent models.PaymentIntent, previous *enums.IntentState, source enums.TransitionSource) error {
	if r.emitter == nil {
		return nil
	}
	eventType, ok := enums.EventForIntentState(intent.State)
	if !ok {
		return fmt.Errorf("no outbox event for state %s", intent.State)
	}
	return r.emitter.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregatePaymentIntent,
		AggregateID:   intent.ID,
		Actor:         &outbox.ActorRef{MemberID: intent.MemberID, Source: source},
		Data:          payloads.NewIntentEvent(intent, previous, source),
		OccurredAt:    intent.UpdatedAt,
	})
}

func isDuplicateReference(err error) bool {
	return db.IsUniqueViolation(err, providerReferenceIndex) || db.IsUniqueViolation(err, providerReferenceColumn)
}
