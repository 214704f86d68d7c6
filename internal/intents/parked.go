package intents

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sanctuarypay/tithe-backend/internal/repo"
	"github.com/sanctuarypay/tithe-backend/pkg/db/models"
	"github.com/sanctuarypay/tithe-backend/pkg/enums"
)

// CallbackParking holds callbacks that arrived before their intent had a
// provider reference.
type CallbackParking interface {
	Park(ctx context.Context, provider enums.Provider, reference string, body []byte) (bool, error)
	ListParked(ctx context.Context, limit int) ([]models.ParkedCallback, error)
	MarkAttempt(ctx context.Context, id uuid.UUID) error
	Unpark(ctx context.Context, id uuid.UUID) error
}

type ParkedCallbackRepository struct {
	repo.Base
}

func NewParkedCallbackRepository(conn *gorm.DB, queryTimeout time.Duration) *ParkedCallbackRepository {
	return &ParkedCallbackRepository{Base: repo.NewBase(conn, queryTimeout)}
}

// WithClock overrides the timestamp source.
func (r *ParkedCallbackRepository) WithClock(now func() time.Time) *ParkedCallbackRepository {
	return &ParkedCallbackRepository{Base: r.Base.WithClock(now)}
}

// Park stores body once per provider. parked is false when the same body was
// already waiting.
func (r *ParkedCallbackRepository) Park(ctx context.Context, provider enums.Provider, reference string, body []byte) (bool, error) {
	sum := sha256.Sum256(body)
	row := models.ParkedCallback{
		ID:                uuid.New(),
		Provider:          provider,
		ProviderReference: reference,
		BodySHA256:        hex.EncodeToString(sum[:]),
		Body:              append([]byte(nil), body...),
		CreatedAt:         r.Now(),
	}

	ctx, cancel := r.Bound(ctx)
	defer cancel()

	res := r.DB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}, {Name: "body_sha256"}},
		DoNothing: true,
	}).Create(&row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListParked returns the oldest parked callbacks first.
func (r *ParkedCallbackRepository) ListParked(ctx context.Context, limit int) ([]models.ParkedCallback, error) {
	if limit <= 0 {
		limit = 100
	}
	ctx, cancel := r.Bound(ctx)
	defer cancel()

	var rows []models.ParkedCallback
	err := r.DB(ctx).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ParkedCallbackRepository) MarkAttempt(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := r.Bound(ctx)
	defer cancel()

	return r.DB(ctx).Model(&models.ParkedCallback{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"attempts":        gorm.Expr("attempts + 1"),
			"last_attempt_at": r.Now(),
		}).Error
}

func (r *ParkedCallbackRepository) Unpark(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := r.Bound(ctx)
	defer cancel()

	return r.DB(ctx).Where("id = ?", id).Delete(&models.ParkedCallback{}).Error
}
