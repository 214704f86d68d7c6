package members

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sanctuarypay/tithe-backend/internal/repo"
	"github.com/sanctuarypay/tithe-backend/pkg/db/models"
	"github.com/sanctuarypay/tithe-backend/pkg/enums"
	"github.com/sanctuarypay/tithe-backend/pkg/outbox"
	"github.com/sanctuarypay/tithe-backend/pkg/outbox/payloads"
)

var ErrNotFound = errors.New("member not found")

// Repository persists member profiles.
type Repository struct {
	repo.Base
	emitter outbox.Emitter
}

func NewRepository(db *gorm.DB, emitter outbox.Emitter, queryTimeout time.Duration) *Repository {
	return &Repository{Base: repo.NewBase(db, queryTimeout), emitter: emitter}
}

// FindBySubject loads the profile for an identity-provider subject.
func (r *Repository) FindBySubject(ctx context.Context, subject string) (*models.Member, error) {
	ctx, cancel := r.Bound(ctx)
	defer cancel()

	var member models.Member
	err := r.DB(ctx).Where("external_subject = ?", subject).First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// CreateIfAbsent inserts member unless the subject already has a profile, and
// returns whichever row won. created reports whether this call inserted it.
func (r *Repository) CreateIfAbsent(ctx context.Context, member models.Member) (*models.Member, bool, error) {
	if member.ID == uuid.Nil {
		member.ID = uuid.New()
	}
	if member.CreatedAt.IsZero() {
		member.CreatedAt = r.Now()
	}

	ctx, cancel := r.Bound(ctx)
	defer cancel()

	created := false
	err := r.Transaction(ctx, func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_subject"}},
			DoNothing: true,
		}).Create(&member)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		created = true
		if r.emitter == nil {
			return nil
		}
		return r.emitter.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventMemberRegistered,
			AggregateType: enums.AggregateMember,
			AggregateID:   member.ID,
			Data: payloads.MemberRegisteredEvent{
				MemberID:        member.ID,
				ExternalSubject: member.ExternalSubject,
			},
			OccurredAt: member.CreatedAt,
		})
	})
	if err != nil {
		return nil, false, err
	}
	if created {
		return &member, true, nil
	}

	existing, err := r.FindBySubject(ctx, member.ExternalSubject)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}
