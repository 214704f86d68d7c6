package members

import (
	"context"
	"errors"
	"strings"

	"github.com/sanctuarypay/tithe-backend/pkg/auth"
	"github.com/sanctuarypay/tithe-backend/pkg/db/models"
	pkgerrors "github.com/sanctuarypay/tithe-backend/pkg/errors"
	"github.com/sanctuarypay/tithe-backend/pkg/logger"
)

type store interface {
	FindBySubject(ctx context.Context, subject string) (*models.Member, error)
	CreateIfAbsent(ctx context.Context, member models.Member) (*models.Member, bool, error)
}

// Service resolves authenticated subjects to local member profiles,
// creating the profile on first sight.
type Service struct {
	store store
	cache *ProfileCache
	logg  *logger.Logger
}

func NewService(store store, cache *ProfileCache, logg *logger.Logger) (*Service, error) {
	if store == nil {
		return nil, errors.New("member store required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	return &Service{store: store, cache: cache, logg: logg}, nil
}

// Ensure returns the profile for subject, creating it from claims when missing.
func (s *Service) Ensure(ctx context.Context, subject string, claims *auth.MemberClaims) (*models.Member, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "token subject missing")
	}
	if member, ok := s.cache.Get(subject); ok {
		return &member, nil
	}

	member, err := s.store.FindBySubject(ctx, subject)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		var created bool
		member, created, err = s.store.CreateIfAbsent(ctx, profileFromClaims(subject, claims))
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create member profile")
		}
		if created {
			s.logg.Info(s.logg.WithMemberID(ctx, member.ID.String()), "member profile created")
		}
	default:
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load member profile")
	}

	s.cache.Put(*member)
	return member, nil
}

func profileFromClaims(subject string, claims *auth.MemberClaims) models.Member {
	member := models.Member{ExternalSubject: subject}
	if claims == nil {
		return member
	}
	member.DisplayName = optional(claims.Name)
	member.Email = optional(strings.ToLower(claims.Email))
	member.Phone = optional(claims.Phone)
	return member
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
