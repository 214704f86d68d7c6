package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/sanctuarypay/tithe-backend/api/responses"
	pkgAuth "github.com/sanctuarypay/tithe-backend/pkg/auth"
	"github.com/sanctuarypay/tithe-backend/pkg/config"
	"github.com/sanctuarypay/tithe-backend/pkg/db/models"
	pkgerrors "github.com/sanctuarypay/tithe-backend/pkg/errors"
	"github.com/sanctuarypay/tithe-backend/pkg/logger"
)

// MemberResolver maps a verified token to the local member profile.
type MemberResolver interface {
	Ensure(ctx context.Context, subject string, claims *pkgAuth.MemberClaims) (*models.Member, error)
}

// Auth validates a member bearer token and seeds the request context with
// the member's local profile.
func Auth(cfg config.JWTConfig, members MemberResolver, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseMemberToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			if members == nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "member resolver unavailable"))
				return
			}
			member, err := members.Ensure(r.Context(), claims.Subject, claims)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			ctx := WithMember(r.Context(), member.ID, claims.Subject)
			if logg != nil {
				ctx = logg.WithMemberID(ctx, member.ID.String())
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(raw), "bearer ") {
		return strings.TrimSpace(raw[7:])
	}
	return raw
}
