package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/sanctuarypay/tithe-backend/api/responses"
	pkgerrors "github.com/sanctuarypay/tithe-backend/pkg/errors"
	"github.com/sanctuarypay/tithe-backend/pkg/logger"
	"github.com/sanctuarypay/tithe-backend/pkg/security"
)

const operatorKeyHeader = "X-Operator-Key"

// OperatorKey guards admin routes with a shared key checked against an
// argon2id hash. An empty hash disables the routes entirely.
func OperatorKey(keyHash string, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.TrimSpace(keyHash) == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "operator access disabled"))
				return
			}

			key := strings.TrimSpace(r.Header.Get(operatorKeyHeader))
			if key == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing operator key"))
				return
			}

			ok, err := security.VerifyAPIKey(key, keyHash)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify operator key"))
				return
			}
			if !ok {
				if logg != nil {
					logg.Warn(logg.WithField(r.Context(), "security_event", "operator_key_mismatch"), "rejected operator request")
				}
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid operator key"))
				return
			}

			ctx := context.WithValue(r.Context(), ctxOperator, true)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
