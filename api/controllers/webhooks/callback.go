package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/sanctuarypay/tithe-backend/api/responses"
	"github.com/sanctuarypay/tithe-backend/internal/reconciliation"
	"github.com/sanctuarypay/tithe-backend/pkg/enums"
	pkgerrors "github.com/sanctuarypay/tithe-backend/pkg/errors"
	"github.com/sanctuarypay/tithe-backend/pkg/logger"
)

const defaultMaxBodyBytes int64 = 1 << 20

// CallbackEngine authenticates and applies provider callbacks.
type CallbackEngine interface {
	Authenticate(ctx context.Context, provider enums.Provider, body []byte, signature string) error
	ApplyCallback(ctx context.Context, provider enums.Provider, body []byte, signature string) (reconciliation.Result, error)
}

// DeliveryGuard drops byte-identical redeliveries.
type DeliveryGuard interface {
	CheckAndMark(ctx context.Context, provider enums.Provider, body []byte) (bool, error)
	Release(ctx context.Context, provider enums.Provider, body []byte) error
}

// Options configures a provider webhook handler.
type Options struct {
	MaxBodyBytes int64
}

type callbackRoute struct {
	provider        enums.Provider
	signatureHeader string
	ack             func(w http.ResponseWriter)
}

// handleCallback verifies the signature, drops redeliveries and hands the
// body to the engine. Only a bad signature yields 401 and only an
// infrastructure fault yields 5xx; everything else is acknowledged.
func handleCallback(route callbackRoute, engine CallbackEngine, guard DeliveryGuard, opts Options, logg *logger.Logger) http.HandlerFunc {
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithField(ctx, "provider", route.provider.String())
		}

		if engine == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "callback engine unavailable"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "callback payload too large"))
				return
			}
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		signature := r.Header.Get(route.signatureHeader)
		if err := engine.Authenticate(ctx, route.provider, payload, signature); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if guard != nil {
			seen, err := guard.CheckAndMark(ctx, route.provider, payload)
			if err != nil {
				// The store's transition guard still rejects a second application.
				if logg != nil {
					logg.Warn(logg.WithField(ctx, "error", err.Error()), "webhook dedupe unavailable")
				}
			} else if seen {
				if logg != nil {
					logg.Info(ctx, "duplicate callback delivery acknowledged")
				}
				route.ack(w)
				return
			}
		}

		release := func() {
			if guard == nil {
				return
			}
			if relErr := guard.Release(context.WithoutCancel(ctx), route.provider, payload); relErr != nil && logg != nil {
				logg.Error(ctx, "release webhook dedupe key", relErr)
			}
		}

		result, err := engine.ApplyCallback(ctx, route.provider, payload, signature)
		if err != nil {
			release()
			responses.WriteError(ctx, logg, w, err)
			return
		}
		// Parked callbacks are replayed by the sweep; a provider re-post must
		// reach the engine again rather than hit the dedupe key.
		if result.Kind == reconciliation.ResultNotFound {
			release()
		}

		if logg != nil {
			logg.Debug(logg.WithFields(ctx, map[string]any{
				"result":             string(result.Kind),
				"provider_reference": result.Reference,
			}), "callback acknowledged")
		}
		route.ack(w)
	}
}
