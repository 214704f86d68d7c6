package webhooks

import (
	"net/http"

	"github.com/sanctuarypay/tithe-backend/api/responses"
	"github.com/sanctuarypay/tithe-backend/pkg/enums"
	"github.com/sanctuarypay/tithe-backend/pkg/logger"
)

const SquareSignatureHeader = "X-Square-Hmacsha256-Signature"

// SquareWebhook handles Square payment.created and payment.updated events.
func SquareWebhook(engine CallbackEngine, guard DeliveryGuard, opts Options, logg *logger.Logger) http.HandlerFunc {
	return handleCallback(callbackRoute{
		provider:        enums.ProviderSquare,
		signatureHeader: SquareSignatureHeader,
		ack: func(w http.ResponseWriter) {
			responses.WriteRaw(w, http.StatusOK, map[string]bool{"received": true})
		},
	}, engine, guard, opts, logg)
}
