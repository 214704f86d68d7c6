package webhooks

import (
	"net/http"

	"github.com/sanctuarypay/tithe-backend/api/responses"
	"github.com/sanctuarypay/tithe-backend/pkg/enums"
	"github.com/sanctuarypay/tithe-backend/pkg/logger"
)

const MpesaSignatureHeader = "X-Callback-Signature"

type mpesaAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

// MpesaWebhook handles Daraja STK push result callbacks.
func MpesaWebhook(engine CallbackEngine, guard DeliveryGuard, opts Options, logg *logger.Logger) http.HandlerFunc {
	return handleCallback(callbackRoute{
		provider:        enums.ProviderMpesa,
		signatureHeader: MpesaSignatureHeader,
		ack: func(w http.ResponseWriter) {
			responses.WriteRaw(w, http.StatusOK, mpesaAck{ResultCode: 0, ResultDesc: "Accepted"})
		},
	}, engine, guard, opts, logg)
}
