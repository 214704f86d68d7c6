package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sanctuarypay/tithe-backend/api/middleware"
	"github.com/sanctuarypay/tithe-backend/api/responses"
	"github.com/sanctuarypay/tithe-backend/api/validators"
	"github.com/sanctuarypay/tithe-backend/internal/reconciliation"
	"github.com/sanctuarypay/tithe-backend/pkg/db/models"
	"github.com/sanctuarypay/tithe-backend/pkg/enums"
	pkgerrors "github.com/sanctuarypay/tithe-backend/pkg/errors"
	"github.com/sanctuarypay/tithe-backend/pkg/logger"
)

// IntentService is the slice of the reconciliation engine the member routes use.
type IntentService interface {
	OpenIntent(ctx context.Context, req reconciliation.OpenRequest) (*models.PaymentIntent, error)
	Intent(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error)
}

type openIntentRequest struct {
	Amount          int64   `json:"amount"`
	Currency        string  `json:"currency" validate:"omitempty,len=3"`
	PayerIdentifier string  `json:"payerIdentifier" validate:"max=128"`
	Purpose         string  `json:"purpose" validate:"max=32"`
	Provider        string  `json:"provider" validate:"required,max=32"`
	FundCode        *string `json:"fundCode,omitempty" validate:"omitempty,max=64"`
	SourceID        string  `json:"sourceId,omitempty" validate:"max=255"`
}

type openIntentResponse struct {
	IntentID          string  `json:"intentId"`
	ProviderReference *string `json:"providerReference,omitempty"`
	Status            string  `json:"status"`
}

// IntentView is the member-facing projection of a payment intent.
type IntentView struct {
	ID                string  `json:"id"`
	Provider          string  `json:"provider"`
	State             string  `json:"state"`
	Amount            int64   `json:"amount"`
	Currency          string  `json:"currency"`
	Purpose           string  `json:"purpose"`
	FundCode          *string `json:"fundCode,omitempty"`
	ProviderReference *string `json:"providerReference"`
	SettlementReceipt *string `json:"settlementReceipt,omitempty"`
	FailureReason     *string `json:"failureReason,omitempty"`
	CreatedAt         string  `json:"createdAt"`
	UpdatedAt         string  `json:"updatedAt"`
}

func NewIntentView(intent models.PaymentIntent) IntentView {
	return IntentView{
		ID:                intent.ID.String(),
		Provider:          intent.Provider.String(),
		State:             intent.State.String(),
		Amount:            intent.AmountMinor,
		Currency:          intent.Currency.String(),
		Purpose:           intent.Purpose.String(),
		FundCode:          intent.FundCode,
		ProviderReference: intent.ProviderReference,
		SettlementReceipt: intent.SettlementReceipt,
		FailureReason:     intent.FailureReason,
		CreatedAt:         intent.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:         intent.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// OpenIntent handles POST /api/v1/intents.
func OpenIntent(svc IntentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "intent service unavailable"))
			return
		}

		memberID, ok := middleware.MemberIDFromContext(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "member identity missing"))
			return
		}

		var body openIntentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		req := reconciliation.OpenRequest{
			Provider:    enums.Provider(strings.ToLower(strings.TrimSpace(body.Provider))),
			AmountMinor: body.Amount,
			Currency:    enums.Currency(strings.ToUpper(strings.TrimSpace(body.Currency))),
			Payer:       body.PayerIdentifier,
			Purpose:     enums.GivingPurpose(strings.ToLower(strings.TrimSpace(body.Purpose))),
			FundCode:    body.FundCode,
			MemberID:    &memberID,
			SourceID:    strings.TrimSpace(body.SourceID),
		}

		intent, err := svc.OpenIntent(ctx, req)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusAccepted, openIntentResponse{
			IntentID:          intent.ID.String(),
			ProviderReference: intent.ProviderReference,
			Status:            intent.State.String(),
		})
	}
}

// IntentStatus handles GET /api/v1/intents/{intentId}. Members only see
// their own intents; anything else reads as not found.
func IntentStatus(svc IntentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "intent service unavailable"))
			return
		}

		id, err := validators.ParseUUIDParam(r, "intentId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		intent, err := svc.Intent(ctx, id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		memberID, _ := middleware.MemberIDFromContext(ctx)
		if intent.MemberID != nil && *intent.MemberID != memberID {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "payment intent not found"))
			return
		}

		responses.WriteSuccess(w, NewIntentView(*intent))
	}
}
