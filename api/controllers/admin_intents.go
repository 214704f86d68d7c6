package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/sanctuarypay/tithe-backend/api/responses"
	"github.com/sanctuarypay/tithe-backend/api/validators"
	"github.com/sanctuarypay/tithe-backend/pkg/db/models"
	pkgerrors "github.com/sanctuarypay/tithe-backend/pkg/errors"
	"github.com/sanctuarypay/tithe-backend/pkg/logger"
	"github.com/sanctuarypay/tithe-backend/pkg/pagination"
)

type FlaggedIntentLister interface {
	Flagged(ctx context.Context, params pagination.Params) (pagination.Page[models.PaymentIntent], error)
}

type flaggedIntentView struct {
	IntentView
	PayerIdentifier string  `json:"payerIdentifier"`
	MemberID        *string `json:"memberId,omitempty"`
	FailureCode     *string `json:"failureCode,omitempty"`
}

type flaggedIntentsResponse struct {
	Items      []flaggedIntentView `json:"items"`
	NextCursor string              `json:"nextCursor,omitempty"`
}

// AdminFlaggedIntents lists intents held for manual reconciliation.
func AdminFlaggedIntents(svc FlaggedIntentLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "intent service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		cursor := strings.TrimSpace(r.URL.Query().Get("cursor"))
		if _, err := pagination.ParseCursor(cursor); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor"))
			return
		}

		page, err := svc.Flagged(ctx, pagination.Params{Limit: limit, Cursor: cursor})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		out := flaggedIntentsResponse{
			Items:      make([]flaggedIntentView, 0, len(page.Items)),
			NextCursor: page.NextCursor,
		}
		for _, intent := range page.Items {
			view := flaggedIntentView{
				IntentView:      NewIntentView(intent),
				PayerIdentifier: intent.PayerIdentifier,
			}
			if intent.MemberID != nil {
				id := intent.MemberID.String()
				view.MemberID = &id
			}
			if intent.FailureCode != nil {
				code := intent.FailureCode.String()
				view.FailureCode = &code
			}
			out.Items = append(out.Items, view)
		}
		responses.WriteSuccess(w, out)
	}
}
