package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/sanctuarypay/tithe-backend/pkg/db/models"
	"github.com/sanctuarypay/tithe-backend/pkg/enums"
)

// IntentEvent is the snapshot published on every intent lifecycle change.
type IntentEvent struct {
	IntentID          uuid.UUID              `json:"intent_id"`
	Provider          enums.Provider         `json:"provider"`
	State             enums.IntentState      `json:"state"`
	PreviousState     *enums.IntentState     `json:"previous_state,omitempty"`
	Source            enums.TransitionSource `json:"source"`
	AmountMinor       int64                  `json:"amount_minor"`
	Currency          enums.Currency         `json:"currency"`
	Purpose           enums.GivingPurpose    `json:"purpose"`
	FundCode          *string                `json:"fund_code,omitempty"`
	MemberID          *uuid.UUID             `json:"member_id,omitempty"`
	ProviderReference *string                `json:"provider_reference,omitempty"`
	SettlementReceipt *string                `json:"settlement_receipt,omitempty"`
	FailureCode       *enums.FailureCode     `json:"failure_code,omitempty"`
	FailureReason     *string                `json:"failure_reason,omitempty"`
	FlaggedForReview  bool                   `json:"flagged_for_review"`
	CreatedAt         time.Time              `json:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at"`
}

// NewIntentEvent snapshots intent after it moved out of previous.
func NewIntentEvent(intent models.PaymentIntent, previous *enums.IntentState, source enums.TransitionSource) IntentEvent {
	return IntentEvent{
		IntentID:          intent.ID,
		Provider:          intent.Provider,
		State:             intent.State,
		PreviousState:     previous,
		Source:            source,
		AmountMinor:       intent.AmountMinor,
		Currency:          intent.Currency,
		Purpose:           intent.Purpose,
		FundCode:          intent.FundCode,
		MemberID:          intent.MemberID,
		ProviderReference: intent.ProviderReference,
		SettlementReceipt: intent.SettlementReceipt,
		FailureCode:       intent.FailureCode,
		FailureReason:     intent.FailureReason,
		FlaggedForReview:  intent.FlaggedForReview,
		CreatedAt:         intent.CreatedAt,
		UpdatedAt:         intent.UpdatedAt,
	}
}

// MemberRegisteredEvent is emitted the first time a subject gets a local profile.
type MemberRegisteredEvent struct {
	MemberID        uuid.UUID `json:"member_id"`
	ExternalSubject string    `json:"external_subject"`
}
