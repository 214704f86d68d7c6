package reconciliation

import (
	"errors"

	"github.com/google/uuid"

	"github.com/sanctuarypay/tithe-backend/pkg/enums"
)

// ErrUnauthorized is returned when a callback signature does not verify.
var ErrUnauthorized = errors.New("callback signature rejected")

// ResultKind is what ApplyCallback did with a delivery.
type ResultKind string

const (
	ResultCompleted         ResultKind = "completed"
	ResultPendingSettlement ResultKind = "pending_settlement"
	ResultFailed            ResultKind = "failed"
	ResultAmountMismatch    ResultKind = "amount_mismatch"
	ResultAlreadyReconciled ResultKind = "already_reconciled"
	ResultNotFound          ResultKind = "not_found"
	ResultMalformedPayload  ResultKind = "malformed_payload"
	ResultIgnored           ResultKind = "ignored"
	ResultUnauthorized      ResultKind = "unauthorized"
)

// Result describes one callback application. Every kind except
// ResultUnauthorized is acknowledged to the provider.
type Result struct {
	Kind      ResultKind
	Reference string
	IntentID  uuid.UUID
	State     enums.IntentState
}

// Acknowledge reports whether the provider should stop retrying.
func (r Result) Acknowledge() bool {
	return r.Kind != ResultUnauthorized
}

// SweepResult summarizes one sweep. Replayed and Abandoned count parked
// callbacks; the rest count stale intents.
type SweepResult struct {
	Scanned   int
	Expired   int
	Conflicts int
	Replayed  int
	Abandoned int
}
