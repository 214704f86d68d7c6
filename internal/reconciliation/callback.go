package reconciliation

import (
	"context"
	"errors"
	"fmt"

	"github.com/sanctuarypay/tithe-backend/internal/intents"
	"github.com/sanctuarypay/tithe-backend/internal/providers"
	"github.com/sanctuarypay/tithe-backend/pkg/db/models"
	"github.com/sanctuarypay/tithe-backend/pkg/enums"
	pkgerrors "github.com/sanctuarypay/tithe-backend/pkg/errors"
)

var errTransitionRaced = errors.New("payment intent moved before the callback applied")

// ApplyCallback authenticates, normalizes and applies one provider callback.
// Only an unverifiable signature or an infrastructure failure returns an
// error; every other outcome is reported through Result so the provider can
// be acknowledged.
func (e *Engine) ApplyCallback(ctx context.Context, provider enums.Provider, body []byte, signature string) (Result, error) {
	ctx = e.logg.WithField(ctx, "provider", provider.String())

	gw, err := e.gateways.Get(provider)
	if err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "unknown callback provider")
	}

	if err := e.Authenticate(ctx, provider, body, signature); err != nil {
		return Result{Kind: ResultUnauthorized}, err
	}

	event, err := gw.NormalizeCallback(body)
	if err != nil {
		e.logg.Warn(e.logg.WithField(ctx, "error", err.Error()), "malformed callback acknowledged without changes")
		e.incCallback(provider, ResultMalformedPayload)
		return Result{Kind: ResultMalformedPayload}, nil
	}
	reference := event.Reference()
	ctx = e.logg.WithField(ctx, "provider_reference", reference)

	intent, err := e.lookup(ctx, provider, reference)
	if errors.Is(err, intents.ErrNotFound) {
		if err := e.park(ctx, provider, reference, body); err != nil {
			return Result{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "park callback for unknown reference")
		}
		e.incCallback(provider, ResultNotFound)
		return Result{Kind: ResultNotFound, Reference: reference}, nil
	}
	if err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup payment intent")
	}
	ctx = e.logg.WithIntentID(ctx, intent.ID.String())

	result, err := e.settle(ctx, gw, intent, event)
	if err != nil {
		return Result{}, err
	}
	result.Reference = reference
	e.incCallback(provider, result.Kind)
	e.logg.Info(e.logg.WithFields(ctx, map[string]any{
		"result": string(result.Kind),
		"state":  result.State.String(),
	}), "callback reconciled")
	return result, nil
}

// Authenticate checks a callback signature without touching any state.
func (e *Engine) Authenticate(ctx context.Context, provider enums.Provider, body []byte, signature string) error {
	auth := e.callbacks[provider]
	if auth.Verifier.Verify(body, signature, auth.Secret) {
		return nil
	}
	e.logg.Warn(e.logg.WithFields(ctx, map[string]any{
		"provider":         provider.String(),
		"security_event":   "webhook_signature_mismatch",
		"signature_length": len(signature),
		"body_bytes":       len(body),
	}), "rejected callback with invalid signature")
	e.incCallback(provider, ResultUnauthorized)
	return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, ErrUnauthorized, "invalid callback signature")
}

// lookup retries briefly because a fast callback can beat the store write
// that records the provider reference.
func (e *Engine) lookup(ctx context.Context, provider enums.Provider, reference string) (*models.PaymentIntent, error) {
	var lastErr error
	for attempt := 1; attempt <= e.settings.LookupAttempts; attempt++ {
		intent, err := e.store.FindByProviderReference(ctx, provider, reference)
		if err == nil {
			return intent, nil
		}
		if !errors.Is(err, intents.ErrNotFound) {
			return nil, err
		}
		lastErr = err
		if attempt < e.settings.LookupAttempts {
			if err := e.sleep(ctx, e.settings.LookupDelay); err != nil {
				return nil, err
			}
		}
	}
	return nil, lastErr
}

// park keeps a verified callback whose reference is not recorded yet so the
// sweep can replay it once the intent catches up.
func (e *Engine) park(ctx context.Context, provider enums.Provider, reference string, body []byte) error {
	if e.parking == nil || reference == "" {
		e.logg.Warn(ctx, "callback for unknown provider reference dropped")
		return nil
	}
	parked, err := e.parking.Park(ctx, provider, reference, body)
	if err != nil {
		return err
	}
	if parked {
		e.logg.Warn(ctx, "callback for unknown provider reference parked for replay")
	} else {
		e.logg.Info(ctx, "callback for unknown provider reference already parked")
	}
	return nil
}

// settle applies event to intent. When another writer moves the intent first
// the fresh row is re-read and the event applied again, so a settlement is
// never dropped behind a concurrent non-terminal transition.
func (e *Engine) settle(ctx context.Context, gw providers.Gateway, intent *models.PaymentIntent, event providers.CallbackEvent) (Result, error) {
	for race := 1; ; race++ {
		result, err := e.reconcile(ctx, gw, intent, event)
		if !errors.Is(err, errTransitionRaced) {
			return result, err
		}
		if race >= maxTransitionRaces {
			return Result{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment intent kept changing, retry the callback")
		}
		fresh, err := e.store.Get(ctx, intent.ID)
		if err != nil {
			return Result{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload payment intent")
		}
		e.logg.Info(e.logg.WithFields(ctx, map[string]any{
			"observed_state": intent.State.String(),
			"current_state":  fresh.State.String(),
		}), "lost transition race, re-applying callback to current state")
		intent = fresh
	}
}

func (e *Engine) reconcile(ctx context.Context, gw providers.Gateway, intent *models.PaymentIntent, event providers.CallbackEvent) (Result, error) {
	if intent.State.IsTerminal() {
		return Result{Kind: ResultAlreadyReconciled, IntentID: intent.ID, State: intent.State}, nil
	}

	if payer := event.Payer(); payer != "" && gw.NormalizePayer(payer) != intent.PayerIdentifier {
		e.logg.Warn(e.logg.WithFields(ctx, map[string]any{
			"expected_payer": intent.PayerIdentifier,
			"callback_payer": gw.NormalizePayer(payer),
		}), "callback payer differs from intent payer")
	}

	amount, hasAmount := event.AmountMinor()
	switch event.Outcome() {
	case providers.OutcomeSuccess:
		if !hasAmount || amount != intent.AmountMinor {
			return e.failMismatch(ctx, intent, event, amount, hasAmount)
		}
		receipt := event.Receipt()
		return e.apply(ctx, intent, enums.IntentStateCompleted, ResultCompleted, intents.Change{
			Source:            enums.TransitionSourceCallback,
			SettlementReceipt: &receipt,
			Payload:           event,
		})

	case providers.OutcomePending:
		if hasAmount && amount != intent.AmountMinor {
			return e.failMismatch(ctx, intent, event, amount, hasAmount)
		}
		if intent.State != enums.IntentStatePendingProviderAck {
			return Result{Kind: ResultAlreadyReconciled, IntentID: intent.ID, State: intent.State}, nil
		}
		return e.apply(ctx, intent, enums.IntentStatePendingSettlement, ResultPendingSettlement, intents.Change{
			Source:  enums.TransitionSourceCallback,
			Payload: event,
		})

	default:
		code := enums.FailureCodeProviderDeclined
		reason := event.Reason()
		if reason == "" {
			reason = "provider reported the payment failed"
		}
		reason = truncate(reason, maxFailureReasonLen)
		return e.apply(ctx, intent, enums.IntentStateFailed, ResultFailed, intents.Change{
			Source:        enums.TransitionSourceCallback,
			FailureCode:   &code,
			FailureReason: &reason,
			Payload:       event,
		})
	}
}

func (e *Engine) failMismatch(ctx context.Context, intent *models.PaymentIntent, event providers.CallbackEvent, amount int64, hasAmount bool) (Result, error) {
	code := enums.FailureCodeAmountMismatch
	reason := fmt.Sprintf("amount mismatch: expected %d, callback carried no usable amount", intent.AmountMinor)
	if hasAmount {
		reason = fmt.Sprintf("amount mismatch: expected %d, received %d", intent.AmountMinor, amount)
	}
	e.logg.Warn(e.logg.WithFields(ctx, map[string]any{
		"expected_amount": intent.AmountMinor,
		"callback_amount": amount,
	}), "callback amount mismatch, intent flagged for review")
	return e.apply(ctx, intent, enums.IntentStateFailed, ResultAmountMismatch, intents.Change{
		Source:        enums.TransitionSourceCallback,
		FailureCode:   &code,
		FailureReason: &reason,
		FlagForReview: true,
		Payload:       event,
	})
}

func (e *Engine) apply(ctx context.Context, intent *models.PaymentIntent, next enums.IntentState, kind ResultKind, change intents.Change) (Result, error) {
	updated, err := e.store.Transition(ctx, intent.ID, intent.State, next, change)
	switch {
	case err == nil:
		return Result{Kind: kind, IntentID: updated.ID, State: updated.State}, nil
	case errors.Is(err, intents.ErrStateConflict):
		return Result{}, errTransitionRaced
	case errors.Is(err, intents.ErrIllegalTransition):
		e.logg.Warn(e.logg.WithField(ctx, "error", err.Error()), "callback does not apply to current state")
		return Result{Kind: ResultIgnored, IntentID: intent.ID, State: intent.State}, nil
	default:
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "apply callback transition")
	}
}
