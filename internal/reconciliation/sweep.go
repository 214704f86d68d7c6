package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/sanctuarypay/tithe-backend/internal/intents"
	"github.com/sanctuarypay/tithe-backend/pkg/db/models"
	"github.com/sanctuarypay/tithe-backend/pkg/enums"
)

const expiryReason = "no provider callback before the pending ttl elapsed"

// Sweep replays parked callbacks, then expires PendingProviderAck intents
// idle for longer than the pending TTL. Replay goes first so a settlement
// that raced its own intent lands before the intent can expire. Intents
// that move concurrently are skipped.
func (e *Engine) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	var result SweepResult
	if e.settings.PendingTTL <= 0 {
		return result, errors.New("pending ttl must be positive")
	}

	errs := e.replayParked(ctx, now, &result)

	cutoff := now.Add(-e.settings.PendingTTL)
	stale, err := e.store.ListStale(ctx, enums.IntentStatePendingProviderAck, cutoff, e.settings.SweepBatchSize)
	if err != nil {
		return result, multierr.Append(errs, fmt.Errorf("list stale intents: %w", err))
	}
	result.Scanned = len(stale)

	for _, intent := range stale {
		if err := ctx.Err(); err != nil {
			errs = multierr.Append(errs, err)
			break
		}
		_, err := e.store.Transition(ctx, intent.ID, enums.IntentStatePendingProviderAck, enums.IntentStateExpired, intents.Change{
			Source: enums.TransitionSourceSweep,
			Reason: expiryReason,
		})
		switch {
		case err == nil:
			result.Expired++
		case errors.Is(err, intents.ErrStateConflict):
			result.Conflicts++
		default:
			errs = multierr.Append(errs, fmt.Errorf("expire intent %s: %w", intent.ID, err))
		}
	}

	if e.metrics != nil {
		e.metrics.AddExpired(result.Expired)
	}
	if result.Scanned > 0 || result.Replayed > 0 || result.Abandoned > 0 {
		e.logg.Info(e.logg.WithFields(ctx, map[string]any{
			"scanned":   result.Scanned,
			"expired":   result.Expired,
			"conflicts": result.Conflicts,
			"replayed":  result.Replayed,
			"abandoned": result.Abandoned,
		}), "pending intent sweep finished")
	}
	return result, errs
}

type replayOutcome int

const (
	replayWaiting replayOutcome = iota
	replayApplied
	replayDropped
)

func (e *Engine) replayParked(ctx context.Context, now time.Time, result *SweepResult) error {
	if e.parking == nil {
		return nil
	}
	parked, err := e.parking.ListParked(ctx, e.settings.SweepBatchSize)
	if err != nil {
		return fmt.Errorf("list parked callbacks: %w", err)
	}
	abandonBefore := now.Add(-e.settings.ParkedTTL)

	var errs error
	for _, row := range parked {
		if err := ctx.Err(); err != nil {
			errs = multierr.Append(errs, err)
			break
		}
		rowCtx := e.logg.WithFields(ctx, map[string]any{
			"provider":           row.Provider.String(),
			"provider_reference": row.ProviderReference,
			"parked_callback_id": row.ID.String(),
			"attempts":           row.Attempts,
		})

		outcome, err := e.replay(rowCtx, row)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("replay parked callback %s: %w", row.ID, err))
			continue
		}
		switch {
		case outcome == replayApplied:
			result.Replayed++
		case outcome == replayDropped:
		case row.CreatedAt.Before(abandonBefore):
			result.Abandoned++
			e.logg.Error(rowCtx, "abandoning parked callback, no intent ever recorded its reference", nil)
		default:
			if err := e.parking.MarkAttempt(ctx, row.ID); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("mark parked callback %s: %w", row.ID, err))
			}
			continue
		}
		if err := e.parking.Unpark(ctx, row.ID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("unpark callback %s: %w", row.ID, err))
		}
	}
	return errs
}

func (e *Engine) replay(ctx context.Context, row models.ParkedCallback) (replayOutcome, error) {
	gw, err := e.gateways.Get(row.Provider)
	if err != nil {
		e.logg.Warn(ctx, "parked callback provider is no longer enabled")
		return replayWaiting, nil
	}
	event, err := gw.NormalizeCallback(row.Body)
	if err != nil {
		e.logg.Warn(e.logg.WithField(ctx, "error", err.Error()), "dropping unreadable parked callback")
		return replayDropped, nil
	}

	intent, err := e.store.FindByProviderReference(ctx, row.Provider, row.ProviderReference)
	if errors.Is(err, intents.ErrNotFound) {
		return replayWaiting, nil
	}
	if err != nil {
		return replayWaiting, err
	}
	ctx = e.logg.WithIntentID(ctx, intent.ID.String())

	result, err := e.settle(ctx, gw, intent, event)
	if err != nil {
		return replayWaiting, err
	}
	e.incCallback(row.Provider, result.Kind)
	e.logg.Info(e.logg.WithFields(ctx, map[string]any{
		"result": string(result.Kind),
		"state":  result.State.String(),
	}), "parked callback reconciled")
	return replayApplied, nil
}
