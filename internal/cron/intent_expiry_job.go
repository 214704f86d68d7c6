package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/sanctuarypay/tithe-backend/internal/reconciliation"
	"github.com/sanctuarypay/tithe-backend/pkg/logger"
)

type sweeper interface {
	Sweep(ctx context.Context, now time.Time) (reconciliation.SweepResult, error)
}

type IntentExpiryJobParams struct {
	Logger  *logger.Logger
	Sweeper sweeper
}

// NewIntentExpiryJob replays parked callbacks and expires intents whose
// provider never answered.
func NewIntentExpiryJob(params IntentExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sweeper == nil {
		return nil, fmt.Errorf("sweeper required")
	}
	return &intentExpiryJob{logg: params.Logger, sweeper: params.Sweeper, now: time.Now}, nil
}

type intentExpiryJob struct {
	logg    *logger.Logger
	sweeper sweeper
	now     func() time.Time
}

func (j *intentExpiryJob) Name() string { return "intent_expiry" }

func (j *intentExpiryJob) Run(ctx context.Context) error {
	result, err := j.sweeper.Sweep(ctx, j.now().UTC())
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"scanned":   result.Scanned,
		"expired":   result.Expired,
		"conflicts": result.Conflicts,
		"replayed":  result.Replayed,
		"abandoned": result.Abandoned,
	})
	if err != nil {
		return fmt.Errorf("intent expiry: %w", err)
	}
	if result.Abandoned > 0 {
		j.logg.Warn(logCtx, "abandoned parked callbacks with no matching intent")
	}
	if result.Expired > 0 || result.Replayed > 0 {
		j.logg.Info(logCtx, "intent sweep changed payment intents")
	}
	return nil
}
