package providers

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/sanctuarypay/tithe-backend/pkg/config"
	"github.com/sanctuarypay/tithe-backend/pkg/db/models"
)

const (
	defaultAttempts  = 3
	defaultBaseDelay = 250 * time.Millisecond
	defaultMaxDelay  = 5 * time.Second
)

// RetryPolicy bounds how hard Initiate is retried.
type RetryPolicy struct {
	Attempts       uint64
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	AttemptTimeout time.Duration
}

func PolicyFromConfig(cfg config.PaymentsConfig) RetryPolicy {
	return RetryPolicy{
		Attempts:       cfg.InitiateAttempts,
		BaseDelay:      cfg.InitiateBaseDelay,
		MaxDelay:       cfg.InitiateMaxDelay,
		AttemptTimeout: cfg.InitiateTimeout,
	}
}

func (p RetryPolicy) backoff() retry.Backoff {
	attempts := p.Attempts
	if attempts == 0 {
		attempts = defaultAttempts
	}
	base := p.BaseDelay
	if base <= 0 {
		base = defaultBaseDelay
	}
	ceiling := p.MaxDelay
	if ceiling <= 0 {
		ceiling = defaultMaxDelay
	}
	b := retry.NewExponential(base)
	b = retry.WithJitterPercent(10, b)
	b = retry.WithCappedDuration(ceiling, b)
	return retry.WithMaxRetries(attempts-1, b)
}

// InitiateRecorder receives one sample per provider call.
type InitiateRecorder interface {
	IncInitiateAttempt(provider string)
	ObserveInitiate(provider string, duration time.Duration)
}

// InitiateWithRetry calls gw.Initiate until it succeeds, fails permanently or
// the policy runs out. Only errors marked transient are retried.
func InitiateWithRetry(ctx context.Context, gw Gateway, intent models.PaymentIntent, opts InitiateOptions, policy RetryPolicy, rec InitiateRecorder) (Handle, error) {
	name := gw.Name().String()
	return retry.DoValue(ctx, policy.backoff(), func(ctx context.Context) (Handle, error) {
		attemptCtx := ctx
		if policy.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, policy.AttemptTimeout)
			defer cancel()
		}

		started := time.Now()
		handle, err := gw.Initiate(attemptCtx, intent, opts)
		if rec != nil {
			rec.IncInitiateAttempt(name)
			rec.ObserveInitiate(name, time.Since(started))
		}
		if err != nil {
			if IsTransient(err) {
				return Handle{}, retry.RetryableError(err)
			}
			return Handle{}, err
		}
		return handle, nil
	})
}
