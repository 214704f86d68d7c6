package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/sanctuarypay/tithe-backend/internal/intents"
	"github.com/sanctuarypay/tithe-backend/internal/providers"
	"github.com/sanctuarypay/tithe-backend/internal/webhooks"
	"github.com/sanctuarypay/tithe-backend/pkg/config"
	"github.com/sanctuarypay/tithe-backend/pkg/db/models"
	"github.com/sanctuarypay/tithe-backend/pkg/enums"
	pkgerrors "github.com/sanctuarypay/tithe-backend/pkg/errors"
	"github.com/sanctuarypay/tithe-backend/pkg/logger"
	"github.com/sanctuarypay/tithe-backend/pkg/pagination"
)

const (
	maxFailureReasonLen = 512
	defaultParkedTTL    = 24 * time.Hour
	maxTransitionRaces  = 3
)

// Metrics is the subset of pkg/metrics the engine reports to.
type Metrics interface {
	providers.InitiateRecorder
	IncOpened(provider, outcome string)
	IncCallback(provider, result string)
	AddExpired(n int)
}

// Settings are the engine's tunables.
type Settings struct {
	MinimumAmountMinor int64
	Retry              providers.RetryPolicy
	LookupAttempts     int
	LookupDelay        time.Duration
	PendingTTL         time.Duration
	SweepBatchSize     int
	ParkedTTL          time.Duration
}

func SettingsFromConfig(cfg config.Config) Settings {
	return Settings{
		MinimumAmountMinor: cfg.Payments.MinimumAmountMinor,
		Retry:              providers.PolicyFromConfig(cfg.Payments),
		LookupAttempts:     cfg.Payments.LookupAttempts,
		LookupDelay:        cfg.Payments.LookupDelay,
		PendingTTL:         cfg.Sweep.PendingTTL,
		SweepBatchSize:     cfg.Sweep.BatchSize,
		ParkedTTL:          cfg.Sweep.ParkedTTL,
	}
}

// CallbackAuth pairs a provider's signature scheme with its shared secret.
type CallbackAuth struct {
	Verifier *webhooks.Verifier
	Secret   string
}

type EngineParams struct {
	Store     intents.Store
	Parking   intents.CallbackParking
	Gateways  *providers.Registry
	Callbacks map[enums.Provider]CallbackAuth
	Settings  Settings
	Metrics   Metrics
	Logger    *logger.Logger
}

// Engine drives payment intents through their lifecycle. It holds no state
// of its own; every change goes through Store.Transition.
type Engine struct {
	store     intents.Store
	parking   intents.CallbackParking
	gateways  *providers.Registry
	callbacks map[enums.Provider]CallbackAuth
	settings  Settings
	metrics   Metrics
	logg      *logger.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewEngine(params EngineParams) (*Engine, error) {
	if params.Store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "intent store required")
	}
	if params.Gateways == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "provider registry required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.New(logger.Options{ServiceName: "reconciliation", Output: io.Discard})
	}
	settings := params.Settings
	if settings.LookupAttempts <= 0 {
		settings.LookupAttempts = 1
	}
	if settings.MinimumAmountMinor <= 0 {
		settings.MinimumAmountMinor = 1
	}
	if settings.ParkedTTL <= 0 {
		settings.ParkedTTL = defaultParkedTTL
	}
	callbacks := params.Callbacks
	if callbacks == nil {
		callbacks = map[enums.Provider]CallbackAuth{}
	}
	return &Engine{
		store:     params.Store,
		parking:   params.Parking,
		gateways:  params.Gateways,
		callbacks: callbacks,
		settings:  settings,
		metrics:   params.Metrics,
		logg:      logg,
		sleep:     sleepContext,
	}, nil
}

// OpenRequest is a member's request to give.
type OpenRequest struct {
	Provider    enums.Provider
	AmountMinor int64
	Currency    enums.Currency
	Payer       string
	Purpose     enums.GivingPurpose
	FundCode    *string
	MemberID    *uuid.UUID
	SourceID    string
}

// OpenIntent validates req, persists a Created intent and asks the provider
// to start the charge. A provider failure still leaves a Failed intent behind.
func (e *Engine) OpenIntent(ctx context.Context, req OpenRequest) (*models.PaymentIntent, error) {
	gw, req, err := e.validate(req)
	if err != nil {
		e.incOpened(req.Provider, "invalid")
		return nil, err
	}

	intent := &models.PaymentIntent{
		Provider:        gw.Name(),
		AmountMinor:     req.AmountMinor,
		Currency:        req.Currency,
		PayerIdentifier: req.Payer,
		Purpose:         req.Purpose,
		FundCode:        req.FundCode,
		MemberID:        req.MemberID,
		State:           enums.IntentStateCreated,
	}
	if _, err := e.store.Create(ctx, intent); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create payment intent")
	}
	ctx = e.logg.WithFields(ctx, map[string]any{
		"intent_id": intent.ID.String(),
		"provider":  intent.Provider.String(),
	})

	handle, err := providers.InitiateWithRetry(ctx, gw, *intent, providers.InitiateOptions{SourceID: req.SourceID}, e.settings.Retry, e.metrics)
	if err != nil {
		e.logg.Warn(e.logg.WithField(ctx, "error", err.Error()), "provider initiation failed")
		return nil, e.failInitiation(ctx, intent, fmt.Sprintf("provider initiation failed: %v", err), err)
	}
	if !handle.Accepted {
		e.logg.Warn(e.logg.WithField(ctx, "reason", handle.Reason), "provider rejected initiation")
		return nil, e.failInitiation(ctx, intent, "provider rejected initiation: "+handle.Reason, nil)
	}

	// The charge is out; record it even if the caller went away.
	persistCtx := context.WithoutCancel(ctx)
	reference := handle.ProviderReference
	updated, err := e.store.Transition(persistCtx, intent.ID, enums.IntentStateCreated, enums.IntentStatePendingProviderAck, intents.Change{
		Source:            enums.TransitionSourceInitiate,
		ProviderReference: &reference,
		Payload:           handle.Raw,
	})
	switch {
	case err == nil:
	case errors.Is(err, intents.ErrDuplicateReference):
		e.logg.Error(e.logg.WithField(ctx, "provider_reference", reference), "provider reference already assigned", err)
		code := enums.FailureCodeDuplicateReference
		reason := "provider returned a reference already assigned to another intent"
		if _, ferr := e.store.Transition(persistCtx, intent.ID, enums.IntentStateCreated, enums.IntentStateFailed, intents.Change{
			Source:        enums.TransitionSourceInitiate,
			FailureCode:   &code,
			FailureReason: &reason,
			FlagForReview: true,
		}); ferr != nil {
			e.logg.Error(ctx, "failed to record duplicate reference failure", ferr)
		}
		e.incOpened(intent.Provider, "duplicate_reference")
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment could not be started, try again").
			WithDetails(map[string]any{"intentId": intent.ID.String()})
	default:
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record provider acknowledgement")
	}

	e.incOpened(intent.Provider, "accepted")
	e.logg.Info(e.logg.WithField(ctx, "provider_reference", reference), "payment intent awaiting provider")
	return updated, nil
}

func (e *Engine) failInitiation(ctx context.Context, intent *models.PaymentIntent, reason string, cause error) error {
	code := enums.FailureCodeProviderInitiation
	reason = truncate(reason, maxFailureReasonLen)
	_, err := e.store.Transition(context.WithoutCancel(ctx), intent.ID, enums.IntentStateCreated, enums.IntentStateFailed, intents.Change{
		Source:        enums.TransitionSourceInitiate,
		FailureCode:   &code,
		FailureReason: &reason,
	})
	if err != nil {
		e.logg.Error(ctx, "failed to persist initiation failure", err)
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record initiation failure")
	}
	e.incOpened(intent.Provider, "failed")
	if cause == nil {
		cause = errors.New(reason)
	}
	return pkgerrors.Wrap(pkgerrors.CodeProviderInitiation, cause, "payment could not be started, try again").
		WithDetails(map[string]any{"intentId": intent.ID.String()})
}

func (e *Engine) validate(req OpenRequest) (providers.Gateway, OpenRequest, error) {
	fields := map[string]string{}

	gw, err := e.gateways.Get(req.Provider)
	if err != nil {
		fields["provider"] = "unsupported provider"
	}
	if req.AmountMinor <= 0 {
		fields["amount"] = "must be positive"
	} else if req.AmountMinor < e.settings.MinimumAmountMinor {
		fields["amount"] = fmt.Sprintf("must be at least %d", e.settings.MinimumAmountMinor)
	}
	if !req.Purpose.IsValid() {
		fields["purpose"] = "must be one of tithe, offering, fund"
	}
	if req.Purpose == enums.GivingPurposeFund && (req.FundCode == nil || strings.TrimSpace(*req.FundCode) == "") {
		fields["fundCode"] = "required when purpose is fund"
	}
	if strings.TrimSpace(req.Payer) == "" {
		fields["payerIdentifier"] = "required"
	}

	if gw != nil {
		if req.Currency == "" {
			req.Currency = gw.DefaultCurrency()
		}
		if _, ok := fields["payerIdentifier"]; !ok {
			if err := gw.ValidatePayer(req.Payer); err != nil {
				fields["payerIdentifier"] = err.Error()
			} else {
				req.Payer = gw.NormalizePayer(req.Payer)
			}
		}
		if _, ok := fields["amount"]; !ok {
			if err := gw.ValidateAmount(req.AmountMinor, req.Currency); err != nil {
				fields["amount"] = err.Error()
			}
		}
		if providers.RequiresSource(gw) && strings.TrimSpace(req.SourceID) == "" {
			fields["sourceId"] = "required for " + gw.Name().String()
		}
	}

	if len(fields) > 0 {
		return nil, req, pkgerrors.New(pkgerrors.CodeValidation, "invalid charge request").WithDetails(fields)
	}
	return gw, req, nil
}

// Intent returns the current projection of id.
func (e *Engine) Intent(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error) {
	intent, err := e.store.Get(ctx, id)
	if errors.Is(err, intents.ErrNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "payment intent not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment intent")
	}
	return intent, nil
}

// Flagged lists intents held for manual reconciliation.
func (e *Engine) Flagged(ctx context.Context, params pagination.Params) (pagination.Page[models.PaymentIntent], error) {
	page, err := e.store.ListFlagged(ctx, params)
	if err != nil {
		return page, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list flagged intents")
	}
	return page, nil
}

func (e *Engine) incOpened(provider enums.Provider, outcome string) {
	if e.metrics != nil {
		e.metrics.IncOpened(provider.String(), outcome)
	}
}

func (e *Engine) incCallback(provider enums.Provider, kind ResultKind) {
	if e.metrics != nil {
		e.metrics.IncCallback(provider.String(), string(kind))
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// truncate caps value at limit bytes without splitting a rune.
func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut]
}
