package bootstrap

import (
	"context"
	"io"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanctuarypay/tithe-backend/internal/reconciliation"
	"github.com/sanctuarypay/tithe-backend/pkg/config"
	"github.com/sanctuarypay/tithe-backend/pkg/db/dbtest"
	"github.com/sanctuarypay/tithe-backend/pkg/enums"
	pkgerrors "github.com/sanctuarypay/tithe-backend/pkg/errors"
	"github.com/sanctuarypay/tithe-backend/pkg/logger"
)

func testConfig() *config.Config {
	return &config.Config{
		Payments: config.PaymentsConfig{MinimumAmountMinor: 100, InitiateAttempts: 3, LookupAttempts: 1, DefaultCurrency: "USD"},
		Mpesa: config.MpesaConfig{
			Enabled:         true,
			ConsumerKey:     "key",
			ConsumerSecret:  "secret",
			ShortCode:       "174379",
			PassKey:         "passkey",
			CallbackURL:     "https://example.org/api/v1/webhooks/mpesa",
			TransactionDesc: "Tithe",
		},
		Webhooks: config.WebhooksConfig{MpesaSecret: "mpesa-secret"},
		Sweep:    config.SweepConfig{PendingTTL: 0, BatchSize: 10},
	}
}

func TestNewEngineWiresEnabledProviders(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	engine, err := NewEngine(context.Background(), EngineParams{
		Config:     testConfig(),
		DB:         dbtest.Open(t),
		Logger:     logg,
		Registerer: prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	require.NotNil(t, engine.Store)

	// Square is disabled, so the engine rejects it during validation.
	_, err = engine.OpenIntent(context.Background(), reconciliation.OpenRequest{
		Provider:    enums.ProviderSquare,
		AmountMinor: 500,
		Payer:       "member@example.com",
		Purpose:     enums.GivingPurposeTithe,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestNewEngineRejectsIncompleteMpesaConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Mpesa.PassKey = ""
	_, err := NewEngine(context.Background(), EngineParams{
		Config: cfg,
		DB:     dbtest.Open(t),
		Logger: logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	require.Error(t, err)
}

func TestCallbacksCoverEveryProvider(t *testing.T) {
	callbacks := Callbacks(config.WebhooksConfig{MpesaSecret: "a", SquareSecret: "b", SquareNotifyURL: "https://example.org/sq"})
	for _, p := range []enums.Provider{enums.ProviderMpesa, enums.ProviderSquare} {
		cb, ok := callbacks[p]
		require.True(t, ok, p)
		assert.NotNil(t, cb.Verifier)
		assert.NotEmpty(t, cb.Secret)
	}
}
