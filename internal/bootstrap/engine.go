// Package bootstrap assembles the reconciliation engine from configuration
// for the api, cron-worker and tithectl binaries.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/sanctuarypay/tithe-backend/internal/intents"
	"github.com/sanctuarypay/tithe-backend/internal/providers"
	mpesaprovider "github.com/sanctuarypay/tithe-backend/internal/providers/mpesa"
	squareprovider "github.com/sanctuarypay/tithe-backend/internal/providers/square"
	"github.com/sanctuarypay/tithe-backend/internal/reconciliation"
	"github.com/sanctuarypay/tithe-backend/internal/webhooks"
	"github.com/sanctuarypay/tithe-backend/pkg/config"
	"github.com/sanctuarypay/tithe-backend/pkg/enums"
	"github.com/sanctuarypay/tithe-backend/pkg/logger"
	"github.com/sanctuarypay/tithe-backend/pkg/metrics"
	"github.com/sanctuarypay/tithe-backend/pkg/mpesa"
	"github.com/sanctuarypay/tithe-backend/pkg/outbox"
	"github.com/sanctuarypay/tithe-backend/pkg/square"
)

// EngineParams carries what every binary already has on hand.
type EngineParams struct {
	Config     *config.Config
	DB         *gorm.DB
	Logger     *logger.Logger
	Registerer prometheus.Registerer
}

// Engine is the wired engine plus the store it writes through.
type Engine struct {
	*reconciliation.Engine
	Store   *intents.Repository
	Emitter *outbox.Service
}

// NewEngine builds provider gateways for every enabled rail and hands them
// to a reconciliation engine backed by the Postgres intent store.
func NewEngine(ctx context.Context, params EngineParams) (*Engine, error) {
	cfg := params.Config
	if cfg == nil {
		return nil, fmt.Errorf("config required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("database required")
	}
	logg := params.Logger
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}

	emitter := outbox.NewService(outbox.NewRepository(params.DB), logg)
	store := intents.NewRepository(params.DB, emitter, cfg.DB.QueryTimeout)

	gateways, err := Gateways(ctx, cfg, logg)
	if err != nil {
		return nil, err
	}
	if len(gateways.Providers()) == 0 {
		logg.Warn(ctx, "no payment providers enabled; new intents will be rejected")
	}

	var engineMetrics reconciliation.Metrics
	if params.Registerer != nil {
		engineMetrics = metrics.NewReconciliationMetrics(params.Registerer)
	}

	engine, err := reconciliation.NewEngine(reconciliation.EngineParams{
		Store:     store,
		Parking:   intents.NewParkedCallbackRepository(params.DB, cfg.DB.QueryTimeout),
		Gateways:  gateways,
		Callbacks: Callbacks(cfg.Webhooks),
		Settings:  reconciliation.SettingsFromConfig(*cfg),
		Metrics:   engineMetrics,
		Logger:    logg,
	})
	if err != nil {
		return nil, err
	}
	return &Engine{Engine: engine, Store: store, Emitter: emitter}, nil
}

// Gateways returns a registry with one gateway per enabled provider.
func Gateways(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*providers.Registry, error) {
	var gateways []providers.Gateway

	if cfg.Mpesa.Enabled {
		client, err := mpesa.NewClient(cfg.Mpesa, nil, logg)
		if err != nil {
			return nil, fmt.Errorf("mpesa client: %w", err)
		}
		gateways = append(gateways, mpesaprovider.NewGateway(client, cfg.Mpesa.TransactionDesc))
	}

	if cfg.Square.Enabled {
		client, err := square.NewClient(ctx, cfg.Square, logg)
		if err != nil {
			return nil, fmt.Errorf("square client: %w", err)
		}
		gateways = append(gateways, squareprovider.NewGateway(client, enums.Currency(cfg.Payments.DefaultCurrency)))
	}

	return providers.NewRegistry(gateways...), nil
}

// Callbacks maps each provider to its signature scheme and shared secret.
func Callbacks(cfg config.WebhooksConfig) map[enums.Provider]reconciliation.CallbackAuth {
	return map[enums.Provider]reconciliation.CallbackAuth{
		enums.ProviderMpesa:  {Verifier: webhooks.MpesaVerifier(), Secret: cfg.MpesaSecret},
		enums.ProviderSquare: {Verifier: webhooks.SquareVerifier(cfg.SquareNotifyURL), Secret: cfg.SquareSecret},
	}
}
