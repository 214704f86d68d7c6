package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sanctuarypay/tithe-backend/api/controllers"
	webhookcontrollers "github.com/sanctuarypay/tithe-backend/api/controllers/webhooks"
	"github.com/sanctuarypay/tithe-backend/api/middleware"
	"github.com/sanctuarypay/tithe-backend/pkg/config"
	"github.com/sanctuarypay/tithe-backend/pkg/logger"
	pkgredis "github.com/sanctuarypay/tithe-backend/pkg/redis"
)

// Engine is everything the HTTP surface needs from the reconciliation engine.
type Engine interface {
	controllers.IntentService
	controllers.FlaggedIntentLister
	webhookcontrollers.CallbackEngine
}

type Dependencies struct {
	Config       *config.Config
	Logger       *logger.Logger
	DB           controllers.Pinger
	Redis        controllers.Pinger
	Idempotency  pkgredis.IdempotencyStore
	Members      middleware.MemberResolver
	Engine       Engine
	WebhookGuard webhookcontrollers.DeliveryGuard
	Gatherer     prometheus.Gatherer
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Redis))
	})

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	webhookOpts := webhookcontrollers.Options{MaxBodyBytes: cfg.Webhooks.MaxBodyBytes}
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/mpesa", webhookcontrollers.MpesaWebhook(deps.Engine, deps.WebhookGuard, webhookOpts, logg))
		r.Post("/square", webhookcontrollers.SquareWebhook(deps.Engine, deps.WebhookGuard, webhookOpts, logg))
	})

	r.Route("/api/v1/intents", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, deps.Members, logg))
		r.With(middleware.Idempotency(deps.Idempotency, logg)).Post("/", controllers.OpenIntent(deps.Engine, logg))
		r.Get("/{intentId}", controllers.IntentStatus(deps.Engine, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.OperatorKey(cfg.Operator.KeyHash, logg))
		r.Get("/intents/flagged", controllers.AdminFlaggedIntents(deps.Engine, logg))
	})

	return r
}
