package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/sanctuarypay/tithe-backend/internal/analytics/worker"
	"github.com/sanctuarypay/tithe-backend/internal/analytics/writer"
	"github.com/sanctuarypay/tithe-backend/pkg/bigquery"
	"github.com/sanctuarypay/tithe-backend/pkg/config"
	"github.com/sanctuarypay/tithe-backend/pkg/logger"
	"github.com/sanctuarypay/tithe-backend/pkg/outbox/idempotency"
	"github.com/sanctuarypay/tithe-backend/pkg/outbox/registry"
	"github.com/sanctuarypay/tithe-backend/pkg/pubsub"
	"github.com/sanctuarypay/tithe-backend/pkg/redis"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "analytics-worker"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "analytics-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "failed to close redis client", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "failed to close pubsub client", err)
		}
	}()

	bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	requireResource(ctx, logg, "bigquery client", err)
	defer func() {
		if err := bqClient.Close(); err != nil {
			logg.Error(ctx, "failed to close bigquery client", err)
		}
	}()

	subscription := pubsubClient.AnalyticsSubscription()
	if subscription == nil {
		requireResource(ctx, logg, "analytics subscription", errors.New("subscription not configured"))
	}

	manager, err := idempotency.NewManager(redisClient, cfg.PubSub.ConsumerDedupeTTL)
	requireResource(ctx, logg, "idempotency manager", err)

	sink, err := writer.New(bqClient, writer.Config{}, logg)
	requireResource(ctx, logg, "analytics bigquery writer", err)

	service, err := worker.NewService(worker.ServiceParams{
		Subscription: subscription,
		Decoder:      registry.NewIntentDecoderRegistry(),
		Handler:      sink,
		Idempotency:  manager,
		Logger:       logg,
	})
	requireResource(ctx, logg, "analytics worker service", err)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":          cfg.App.Env,
		"subscription": cfg.PubSub.AnalyticsSubscription,
		"table":        cfg.BigQuery.IntentEventsTable,
	})
	logg.Info(runCtx, "analytics worker ready")

	if err := service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "analytics worker failed", err)
		os.Exit(1)
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
