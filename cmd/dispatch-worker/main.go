package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/dropsync-backend/internal/engine"
	"github.com/angelmondragon/dropsync-backend/internal/orderevents"
	"github.com/angelmondragon/dropsync-backend/pkg/bigquery"
	"github.com/angelmondragon/dropsync-backend/pkg/config"
	"github.com/angelmondragon/dropsync-backend/pkg/db"
	"github.com/angelmondragon/dropsync-backend/pkg/logger"
	"github.com/angelmondragon/dropsync-backend/pkg/migrate"
	"github.com/angelmondragon/dropsync-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/dropsync-backend/pkg/pubsub"
	"github.com/angelmondragon/dropsync-backend/pkg/redis"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "dispatch-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)
	cfg.Service.Kind = "dispatch-worker"

	logg = logger.New(logger.Options{
		ServiceName: "dispatch-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "failed to close database", err)
		}
	}()
	requireResource(ctx, logg, "dev migrations", migrate.MaybeRunDev(ctx, cfg, logg, dbClient))

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

	var bqClient *bigquery.Client
	if cfg.BigQuery.Enabled {
		bqClient, err = bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
		requireResource(ctx, logg, "bigquery client", err)
		defer func() {
			if err := bqClient.Close(); err != nil {
				logg.Error(ctx, "failed to close bigquery client", err)
			}
		}()
	}

	subscription := pubsubClient.OrdersSubscription()
	if subscription == nil {
		requireResource(ctx, logg, "orders subscription", errors.New("subscription not configured"))
	}

	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	requireResource(ctx, logg, "idempotency manager", err)

	eng, err := engine.New(ctx, engine.Params{
		Config:     cfg,
		Logger:     logg,
		DB:         dbClient,
		Redis:      redisClient,
		BigQuery:   bqClient,
		Registerer: prometheus.DefaultRegisterer,
	})
	requireResource(ctx, logg, "engine", err)

	consumer, err := orderevents.NewConsumer(subscription, orderevents.NewDecoders(), eng.Dispatcher, manager, logg)
	requireResource(ctx, logg, "order consumer", err)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":          cfg.App.Env,
		"serviceKind":  cfg.Service.Kind,
		"subscription": cfg.PubSub.OrdersSubscription,
	})
	logg.Info(runCtx, "dispatch worker ready")

	err = consumer.Run(runCtx)
	// background cancel requests outlive the receive loop
	eng.Dispatcher.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "dispatch worker failed", err)
		os.Exit(1)
	}
	logg.Info(runCtx, "dispatch worker shutting down gracefully")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
