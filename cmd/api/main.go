package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/dropsync-backend/api/routes"
	"github.com/angelmondragon/dropsync-backend/internal/engine"
	"github.com/angelmondragon/dropsync-backend/pkg/bigquery"
	"github.com/angelmondragon/dropsync-backend/pkg/config"
	"github.com/angelmondragon/dropsync-backend/pkg/db"
	"github.com/angelmondragon/dropsync-backend/pkg/instance"
	"github.com/angelmondragon/dropsync-backend/pkg/logger"
	"github.com/angelmondragon/dropsync-backend/pkg/migrate"
	"github.com/angelmondragon/dropsync-backend/pkg/redis"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)
	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()
	requireResource(ctx, logg, "dev migrations", migrate.MaybeRunDev(ctx, cfg, logg, dbClient))

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}()

	probes := routes.Probes{"db": dbClient, "redis": redisClient}

	var bqClient *bigquery.Client
	if cfg.BigQuery.Enabled {
		bqClient, err = bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
		requireResource(ctx, logg, "bigquery", err)
		defer func() {
			if err := bqClient.Close(); err != nil {
				logg.Error(ctx, "error closing bigquery client", err)
			}
		}()
		probes["bigquery"] = bqClient
	}

	eng, err := engine.New(ctx, engine.Params{
		Config:     cfg,
		Logger:     logg,
		DB:         dbClient,
		Redis:      redisClient,
		BigQuery:   bqClient,
		Registerer: prometheus.DefaultRegisterer,
	})
	requireResource(ctx, logg, "engine", err)

	handler := routes.NewRouter(cfg, logg, redisClient, prometheus.DefaultGatherer, probes, routes.Services{
		Suppliers:  eng.Suppliers,
		Links:      eng.Ledger,
		Orders:     eng.Ledger,
		Dispatcher: eng.Dispatcher,
		StockSync:  eng.StockSync,
		Pricing:    eng.Pricing,
		Automation: eng.Automation,
		Bulk:       eng.Bulk,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})

	server := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(runCtx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(runCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-runCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "api server shutdown failed", err)
		}
	}

	// Cancels fanned out by in-flight requests finish before clients close.
	eng.Dispatcher.Wait()
	logg.Info(ctx, "api server stopped")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
