// Package engine assembles the fan-out and sync services shared by the api,
// dispatch-worker and cron-worker binaries.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/dropsync-backend/internal/automation"
	"github.com/angelmondragon/dropsync-backend/internal/bulk"
	"github.com/angelmondragon/dropsync-backend/internal/catalog"
	"github.com/angelmondragon/dropsync-backend/internal/dispatch"
	"github.com/angelmondragon/dropsync-backend/internal/ledger"
	"github.com/angelmondragon/dropsync-backend/internal/pricing"
	"github.com/angelmondragon/dropsync-backend/internal/reporting"
	"github.com/angelmondragon/dropsync-backend/internal/stocksync"
	"github.com/angelmondragon/dropsync-backend/internal/suppliers"
	"github.com/angelmondragon/dropsync-backend/internal/transport"
	pkgbigquery "github.com/angelmondragon/dropsync-backend/pkg/bigquery"
	"github.com/angelmondragon/dropsync-backend/pkg/config"
	"github.com/angelmondragon/dropsync-backend/pkg/db"
	"github.com/angelmondragon/dropsync-backend/pkg/logger"
	"github.com/angelmondragon/dropsync-backend/pkg/metrics"
	"github.com/angelmondragon/dropsync-backend/pkg/outbox"
	"github.com/angelmondragon/dropsync-backend/pkg/redis"
	"github.com/angelmondragon/dropsync-backend/pkg/square"
)

type Params struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         *db.Client
	Redis      *redis.Client
	BigQuery   *pkgbigquery.Client
	Registerer prometheus.Registerer
}

// Engine holds the wired domain services.
type Engine struct {
	Metrics    *metrics.EngineMetrics
	Ledger     ledger.Service
	Catalog    catalog.Store
	Gateways   *transport.Registry
	Suppliers  suppliers.Service
	Dispatcher dispatch.Service
	StockSync  stocksync.Service
	Pricing    pricing.Service
	Automation automation.Service
	Bulk       bulk.Service
}

func New(ctx context.Context, params Params) (*Engine, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	cfg := params.Config
	logg := params.Logger

	engineMetrics := metrics.NewEngineMetrics(params.Registerer)

	locker, err := ledger.NewRedisRowLocker(params.Redis, cfg.Ledger.LockTTL, cfg.Ledger.LockWait, logg)
	if err != nil {
		return nil, fmt.Errorf("row locker: %w", err)
	}
	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{
		DB:     params.DB,
		Repo:   ledger.NewRepository(params.DB.DB()),
		Locker: locker,
		Outbox: outbox.NewService(outbox.NewRepository(params.DB.DB()), logg),
		Logger: logg,
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}
	catalogStore := catalog.NewRepository(params.DB.DB())

	squareClient, err := buildSquare(ctx, cfg, logg)
	if err != nil {
		return nil, err
	}
	gateways := transport.NewRegistry(engineMetrics)
	if err := gateways.RegisterDefaults(cfg.Dispatch.TransportTimeout, squareClient, cfg.Square.Environment(), logg); err != nil {
		return nil, fmt.Errorf("transport registry: %w", err)
	}

	supplierRepo := suppliers.NewRepository(params.DB.DB())
	supplierSvc, err := suppliers.NewService(suppliers.ServiceParams{
		Repo:     supplierRepo,
		Ledger:   ledgerSvc,
		Gateways: gateways,
		Logger:   logg,
	})
	if err != nil {
		return nil, fmt.Errorf("suppliers: %w", err)
	}

	reporter, err := buildReporter(cfg, params.BigQuery)
	if err != nil {
		return nil, err
	}

	dispatchParams := dispatch.ServiceParams{
		Ledger:           ledgerSvc,
		Gateways:         gateways,
		Cancellations:    dispatch.NewRedisCancelRegistry(params.Redis, cfg.Dispatch.CancelTTL),
		Metrics:          engineMetrics,
		Logger:           logg,
		Workers:          cfg.Dispatch.WorkerPoolSize,
		TransportTimeout: cfg.Dispatch.TransportTimeout,
		CancelTimeout:    cfg.Dispatch.CancelTimeout,
	}
	stockParams := stocksync.ServiceParams{
		Ledger:   ledgerSvc,
		Catalog:  catalogStore,
		Gateways: gateways,
		Metrics:  engineMetrics,
		Logger:   logg,
		Workers:  cfg.Dispatch.WorkerPoolSize,
		Timeout:  cfg.Dispatch.TransportTimeout,
	}
	minMargin, target, tolerance, err := cfg.Pricing.Decimals()
	if err != nil {
		return nil, err
	}
	pricingParams := pricing.ServiceParams{
		Ledger:  ledgerSvc,
		Catalog: catalogStore,
		Policy:  pricing.Policy{MinMargin: minMargin, TargetMargin: target, Tolerance: tolerance},
		Metrics: engineMetrics,
		Logger:  logg,
	}
	if reporter != nil {
		dispatchParams.Reporter = reporter
		stockParams.Reporter = reporter
		pricingParams.Reporter = reporter
	}

	dispatcher, err := dispatch.NewService(dispatchParams)
	if err != nil {
		return nil, fmt.Errorf("dispatch: %w", err)
	}
	stockSvc, err := stocksync.NewService(stockParams)
	if err != nil {
		return nil, fmt.Errorf("stock sync: %w", err)
	}
	pricingSvc, err := pricing.NewService(pricingParams)
	if err != nil {
		return nil, fmt.Errorf("pricing: %w", err)
	}
	automationSvc, err := automation.NewService(automation.ServiceParams{
		Repo:      automation.NewRepository(params.DB.DB()),
		Ledger:    ledgerSvc,
		Catalog:   catalogStore,
		Suppliers: supplierRepo,
		Logger:    logg,
	})
	if err != nil {
		return nil, fmt.Errorf("automation: %w", err)
	}
	bulkSvc, err := bulk.NewService(bulk.ServiceParams{
		Ledger:  ledgerSvc,
		Catalog: catalogStore,
		Stock:   stockSvc,
		Logger:  logg,
	})
	if err != nil {
		return nil, fmt.Errorf("bulk: %w", err)
	}

	return &Engine{
		Metrics:    engineMetrics,
		Ledger:     ledgerSvc,
		Catalog:    catalogStore,
		Gateways:   gateways,
		Suppliers:  supplierSvc,
		Dispatcher: dispatcher,
		StockSync:  stockSvc,
		Pricing:    pricingSvc,
		Automation: automationSvc,
		Bulk:       bulkSvc,
	}, nil
}

// buildSquare returns nil when the service has no global Square credentials;
// suppliers may still carry their own token via transport config.
func buildSquare(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*square.Client, error) {
	if !cfg.FeatureFlags.SquareTransport || cfg.Square.AccessToken == "" {
		return nil, nil
	}
	client, err := square.NewClient(ctx, cfg.Square, logg)
	if err != nil {
		return nil, fmt.Errorf("square client: %w", err)
	}
	return client, nil
}

func buildReporter(cfg *config.Config, client *pkgbigquery.Client) (*reporting.BigQueryReporter, error) {
	if !cfg.BigQuery.Enabled || client == nil {
		return nil, nil
	}
	reporter, err := reporting.New(client, reporting.Config{
		SyncRunsTable:         cfg.BigQuery.SyncRunsTable,
		DispatchOutcomesTable: cfg.BigQuery.DispatchOutcomesTable,
	})
	if err != nil {
		return nil, fmt.Errorf("reporter: %w", err)
	}
	return reporter, nil
}
