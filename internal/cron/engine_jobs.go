package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/dropsync-backend/pkg/logger"
)

type stockSyncer interface {
	RunSync(ctx context.Context, supplierID *uuid.UUID) (int, error)
}

type pricingOptimizer interface {
	OptimizePricing(ctx context.Context, supplierID *uuid.UUID) (int, error)
}

// NewStockSyncJob runs the stock reconciliation loop across all suppliers.
func NewStockSyncJob(logg *logger.Logger, syncer stockSyncer) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if syncer == nil {
		return nil, fmt.Errorf("stock syncer required")
	}
	return &countingJob{
		name: "stock-sync",
		logg: logg,
		run:  syncer.RunSync,
		what: "links_updated",
	}, nil
}

// NewPricingJob runs the pricing optimizer across all suppliers.
func NewPricingJob(logg *logger.Logger, optimizer pricingOptimizer) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if optimizer == nil {
		return nil, fmt.Errorf("pricing optimizer required")
	}
	return &countingJob{
		name: "pricing-optimizer",
		logg: logg,
		run:  optimizer.OptimizePricing,
		what: "products_repriced",
	}, nil
}

type countingJob struct {
	name string
	logg *logger.Logger
	run  func(ctx context.Context, supplierID *uuid.UUID) (int, error)
	what string
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run(ctx context.Context) error {
	n, err := j.run(ctx, nil)
	j.logg.Info(j.logg.WithField(ctx, j.what, n), j.name+" pass finished")
	return err
}
