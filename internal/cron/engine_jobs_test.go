package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/dropsync-backend/pkg/logger"
)

type fakeEngine struct {
	n      int
	err    error
	scopes []*uuid.UUID
}

func (f *fakeEngine) RunSync(ctx context.Context, supplierID *uuid.UUID) (int, error) {
	f.scopes = append(f.scopes, supplierID)
	return f.n, f.err
}

func (f *fakeEngine) OptimizePricing(ctx context.Context, supplierID *uuid.UUID) (int, error) {
	f.scopes = append(f.scopes, supplierID)
	return f.n, f.err
}

func TestStockSyncJobRunsAcrossAllSuppliers(t *testing.T) {
	engine := &fakeEngine{n: 3}
	job, err := NewStockSyncJob(logger.New(logger.Options{ServiceName: "test"}), engine)
	require.NoError(t, err)
	require.Equal(t, "stock-sync", job.Name())

	require.NoError(t, job.Run(context.Background()))
	require.Len(t, engine.scopes, 1)
	require.Nil(t, engine.scopes[0])
}

func TestPricingJobPropagatesError(t *testing.T) {
	engine := &fakeEngine{err: errors.New("catalog down")}
	job, err := NewPricingJob(logger.New(logger.Options{ServiceName: "test"}), engine)
	require.NoError(t, err)
	require.Equal(t, "pricing-optimizer", job.Name())

	require.Error(t, job.Run(context.Background()))
}

func TestEngineJobsRequireDependencies(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test"})
	_, err := NewStockSyncJob(logg, nil)
	require.Error(t, err)
	_, err = NewPricingJob(nil, &fakeEngine{})
	require.Error(t, err)
}
