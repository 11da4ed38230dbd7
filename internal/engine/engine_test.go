package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/dropsync-backend/pkg/config"
	"github.com/angelmondragon/dropsync-backend/pkg/db"
	"github.com/angelmondragon/dropsync-backend/pkg/db/dbtest"
	"github.com/angelmondragon/dropsync-backend/pkg/logger"
)

func TestNewRequiresDependencies(t *testing.T) {
	cfg := &config.Config{}
	logg := logger.New(logger.Options{ServiceName: "engine-test"})
	dbClient := db.NewFromConn(dbtest.Open(t))

	cases := map[string]Params{
		"config":   {Logger: logg, DB: dbClient},
		"logger":   {Config: cfg, DB: dbClient},
		"database": {Config: cfg, Logger: logg},
		"redis":    {Config: cfg, Logger: logg, DB: dbClient},
	}
	for name, params := range cases {
		t.Run(name, func(t *testing.T) {
			eng, err := New(context.Background(), params)
			require.Error(t, err)
			require.Contains(t, err.Error(), name)
			require.Nil(t, eng)
		})
	}
}

func TestBuildSquareSkipsWithoutToken(t *testing.T) {
	cfg := &config.Config{FeatureFlags: config.FeatureFlagsConfig{SquareTransport: true}}
	client, err := buildSquare(context.Background(), cfg, logger.New(logger.Options{ServiceName: "engine-test"}))
	require.NoError(t, err)
	require.Nil(t, client)
}

func TestBuildReporterDisabled(t *testing.T) {
	reporter, err := buildReporter(&config.Config{}, nil)
	require.NoError(t, err)
	require.Nil(t, reporter)
}
