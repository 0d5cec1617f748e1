package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/hxse/pyo3-quant-sub000/internal/storage/migrations"
)

// setupTestDB starts a disposable PostgreSQL 15 server with the embedded
// migrations applied. Skipped under -short.
func setupTestDB(t *testing.T) *Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("backtest"),
		tcpostgres.WithUsername("backtest"),
		tcpostgres.WithPassword("backtest"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err, "start postgres container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := NewPool(ctx, dsn, 4)
	require.NoError(t, err, "connect")
	t.Cleanup(pool.Close)

	_, err = migrations.RunPostgresMigrations(ctx, pool)
	require.NoError(t, err, "migrate")
	return pool
}
