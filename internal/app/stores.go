package app

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"go.uber.org/zap"

	"github.com/hxse/pyo3-quant-sub000/internal/storage"
	chstore "github.com/hxse/pyo3-quant-sub000/internal/storage/clickhouse"
	"github.com/hxse/pyo3-quant-sub000/internal/storage/memory"
	"github.com/hxse/pyo3-quant-sub000/internal/storage/migrations"
	pgstore "github.com/hxse/pyo3-quant-sub000/internal/storage/postgres"
)

// ErrMissingDSN is returned when database mode is selected without both DSNs.
var ErrMissingDSN = errors.New("--postgres-dsn and --clickhouse-dsn are required (use --use-memory for in-memory storage)")

// StoreConfig selects and configures the storage backend.
type StoreConfig struct {
	PostgresDSN   string
	ClickhouseDSN string
	UseMemory     bool
	Migrate       bool
	MaxConns      int
}

// RegisterStoreFlags binds StoreConfig fields to fs with environment defaults.
func RegisterStoreFlags(fs *flag.FlagSet) *StoreConfig {
	cfg := &StoreConfig{}
	fs.StringVar(&cfg.PostgresDSN, "postgres-dsn", Env("POSTGRES_DSN", ""), "PostgreSQL connection string")
	fs.StringVar(&cfg.ClickhouseDSN, "clickhouse-dsn", Env("CLICKHOUSE_DSN", ""), "ClickHouse connection string")
	fs.BoolVar(&cfg.UseMemory, "use-memory", EnvBool("USE_MEMORY", false), "Use in-memory storage instead of PostgreSQL/ClickHouse")
	fs.BoolVar(&cfg.Migrate, "migrate", EnvBool("MIGRATE", true), "Apply embedded migrations on startup")
	fs.IntVar(&cfg.MaxConns, "postgres-max-conns", EnvInt("POSTGRES_MAX_CONNS", 0), "PostgreSQL pool size (0 = driver default)")
	return cfg
}

// Stores holds all storage implementations.
type Stores struct {
	Runs       storage.RunStore
	Trades     storage.TradeStore
	Ledgers    storage.LedgerStore
	Bars       storage.BarStore
	Aggregates storage.SweepAggregateStore

	Memory bool
}

// NewMemoryStores returns a fresh in-memory store set.
func NewMemoryStores() *Stores {
	return &Stores{
		Runs:       memory.NewRunStore(),
		Trades:     memory.NewTradeStore(),
		Ledgers:    memory.NewLedgerStore(),
		Bars:       memory.NewBarStore(),
		Aggregates: memory.NewSweepAggregateStore(),
		Memory:     true,
	}
}

// OpenStores creates all stores. PostgreSQL keeps run summaries and trades,
// ClickHouse keeps bars, ledger rows and sweep aggregates. The returned
// cleanup closes every connection.
func OpenStores(ctx context.Context, cfg StoreConfig, logger *zap.Logger) (*Stores, func(), error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.UseMemory {
		logger.Info("using in-memory storage")
		return NewMemoryStores(), func() {}, nil
	}
	if cfg.PostgresDSN == "" || cfg.ClickhouseDSN == "" {
		return nil, nil, ErrMissingDSN
	}

	// PostgreSQL
	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN, int32(cfg.MaxConns))
	if err != nil {
		return nil, nil, err
	}
	if cfg.Migrate {
		applied, err := migrations.RunPostgresMigrations(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("postgres migrations: %w", err)
		}
		logger.Info("postgres migrations applied", zap.Strings("files", applied))
	}

	// ClickHouse
	if cfg.Migrate {
		if err := chstore.EnsureDatabase(ctx, cfg.ClickhouseDSN); err != nil {
			pool.Close()
			return nil, nil, err
		}
	}
	chConn, err := chstore.NewConn(ctx, cfg.ClickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
	}
	if cfg.Migrate {
		applied, err := migrations.RunClickhouseMigrations(ctx, chConn)
		if err != nil {
			chConn.Close()
			pool.Close()
			return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		logger.Info("clickhouse migrations applied", zap.Strings("files", applied))
	}

	stores := &Stores{
		Runs:       pgstore.NewRunStore(pool),
		Trades:     pgstore.NewTradeStore(pool),
		Bars:       chstore.NewBarStore(chConn),
		Ledgers:    chstore.NewLedgerStore(chConn),
		Aggregates: chstore.NewSweepAggregateStore(chConn),
	}

	cleanup := func() {
		if err := chConn.Close(); err != nil {
			logger.Warn("close clickhouse", zap.Error(err))
		}
		pool.Close()
	}
	return stores, cleanup, nil
}
