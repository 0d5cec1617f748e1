package storage

import (
	"context"

	"github.com/hxse/pyo3-quant-sub000/internal/domain"
)

// RunStore provides access to backtest_runs storage.
type RunStore interface {
	// Insert adds a new run summary. Returns ErrDuplicateKey if run_id exists.
	Insert(ctx context.Context, r *domain.RunRecord) error

	// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, runID string) (*domain.RunRecord, error)

	// GetByJob retrieves all runs of a sweep job, ordered by run_id ASC.
	GetByJob(ctx context.Context, jobID string) ([]*domain.RunRecord, error)

	// GetBySymbol retrieves all runs for a symbol/timeframe, ordered by created_at ASC.
	GetBySymbol(ctx context.Context, symbol, timeframe string) ([]*domain.RunRecord, error)
}

// TradeStore provides access to backtest_trades storage.
type TradeStore interface {
	// InsertBulk adds all trades of one run atomically.
	// Fails entire batch on duplicate (run_id, seq).
	InsertBulk(ctx context.Context, trades []*domain.StoredTrade) error

	// GetByRunID retrieves the trades of a run ordered by seq ASC.
	GetByRunID(ctx context.Context, runID string) ([]*domain.StoredTrade, error)
}

// LedgerStore provides access to the per-bar ledger_rows storage.
type LedgerStore interface {
	// InsertLedger stores every row of a run's ledger.
	// Returns ErrDuplicateKey if rows for run_id already exist.
	InsertLedger(ctx context.Context, runID string, lg *domain.Ledger) error

	// GetLedger rebuilds a run's ledger ordered by bar index.
	// Optional column names are not stored; callers restore them from the run's Params.
	// Returns ErrNotFound if the run has no rows.
	GetLedger(ctx context.Context, runID string) (*domain.Ledger, error)
}

// BarStore provides access to input OHLCV bars.
type BarStore interface {
	// InsertBulk adds multiple bars. Fails entire batch on duplicate (symbol, timeframe, time_ms).
	InsertBulk(ctx context.Context, bars []*domain.OHLCV) error

	// GetBySymbol retrieves all bars for a symbol/timeframe ordered by time ASC.
	GetBySymbol(ctx context.Context, symbol, timeframe string) ([]*domain.OHLCV, error)

	// GetByTimeRange retrieves bars within [start, end] (inclusive).
	GetByTimeRange(ctx context.Context, symbol, timeframe string, start, end int64) ([]*domain.OHLCV, error)
}

// SweepAggregateStore provides access to sweep_aggregates storage.
type SweepAggregateStore interface {
	// InsertBulk adds multiple aggregates atomically. Fails entire batch on duplicate (job_id, metric).
	InsertBulk(ctx context.Context, aggregates []*domain.SweepAggregate) error

	// GetByJob retrieves all aggregates of a job ordered by metric ASC.
	GetByJob(ctx context.Context, jobID string) ([]*domain.SweepAggregate, error)
}
