package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/hxse/pyo3-quant-sub000/internal/domain"
	"github.com/hxse/pyo3-quant-sub000/internal/storage"
)

// RunStore implements storage.RunStore using PostgreSQL.
// Params and Performance are stored as JSONB documents.
type RunStore struct {
	pool *Pool
}

// NewRunStore creates a new RunStore.
func NewRunStore(pool *Pool) *RunStore {
	return &RunStore{pool: pool}
}

var _ storage.RunStore = (*RunStore)(nil)

// runColumns is the read projection. total_return, max_drawdown and
// sharpe_ratio are denormalized on insert for ranking queries only.
const runColumns = `
	run_id, symbol, timeframe, job_id,
	params, bar_count, trade_count, first_bar_ms, last_bar_ms,
	performance, created_at`

// Insert adds a new run summary. Returns ErrDuplicateKey if run_id exists.
func (s *RunStore) Insert(ctx context.Context, r *domain.RunRecord) error {
	if r == nil || r.RunID == "" {
		return storage.ErrInvalidInput
	}

	params, err := json.Marshal(r.Params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	perf, err := json.Marshal(r.Performance)
	if err != nil {
		return fmt.Errorf("encode performance: %w", err)
	}

	query := `
		INSERT INTO backtest_runs (
			run_id, symbol, timeframe, job_id,
			params, bar_count, trade_count, first_bar_ms, last_bar_ms,
			performance, total_return, max_drawdown, sharpe_ratio,
			created_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $9,
			$10, $11, $12, $13,
			$14
		)
	`

	_, err = s.pool.Exec(ctx, query,
		r.RunID, r.Symbol, r.Timeframe, r.JobID,
		params, r.BarCount, r.TradeCount, r.FirstBarMs, r.LastBarMs,
		perf, r.Performance.TotalReturn, r.Performance.MaxDrawdown, r.Performance.SharpeRatio,
		r.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert backtest run: %w", err)
	}
	return nil
}

// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
func (s *RunStore) GetByID(ctx context.Context, runID string) (*domain.RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM backtest_runs WHERE run_id = $1`

	r, err := scanRun(s.pool.QueryRow(ctx, query, runID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get backtest run by id: %w", err)
	}
	return r, nil
}

// GetByJob retrieves all runs of a sweep job, ordered by run_id ASC.
func (s *RunStore) GetByJob(ctx context.Context, jobID string) ([]*domain.RunRecord, error) {
	query := `SELECT ` + runColumns + `
		FROM backtest_runs
		WHERE job_id = $1
		ORDER BY run_id ASC`

	rows, err := s.pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("get backtest runs by job: %w", err)
	}
	defer rows.Close()

	return scanRuns(rows)
}

// GetBySymbol retrieves all runs for a symbol/timeframe, ordered by created_at ASC.
func (s *RunStore) GetBySymbol(ctx context.Context, symbol, timeframe string) ([]*domain.RunRecord, error) {
	query := `SELECT ` + runColumns + `
		FROM backtest_runs
		WHERE symbol = $1 AND timeframe = $2
		ORDER BY created_at ASC, run_id ASC`

	rows, err := s.pool.Query(ctx, query, symbol, timeframe)
	if err != nil {
		return nil, fmt.Errorf("get backtest runs by symbol: %w", err)
	}
	defer rows.Close()

	return scanRuns(rows)
}

func scanRun(row pgx.Row) (*domain.RunRecord, error) {
	var (
		r            domain.RunRecord
		params, perf []byte
	)

	err := row.Scan(
		&r.RunID, &r.Symbol, &r.Timeframe, &r.JobID,
		&params, &r.BarCount, &r.TradeCount, &r.FirstBarMs, &r.LastBarMs,
		&perf, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(params, &r.Params); err != nil {
		return nil, fmt.Errorf("decode params of run %s: %w", r.RunID, err)
	}
	if err := json.Unmarshal(perf, &r.Performance); err != nil {
		return nil, fmt.Errorf("decode performance of run %s: %w", r.RunID, err)
	}
	return &r, nil
}

func scanRuns(rows pgx.Rows) ([]*domain.RunRecord, error) {
	var runs []*domain.RunRecord

	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan backtest run row: %w", err)
		}
		runs = append(runs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backtest run rows: %w", err)
	}

	return runs, nil
}
