package clickhouse

import (
	"context"
	"fmt"

	"github.com/hxse/pyo3-quant-sub000/internal/domain"
	"github.com/hxse/pyo3-quant-sub000/internal/storage"
)

// SweepAggregateStore implements storage.SweepAggregateStore using ClickHouse.
type SweepAggregateStore struct {
	conn *Conn
}

// NewSweepAggregateStore creates a new SweepAggregateStore.
func NewSweepAggregateStore(conn *Conn) *SweepAggregateStore {
	return &SweepAggregateStore{conn: conn}
}

var _ storage.SweepAggregateStore = (*SweepAggregateStore)(nil)

// InsertBulk adds multiple aggregates atomically. Fails entire batch on any duplicate.
// ReplacingMergeTree would silently replace, so existing keys are checked first.
func (s *SweepAggregateStore) InsertBulk(ctx context.Context, aggregates []*domain.SweepAggregate) error {
	if len(aggregates) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(aggregates))
	for _, a := range aggregates {
		if a == nil || a.JobID == "" || a.Metric == "" {
			return storage.ErrInvalidInput
		}
		key := a.JobID + "|" + a.Metric
		if _, exists := seen[key]; exists {
			return storage.ErrDuplicateKey
		}
		seen[key] = struct{}{}
	}

	for _, a := range aggregates {
		n, err := s.conn.count(ctx, `
			SELECT count(*) FROM sweep_aggregates
			WHERE job_id = ? AND metric = ?
		`, a.JobID, a.Metric)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if n > 0 {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO sweep_aggregates (
			job_id, metric, runs, best_run_id, best_value,
			mean, median, p10, p25, p75, p90, min, max, stddev
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, a := range aggregates {
		err = batch.Append(
			a.JobID, a.Metric, uint32(a.Runs), a.BestRunID, a.BestValue,
			a.Mean, a.Median, a.P10, a.P25, a.P75, a.P90, a.Min, a.Max, a.Stddev,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByJob retrieves all aggregates of a job ordered by metric ASC.
func (s *SweepAggregateStore) GetByJob(ctx context.Context, jobID string) ([]*domain.SweepAggregate, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT
			job_id, metric, runs, best_run_id, best_value,
			mean, median, p10, p25, p75, p90, min, max, stddev
		FROM sweep_aggregates FINAL
		WHERE job_id = ?
		ORDER BY metric ASC
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("query by job: %w", err)
	}
	defer rows.Close()

	return scanSweepAggregates(rows)
}

func scanSweepAggregates(rows chRows) ([]*domain.SweepAggregate, error) {
	var aggregates []*domain.SweepAggregate

	for rows.Next() {
		var (
			a    domain.SweepAggregate
			runs uint32
		)
		err := rows.Scan(
			&a.JobID, &a.Metric, &runs, &a.BestRunID, &a.BestValue,
			&a.Mean, &a.Median, &a.P10, &a.P25, &a.P75, &a.P90, &a.Min, &a.Max, &a.Stddev,
		)
		if err != nil {
			return nil, fmt.Errorf("scan sweep aggregate row: %w", err)
		}
		a.Runs = int(runs)
		aggregates = append(aggregates, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sweep aggregate rows: %w", err)
	}
	return aggregates, nil
}
