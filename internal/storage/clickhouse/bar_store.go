package clickhouse

import (
	"context"
	"fmt"

	"github.com/hxse/pyo3-quant-sub000/internal/domain"
	"github.com/hxse/pyo3-quant-sub000/internal/storage"
)

// BarStore implements storage.BarStore using ClickHouse.
type BarStore struct {
	conn *Conn
}

// NewBarStore creates a new BarStore.
func NewBarStore(conn *Conn) *BarStore {
	return &BarStore{conn: conn}
}

var _ storage.BarStore = (*BarStore)(nil)

// InsertBulk adds multiple bars. Fails entire batch on duplicate (symbol, timeframe, time_ms).
// MergeTree does not enforce keys, so duplicates are checked before the batch is sent.
func (s *BarStore) InsertBulk(ctx context.Context, bars []*domain.OHLCV) error {
	if len(bars) == 0 {
		return nil
	}

	type key struct {
		symbol, timeframe string
		timeMs            int64
	}
	seen := make(map[key]struct{}, len(bars))
	for _, b := range bars {
		if b == nil || b.Symbol == "" || b.Timeframe == "" {
			return storage.ErrInvalidInput
		}
		k := key{b.Symbol, b.Timeframe, b.TimeMs}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	for _, b := range bars {
		n, err := s.conn.count(ctx, `
			SELECT count(*) FROM bars
			WHERE symbol = ? AND timeframe = ? AND time_ms = ?
		`, b.Symbol, b.Timeframe, b.TimeMs)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if n > 0 {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO bars (symbol, timeframe, time_ms, open, high, low, close, volume)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, b := range bars {
		if err := batch.Append(b.Symbol, b.Timeframe, b.TimeMs, b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetBySymbol retrieves all bars for a symbol/timeframe ordered by time ASC.
func (s *BarStore) GetBySymbol(ctx context.Context, symbol, timeframe string) ([]*domain.OHLCV, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT symbol, timeframe, time_ms, open, high, low, close, volume
		FROM bars
		WHERE symbol = ? AND timeframe = ?
		ORDER BY time_ms ASC
	`, symbol, timeframe)
	if err != nil {
		return nil, fmt.Errorf("query bars by symbol: %w", err)
	}
	defer rows.Close()

	return scanBars(rows)
}

// GetByTimeRange retrieves bars within [start, end] (inclusive).
func (s *BarStore) GetByTimeRange(ctx context.Context, symbol, timeframe string, start, end int64) ([]*domain.OHLCV, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT symbol, timeframe, time_ms, open, high, low, close, volume
		FROM bars
		WHERE symbol = ? AND timeframe = ? AND time_ms >= ? AND time_ms <= ?
		ORDER BY time_ms ASC
	`, symbol, timeframe, start, end)
	if err != nil {
		return nil, fmt.Errorf("query bars by time range: %w", err)
	}
	defer rows.Close()

	return scanBars(rows)
}

func scanBars(rows chRows) ([]*domain.OHLCV, error) {
	var bars []*domain.OHLCV

	for rows.Next() {
		var b domain.OHLCV
		if err := rows.Scan(&b.Symbol, &b.Timeframe, &b.TimeMs, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar row: %w", err)
		}
		bars = append(bars, &b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bar rows: %w", err)
	}
	return bars, nil
}
