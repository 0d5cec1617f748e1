package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/hxse/pyo3-quant-sub000/internal/domain"
	"github.com/hxse/pyo3-quant-sub000/internal/storage"
)

// TradeStore implements storage.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *Pool
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(pool *Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

var _ storage.TradeStore = (*TradeStore)(nil)

// InsertBulk adds multiple trades atomically. Fails entire batch on any duplicate.
func (s *TradeStore) InsertBulk(ctx context.Context, trades []*domain.StoredTrade) error {
	if len(trades) == 0 {
		return nil
	}

	query := `
		INSERT INTO backtest_trades (
			run_id, seq, side,
			entry_bar, exit_bar, entry_price, exit_price,
			exit_reason, in_bar, pnl_pct, fees
		) VALUES (
			$1, $2, $3,
			$4, $5, $6, $7,
			$8, $9, $10, $11
		)
	`

	return s.pool.inTx(ctx, func(tx pgx.Tx) error {
		for _, t := range trades {
			if t == nil || t.RunID == "" {
				return storage.ErrInvalidInput
			}
			_, err := tx.Exec(ctx, query,
				t.RunID, t.Seq, int16(t.Side),
				t.EntryBar, t.ExitBar, t.EntryPrice, t.ExitPrice,
				t.ExitReason, t.InBar, t.PnlPct, t.Fees,
			)
			if err != nil {
				if isDuplicateKeyError(err) {
					return storage.ErrDuplicateKey
				}
				return fmt.Errorf("insert backtest trade in bulk: %w", err)
			}
		}
		return nil
	})
}

// GetByRunID retrieves the trades of a run ordered by seq ASC.
func (s *TradeStore) GetByRunID(ctx context.Context, runID string) ([]*domain.StoredTrade, error) {
	query := `
		SELECT
			run_id, seq, side,
			entry_bar, exit_bar, entry_price, exit_price,
			exit_reason, in_bar, pnl_pct, fees
		FROM backtest_trades
		WHERE run_id = $1
		ORDER BY seq ASC
	`

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("get backtest trades by run id: %w", err)
	}
	defer rows.Close()

	var trades []*domain.StoredTrade
	for rows.Next() {
		var (
			t    domain.StoredTrade
			side int16
		)
		err := rows.Scan(
			&t.RunID, &t.Seq, &side,
			&t.EntryBar, &t.ExitBar, &t.EntryPrice, &t.ExitPrice,
			&t.ExitReason, &t.InBar, &t.PnlPct, &t.Fees,
		)
		if err != nil {
			return nil, fmt.Errorf("scan backtest trade row: %w", err)
		}
		t.Side = domain.Side(side)
		trades = append(trades, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backtest trade rows: %w", err)
	}

	return trades, nil
}
