package clickhouse

import (
	"context"
	"fmt"

	"github.com/hxse/pyo3-quant-sub000/internal/domain"
	"github.com/hxse/pyo3-quant-sub000/internal/storage"
)

// LedgerStore implements storage.LedgerStore using ClickHouse.
// One table row per bar; NaN prices are stored as-is.
type LedgerStore struct {
	conn *Conn
}

// NewLedgerStore creates a new LedgerStore.
func NewLedgerStore(conn *Conn) *LedgerStore {
	return &LedgerStore{conn: conn}
}

var _ storage.LedgerStore = (*LedgerStore)(nil)

const ledgerColumns = `
	bar, current_position, frame_state, risk_in_bar_direction,
	balance, equity, peak_equity, current_drawdown,
	trade_pnl_pct, total_return_pct, fee, fee_cum,
	entry_long_price, entry_short_price, exit_long_price, exit_short_price,
	sl_pct_price, tp_pct_price, tsl_pct_price, atr,
	sl_atr_price, tp_atr_price, tsl_atr_price, tsl_psar_price,
	has_leading_nan, pause`

// InsertLedger stores every row of a run's ledger in one batch.
func (s *LedgerStore) InsertLedger(ctx context.Context, runID string, lg *domain.Ledger) error {
	if runID == "" || lg == nil || lg.Len() == 0 {
		return storage.ErrInvalidInput
	}

	n, err := s.conn.count(ctx, `SELECT count(*) FROM ledger_rows WHERE run_id = ?`, runID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if n > 0 {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO ledger_rows (run_id, `+ledgerColumns+`)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for i := range lg.Rows {
		r := &lg.Rows[i]
		err := batch.Append(
			runID, uint32(i), int8(r.CurrentPosition), uint8(r.FrameState), r.RiskInBarDir,
			r.Balance, r.Equity, r.PeakEquity, r.CurrentDrawdown,
			r.TradePnlPct, r.TotalReturnPct, r.Fee, r.FeeCum,
			r.EntryLongPrice, r.EntryShortPrice, r.ExitLongPrice, r.ExitShortPrice,
			r.SLPctPrice, r.TPPctPrice, r.TSLPctPrice, r.ATR,
			r.SLATRPrice, r.TPATRPrice, r.TSLATRPrice, r.TSLPSARPrice,
			flagAt(lg.HasLeadingNaN, i), flagAt(lg.Pause, i),
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

// GetLedger rebuilds a run's ledger ordered by bar.
// has_leading_nan and pause are restored when the first row carries them.
func (s *LedgerStore) GetLedger(ctx context.Context, runID string) (*domain.Ledger, error) {
	rows, err := s.conn.Query(ctx, `SELECT `+ledgerColumns+`
		FROM ledger_rows
		WHERE run_id = ?
		ORDER BY bar ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query ledger rows: %w", err)
	}
	defer rows.Close()

	lg := &domain.Ledger{}
	var leading, pause []*uint8

	for rows.Next() {
		var (
			r          domain.LedgerRow
			bar        uint32
			pos        int8
			state      uint8
			hasLeading *uint8
			paused     *uint8
		)
		err := rows.Scan(
			&bar, &pos, &state, &r.RiskInBarDir,
			&r.Balance, &r.Equity, &r.PeakEquity, &r.CurrentDrawdown,
			&r.TradePnlPct, &r.TotalReturnPct, &r.Fee, &r.FeeCum,
			&r.EntryLongPrice, &r.EntryShortPrice, &r.ExitLongPrice, &r.ExitShortPrice,
			&r.SLPctPrice, &r.TPPctPrice, &r.TSLPctPrice, &r.ATR,
			&r.SLATRPrice, &r.TPATRPrice, &r.TSLATRPrice, &r.TSLPSARPrice,
			&hasLeading, &paused,
		)
		if err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		if int(bar) != len(lg.Rows) {
			return nil, fmt.Errorf("ledger of run %s has a gap at bar %d", runID, len(lg.Rows))
		}
		r.CurrentPosition = domain.PositionCode(pos)
		r.FrameState = domain.PositionState(state)
		lg.Rows = append(lg.Rows, r)
		leading = append(leading, hasLeading)
		pause = append(pause, paused)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger rows: %w", err)
	}
	if len(lg.Rows) == 0 {
		return nil, storage.ErrNotFound
	}

	lg.HasLeadingNaN = flags(leading)
	lg.Pause = flags(pause)
	return lg, nil
}

// flagAt encodes an optional boolean column as Nullable(UInt8).
func flagAt(col []bool, i int) *uint8 {
	if col == nil {
		return nil
	}
	var v uint8
	if col[i] {
		v = 1
	}
	return &v
}

func flags(col []*uint8) []bool {
	if len(col) == 0 || col[0] == nil {
		return nil
	}
	out := make([]bool, len(col))
	for i, v := range col {
		out[i] = v != nil && *v == 1
	}
	return out
}
