package domain

import "math"

// Ledger column names.
const (
	ColCurrentPosition = "current_position"
	ColFrameState      = "frame_state"
	ColRiskInBarDir    = "risk_in_bar_direction"
	ColBalance         = "balance"
	ColEquity          = "equity"
	ColPeakEquity      = "peak_equity"
	ColCurrentDrawdown = "current_drawdown"
	ColTradePnlPct     = "trade_pnl_pct"
	ColTotalReturnPct  = "total_return_pct"
	ColFee             = "fee"
	ColFeeCum          = "fee_cum"
	ColEntryLongPrice  = "entry_long_price"
	ColEntryShortPrice = "entry_short_price"
	ColExitLongPrice   = "exit_long_price"
	ColExitShortPrice  = "exit_short_price"
	ColSLPctPrice      = "sl_pct_price"
	ColTPPctPrice      = "tp_pct_price"
	ColTSLPctPrice     = "tsl_pct_price"
	ColATR             = "atr"
	ColSLATRPrice      = "sl_atr_price"
	ColTPATRPrice      = "tp_atr_price"
	ColTSLATRPrice     = "tsl_atr_price"
	ColTSLPSARPrice    = "tsl_psar_price"
	ColHasLeadingNaN   = "has_leading_nan"
	ColPause           = "pause"
)

// FixedColumns are present in every ledger, in output order.
var FixedColumns = []string{
	ColCurrentPosition,
	ColBalance,
	ColEquity,
	ColPeakEquity,
	ColCurrentDrawdown,
	ColTradePnlPct,
	ColTotalReturnPct,
	ColFee,
	ColFeeCum,
	ColEntryLongPrice,
	ColEntryShortPrice,
	ColExitLongPrice,
	ColExitShortPrice,
	ColRiskInBarDir,
	ColFrameState,
}

// LedgerRow is the per-bar output of the engine.
// Prices that do not apply to the bar are NaN.
type LedgerRow struct {
	CurrentPosition PositionCode  // decision at close
	FrameState      PositionState // what executed on the bar
	RiskInBarDir    int8          // 1 long risk exit, -1 short risk exit, 0 none

	Balance         float64
	Equity          float64
	PeakEquity      float64
	CurrentDrawdown float64
	TradePnlPct     float64 // NaN unless a trade closed on this bar
	TotalReturnPct  float64
	Fee             float64
	FeeCum          float64

	EntryLongPrice  float64
	EntryShortPrice float64
	ExitLongPrice   float64
	ExitShortPrice  float64

	SLPctPrice   float64
	TPPctPrice   float64
	TSLPctPrice  float64
	ATR          float64
	SLATRPrice   float64
	TPATRPrice   float64
	TSLATRPrice  float64
	TSLPSARPrice float64
}

// NewLedgerRow returns a row with every optional price set to NaN.
func NewLedgerRow() LedgerRow {
	nan := math.NaN()
	return LedgerRow{
		TradePnlPct:     nan,
		EntryLongPrice:  nan,
		EntryShortPrice: nan,
		ExitLongPrice:   nan,
		ExitShortPrice:  nan,
		SLPctPrice:      nan,
		TPPctPrice:      nan,
		TSLPctPrice:     nan,
		ATR:             nan,
		SLATRPrice:      nan,
		TPATRPrice:      nan,
		TSLATRPrice:     nan,
		TSLPSARPrice:    nan,
	}
}

// Ledger is the complete output table of one run.
type Ledger struct {
	Rows []LedgerRow

	// Optional holds the names of optional risk columns present in this ledger.
	Optional []string

	// HasLeadingNaN is copied from the input frame; nil when absent there.
	HasLeadingNaN []bool

	// Pause is set when drawdown pause control ran.
	Pause []bool
}

// Len returns the number of rows.
func (l *Ledger) Len() int {
	return len(l.Rows)
}

// Columns returns all column names in output order.
func (l *Ledger) Columns() []string {
	cols := make([]string, 0, len(FixedColumns)+len(l.Optional)+2)
	cols = append(cols, FixedColumns...)
	cols = append(cols, l.Optional...)
	if l.HasLeadingNaN != nil {
		cols = append(cols, ColHasLeadingNaN)
	}
	if l.Pause != nil {
		cols = append(cols, ColPause)
	}
	return cols
}

// HasColumn reports whether name is part of this ledger.
func (l *Ledger) HasColumn(name string) bool {
	for _, c := range l.Columns() {
		if c == name {
			return true
		}
	}
	return false
}

// Float returns a numeric column by name. Boolean columns are encoded 0/1.
// ok is false when the column is not part of this ledger.
func (l *Ledger) Float(name string) (col []float64, ok bool) {
	if !l.HasColumn(name) {
		return nil, false
	}
	col = make([]float64, len(l.Rows))
	switch name {
	case ColHasLeadingNaN:
		for i, v := range l.HasLeadingNaN {
			col[i] = boolFloat(v)
		}
		return col, true
	case ColPause:
		for i, v := range l.Pause {
			col[i] = boolFloat(v)
		}
		return col, true
	}
	get := rowAccessor(name)
	for i := range l.Rows {
		col[i] = get(&l.Rows[i])
	}
	return col, true
}

func boolFloat(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

func rowAccessor(name string) func(*LedgerRow) float64 {
	switch name {
	case ColCurrentPosition:
		return func(r *LedgerRow) float64 { return float64(r.CurrentPosition) }
	case ColFrameState:
		return func(r *LedgerRow) float64 { return float64(r.FrameState) }
	case ColRiskInBarDir:
		return func(r *LedgerRow) float64 { return float64(r.RiskInBarDir) }
	case ColBalance:
		return func(r *LedgerRow) float64 { return r.Balance }
	case ColEquity:
		return func(r *LedgerRow) float64 { return r.Equity }
	case ColPeakEquity:
		return func(r *LedgerRow) float64 { return r.PeakEquity }
	case ColCurrentDrawdown:
		return func(r *LedgerRow) float64 { return r.CurrentDrawdown }
	case ColTradePnlPct:
		return func(r *LedgerRow) float64 { return r.TradePnlPct }
	case ColTotalReturnPct:
		return func(r *LedgerRow) float64 { return r.TotalReturnPct }
	case ColFee:
		return func(r *LedgerRow) float64 { return r.Fee }
	case ColFeeCum:
		return func(r *LedgerRow) float64 { return r.FeeCum }
	case ColEntryLongPrice:
		return func(r *LedgerRow) float64 { return r.EntryLongPrice }
	case ColEntryShortPrice:
		return func(r *LedgerRow) float64 { return r.EntryShortPrice }
	case ColExitLongPrice:
		return func(r *LedgerRow) float64 { return r.ExitLongPrice }
	case ColExitShortPrice:
		return func(r *LedgerRow) float64 { return r.ExitShortPrice }
	case ColSLPctPrice:
		return func(r *LedgerRow) float64 { return r.SLPctPrice }
	case ColTPPctPrice:
		return func(r *LedgerRow) float64 { return r.TPPctPrice }
	case ColTSLPctPrice:
		return func(r *LedgerRow) float64 { return r.TSLPctPrice }
	case ColATR:
		return func(r *LedgerRow) float64 { return r.ATR }
	case ColSLATRPrice:
		return func(r *LedgerRow) float64 { return r.SLATRPrice }
	case ColTPATRPrice:
		return func(r *LedgerRow) float64 { return r.TPATRPrice }
	case ColTSLATRPrice:
		return func(r *LedgerRow) float64 { return r.TSLATRPrice }
	case ColTSLPSARPrice:
		return func(r *LedgerRow) float64 { return r.TSLPSARPrice }
	}
	return func(*LedgerRow) float64 { return math.NaN() }
}

// SetFloat writes a numeric column by name, the inverse of Float.
// Integer columns are truncated, boolean columns treat non-zero as true.
// Rows must already be allocated; it returns false for unknown names or a
// length mismatch.
func (l *Ledger) SetFloat(name string, col []float64) bool {
	if len(col) != len(l.Rows) {
		return false
	}
	switch name {
	case ColHasLeadingNaN:
		l.HasLeadingNaN = floatBools(col)
		return true
	case ColPause:
		l.Pause = floatBools(col)
		return true
	}
	set := rowSetter(name)
	if set == nil {
		return false
	}
	for i := range l.Rows {
		set(&l.Rows[i], col[i])
	}
	return true
}

func floatBools(col []float64) []bool {
	out := make([]bool, len(col))
	for i, v := range col {
		out[i] = v != 0
	}
	return out
}

func rowSetter(name string) func(*LedgerRow, float64) {
	switch name {
	case ColCurrentPosition:
		return func(r *LedgerRow, v float64) { r.CurrentPosition = PositionCode(v) }
	case ColFrameState:
		return func(r *LedgerRow, v float64) { r.FrameState = PositionState(v) }
	case ColRiskInBarDir:
		return func(r *LedgerRow, v float64) { r.RiskInBarDir = int8(v) }
	case ColBalance:
		return func(r *LedgerRow, v float64) { r.Balance = v }
	case ColEquity:
		return func(r *LedgerRow, v float64) { r.Equity = v }
	case ColPeakEquity:
		return func(r *LedgerRow, v float64) { r.PeakEquity = v }
	case ColCurrentDrawdown:
		return func(r *LedgerRow, v float64) { r.CurrentDrawdown = v }
	case ColTradePnlPct:
		return func(r *LedgerRow, v float64) { r.TradePnlPct = v }
	case ColTotalReturnPct:
		return func(r *LedgerRow, v float64) { r.TotalReturnPct = v }
	case ColFee:
		return func(r *LedgerRow, v float64) { r.Fee = v }
	case ColFeeCum:
		return func(r *LedgerRow, v float64) { r.FeeCum = v }
	case ColEntryLongPrice:
		return func(r *LedgerRow, v float64) { r.EntryLongPrice = v }
	case ColEntryShortPrice:
		return func(r *LedgerRow, v float64) { r.EntryShortPrice = v }
	case ColExitLongPrice:
		return func(r *LedgerRow, v float64) { r.ExitLongPrice = v }
	case ColExitShortPrice:
		return func(r *LedgerRow, v float64) { r.ExitShortPrice = v }
	case ColSLPctPrice:
		return func(r *LedgerRow, v float64) { r.SLPctPrice = v }
	case ColTPPctPrice:
		return func(r *LedgerRow, v float64) { r.TPPctPrice = v }
	case ColTSLPctPrice:
		return func(r *LedgerRow, v float64) { r.TSLPctPrice = v }
	case ColATR:
		return func(r *LedgerRow, v float64) { r.ATR = v }
	case ColSLATRPrice:
		return func(r *LedgerRow, v float64) { r.SLATRPrice = v }
	case ColTPATRPrice:
		return func(r *LedgerRow, v float64) { r.TPATRPrice = v }
	case ColTSLATRPrice:
		return func(r *LedgerRow, v float64) { r.TSLATRPrice = v }
	case ColTSLPSARPrice:
		return func(r *LedgerRow, v float64) { r.TSLPSARPrice = v }
	}
	return nil
}

// IsOptionalColumn reports whether name is one of the optional risk columns.
func IsOptionalColumn(name string) bool {
	switch name {
	case ColSLPctPrice, ColTPPctPrice, ColTSLPctPrice, ColATR,
		ColSLATRPrice, ColTPATRPrice, ColTSLATRPrice, ColTSLPSARPrice:
		return true
	}
	return false
}

// OptionalColumns lists the optional risk columns enabled by p, in output order.
func OptionalColumns(p Params) []string {
	var cols []string
	if p.SLPctEnabled() {
		cols = append(cols, ColSLPctPrice)
	}
	if p.TPPctEnabled() {
		cols = append(cols, ColTPPctPrice)
	}
	if p.TSLPctEnabled() {
		cols = append(cols, ColTSLPctPrice)
	}
	if p.ATREnabled() {
		cols = append(cols, ColATR)
	}
	if p.SLATREnabled() {
		cols = append(cols, ColSLATRPrice)
	}
	if p.TPATREnabled() {
		cols = append(cols, ColTPATRPrice)
	}
	if p.TSLATREnabled() {
		cols = append(cols, ColTSLATRPrice)
	}
	if p.PSAREnabled() {
		cols = append(cols, ColTSLPSARPrice)
	}
	return cols
}
