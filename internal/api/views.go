package api

import (
	"math"
	"time"

	"github.com/hxse/pyo3-quant-sub000/internal/decision"
	"github.com/hxse/pyo3-quant-sub000/internal/domain"
)

// RunView is the JSON form of a stored run.
type RunView struct {
	RunID       string             `json:"run_id"`
	Symbol      string             `json:"symbol"`
	Timeframe   string             `json:"timeframe"`
	JobID       string             `json:"job_id,omitempty"`
	Cached      bool               `json:"cached"`
	BarCount    int                `json:"bar_count"`
	TradeCount  int                `json:"trade_count"`
	FirstBarMs  int64              `json:"first_bar_ms"`
	LastBarMs   int64              `json:"last_bar_ms"`
	Params      domain.Params      `json:"params"`
	Performance domain.Performance `json:"performance"`
	CreatedAt   time.Time          `json:"created_at"`
}

func runView(rec *domain.RunRecord, cached bool) RunView {
	return RunView{
		RunID:       rec.RunID,
		Symbol:      rec.Symbol,
		Timeframe:   rec.Timeframe,
		JobID:       rec.JobID,
		Cached:      cached,
		BarCount:    rec.BarCount,
		TradeCount:  rec.TradeCount,
		FirstBarMs:  rec.FirstBarMs,
		LastBarMs:   rec.LastBarMs,
		Params:      rec.Params,
		Performance: rec.Performance,
		CreatedAt:   rec.CreatedAt,
	}
}

// TradeView is the JSON form of a stored trade.
type TradeView struct {
	Seq        int     `json:"seq"`
	Side       string  `json:"side"`
	EntryBar   int     `json:"entry_bar"`
	ExitBar    int     `json:"exit_bar"`
	EntryPrice float64 `json:"entry_price"`
	ExitPrice  float64 `json:"exit_price"`
	ExitReason string  `json:"exit_reason"`
	InBar      bool    `json:"in_bar"`
	PnlPct     float64 `json:"pnl_pct"`
	Fees       float64 `json:"fees"`
}

func tradeView(t *domain.StoredTrade) TradeView {
	return TradeView{
		Seq:        t.Seq,
		Side:       t.Side.String(),
		EntryBar:   t.EntryBar,
		ExitBar:    t.ExitBar,
		EntryPrice: t.EntryPrice,
		ExitPrice:  t.ExitPrice,
		ExitReason: t.ExitReason,
		InBar:      t.InBar,
		PnlPct:     t.PnlPct,
		Fees:       t.Fees,
	}
}

// RowView is the JSON form of one ledger row. NaN prices are null.
type RowView struct {
	Bar             int      `json:"bar"`
	CurrentPosition int8     `json:"current_position"`
	FrameState      string   `json:"frame_state"`
	RiskInBarDir    int8     `json:"risk_in_bar_direction"`
	Balance         float64  `json:"balance"`
	Equity          float64  `json:"equity"`
	PeakEquity      float64  `json:"peak_equity"`
	CurrentDrawdown float64  `json:"current_drawdown"`
	TradePnlPct     *float64 `json:"trade_pnl_pct"`
	TotalReturnPct  float64  `json:"total_return_pct"`
	Fee             float64  `json:"fee"`
	FeeCum          float64  `json:"fee_cum"`
	EntryLongPrice  *float64 `json:"entry_long_price"`
	EntryShortPrice *float64 `json:"entry_short_price"`
	ExitLongPrice   *float64 `json:"exit_long_price"`
	ExitShortPrice  *float64 `json:"exit_short_price"`
	SLPctPrice      *float64 `json:"sl_pct_price,omitempty"`
	TPPctPrice      *float64 `json:"tp_pct_price,omitempty"`
	TSLPctPrice     *float64 `json:"tsl_pct_price,omitempty"`
	ATR             *float64 `json:"atr,omitempty"`
	SLATRPrice      *float64 `json:"sl_atr_price,omitempty"`
	TPATRPrice      *float64 `json:"tp_atr_price,omitempty"`
	TSLATRPrice     *float64 `json:"tsl_atr_price,omitempty"`
	TSLPSARPrice    *float64 `json:"tsl_psar_price,omitempty"`
}

func rowView(i int, r *domain.LedgerRow) RowView {
	return RowView{
		Bar:             i,
		CurrentPosition: int8(r.CurrentPosition),
		FrameState:      r.FrameState.String(),
		RiskInBarDir:    r.RiskInBarDir,
		Balance:         r.Balance,
		Equity:          r.Equity,
		PeakEquity:      r.PeakEquity,
		CurrentDrawdown: r.CurrentDrawdown,
		TradePnlPct:     nullable(r.TradePnlPct),
		TotalReturnPct:  r.TotalReturnPct,
		Fee:             r.Fee,
		FeeCum:          r.FeeCum,
		EntryLongPrice:  nullable(r.EntryLongPrice),
		EntryShortPrice: nullable(r.EntryShortPrice),
		ExitLongPrice:   nullable(r.ExitLongPrice),
		ExitShortPrice:  nullable(r.ExitShortPrice),
		SLPctPrice:      nullable(r.SLPctPrice),
		TPPctPrice:      nullable(r.TPPctPrice),
		TSLPctPrice:     nullable(r.TSLPctPrice),
		ATR:             nullable(r.ATR),
		SLATRPrice:      nullable(r.SLATRPrice),
		TPATRPrice:      nullable(r.TPATRPrice),
		TSLATRPrice:     nullable(r.TSLATRPrice),
		TSLPSARPrice:    nullable(r.TSLPSARPrice),
	}
}

func nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// ledgerColumns returns lg column-wise with NaN as null.
func ledgerColumns(lg *domain.Ledger) map[string][]*float64 {
	cols := make(map[string][]*float64, len(lg.Columns()))
	for _, name := range lg.Columns() {
		values, _ := lg.Float(name)
		out := make([]*float64, len(values))
		for i, v := range values {
			out[i] = nullable(v)
		}
		cols[name] = out
	}
	return cols
}

// CriterionView is one gate criterion.
type CriterionView struct {
	Name      string `json:"name"`
	Threshold string `json:"threshold"`
	Actual    string `json:"actual"`
	Pass      bool   `json:"pass"`
}

// GateView is the JSON form of a deployment gate evaluation.
type GateView struct {
	RunID      string          `json:"run_id"`
	Decision   string          `json:"decision"`
	HasSweep   bool            `json:"has_sweep"`
	GOCriteria []CriterionView `json:"go_criteria"`
	NOGOChecks []CriterionView `json:"nogo_checks"`
}

func gateView(runID string, in *decision.GateInput, res *decision.DecisionResult) GateView {
	v := GateView{
		RunID:      runID,
		Decision:   string(res.Decision),
		GOCriteria: criteria(res.GOCriteria),
		NOGOChecks: criteria(res.NOGOChecks),
	}
	if in != nil {
		v.HasSweep = in.HasSweep
	}
	return v
}

func criteria(in []decision.CriterionResult) []CriterionView {
	out := make([]CriterionView, len(in))
	for i, c := range in {
		out[i] = CriterionView{Name: c.Name, Threshold: c.Threshold, Actual: c.Actual, Pass: c.Pass}
	}
	return out
}
