// Package risk computes and tracks stop-loss, take-profit and trailing-stop
// price levels for the open position of one run.
package risk

import (
	"math"

	"github.com/hxse/pyo3-quant-sub000/internal/domain"
)

// Levels is the risk snapshot of one bar. NaN means not configured or not
// applicable to the current position.
type Levels struct {
	SLPct  float64
	TPPct  float64
	TSLPct float64
	SLATR  float64
	TPATR  float64
	TSLATR float64
	PSAR   float64

	// Extremum is the running favorable anchor the trailing stops follow.
	Extremum float64
}

// EmptyLevels returns a snapshot with every level inactive.
func EmptyLevels() Levels {
	nan := math.NaN()
	return Levels{
		SLPct: nan, TPPct: nan, TSLPct: nan,
		SLATR: nan, TPATR: nan, TSLATR: nan,
		PSAR: nan, Extremum: nan,
	}
}

// StopLoss returns the effective stop for side: the level closest to
// the entry on the adverse side. NaN when no stop is active.
func (l Levels) StopLoss(side domain.Side) float64 {
	return tighter(side, l.SLPct, l.SLATR)
}

// TakeProfit returns the effective target for side: the level closest to
// the entry on the favorable side.
func (l Levels) TakeProfit(side domain.Side) float64 {
	return tighter(side.Opposite(), l.TPPct, l.TPATR)
}

// TrailingStop returns the effective percentage/ATR trailing stop.
func (l Levels) TrailingStop(side domain.Side) float64 {
	return tighter(side, l.TSLPct, l.TSLATR)
}

// tighter returns max for Long and min for Short, skipping NaN.
func tighter(side domain.Side, a, b float64) float64 {
	switch {
	case math.IsNaN(a):
		return b
	case math.IsNaN(b):
		return a
	case side == domain.Long:
		return math.Max(a, b)
	default:
		return math.Min(a, b)
	}
}

// ratchet moves old toward cand only in the favorable direction.
func ratchet(side domain.Side, old, cand float64) float64 {
	if math.IsNaN(cand) {
		return old
	}
	if math.IsNaN(old) {
		return cand
	}
	if side == domain.Long {
		return math.Max(old, cand)
	}
	return math.Min(old, cand)
}

// Apply copies the snapshot into the risk columns of a ledger row.
func (l Levels) Apply(row *domain.LedgerRow) {
	row.SLPctPrice = l.SLPct
	row.TPPctPrice = l.TPPct
	row.TSLPctPrice = l.TSLPct
	row.SLATRPrice = l.SLATR
	row.TPATRPrice = l.TPATR
	row.TSLATRPrice = l.TSLATR
	row.TSLPSARPrice = l.PSAR
}
