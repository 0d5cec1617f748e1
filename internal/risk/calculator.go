package risk

import (
	"math"

	"github.com/hxse/pyo3-quant-sub000/internal/domain"
	"github.com/hxse/pyo3-quant-sub000/internal/indicators"
)

// Calculator owns the risk state of the open position of a single run.
// It is not safe for concurrent use; every run creates its own.
type Calculator struct {
	p   domain.Params
	f   *domain.Frame
	atr []float64

	side     domain.Side
	entryBar int
	levels   Levels

	psar       indicators.PSARState
	psarActive bool
}

// New creates a Calculator over frame f. atr may be nil when no ATR level
// is configured.
func New(p domain.Params, f *domain.Frame, atr []float64) *Calculator {
	return &Calculator{
		p:      p,
		f:      f,
		atr:    atr,
		levels: EmptyLevels(),
	}
}

// Side returns the side the levels belong to, Flat when none.
func (c *Calculator) Side() domain.Side {
	return c.side
}

// Levels returns the current snapshot.
func (c *Calculator) Levels() Levels {
	return c.levels
}

// Reset clears all levels after the position closed.
func (c *Calculator) Reset() {
	c.side = domain.Flat
	c.levels = EmptyLevels()
	c.psarActive = false
}

func (c *Calculator) atrAt(i int) float64 {
	if c.atr == nil || i < 0 || i >= len(c.atr) {
		return math.NaN()
	}
	return c.atr[i]
}

func (c *Calculator) slAnchor(side domain.Side, b domain.Bar) float64 {
	if !c.p.SLAnchorMode {
		return b.Close
	}
	if side == domain.Long {
		return b.Low
	}
	return b.High
}

func (c *Calculator) tpAnchor(side domain.Side, b domain.Bar) float64 {
	if !c.p.TPAnchorMode {
		return b.Close
	}
	if side == domain.Long {
		return b.High
	}
	return b.Low
}

func (c *Calculator) tslAnchor(side domain.Side, b domain.Bar) float64 {
	if !c.p.TSLAnchorMode {
		return b.Close
	}
	if side == domain.Long {
		return b.High
	}
	return b.Low
}

// psarPrices returns the high/low fed into the PSAR recurrence for bar i.
func (c *Calculator) psarPrices(i int) (high, low float64) {
	if !c.p.TSLAnchorMode {
		return c.f.Close[i], c.f.Close[i]
	}
	return c.f.High[i], c.f.Low[i]
}

// Init computes the initial levels for a position filled at entryPrice on
// bar fill. Levels anchored to a bar use the signal bar fill-1.
// It returns false, leaving the calculator flat, when the fill bar's open
// already breaches one of the initial stop or target levels.
func (c *Calculator) Init(side domain.Side, fill int, entryPrice float64) bool {
	c.Reset()
	if fill < 1 || side == domain.Flat {
		return false
	}

	s := side.Sign()
	sig := c.f.Bar(fill - 1)
	open := c.f.Open[fill]
	a := c.atrAt(fill - 1)
	lv := EmptyLevels()

	if c.p.SLPctEnabled() {
		lv.SLPct = entryPrice * (1 - s*c.p.SLPct)
	}
	if c.p.TPPctEnabled() {
		lv.TPPct = entryPrice * (1 + s*c.p.TPPct)
	}
	if c.p.SLATREnabled() && !math.IsNaN(a) {
		lv.SLATR = c.slAnchor(side, sig) - s*a*c.p.SLATR
		if stopHit(side, open, lv.SLATR) {
			return false
		}
	}
	if c.p.TPATREnabled() && !math.IsNaN(a) {
		lv.TPATR = c.tpAnchor(side, sig) + s*a*c.p.TPATR
		if targetHit(side, open, lv.TPATR) {
			return false
		}
	}
	if c.p.TSLPctEnabled() || c.p.TSLATREnabled() {
		lv.Extremum = c.tslAnchor(side, sig)
	}
	if c.p.TSLPctEnabled() {
		lv.TSLPct = lv.Extremum * (1 - s*c.p.TSLPct)
		if stopHit(side, open, lv.TSLPct) {
			return false
		}
	}
	if c.p.TSLATREnabled() && !math.IsNaN(a) {
		lv.TSLATR = lv.Extremum - s*a*c.p.TSLATR
		if stopHit(side, open, lv.TSLATR) {
			return false
		}
	}

	var st indicators.PSARState
	psarActive := false
	if c.p.PSAREnabled() && fill >= 2 {
		dir := indicators.PSARLong
		if side == domain.Short {
			dir = indicators.PSARShort
		}
		ppH, ppL := c.psarPrices(fill - 2)
		pH, pL := c.psarPrices(fill - 1)
		st = indicators.PSARInit(ppH, pH, ppL, pL, c.f.Close[fill-2], dir, c.p.TSLPSARAF0)
		st, _ = indicators.PSARUpdate(st, pH, pL, ppH, ppL, c.p.TSLPSARAFStep, c.p.TSLPSARMaxAF, true)

		// advance onto the fill bar; the SAR value only depends on bars before it
		cH, cL := c.psarPrices(fill)
		st, _ = indicators.PSARUpdate(st, cH, cL, pH, pL, c.p.TSLPSARAFStep, c.p.TSLPSARMaxAF, true)
		if stopHit(side, open, st.SAR) {
			return false
		}
		lv.PSAR = st.SAR
		psarActive = true
	}

	c.side = side
	c.entryBar = fill
	c.levels = lv
	c.psar = st
	c.psarActive = psarActive
	return true
}

// Update advances the trailing levels onto bar i, a bar after the fill.
// Fixed SL/TP levels never move. A NaN ATR keeps the previous ATR level.
func (c *Calculator) Update(i int) {
	if c.side == domain.Flat || i <= c.entryBar {
		return
	}
	side := c.side
	s := side.Sign()

	if c.p.TSLPctEnabled() || c.p.TSLATREnabled() {
		src := i - 1
		if c.p.TSLATRTight {
			src = i
		}
		anchor := c.tslAnchor(side, c.f.Bar(src))
		moved := anchor*s > c.levels.Extremum*s
		if moved {
			c.levels.Extremum = anchor
		}

		if c.p.TSLPctEnabled() {
			c.levels.TSLPct = ratchet(side, c.levels.TSLPct, c.levels.Extremum*(1-s*c.p.TSLPct))
		}
		if c.p.TSLATREnabled() && (moved || c.p.TSLATRTight) {
			if a := c.atrAt(src); !math.IsNaN(a) {
				cand := c.levels.Extremum - s*a*c.p.TSLATR
				c.levels.TSLATR = ratchet(side, c.levels.TSLATR, cand)
			}
		}
	}

	if c.psarActive {
		cH, cL := c.psarPrices(i)
		pH, pL := c.psarPrices(i - 1)
		c.psar, _ = indicators.PSARUpdate(c.psar, cH, cL, pH, pL, c.p.TSLPSARAFStep, c.p.TSLPSARMaxAF, true)
		// the clamp to the previous extreme can pull the raw SAR back
		c.levels.PSAR = ratchet(side, c.levels.PSAR, c.psar.SAR)
	}
}

// Check tests bar i against the active levels.
//
// SL takes precedence over TP, TP over the trailing stops. An SL or TP hit
// fills in-bar at its level when the matching exit-in-bar flag is set;
// every other hit exits at the next bar's open.
func (c *Calculator) Check(i int) Trigger {
	var t Trigger
	if c.side == domain.Flat {
		return t
	}
	side := c.side
	b := c.f.Bar(i)
	sl := c.levels.StopLoss(side)
	tp := c.levels.TakeProfit(side)

	t.SL = stopHit(side, adverse(side, b, c.p.SLTriggerMode), sl)
	t.TP = targetHit(side, favorable(side, b, c.p.TPTriggerMode), tp)
	tslPrice := adverse(side, b, c.p.TSLTriggerMode)
	t.TSL = stopHit(side, tslPrice, c.levels.TrailingStop(side))
	t.PSAR = stopHit(side, tslPrice, c.levels.PSAR)

	switch {
	case t.SL && c.p.SLExitInBar:
		t.InBar, t.Price, t.Reason = true, sl, domain.ExitReasonSL
	case t.TP && c.p.TPExitInBar:
		t.InBar, t.Price, t.Reason = true, tp, domain.ExitReasonTP
	case t.SL:
		t.Reason = domain.ExitReasonSL
	case t.TP:
		t.Reason = domain.ExitReasonTP
	case t.TSL:
		t.Reason = domain.ExitReasonTSL
	case t.PSAR:
		t.Reason = domain.ExitReasonPSAR
	}
	return t
}
