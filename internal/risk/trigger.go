package risk

import (
	"math"

	"github.com/hxse/pyo3-quant-sub000/internal/domain"
)

// Trigger is the outcome of checking one bar against the active levels.
type Trigger struct {
	SL   bool
	TP   bool
	TSL  bool
	PSAR bool

	// InBar is set when the exit fills on this bar at Price.
	// Otherwise a hit exits at the next bar's open.
	InBar bool
	Price float64

	Reason string // one of the domain.ExitReason* codes, empty when nothing hit
}

// Hit reports whether any level triggered.
func (t Trigger) Hit() bool {
	return t.SL || t.TP || t.TSL || t.PSAR
}

func stopHit(side domain.Side, price, level float64) bool {
	if math.IsNaN(level) {
		return false
	}
	s := side.Sign()
	return price*s <= level*s
}

func targetHit(side domain.Side, price, level float64) bool {
	if math.IsNaN(level) {
		return false
	}
	s := side.Sign()
	return price*s >= level*s
}

// adverse returns the bar price that tests a stop.
func adverse(side domain.Side, b domain.Bar, extremes bool) float64 {
	if !extremes {
		return b.Close
	}
	if side == domain.Long {
		return b.Low
	}
	return b.High
}

// favorable returns the bar price that tests a target.
func favorable(side domain.Side, b domain.Bar, extremes bool) float64 {
	if !extremes {
		return b.Close
	}
	if side == domain.Long {
		return b.High
	}
	return b.Low
}
