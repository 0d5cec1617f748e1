// Package signal applies the conflict rules that turn four raw boolean
// signals per bar into one cleaned decision.
package signal

import (
	"math"

	"github.com/hxse/pyo3-quant-sub000/internal/domain"
)

// Resolve applies R1-R3 to one signal quadruple.
//
//	R1: entry_long && entry_short   -> clear both entries
//	R2: entry_long && exit_long     -> clear entry_long
//	R3: entry_short && exit_short   -> clear entry_short
//
// Resolve is a fixed point: Resolve(Resolve(s)) == Resolve(s).
func Resolve(s domain.Signals) domain.Signals {
	if s.EntryLong && s.EntryShort {
		s.EntryLong = false
		s.EntryShort = false
	}
	if s.EntryLong && s.ExitLong {
		s.EntryLong = false
	}
	if s.EntryShort && s.ExitShort {
		s.EntryShort = false
	}
	return s
}

// Decide maps a cleaned quadruple and the currently held side to a decision.
// Exits for the side not held are inert, as are entries for the side held.
func Decide(s domain.Signals, held domain.Side) domain.Decision {
	switch held {
	case domain.Long:
		if s.EntryShort {
			return domain.ReverseToShort
		}
		if s.ExitLong {
			return domain.ExitLong
		}
	case domain.Short:
		if s.EntryLong {
			return domain.ReverseToLong
		}
		if s.ExitShort {
			return domain.ExitShort
		}
	default:
		if s.EntryLong {
			return domain.EnterLong
		}
		if s.EntryShort {
			return domain.EnterShort
		}
	}
	return domain.NoOp
}

// Cleaned holds the four signal columns after all rules ran.
type Cleaned struct {
	EntryLong  []bool
	EntryShort []bool
	ExitLong   []bool
	ExitShort  []bool
}

// At returns the cleaned quadruple of bar i.
func (c *Cleaned) At(i int) domain.Signals {
	return domain.Signals{
		EntryLong:  c.EntryLong[i],
		EntryShort: c.EntryShort[i],
		ExitLong:   c.ExitLong[i],
		ExitShort:  c.ExitShort[i],
	}
}

// Options controls the frame-level rules on top of R1-R3.
type Options struct {
	// ATR is the ATR series; when non-nil, entries on bars where it is NaN
	// are cleared (R4).
	ATR []float64

	// Block clears entries on bars where it is true (drawdown pause).
	Block []bool
}

// Clean runs R1-R3 over every bar of f, then R4 and the entry block mask.
// The frame is never modified.
func Clean(f *domain.Frame, opts Options) *Cleaned {
	n := f.Len()
	c := &Cleaned{
		EntryLong:  make([]bool, n),
		EntryShort: make([]bool, n),
		ExitLong:   make([]bool, n),
		ExitShort:  make([]bool, n),
	}
	for i := 0; i < n; i++ {
		s := Resolve(f.SignalsAt(i))

		blocked := opts.Block != nil && opts.Block[i]
		if opts.ATR != nil && math.IsNaN(opts.ATR[i]) {
			blocked = true
		}
		if blocked {
			s.EntryLong = false
			s.EntryShort = false
		}

		c.EntryLong[i] = s.EntryLong
		c.EntryShort[i] = s.EntryShort
		c.ExitLong[i] = s.ExitLong
		c.ExitShort[i] = s.ExitShort
	}
	return c
}
