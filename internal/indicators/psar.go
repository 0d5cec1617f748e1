package indicators

import "math"

// PSARState is the parabolic SAR recurrence state.
type PSARState struct {
	Long bool    // trend direction
	SAR  float64 // current stop-and-reverse value
	EP   float64 // extreme point
	AF   float64 // acceleration factor
}

// PSARDirection selects how the initial trend is chosen.
type PSARDirection int8

const (
	PSARAuto  PSARDirection = 0
	PSARLong  PSARDirection = 1
	PSARShort PSARDirection = -1
)

// PSARInit seeds the recurrence from two consecutive bars.
// Auto direction is short only when the down move dominates and is positive.
func PSARInit(highPrev, highCurr, lowPrev, lowCurr, closePrev float64, dir PSARDirection, af0 float64) PSARState {
	long := true
	switch dir {
	case PSARLong:
		long = true
	case PSARShort:
		long = false
	default:
		upMove := highCurr - highPrev
		downMove := lowPrev - lowCurr
		long = !(downMove > upMove && downMove > 0)
	}

	ep := lowPrev
	if long {
		ep = highPrev
	}
	return PSARState{Long: long, SAR: closePrev, EP: ep, AF: af0}
}

// PSARUpdate advances the recurrence by one bar.
// The raw candidate is clamped by the previous bar's extreme. With forced set
// the trend never flips; otherwise a breach of the raw candidate by the
// current bar reverses it. EP and AF advance on a new extreme in either case.
func PSARUpdate(prev PSARState, curHigh, curLow, prevHigh, prevLow, afStep, maxAF float64, forced bool) (next PSARState, reversed bool) {
	next = prev

	var candidate float64
	if next.Long {
		candidate = next.SAR + next.AF*(next.EP-next.SAR)
		next.SAR = math.Min(candidate, prevLow)
	} else {
		candidate = next.SAR - next.AF*(next.SAR-next.EP)
		next.SAR = math.Max(candidate, prevHigh)
	}

	if !forced {
		if next.Long {
			reversed = curLow < candidate
		} else {
			reversed = curHigh > candidate
		}
	}

	if next.Long {
		if curHigh > next.EP {
			next.EP = curHigh
			next.AF = math.Min(next.AF+afStep, maxAF)
		}
	} else if curLow < next.EP {
		next.EP = curLow
		next.AF = math.Min(next.AF+afStep, maxAF)
	}

	if reversed {
		next.Long = !next.Long
		next.AF = afStep
		next.SAR = prev.EP
		if next.Long {
			next.SAR = math.Min(next.SAR, curLow)
			next.EP = curHigh
		} else {
			next.SAR = math.Max(next.SAR, curHigh)
			next.EP = curLow
		}
	}

	return next, reversed
}

// PSAR computes the unforced parabolic SAR series. Index 0 is NaN.
func PSAR(high, low, close []float64, af0, afStep, maxAF float64) []float64 {
	n := len(close)
	out := nanSlice(n)
	if n < 2 {
		return out
	}
	st := PSARInit(high[0], high[1], low[0], low[1], close[0], PSARAuto, af0)
	st, _ = PSARUpdate(st, high[1], low[1], high[0], low[0], afStep, maxAF, false)
	out[1] = st.SAR
	for i := 2; i < n; i++ {
		st, _ = PSARUpdate(st, high[i], low[i], high[i-1], low[i-1], afStep, maxAF, false)
		out[i] = st.SAR
	}
	return out
}
