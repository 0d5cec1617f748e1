package metrics

import (
	"math"
)

// computeMean calculates the arithmetic mean.
func computeMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// computeStddev calculates sample standard deviation (n-1 denominator).
func computeStddev(values []float64, mean float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	sumSq := 0.0
	for _, v := range values {
		diff := v - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(n-1))
}

// computePercentile uses linear interpolation.
// sorted must be pre-sorted ASC; p is a fraction (0.10 = 10th percentile).
func computePercentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	idx := p * float64(n-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// computeWinRate calculates win rate as wins / total.
func computeWinRate(wins, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(wins) / float64(total)
}

type tradeStats struct {
	total, wins, losses int
	avgWin, avgLoss     float64 // avgLoss is a magnitude
	winRate             float64
	profitLossRatio     float64
}

// computeTradeStats summarizes closed-trade returns.
// NaN and exactly-zero entries are not trades.
func computeTradeStats(pnl []float64) tradeStats {
	var wins, losses []float64
	for _, v := range pnl {
		switch {
		case math.IsNaN(v) || v == 0:
		case v > 0:
			wins = append(wins, v)
		default:
			losses = append(losses, v)
		}
	}

	st := tradeStats{
		total:  len(wins) + len(losses),
		wins:   len(wins),
		losses: len(losses),
	}
	if st.total == 0 {
		return st
	}
	st.winRate = computeWinRate(st.wins, st.total)
	st.avgWin = computeMean(wins)
	st.avgLoss = math.Abs(computeMean(losses))
	if st.avgLoss > 0 {
		st.profitLossRatio = st.avgWin / st.avgLoss
	}
	return st
}

type durationStats struct {
	avgHolding, maxHolding float64
	avgEmpty, maxEmpty     float64
	maxDrawdown            float64
}

// computeDurationStats measures holding and flat spells in bars.
// A bar is held when either entry price is set. Flat spells before the
// first position are not counted.
func computeDurationStats(entryLong, entryShort, drawdown []float64) durationStats {
	var holding, empty []int
	curHold, curEmpty := 0, 0
	inPos, seenTrade := false, false

	for i := range entryLong {
		active := !math.IsNaN(entryLong[i]) || !math.IsNaN(entryShort[i])
		if active {
			seenTrade = true
			if !inPos {
				if curEmpty > 0 {
					empty = append(empty, curEmpty)
					curEmpty = 0
				}
				inPos = true
			}
			curHold++
			continue
		}
		if inPos {
			holding = append(holding, curHold)
			curHold = 0
			inPos = false
		}
		if seenTrade {
			curEmpty++
		}
	}
	if curHold > 0 {
		holding = append(holding, curHold)
	}
	if curEmpty > 0 {
		empty = append(empty, curEmpty)
	}

	var st durationStats
	st.avgHolding, st.maxHolding = spellStats(holding)
	st.avgEmpty, st.maxEmpty = spellStats(empty)

	dd := make([]bool, len(drawdown))
	for i, v := range drawdown {
		dd[i] = v > 0
	}
	st.maxDrawdown = float64(longestRun(dd))
	return st
}

func spellStats(spells []int) (avg, longest float64) {
	if len(spells) == 0 {
		return 0, 0
	}
	sum, hi := 0, 0
	for _, s := range spells {
		sum += s
		if s > hi {
			hi = s
		}
	}
	return float64(sum) / float64(len(spells)), float64(hi)
}

// longestRun returns the length of the longest streak of true values.
func longestRun(flags []bool) int {
	best, cur := 0, 0
	for _, f := range flags {
		if f {
			cur++
			if cur > best {
				best = cur
			}
		} else {
			cur = 0
		}
	}
	return best
}
