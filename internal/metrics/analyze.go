// Package metrics derives performance statistics from engine ledgers and
// aggregates them across parameter sweeps.
package metrics

import (
	"math"

	"github.com/hxse/pyo3-quant-sub000/internal/domain"
)

const (
	msPerYear = 365.25 * 24 * 3600 * 1000

	// DefaultLeverageSafetyFactor scales max_safe_leverage when Options leaves it unset.
	DefaultLeverageSafetyFactor = 0.8
)

// Options tunes the risk-adjusted metrics.
type Options struct {
	// RiskFreeRate is an annual rate subtracted from the annualized mean return.
	RiskFreeRate float64

	// LeverageSafetyFactor <= 0 selects DefaultLeverageSafetyFactor.
	LeverageSafetyFactor float64
}

// Analyze computes the performance summary of one ledger.
// timeMs holds the bar open times used for annualization; when it is nil or
// spans no time, the annualization factor is 1 and annualized values equal raw ones.
// Ledgers shorter than two bars yield a zero Performance.
func Analyze(lg *domain.Ledger, timeMs []int64, opts Options) domain.Performance {
	var perf domain.Performance
	if lg == nil || lg.Len() < 2 {
		return perf
	}
	n := lg.Len()
	rows := lg.Rows

	years := 0.0
	if len(timeMs) == n {
		years = float64(timeMs[n-1]-timeMs[0]) / msPerYear
	}
	af := 1.0
	if years > 0 {
		af = float64(n) / years
	}

	totalReturn := rows[n-1].TotalReturnPct
	annualized := totalReturn
	if years > 0 {
		annualized = math.Pow(1+totalReturn, 1/years) - 1
	}

	returns := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		prev := rows[i-1].Equity
		if prev <= 0 {
			// Wiped-out equity has no defined return.
			continue
		}
		returns = append(returns, rows[i].Equity/prev-1)
	}
	mean := computeMean(returns)
	std := computeStddev(returns, mean)
	downside := downsideDeviation(returns)

	mdd := 0.0
	entryLong := make([]float64, n)
	entryShort := make([]float64, n)
	drawdown := make([]float64, n)
	pnl := make([]float64, n)
	for i := range rows {
		r := &rows[i]
		if r.CurrentDrawdown > mdd {
			mdd = r.CurrentDrawdown
		}
		entryLong[i] = r.EntryLongPrice
		entryShort[i] = r.EntryShortPrice
		drawdown[i] = r.CurrentDrawdown
		pnl[i] = r.TradePnlPct
	}

	trades := computeTradeStats(pnl)
	durations := computeDurationStats(entryLong, entryShort, drawdown)

	perf.TotalReturn = totalReturn
	perf.MaxDrawdown = mdd
	perf.MaxDrawdownDuration = durations.maxDrawdown

	rf := opts.RiskFreeRate
	sqrtAF := math.Sqrt(af)
	if std > 0 {
		perf.SharpeRatio = (mean*af - rf) / (std * sqrtAF)
		perf.SharpeRatioRaw = mean / std
	}
	if downside > 0 {
		perf.SortinoRatio = (mean*af - rf) / (downside * sqrtAF)
		perf.SortinoRatioRaw = mean / downside
	}
	if mdd > 0 {
		perf.CalmarRatio = annualized / mdd
		perf.CalmarRatioRaw = totalReturn / mdd
	}

	perf.TotalTrades = trades.total
	perf.Wins = trades.wins
	perf.Losses = trades.losses
	perf.WinRate = trades.winRate
	perf.ProfitLossRatio = trades.profitLossRatio
	perf.AvgDailyTrades = float64(trades.total) / math.Max(years*365.25, 1)

	perf.AvgHoldingDuration = durations.avgHolding
	perf.MaxHoldingDuration = durations.maxHolding
	perf.AvgEmptyDuration = durations.avgEmpty
	perf.MaxEmptyDuration = durations.maxEmpty

	safety := opts.LeverageSafetyFactor
	if safety <= 0 {
		safety = DefaultLeverageSafetyFactor
	}
	if mdd > 0 {
		perf.MaxSafeLeverage = safety / mdd
	}
	perf.AnnualizationFactor = af

	for _, v := range lg.HasLeadingNaN {
		if v {
			perf.HasLeadingNaNCount++
		}
	}

	return perf
}

// downsideDeviation is sqrt(sum(r^2 for r < 0) / len(returns)).
func downsideDeviation(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	sumSq := 0.0
	for _, r := range returns {
		if r < 0 {
			sumSq += r * r
		}
	}
	return math.Sqrt(sumSq / float64(len(returns)))
}
