// Package indicators computes the price-derived series the engine needs
// internally: true range, Wilder ATR, SMA and the parabolic SAR recurrence.
package indicators

import "math"

// TrueRange returns the true range series.
// TR[0] = high-low; TR[i] = max(high-low, |high-prevClose|, |prevClose-low|).
func TrueRange(high, low, close []float64) []float64 {
	n := len(close)
	tr := make([]float64, n)
	if n == 0 {
		return tr
	}
	tr[0] = high[0] - low[0]
	for i := 1; i < n; i++ {
		hl := high[i] - low[i]
		hc := math.Abs(high[i] - close[i-1])
		cl := math.Abs(close[i-1] - low[i])
		tr[i] = math.Max(hl, math.Max(hc, cl))
	}
	return tr
}

// RMA is Wilder's moving average seeded with the simple mean of the first
// period values. The first valid value is at index period-1; earlier values
// are NaN. A NaN input before the seed window delays the seed.
func RMA(src []float64, period int) []float64 {
	n := len(src)
	out := nanSlice(n)
	if period <= 0 || n < period {
		return out
	}

	// Seed after the leading NaN run.
	start := 0
	for start < n && math.IsNaN(src[start]) {
		start++
	}
	seedIdx := start + period - 1
	if seedIdx >= n {
		return out
	}

	sum := 0.0
	for i := start; i <= seedIdx; i++ {
		sum += src[i]
	}
	p := float64(period)
	out[seedIdx] = sum / p
	for i := seedIdx + 1; i < n; i++ {
		out[i] = (out[i-1]*(p-1) + src[i]) / p
	}
	return out
}

// ATR returns the Average True Range. For period 14 the first 13 values are NaN.
func ATR(high, low, close []float64, period int) []float64 {
	return RMA(TrueRange(high, low, close), period)
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
