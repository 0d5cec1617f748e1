package indicators

import (
	"math"

	"github.com/markcheno/go-talib"
)

// SMA returns the simple moving average with NaN for the warm-up bars.
func SMA(src []float64, period int) []float64 {
	n := len(src)
	if period <= 1 {
		out := make([]float64, n)
		copy(out, src)
		return out
	}
	if n < period {
		return nanSlice(n)
	}

	// talib zero-fills the lookback window.
	out := talib.Sma(src, period)
	for i := 0; i < period-1 && i < n; i++ {
		out[i] = math.NaN()
	}
	return out
}
