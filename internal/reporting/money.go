package reporting

import (
	"math"

	"github.com/shopspring/decimal"
)

// FormatMoney renders an account value with two decimals, rounded half away
// from zero. NaN and infinities render as "n/a".
func FormatMoney(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "n/a"
	}
	return decimal.NewFromFloat(v).StringFixed(2)
}

// FormatPct renders a fraction as a percentage with two decimals.
func FormatPct(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "n/a"
	}
	return decimal.NewFromFloat(v).Mul(decimal.NewFromInt(100)).StringFixed(2) + "%"
}

// FinalEquity is initial*(1+totalReturn) computed in decimal arithmetic.
func FinalEquity(initial, totalReturn float64) float64 {
	d := decimal.NewFromFloat(initial).Mul(decimal.NewFromFloat(totalReturn).Add(decimal.NewFromInt(1)))
	return d.InexactFloat64()
}
