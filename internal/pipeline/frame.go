package pipeline

import (
	"fmt"
	"math"

	"github.com/hxse/pyo3-quant-sub000/internal/domain"
	"github.com/hxse/pyo3-quant-sub000/internal/indicators"
)

// Indicator column names written by CrossoverFrame.
const (
	ColSMAFast = "sma_fast"
	ColSMASlow = "sma_slow"
)

// CrossoverConfig configures the SMA crossover signal template.
type CrossoverConfig struct {
	Fast int `json:"fast"`
	Slow int `json:"slow"`

	// LeadingNaN adds the has_leading_nan column when set.
	LeadingNaN bool `json:"leading_nan"`
}

// DefaultCrossoverConfig returns the SMA(10)/SMA(30) template with the
// warmup column enabled.
func DefaultCrossoverConfig() CrossoverConfig {
	return CrossoverConfig{Fast: 10, Slow: 30, LeadingNaN: true}
}

// BuildFrame lays bars out as a frame with no signals set.
func BuildFrame(bars []domain.OHLCV) *domain.Frame {
	n := len(bars)
	f := &domain.Frame{
		TimeMs:     make([]int64, n),
		Open:       make([]float64, n),
		High:       make([]float64, n),
		Low:        make([]float64, n),
		Close:      make([]float64, n),
		Volume:     make([]float64, n),
		Indicators: make(map[string][]float64),
		EntryLong:  make([]bool, n),
		EntryShort: make([]bool, n),
		ExitLong:   make([]bool, n),
		ExitShort:  make([]bool, n),
	}
	for i, b := range bars {
		f.TimeMs[i] = b.TimeMs
		f.Open[i] = b.Open
		f.High[i] = b.High
		f.Low[i] = b.Low
		f.Close[i] = b.Close
		f.Volume[i] = b.Volume
	}
	return f
}

// CrossoverSignals evaluates the SMA(fast)/SMA(slow) crossover template:
// a golden cross enters long and exits short, a death cross enters short
// and exits long. Bars where either average is NaN carry no signal.
func CrossoverSignals(fast, slow []float64) (el, es, xl, xs []bool) {
	n := len(fast)
	el = make([]bool, n)
	es = make([]bool, n)
	xl = make([]bool, n)
	xs = make([]bool, n)
	for i := 1; i < n; i++ {
		if anyNaN(fast[i], slow[i], fast[i-1], slow[i-1]) {
			continue
		}
		up := fast[i] > slow[i] && fast[i-1] <= slow[i-1]
		down := fast[i] < slow[i] && fast[i-1] >= slow[i-1]
		el[i], xs[i] = up, up
		es[i], xl[i] = down, down
	}
	return el, es, xl, xs
}

// CrossoverFrame builds a frame from bars with the crossover template
// evaluated and the two averages attached as indicator columns.
func CrossoverFrame(bars []domain.OHLCV, cfg CrossoverConfig) (*domain.Frame, error) {
	if cfg.Fast <= 0 || cfg.Slow <= 0 {
		return nil, fmt.Errorf("crossover periods must be > 0, got fast=%d slow=%d", cfg.Fast, cfg.Slow)
	}
	f := BuildFrame(bars)
	fast := indicators.SMA(f.Close, cfg.Fast)
	slow := indicators.SMA(f.Close, cfg.Slow)
	f.Indicators[ColSMAFast] = fast
	f.Indicators[ColSMASlow] = slow
	f.EntryLong, f.EntryShort, f.ExitLong, f.ExitShort = CrossoverSignals(fast, slow)

	if cfg.LeadingNaN {
		f.HasLeadingNaN = LeadingNaN(f.Indicators)
	}
	return f, nil
}

// LeadingNaN marks bars where any indicator is still NaN.
func LeadingNaN(cols map[string][]float64) []bool {
	var n int
	for _, c := range cols {
		n = len(c)
		break
	}
	out := make([]bool, n)
	for _, c := range cols {
		for i, v := range c {
			if math.IsNaN(v) {
				out[i] = true
			}
		}
	}
	return out
}

func anyNaN(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
