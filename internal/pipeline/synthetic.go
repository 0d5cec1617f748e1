package pipeline

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"

	"github.com/hxse/pyo3-quant-sub000/internal/domain"
)

// GeneratorConfig controls the synthetic random-walk bar generator.
type GeneratorConfig struct {
	Symbol       string  `json:"symbol"`
	Timeframe    string  `json:"timeframe"` // e.g. "15m", "1h", "1d"
	StartMs      int64   `json:"start_ms"`
	Bars         int     `json:"bars"`
	InitialPrice float64 `json:"initial_price"`
	Volatility   float64 `json:"volatility"` // stddev of close-to-close returns
	GapFactor    float64 `json:"gap_factor"` // open gap volatility relative to Volatility
	Seed         int64   `json:"seed"`
}

// DefaultGeneratorConfig returns the reference generator settings.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		Symbol:       "SYNTH",
		Timeframe:    "15m",
		StartMs:      1704067200000, // 2024-01-01 00:00:00 UTC
		Bars:         1000,
		InitialPrice: 100,
		Volatility:   0.02,
		GapFactor:    0.5,
		Seed:         42,
	}
}

// ParseTimeframe converts "30s", "15m", "4h", "1d" or "1w" to milliseconds.
func ParseTimeframe(tf string) (int64, error) {
	tf = strings.TrimSpace(strings.ToLower(tf))
	if len(tf) < 2 {
		return 0, fmt.Errorf("invalid timeframe %q", tf)
	}
	n, err := strconv.ParseInt(tf[:len(tf)-1], 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid timeframe %q", tf)
	}
	var unit int64
	switch tf[len(tf)-1] {
	case 's':
		unit = 1000
	case 'm':
		unit = 60 * 1000
	case 'h':
		unit = 3600 * 1000
	case 'd':
		unit = 24 * 3600 * 1000
	case 'w':
		unit = 7 * 24 * 3600 * 1000
	default:
		return 0, fmt.Errorf("invalid timeframe unit in %q", tf)
	}
	return n * unit, nil
}

// GenerateBars produces a deterministic OHLCV random walk.
// Close follows a multiplicative walk, Open gaps off the previous Close,
// and High/Low extend beyond max/min(Open, Close) by a random fraction.
func GenerateBars(cfg GeneratorConfig) ([]domain.OHLCV, error) {
	if cfg.Bars < 0 {
		return nil, fmt.Errorf("bars must be >= 0, got %d", cfg.Bars)
	}
	if cfg.InitialPrice <= 0 {
		return nil, fmt.Errorf("initial price must be > 0, got %v", cfg.InitialPrice)
	}
	interval, err := ParseTimeframe(cfg.Timeframe)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	bars := make([]domain.OHLCV, cfg.Bars)
	prevClose := cfg.InitialPrice

	for i := range bars {
		ret := rng.NormFloat64() * cfg.Volatility
		gap := rng.NormFloat64() * cfg.Volatility * cfg.GapFactor
		rangeFactor := math.Abs(rng.NormFloat64() * cfg.Volatility / 3)
		volume := math.Abs(1_000_000 + rng.NormFloat64()*200_000)

		closePx := math.Max(prevClose*(1+ret), 1e-6)
		openPx := math.Max(prevClose*(1+gap), 1e-6)
		maxOC := math.Max(openPx, closePx)
		minOC := math.Min(openPx, closePx)

		bars[i] = domain.OHLCV{
			Symbol:    cfg.Symbol,
			Timeframe: cfg.Timeframe,
			TimeMs:    cfg.StartMs + int64(i)*interval,
			Open:      openPx,
			High:      maxOC * (1 + rangeFactor),
			Low:       minOC * math.Max(1-rangeFactor, 0.5),
			Close:     closePx,
			Volume:    volume,
		}
		prevClose = closePx
	}
	return bars, nil
}
