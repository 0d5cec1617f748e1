package pipeline

import (
	"context"
	"fmt"
	"math"

	"github.com/hxse/pyo3-quant-sub000/internal/domain"
	"github.com/hxse/pyo3-quant-sub000/internal/storage"
)

// SufficiencyCheck represents one data sufficiency criterion.
type SufficiencyCheck struct {
	Name      string
	Threshold string
	Actual    string
	Pass      bool
}

// SufficiencyResult contains all checks run over one symbol/timeframe.
type SufficiencyResult struct {
	Checks  []SufficiencyCheck
	AllPass bool
	Errors  []string // data integrity errors
}

// SufficiencyConfig holds the thresholds of the bar checks.
type SufficiencyConfig struct {
	MinBars     int
	MinDays     float64
	MaxGapRatio float64 // tolerated share of missing bars between first and last bar
	MaxErrors   int     // cap on integrity error lines per check
}

// DefaultSufficiencyConfig returns the reference thresholds.
func DefaultSufficiencyConfig() SufficiencyConfig {
	return SufficiencyConfig{
		MinBars:     500,
		MinDays:     7,
		MaxGapRatio: 0.01,
		MaxErrors:   10,
	}
}

// SufficiencyChecker validates stored bars before they feed a backtest.
type SufficiencyChecker struct {
	barStore  storage.BarStore
	cfg       SufficiencyConfig
	crossover CrossoverConfig
}

// NewSufficiencyChecker creates a new sufficiency checker.
func NewSufficiencyChecker(barStore storage.BarStore, cfg SufficiencyConfig, crossover CrossoverConfig) *SufficiencyChecker {
	return &SufficiencyChecker{
		barStore:  barStore,
		cfg:       cfg,
		crossover: crossover,
	}
}

// Check loads all bars of symbol/timeframe and runs CheckBars on them.
func (c *SufficiencyChecker) Check(ctx context.Context, symbol, timeframe string) (*SufficiencyResult, error) {
	stored, err := c.barStore.GetBySymbol(ctx, symbol, timeframe)
	if err != nil {
		return nil, fmt.Errorf("failed to load bars for %s/%s: %w", symbol, timeframe, err)
	}
	bars := make([]domain.OHLCV, len(stored))
	for i, b := range stored {
		bars[i] = *b
	}
	return CheckBars(bars, timeframe, c.cfg, c.crossover)
}

// CheckBars runs the bar checks in order:
// bar count, coverage, duplicate timestamps, ordering, gaps, OHLC validity
// and frame construction.
func CheckBars(bars []domain.OHLCV, timeframe string, cfg SufficiencyConfig, crossover CrossoverConfig) (*SufficiencyResult, error) {
	stepMs, err := ParseTimeframe(timeframe)
	if err != nil {
		return nil, err
	}

	result := &SufficiencyResult{
		Checks:  make([]SufficiencyCheck, 0, 7),
		AllPass: true,
		Errors:  []string{},
	}
	add := func(check SufficiencyCheck, errs []string) {
		result.Checks = append(result.Checks, check)
		if !check.Pass {
			result.AllPass = false
			result.Errors = append(result.Errors, errs...)
		}
	}

	add(checkBarCount(bars, cfg), nil)
	add(checkCoverage(bars, cfg), nil)
	add(checkDuplicates(bars, cfg))
	add(checkOrdering(bars, cfg))
	add(checkGaps(bars, stepMs, cfg))
	add(checkOHLC(bars, cfg))
	add(checkFrame(bars, crossover))

	return result, nil
}

// checkBarCount: bars >= MinBars.
func checkBarCount(bars []domain.OHLCV, cfg SufficiencyConfig) SufficiencyCheck {
	return SufficiencyCheck{
		Name:      "Bar count",
		Threshold: fmt.Sprintf(">= %d", cfg.MinBars),
		Actual:    fmt.Sprintf("%d", len(bars)),
		Pass:      len(bars) >= cfg.MinBars,
	}
}

// checkCoverage: span between first and last bar >= MinDays.
func checkCoverage(bars []domain.OHLCV, cfg SufficiencyConfig) SufficiencyCheck {
	check := SufficiencyCheck{
		Name:      "Data coverage",
		Threshold: fmt.Sprintf(">= %.1f days", cfg.MinDays),
	}
	if len(bars) == 0 {
		check.Actual = "0 days (no bars)"
		return check
	}

	minTime, maxTime := bars[0].TimeMs, bars[0].TimeMs
	for _, b := range bars {
		if b.TimeMs < minTime {
			minTime = b.TimeMs
		}
		if b.TimeMs > maxTime {
			maxTime = b.TimeMs
		}
	}
	days := float64(maxTime-minTime) / (24 * 60 * 60 * 1000)
	check.Actual = fmt.Sprintf("%.1f days", days)
	check.Pass = days >= cfg.MinDays
	return check
}

// checkDuplicates: duplicate time_ms count == 0.
func checkDuplicates(bars []domain.OHLCV, cfg SufficiencyConfig) (SufficiencyCheck, []string) {
	seen := make(map[int64]int, len(bars))
	for _, b := range bars {
		seen[b.TimeMs]++
	}

	duplicates := 0
	var errors []string
	// Walk bars rather than the map for deterministic output
	reported := make(map[int64]bool)
	for _, b := range bars {
		if n := seen[b.TimeMs]; n > 1 && !reported[b.TimeMs] {
			reported[b.TimeMs] = true
			duplicates++
			if len(errors) < cfg.MaxErrors {
				errors = append(errors, fmt.Sprintf("duplicate bar time_ms=%d (count=%d)", b.TimeMs, n))
			}
		}
	}

	return SufficiencyCheck{
		Name:      "Duplicate bar count",
		Threshold: "= 0",
		Actual:    fmt.Sprintf("%d", duplicates),
		Pass:      duplicates == 0,
	}, errors
}

// checkOrdering: bars strictly ascending by time.
func checkOrdering(bars []domain.OHLCV, cfg SufficiencyConfig) (SufficiencyCheck, []string) {
	outOfOrder := 0
	var errors []string
	for i := 1; i < len(bars); i++ {
		if bars[i].TimeMs < bars[i-1].TimeMs {
			outOfOrder++
			if len(errors) < cfg.MaxErrors {
				errors = append(errors, fmt.Sprintf("bar %d time_ms=%d precedes bar %d time_ms=%d",
					i, bars[i].TimeMs, i-1, bars[i-1].TimeMs))
			}
		}
	}
	return SufficiencyCheck{
		Name:      "Out-of-order bars",
		Threshold: "= 0",
		Actual:    fmt.Sprintf("%d", outOfOrder),
		Pass:      outOfOrder == 0,
	}, errors
}

// checkGaps: missing bars relative to the timeframe grid <= MaxGapRatio.
func checkGaps(bars []domain.OHLCV, stepMs int64, cfg SufficiencyConfig) (SufficiencyCheck, []string) {
	check := SufficiencyCheck{
		Name:      "Missing bars",
		Threshold: fmt.Sprintf("<= %.2f%%", cfg.MaxGapRatio*100),
	}
	if len(bars) < 2 {
		check.Actual = "0 (fewer than 2 bars)"
		check.Pass = true
		return check, nil
	}

	missing := int64(0)
	var errors []string
	for i := 1; i < len(bars); i++ {
		delta := bars[i].TimeMs - bars[i-1].TimeMs
		if delta <= stepMs {
			continue
		}
		gap := delta/stepMs - 1
		missing += gap
		if len(errors) < cfg.MaxErrors {
			errors = append(errors, fmt.Sprintf("gap of %d bars after time_ms=%d", gap, bars[i-1].TimeMs))
		}
	}

	expected := (bars[len(bars)-1].TimeMs-bars[0].TimeMs)/stepMs + 1
	ratio := 0.0
	if expected > 0 {
		ratio = float64(missing) / float64(expected)
	}
	check.Actual = fmt.Sprintf("%d (%.2f%%)", missing, ratio*100)
	check.Pass = ratio <= cfg.MaxGapRatio
	return check, errors
}

// checkOHLC: every bar has positive finite prices with low <= open,close <= high.
func checkOHLC(bars []domain.OHLCV, cfg SufficiencyConfig) (SufficiencyCheck, []string) {
	invalid := 0
	var errors []string
	for i, b := range bars {
		if reason := invalidOHLC(b); reason != "" {
			invalid++
			if len(errors) < cfg.MaxErrors {
				errors = append(errors, fmt.Sprintf("bar %d time_ms=%d: %s", i, b.TimeMs, reason))
			}
		}
	}
	return SufficiencyCheck{
		Name:      "Invalid OHLC bars",
		Threshold: "= 0",
		Actual:    fmt.Sprintf("%d", invalid),
		Pass:      invalid == 0,
	}, errors
}

func invalidOHLC(b domain.OHLCV) string {
	for _, v := range []float64{b.Open, b.High, b.Low, b.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return "non-positive or non-finite price"
		}
	}
	if b.Low > b.High {
		return "low above high"
	}
	if b.Open > b.High || b.Close > b.High {
		return "open/close above high"
	}
	if b.Open < b.Low || b.Close < b.Low {
		return "open/close below low"
	}
	return ""
}

// checkFrame: the bars build into a valid frame with at least one entry signal.
func checkFrame(bars []domain.OHLCV, crossover CrossoverConfig) (SufficiencyCheck, []string) {
	check := SufficiencyCheck{
		Name:      "Frame buildable",
		Threshold: "valid frame with signals",
	}
	if len(bars) == 0 {
		check.Actual = "no bars"
		return check, []string{"no bars to build a frame from"}
	}
	f, err := CrossoverFrame(bars, crossover)
	if err == nil {
		err = f.Validate()
	}
	if err != nil {
		check.Actual = "error"
		return check, []string{fmt.Sprintf("frame build failed: %v", err)}
	}

	entries := 0
	for i := 0; i < f.Len(); i++ {
		if f.EntryLong[i] || f.EntryShort[i] {
			entries++
		}
	}
	check.Actual = fmt.Sprintf("%d entry signals", entries)
	check.Pass = entries > 0
	if !check.Pass {
		return check, []string{"frame has no entry signals"}
	}
	return check, nil
}
