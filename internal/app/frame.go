package app

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/hxse/pyo3-quant-sub000/internal/domain"
	"github.com/hxse/pyo3-quant-sub000/internal/pipeline"
	"github.com/hxse/pyo3-quant-sub000/internal/storage"
)

// Frame sources.
const (
	SourceSynthetic = "synthetic"
	SourceStore     = "store"
)

// ErrUnknownSource is returned for a FrameConfig.Source outside the known values.
var ErrUnknownSource = errors.New("unknown frame source")

// FrameConfig describes where input bars come from and how signals are built.
type FrameConfig struct {
	Source    string                   `json:"source"`
	Generator pipeline.GeneratorConfig `json:"generator"`
	Crossover pipeline.CrossoverConfig `json:"crossover"`

	// Store source only; From == To == 0 selects every bar.
	From int64 `json:"from,omitempty"`
	To   int64 `json:"to,omitempty"`

	// Persist writes synthetic bars to the bar store so later replays and
	// sufficiency checks can read them back.
	Persist bool `json:"persist,omitempty"`
}

// DefaultFrameConfig returns a synthetic source with the default crossover.
func DefaultFrameConfig() FrameConfig {
	return FrameConfig{
		Source:    SourceSynthetic,
		Generator: pipeline.DefaultGeneratorConfig(),
		Crossover: pipeline.DefaultCrossoverConfig(),
	}
}

// RegisterFrameFlags binds FrameConfig fields to fs with environment defaults.
func RegisterFrameFlags(fs *flag.FlagSet) *FrameConfig {
	cfg := DefaultFrameConfig()
	g := &cfg.Generator
	fs.StringVar(&cfg.Source, "source", Env("FRAME_SOURCE", SourceSynthetic), "Bar source: synthetic or store")
	fs.StringVar(&g.Symbol, "symbol", Env("SYMBOL", g.Symbol), "Symbol")
	fs.StringVar(&g.Timeframe, "timeframe", Env("TIMEFRAME", g.Timeframe), "Bar timeframe, e.g. 15m, 1h, 1d")
	fs.IntVar(&g.Bars, "bars", EnvInt("SYNTH_BARS", g.Bars), "Synthetic bar count")
	fs.Int64Var(&g.Seed, "seed", EnvInt64("SYNTH_SEED", g.Seed), "Synthetic random seed")
	fs.Int64Var(&g.StartMs, "start-ms", EnvInt64("SYNTH_START_MS", g.StartMs), "Synthetic first bar time (unix ms)")
	fs.Float64Var(&g.InitialPrice, "initial-price", EnvFloat("SYNTH_INITIAL_PRICE", g.InitialPrice), "Synthetic first price")
	fs.Float64Var(&g.Volatility, "volatility", EnvFloat("SYNTH_VOLATILITY", g.Volatility), "Synthetic close-to-close volatility")
	fs.IntVar(&cfg.Crossover.Fast, "fast", EnvInt("SMA_FAST", cfg.Crossover.Fast), "Fast SMA period")
	fs.IntVar(&cfg.Crossover.Slow, "slow", EnvInt("SMA_SLOW", cfg.Crossover.Slow), "Slow SMA period")
	fs.BoolVar(&cfg.Crossover.LeadingNaN, "leading-nan", EnvBool("LEADING_NAN", cfg.Crossover.LeadingNaN), "Emit the has_leading_nan column")
	fs.Int64Var(&cfg.From, "from", 0, "Store source: first bar time (unix ms)")
	fs.Int64Var(&cfg.To, "to", 0, "Store source: last bar time (unix ms)")
	fs.BoolVar(&cfg.Persist, "persist-bars", EnvBool("PERSIST_BARS", false), "Store synthetic bars in the bar store")
	return &cfg
}

// LoadFrame produces the input frame described by cfg. barStore is needed
// for the store source and for Persist.
func LoadFrame(ctx context.Context, cfg FrameConfig, barStore storage.BarStore) (*domain.Frame, error) {
	var bars []domain.OHLCV
	switch cfg.Source {
	case SourceSynthetic, "":
		var err error
		if cfg.Persist && barStore != nil {
			bars, err = pipeline.LoadFixtures(ctx, barStore, cfg.Generator)
			if errors.Is(err, storage.ErrDuplicateKey) {
				// Same seed already stored
				bars, err = pipeline.GenerateBars(cfg.Generator)
			}
		} else {
			bars, err = pipeline.GenerateBars(cfg.Generator)
		}
		if err != nil {
			return nil, err
		}

	case SourceStore:
		if barStore == nil {
			return nil, fmt.Errorf("%w: store source needs a bar store", ErrUnknownSource)
		}
		symbol, timeframe := cfg.Generator.Symbol, cfg.Generator.Timeframe
		var stored []*domain.OHLCV
		var err error
		if cfg.From == 0 && cfg.To == 0 {
			stored, err = barStore.GetBySymbol(ctx, symbol, timeframe)
		} else {
			stored, err = barStore.GetByTimeRange(ctx, symbol, timeframe, cfg.From, cfg.To)
		}
		if err != nil {
			return nil, fmt.Errorf("load bars %s/%s: %w", symbol, timeframe, err)
		}
		if len(stored) == 0 {
			return nil, fmt.Errorf("no bars for %s/%s: %w", symbol, timeframe, storage.ErrNotFound)
		}
		bars = make([]domain.OHLCV, len(stored))
		for i, b := range stored {
			bars[i] = *b
		}

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, cfg.Source)
	}

	return pipeline.CrossoverFrame(bars, cfg.Crossover)
}

// RunFrame rebuilds the input frame of a stored run from the bars it
// covered. crossover must match the configuration the run was built with.
func RunFrame(ctx context.Context, barStore storage.BarStore, crossover pipeline.CrossoverConfig, rec *domain.RunRecord) (*domain.Frame, error) {
	cfg := FrameConfig{
		Source:    SourceStore,
		Crossover: crossover,
		From:      rec.FirstBarMs,
		To:        rec.LastBarMs,
	}
	cfg.Generator.Symbol = rec.Symbol
	cfg.Generator.Timeframe = rec.Timeframe
	f, err := LoadFrame(ctx, cfg, barStore)
	if err != nil {
		return nil, err
	}
	if f.Len() != rec.BarCount {
		return nil, fmt.Errorf("run %s covered %d bars, store has %d: %w", rec.RunID, rec.BarCount, f.Len(), storage.ErrNotFound)
	}
	return f, nil
}
