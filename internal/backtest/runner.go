package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hxse/pyo3-quant-sub000/internal/domain"
	"github.com/hxse/pyo3-quant-sub000/internal/idhash"
	"github.com/hxse/pyo3-quant-sub000/internal/metrics"
	"github.com/hxse/pyo3-quant-sub000/internal/observability"
	"github.com/hxse/pyo3-quant-sub000/internal/storage"
)

// RunRequest describes one run to execute and persist.
type RunRequest struct {
	Symbol    string
	Timeframe string
	JobID     string // empty for single runs
	Frame     *domain.Frame
	Params    domain.Params
}

// RunOutput is the outcome of Runner.Run.
type RunOutput struct {
	Record *domain.RunRecord
	Result *Result // nil when Cached

	// Cached is set when a run with the same ID was already stored and the
	// engine was not invoked.
	Cached bool
}

// RunnerOptions configures a Runner. Every store is optional; a nil store
// skips that part of persistence.
type RunnerOptions struct {
	Engine   *Engine
	Runs     storage.RunStore
	Trades   storage.TradeStore
	Ledgers  storage.LedgerStore
	Analysis metrics.Options
	Metrics  *observability.Metrics
	Logger   *zap.Logger
	Clock    func() time.Time
}

// Runner executes a run, computes its performance and persists the outputs.
type Runner struct {
	engine   *Engine
	runs     storage.RunStore
	trades   storage.TradeStore
	ledgers  storage.LedgerStore
	analysis metrics.Options
	metrics  *observability.Metrics
	logger   *zap.Logger
	clock    func() time.Time
}

// NewRunner creates a new backtest runner.
func NewRunner(opts RunnerOptions) *Runner {
	r := &Runner{
		engine:   opts.Engine,
		runs:     opts.Runs,
		trades:   opts.Trades,
		ledgers:  opts.Ledgers,
		analysis: opts.Analysis,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		clock:    opts.Clock,
	}
	if r.engine == nil {
		r.engine = NewEngine(Options{})
	}
	if r.metrics == nil {
		r.metrics = observability.DefaultMetrics
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.clock == nil {
		r.clock = time.Now
	}
	return r
}

// Run executes req and stores the run record, its trades and its ledger.
// The run ID is derived from the frame and params, so a run that is already
// stored is returned from the store instead of being recomputed.
func (r *Runner) Run(ctx context.Context, req RunRequest) (*RunOutput, error) {
	if req.Frame == nil {
		return nil, fmt.Errorf("run %s: nil frame", req.Symbol)
	}

	runID, err := idhash.ComputeRunID(idhash.FrameFingerprint(req.Frame), req.Params)
	if err != nil {
		return nil, err
	}
	log := r.logger.With(zap.String("run_id", runID), zap.String("symbol", req.Symbol))

	if r.runs != nil {
		existing, err := r.runs.GetByID(ctx, runID)
		switch {
		case err == nil:
			log.Debug("run already stored")
			return &RunOutput{Record: existing, Cached: true}, nil
		case !errors.Is(err, storage.ErrNotFound):
			return nil, fmt.Errorf("lookup run %s: %w", runID, err)
		}
	}

	start := time.Now()
	res, err := r.engine.Run(ctx, req.Frame, req.Params)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		r.metrics.RecordRun("error", elapsed, 0)
		log.Warn("run failed", zap.Error(err))
		return nil, err
	}
	r.metrics.RecordRun("ok", elapsed, req.Frame.Len())
	for _, tr := range res.Trades {
		r.metrics.RecordTrade(tr.ExitReason)
	}
	if res.Ledger.Pause != nil {
		paused := 0
		for _, p := range res.Ledger.Pause {
			if p {
				paused++
			}
		}
		r.metrics.PausedBars.Add(float64(paused))
	}

	rec := &domain.RunRecord{
		RunID:       runID,
		Symbol:      req.Symbol,
		Timeframe:   req.Timeframe,
		JobID:       req.JobID,
		Params:      req.Params,
		BarCount:    req.Frame.Len(),
		TradeCount:  len(res.Trades),
		Performance: metrics.Analyze(res.Ledger, req.Frame.TimeMs, r.analysis),
		CreatedAt:   r.clock().UTC(),
	}
	if n := len(req.Frame.TimeMs); n > 0 {
		rec.FirstBarMs = req.Frame.TimeMs[0]
		rec.LastBarMs = req.Frame.TimeMs[n-1]
	}

	if err := r.persist(ctx, rec, res); err != nil {
		return nil, err
	}
	r.metrics.LastSuccessfulRun.SetToCurrentTime()

	log.Info("run complete",
		zap.Int("bars", rec.BarCount),
		zap.Int("trades", rec.TradeCount),
		zap.Float64("total_return", rec.Performance.TotalReturn),
		zap.Float64("max_drawdown", rec.Performance.MaxDrawdown),
		zap.Float64("seconds", elapsed),
	)
	return &RunOutput{Record: rec, Result: res}, nil
}

// persist writes the run record first; trades reference it.
func (r *Runner) persist(ctx context.Context, rec *domain.RunRecord, res *Result) error {
	if r.runs != nil {
		start := time.Now()
		err := r.runs.Insert(ctx, rec)
		r.metrics.RecordDBWrite("runs", "insert", 1, time.Since(start).Seconds(), err)
		if err != nil {
			return fmt.Errorf("store run %s: %w", rec.RunID, err)
		}
	}

	if r.trades != nil && len(res.Trades) > 0 {
		stored := make([]*domain.StoredTrade, len(res.Trades))
		for i, tr := range res.Trades {
			stored[i] = &domain.StoredTrade{RunID: rec.RunID, Seq: i, Trade: tr}
		}
		start := time.Now()
		err := r.trades.InsertBulk(ctx, stored)
		r.metrics.RecordDBWrite("trades", "insert", len(stored), time.Since(start).Seconds(), err)
		if err != nil {
			return fmt.Errorf("store trades of %s: %w", rec.RunID, err)
		}
	}

	if r.ledgers != nil {
		start := time.Now()
		err := r.ledgers.InsertLedger(ctx, rec.RunID, res.Ledger)
		r.metrics.RecordDBWrite("ledger", "insert", res.Ledger.Len(), time.Since(start).Seconds(), err)
		if err != nil {
			return fmt.Errorf("store ledger of %s: %w", rec.RunID, err)
		}
	}
	return nil
}
