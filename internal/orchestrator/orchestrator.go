// Package orchestrator coordinates parameter sweeps end to end.
// Flow: load bars → build frame → fan out runs → aggregate metrics.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hxse/pyo3-quant-sub000/internal/backtest"
	"github.com/hxse/pyo3-quant-sub000/internal/domain"
	"github.com/hxse/pyo3-quant-sub000/internal/metrics"
	"github.com/hxse/pyo3-quant-sub000/internal/observability"
	"github.com/hxse/pyo3-quant-sub000/internal/pipeline"
	"github.com/hxse/pyo3-quant-sub000/internal/storage"
)

// ErrNoParams is returned by Sweep when no parameter sets are given.
var ErrNoParams = errors.New("no parameter sets to run")

// Orchestrator fans parameter sets out over a shared read-only frame.
type Orchestrator struct {
	runner   *backtest.Runner
	barStore storage.BarStore
	aggStore storage.SweepAggregateStore
	workers  int
	failFast bool
	metrics  *observability.Metrics
	logger   *zap.Logger
	newJobID func() string
}

// Options for creating Orchestrator.
type Options struct {
	// Runner executes and persists individual runs. Required.
	Runner *backtest.Runner

	// Optional stores
	BarStore            storage.BarStore
	SweepAggregateStore storage.SweepAggregateStore

	// Workers bounds concurrent runs; <= 0 means 1.
	Workers int

	// FailFast cancels the remaining runs on the first run error.
	FailFast bool

	Metrics  *observability.Metrics
	Logger   *zap.Logger
	NewJobID func() string
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		runner:   opts.Runner,
		barStore: opts.BarStore,
		aggStore: opts.SweepAggregateStore,
		workers:  opts.Workers,
		failFast: opts.FailFast,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		newJobID: opts.NewJobID,
	}
	if o.runner == nil {
		o.runner = backtest.NewRunner(backtest.RunnerOptions{})
	}
	if o.workers <= 0 {
		o.workers = 1
	}
	if o.metrics == nil {
		o.metrics = observability.DefaultMetrics
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.newJobID == nil {
		o.newJobID = uuid.NewString
	}
	return o
}

// SweepRequest describes one sweep job.
type SweepRequest struct {
	Symbol    string
	Timeframe string
	Frame     *domain.Frame
	Params    []domain.Params
}

// SweepResult contains results from one sweep job.
type SweepResult struct {
	JobID string

	// Runs is aligned with the deduplicated parameter sets; nil where the run failed.
	Runs []*backtest.RunOutput

	RunsCompleted     int
	RunsCached        int
	AggregatesCreated int
	Aggregates        []*domain.SweepAggregate
	Errors            []string
}

// Sweep runs every parameter set of req against the same frame.
// Identical parameter sets are run once. Runs that fail are reported in
// SweepResult.Errors unless FailFast is set, in which case the first error
// cancels the job and is returned.
func (o *Orchestrator) Sweep(ctx context.Context, req SweepRequest) (*SweepResult, error) {
	if req.Frame == nil {
		return nil, fmt.Errorf("sweep %s: nil frame", req.Symbol)
	}
	params := dedupParams(req.Params)
	if len(params) == 0 {
		return nil, ErrNoParams
	}

	start := time.Now()
	result := &SweepResult{
		JobID: o.newJobID(),
		Runs:  make([]*backtest.RunOutput, len(params)),
	}
	log := o.logger.With(zap.String("job_id", result.JobID), zap.String("symbol", req.Symbol))
	log.Info("sweep started", zap.Int("param_sets", len(params)), zap.Int("workers", o.workers))

	runErrs := make([]error, len(params))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for i := range params {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			o.metrics.SweepRunsInFlight.Inc()
			defer o.metrics.SweepRunsInFlight.Dec()

			out, err := o.runner.Run(gctx, backtest.RunRequest{
				Symbol:    req.Symbol,
				Timeframe: req.Timeframe,
				JobID:     result.JobID,
				Frame:     req.Frame,
				Params:    params[i],
			})
			if err != nil {
				runErrs[i] = err
				if o.failFast {
					return fmt.Errorf("param set %d: %w", i, err)
				}
				return nil
			}
			result.Runs[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		o.metrics.RecordSweep("error", time.Since(start).Seconds())
		log.Warn("sweep aborted", zap.Error(err))
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		o.metrics.RecordSweep("canceled", time.Since(start).Seconds())
		return nil, err
	}

	perf := make([]metrics.RunPerformance, 0, len(params))
	for i, out := range result.Runs {
		if runErrs[i] != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("param set %d: %v", i, runErrs[i]))
			continue
		}
		result.RunsCompleted++
		if out.Cached {
			result.RunsCached++
		}
		perf = append(perf, metrics.RunPerformance{RunID: out.Record.RunID, Performance: out.Record.Performance})
	}

	if len(perf) > 0 {
		aggs, err := metrics.Aggregate(result.JobID, perf)
		if err != nil {
			return nil, fmt.Errorf("aggregate job %s: %w", result.JobID, err)
		}
		result.Aggregates = aggs
		if o.aggStore != nil {
			if err := o.aggStore.InsertBulk(ctx, aggs); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
				result.Errors = append(result.Errors, fmt.Sprintf("store aggregates: %v", err))
			} else if err == nil {
				result.AggregatesCreated = len(aggs)
			}
		}
	}

	status := "ok"
	if len(result.Errors) > 0 {
		status = "partial"
	}
	o.metrics.RecordSweep(status, time.Since(start).Seconds())
	log.Info("sweep completed",
		zap.Int("runs", result.RunsCompleted),
		zap.Int("cached", result.RunsCached),
		zap.Int("aggregates", result.AggregatesCreated),
		zap.Int("errors", len(result.Errors)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

// LoadFrame reads stored bars in [from, to] and evaluates the crossover
// signal template over them. from == to == 0 loads every bar of the symbol.
func (o *Orchestrator) LoadFrame(ctx context.Context, symbol, timeframe string, from, to int64, cfg pipeline.CrossoverConfig) (*domain.Frame, error) {
	if o.barStore == nil {
		return nil, errors.New("load frame: no bar store configured")
	}

	var (
		bars []*domain.OHLCV
		err  error
	)
	if from == 0 && to == 0 {
		bars, err = o.barStore.GetBySymbol(ctx, symbol, timeframe)
	} else {
		bars, err = o.barStore.GetByTimeRange(ctx, symbol, timeframe, from, to)
	}
	if err != nil {
		return nil, fmt.Errorf("load bars %s/%s: %w", symbol, timeframe, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("load bars %s/%s: %w", symbol, timeframe, storage.ErrNotFound)
	}

	values := make([]domain.OHLCV, len(bars))
	for i, b := range bars {
		values[i] = *b
	}
	return pipeline.CrossoverFrame(values, cfg)
}

func dedupParams(in []domain.Params) []domain.Params {
	seen := make(map[domain.Params]struct{}, len(in))
	out := make([]domain.Params, 0, len(in))
	for _, p := range in {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
