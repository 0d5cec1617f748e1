package verification

import (
	"context"
	"errors"
	"fmt"

	"github.com/hxse/pyo3-quant-sub000/internal/backtest"
	"github.com/hxse/pyo3-quant-sub000/internal/domain"
	"github.com/hxse/pyo3-quant-sub000/internal/idhash"
	"github.com/hxse/pyo3-quant-sub000/internal/metrics"
	"github.com/hxse/pyo3-quant-sub000/internal/observability"
	"github.com/hxse/pyo3-quant-sub000/internal/storage"
)

var (
	// ErrRunNotFound is returned when run ID doesn't exist.
	ErrRunNotFound = errors.New("run not found")

	// ErrLedgerNotFound is returned when a stored run has no ledger rows.
	ErrLedgerNotFound = errors.New("ledger not found")
)

// FrameSource rebuilds the input frame of a stored run.
type FrameSource interface {
	Frame(ctx context.Context, rec *domain.RunRecord) (*domain.Frame, error)
}

// FrameSourceFunc adapts a function to FrameSource.
type FrameSourceFunc func(ctx context.Context, rec *domain.RunRecord) (*domain.Frame, error)

// Frame calls f.
func (f FrameSourceFunc) Frame(ctx context.Context, rec *domain.RunRecord) (*domain.Frame, error) {
	return f(ctx, rec)
}

// ReplayVerifier implements Verifier interface.
type ReplayVerifier struct {
	runStore    storage.RunStore
	tradeStore  storage.TradeStore
	ledgerStore storage.LedgerStore
	frames      FrameSource
	engine      *backtest.Engine
	analysis    metrics.Options
}

// ReplayVerifierOptions contains configuration for creating a ReplayVerifier.
type ReplayVerifierOptions struct {
	RunStore    storage.RunStore
	TradeStore  storage.TradeStore  // optional
	LedgerStore storage.LedgerStore // optional
	Frames      FrameSource
	Analysis    metrics.Options // must match the options the run was stored with
}

// NewReplayVerifier creates a new ReplayVerifier.
func NewReplayVerifier(opts ReplayVerifierOptions) *ReplayVerifier {
	return &ReplayVerifier{
		runStore:    opts.RunStore,
		tradeStore:  opts.TradeStore,
		ledgerStore: opts.LedgerStore,
		frames:      opts.Frames,
		engine:      backtest.NewEngine(backtest.Options{}),
		analysis:    opts.Analysis,
	}
}

// VerifyRun verifies a single run by replaying it.
func (v *ReplayVerifier) VerifyRun(ctx context.Context, runID string) (*VerificationResult, error) {
	rec, err := v.runStore.GetByID(ctx, runID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}

	frame, err := v.frames.Frame(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("rebuild frame of %s: %w", runID, err)
	}

	var divergences []FieldDivergence

	// A different frame hash means the inputs changed, not the engine.
	replayedID, err := idhash.ComputeRunID(idhash.FrameFingerprint(frame), rec.Params)
	if err != nil {
		return nil, err
	}
	if replayedID != rec.RunID {
		divergences = append(divergences, FieldDivergence{Bar: -1, Field: "RunID", Expected: rec.RunID, Actual: replayedID})
	}

	res, err := v.engine.Run(ctx, frame, rec.Params)
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", runID, err)
	}
	perf := metrics.Analyze(res.Ledger, frame.TimeMs, v.analysis)

	if v.ledgerStore != nil {
		stored, err := v.ledgerStore.GetLedger(ctx, runID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, ErrLedgerNotFound
			}
			return nil, err
		}
		stored.Optional = domain.OptionalColumns(rec.Params)
		divergences = append(divergences, CompareLedgers(stored, res.Ledger)...)
	}

	if v.tradeStore != nil {
		stored, err := v.tradeStore.GetByRunID(ctx, runID)
		if err != nil {
			return nil, err
		}
		divergences = append(divergences, CompareTrades(stored, res.Trades)...)
	}

	if rec.TradeCount != len(res.Trades) {
		divergences = append(divergences, FieldDivergence{Bar: -1, Field: "TradeCount", Expected: rec.TradeCount, Actual: len(res.Trades)})
	}
	divergences = append(divergences, ComparePerformance(rec.Performance, perf)...)

	match := len(divergences) == 0
	observability.RecordVerification(match)
	return &VerificationResult{
		RunID:               runID,
		Match:               match,
		Divergences:         divergences,
		StoredTotalReturn:   rec.Performance.TotalReturn,
		ReplayedTotalReturn: perf.TotalReturn,
	}, nil
}

// VerifyJob verifies all runs of a sweep job.
func (v *ReplayVerifier) VerifyJob(ctx context.Context, jobID string) (*VerificationReport, error) {
	runs, err := v.runStore.GetByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	report := &VerificationReport{
		TotalRuns: len(runs),
		Results:   make([]VerificationResult, 0, len(runs)),
	}

	for _, run := range runs {
		result, err := v.VerifyRun(ctx, run.RunID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Record error as divergence
			report.Results = append(report.Results, VerificationResult{
				RunID:             run.RunID,
				Match:             false,
				StoredTotalReturn: run.Performance.TotalReturn,
				Divergences: []FieldDivergence{
					{Bar: -1, Field: "Error", Expected: nil, Actual: err.Error()},
				},
			})
			report.DivergentRuns++
			continue
		}

		report.Results = append(report.Results, *result)
		if result.Match {
			report.MatchedRuns++
		} else {
			report.DivergentRuns++
		}
	}

	return report, nil
}

var _ Verifier = (*ReplayVerifier)(nil)
