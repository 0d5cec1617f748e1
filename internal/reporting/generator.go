package reporting

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/hxse/pyo3-quant-sub000/internal/domain"
	"github.com/hxse/pyo3-quant-sub000/internal/storage"
)

// ErrNoRuns is returned when a job has no stored runs.
var ErrNoRuns = errors.New("no runs to report")

// Generator produces reports from stored data.
type Generator struct {
	runStore   storage.RunStore
	tradeStore storage.TradeStore
	aggStore   storage.SweepAggregateStore
	now        func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator. tradeStore and aggStore may be nil.
func NewGenerator(
	runStore storage.RunStore,
	tradeStore storage.TradeStore,
	aggStore storage.SweepAggregateStore,
) *Generator {
	return &Generator{
		runStore:   runStore,
		tradeStore: tradeStore,
		aggStore:   aggStore,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// GenerateJob produces a sweep report for all runs of jobID.
func (g *Generator) GenerateJob(ctx context.Context, jobID string) (*Report, error) {
	runs, err := g.runStore.GetByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("job %s: %w", jobID, ErrNoRuns)
	}

	r, err := g.build(ctx, fmt.Sprintf("Sweep %s", jobID), runs)
	if err != nil {
		return nil, err
	}
	r.JobID = jobID

	if g.aggStore != nil {
		aggs, err := g.aggStore.GetByJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		r.Aggregates = aggs
	}
	return r, nil
}

// GenerateRun produces a report for a single stored run.
func (g *Generator) GenerateRun(ctx context.Context, runID string) (*Report, error) {
	rec, err := g.runStore.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	return g.build(ctx, fmt.Sprintf("Run %s", runID), []*domain.RunRecord{rec})
}

func (g *Generator) build(ctx context.Context, title string, runs []*domain.RunRecord) (*Report, error) {
	rows := make([]RunMetricRow, len(runs))
	for i, rec := range runs {
		rows[i] = RunMetricRow{
			RunID:          rec.RunID,
			Params:         rec.Params,
			InitialCapital: rec.Params.InitialCapital,
			FinalEquity:    FinalEquity(rec.Params.InitialCapital, rec.Performance.TotalReturn),
			Performance:    rec.Performance,
		}
	}
	// Best total return first, run_id breaks ties.
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].Performance.TotalReturn, rows[j].Performance.TotalReturn
		if a != b {
			return a > b
		}
		return rows[i].RunID < rows[j].RunID
	})

	first := runs[0]
	summary := DataSummary{
		Symbol:         first.Symbol,
		Timeframe:      first.Timeframe,
		Bars:           first.BarCount,
		Runs:           len(runs),
		DateRangeStart: first.FirstBarMs,
		DateRangeEnd:   first.LastBarMs,
	}
	for _, rec := range runs {
		summary.TotalTrades += rec.TradeCount
	}

	r := &Report{
		GeneratedAt: g.now(),
		Title:       title,
		BestRunID:   rows[0].RunID,
		DataSummary: summary,
		RunMetrics:  rows,
	}

	if g.tradeStore != nil {
		trades, err := g.tradeStore.GetByRunID(ctx, r.BestRunID)
		if err != nil {
			return nil, err
		}
		r.Trades = make([]TradeRow, len(trades))
		for i, t := range trades {
			r.Trades[i] = TradeRow{Seq: t.Seq, Trade: t.Trade}
		}
	}

	for _, row := range rows {
		r.ReplayReferences = append(r.ReplayReferences, ReplayReferenceRow{
			RunID:   row.RunID,
			Command: fmt.Sprintf("replay -run-id %s", row.RunID),
		})
	}
	return r, nil
}
