package metrics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/hxse/pyo3-quant-sub000/internal/domain"
	"github.com/hxse/pyo3-quant-sub000/internal/storage"
)

var (
	// ErrNoRuns is returned when no runs are available for aggregation.
	ErrNoRuns = errors.New("no runs available for aggregation")

	// ErrUnknownMetric is returned for a metric name outside domain.MetricNames.
	ErrUnknownMetric = errors.New("unknown metric")
)

// RunPerformance pairs a run ID with its performance summary.
type RunPerformance struct {
	RunID       string
	Performance domain.Performance
}

// AggregateMetric summarizes one metric across runs.
// Runs are ordered by RunID before ranking, so ties resolve to the smallest ID.
func AggregateMetric(jobID, metric string, runs []RunPerformance) (*domain.SweepAggregate, error) {
	if len(runs) == 0 {
		return nil, ErrNoRuns
	}
	if _, ok := (domain.Performance{}).Metric(metric); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMetric, metric)
	}

	sorted := sortedRuns(runs)
	values := make([]float64, 0, len(sorted))
	agg := &domain.SweepAggregate{
		JobID:  jobID,
		Metric: metric,
		Runs:   len(sorted),
	}

	lower := domain.LowerIsBetter(metric)
	best := math.NaN()
	for _, r := range sorted {
		v, _ := r.Performance.Metric(metric)
		if math.IsNaN(v) {
			continue
		}
		values = append(values, v)
		if math.IsNaN(best) || (lower && v < best) || (!lower && v > best) {
			best = v
			agg.BestRunID = r.RunID
		}
	}
	if len(values) == 0 {
		return agg, nil
	}
	agg.BestValue = best

	ordered := append([]float64(nil), values...)
	sort.Float64s(ordered)

	agg.Mean = computeMean(values)
	agg.Stddev = computeStddev(values, agg.Mean)
	agg.Median = computePercentile(ordered, 0.50)
	agg.P10 = computePercentile(ordered, 0.10)
	agg.P25 = computePercentile(ordered, 0.25)
	agg.P75 = computePercentile(ordered, 0.75)
	agg.P90 = computePercentile(ordered, 0.90)
	agg.Min = ordered[0]
	agg.Max = ordered[len(ordered)-1]
	return agg, nil
}

// Aggregate summarizes every metric in domain.MetricNames.
func Aggregate(jobID string, runs []RunPerformance) ([]*domain.SweepAggregate, error) {
	out := make([]*domain.SweepAggregate, 0, len(domain.MetricNames))
	for _, m := range domain.MetricNames {
		agg, err := AggregateMetric(jobID, m, runs)
		if err != nil {
			return nil, err
		}
		out = append(out, agg)
	}
	return out, nil
}

// Rank orders runs best-first by metric. Ties keep RunID order.
func Rank(runs []RunPerformance, metric string) ([]RunPerformance, error) {
	if _, ok := (domain.Performance{}).Metric(metric); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMetric, metric)
	}
	out := sortedRuns(runs)
	lower := domain.LowerIsBetter(metric)
	sort.SliceStable(out, func(i, j int) bool {
		a, _ := out[i].Performance.Metric(metric)
		b, _ := out[j].Performance.Metric(metric)
		if lower {
			return a < b
		}
		return a > b
	})
	return out, nil
}

func sortedRuns(runs []RunPerformance) []RunPerformance {
	out := append([]RunPerformance(nil), runs...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].RunID < out[j].RunID })
	return out
}

// Aggregator computes sweep aggregates from stored run summaries.
type Aggregator struct {
	runStore storage.RunStore
	aggStore storage.SweepAggregateStore
}

// NewAggregator creates a new sweep aggregator.
func NewAggregator(runStore storage.RunStore, aggStore storage.SweepAggregateStore) *Aggregator {
	return &Aggregator{runStore: runStore, aggStore: aggStore}
}

// ComputeAggregates loads the runs of jobID and summarizes every metric.
// Returns ErrNoRuns if the job has no stored runs.
func (a *Aggregator) ComputeAggregates(ctx context.Context, jobID string) ([]*domain.SweepAggregate, error) {
	records, err := a.runStore.GetByJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load runs of job %s: %w", jobID, err)
	}
	if len(records) == 0 {
		return nil, ErrNoRuns
	}

	runs := make([]RunPerformance, len(records))
	for i, r := range records {
		runs[i] = RunPerformance{RunID: r.RunID, Performance: r.Performance}
	}
	return Aggregate(jobID, runs)
}

// ComputeAndStore computes and persists the aggregates of jobID.
// Returns storage.ErrDuplicateKey if the job was already aggregated (append-only).
func (a *Aggregator) ComputeAndStore(ctx context.Context, jobID string) ([]*domain.SweepAggregate, error) {
	aggs, err := a.ComputeAggregates(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := a.aggStore.InsertBulk(ctx, aggs); err != nil {
		return nil, err
	}
	return aggs, nil
}
