package decision

import (
	"errors"

	"github.com/hxse/pyo3-quant-sub000/internal/domain"
)

// ErrMissingReturnAggregate is returned when sweep aggregates are given
// without a total_return entry.
var ErrMissingReturnAggregate = errors.New("missing total_return sweep aggregate")

// BuildGateInput creates GateInput from a stored run and, optionally, the
// aggregates of the sweep it belongs to.
func BuildGateInput(rec *domain.RunRecord, aggs []*domain.SweepAggregate) (*GateInput, error) {
	if rec == nil {
		return nil, ErrNilInput
	}
	perf := rec.Performance
	in := &GateInput{
		RunID:       rec.RunID,
		Symbol:      rec.Symbol,
		TotalReturn: perf.TotalReturn,
		SharpeRatio: perf.SharpeRatio,
		MaxDrawdown: perf.MaxDrawdown,
		TotalTrades: perf.TotalTrades,
		WinRate:     perf.WinRate,
	}
	if len(aggs) == 0 {
		return in, in.Validate()
	}

	for _, a := range aggs {
		if a.Metric != domain.MetricTotalReturn {
			continue
		}
		in.HasSweep = true
		in.SweepRuns = a.Runs
		in.SweepMedianReturn = a.Median
		in.SweepP10Return = a.P10
		return in, in.Validate()
	}
	return nil, ErrMissingReturnAggregate
}
