// Package verification replays stored runs and checks that the engine
// reproduces their ledgers, trades and metrics exactly.
package verification

import (
	"context"
	"math"

	"github.com/hxse/pyo3-quant-sub000/internal/domain"
)

// FloatTolerance is the tolerance for performance metric comparisons.
// Ledger values are compared bit for bit.
const FloatTolerance = 1e-9

// MaxLedgerDivergences caps the per-bar divergences reported for one run.
const MaxLedgerDivergences = 20

// FieldDivergence represents a mismatch between stored and replayed values.
type FieldDivergence struct {
	Bar      int         // ledger bar or trade seq; -1 for run-level fields
	Field    string      // column or field name
	Expected interface{} // stored value
	Actual   interface{} // replayed value
}

// VerificationResult contains the result of verifying a single run.
type VerificationResult struct {
	RunID               string
	Match               bool
	Divergences         []FieldDivergence
	StoredTotalReturn   float64
	ReplayedTotalReturn float64
}

// VerificationReport contains results for batch verification.
type VerificationReport struct {
	TotalRuns     int
	MatchedRuns   int
	DivergentRuns int
	Results       []VerificationResult
}

// Verifier replays stored runs.
type Verifier interface {
	// VerifyRun loads the stored run, re-executes it with the same frame
	// and params, and compares ledger, trades and performance.
	VerifyRun(ctx context.Context, runID string) (*VerificationResult, error)

	// VerifyJob verifies every run of a sweep job.
	VerifyJob(ctx context.Context, jobID string) (*VerificationReport, error)
}

// CompareLedgers compares two ledgers column by column.
// NaN equals NaN; every other value must match bit for bit.
// At most MaxLedgerDivergences cell divergences are returned.
func CompareLedgers(stored, replayed *domain.Ledger) []FieldDivergence {
	var divergences []FieldDivergence

	if stored.Len() != replayed.Len() {
		return append(divergences, FieldDivergence{
			Bar:      -1,
			Field:    "rows",
			Expected: stored.Len(),
			Actual:   replayed.Len(),
		})
	}

	storedCols := stored.Columns()
	replayedCols := replayed.Columns()
	if !sameStrings(storedCols, replayedCols) {
		return append(divergences, FieldDivergence{
			Bar:      -1,
			Field:    "columns",
			Expected: storedCols,
			Actual:   replayedCols,
		})
	}

	for _, name := range storedCols {
		a, _ := stored.Float(name)
		b, _ := replayed.Float(name)
		for i := range a {
			if bitEqual(a[i], b[i]) {
				continue
			}
			divergences = append(divergences, FieldDivergence{
				Bar:      i,
				Field:    name,
				Expected: a[i],
				Actual:   b[i],
			})
			if len(divergences) >= MaxLedgerDivergences {
				return divergences
			}
		}
	}
	return divergences
}

// CompareTrades compares stored trades with a replayed trade list.
func CompareTrades(stored []*domain.StoredTrade, replayed []domain.Trade) []FieldDivergence {
	var divergences []FieldDivergence

	if len(stored) != len(replayed) {
		return append(divergences, FieldDivergence{
			Bar:      -1,
			Field:    "trade_count",
			Expected: len(stored),
			Actual:   len(replayed),
		})
	}

	for i, s := range stored {
		r := replayed[i]
		check := func(field string, ok bool, expected, actual interface{}) {
			if !ok {
				divergences = append(divergences, FieldDivergence{Bar: s.Seq, Field: field, Expected: expected, Actual: actual})
			}
		}
		check("Side", s.Side == r.Side, s.Side, r.Side)
		check("EntryBar", s.EntryBar == r.EntryBar, s.EntryBar, r.EntryBar)
		check("ExitBar", s.ExitBar == r.ExitBar, s.ExitBar, r.ExitBar)
		check("EntryPrice", bitEqual(s.EntryPrice, r.EntryPrice), s.EntryPrice, r.EntryPrice)
		check("ExitPrice", bitEqual(s.ExitPrice, r.ExitPrice), s.ExitPrice, r.ExitPrice)
		check("ExitReason", s.ExitReason == r.ExitReason, s.ExitReason, r.ExitReason)
		check("InBar", s.InBar == r.InBar, s.InBar, r.InBar)
		check("PnlPct", bitEqual(s.PnlPct, r.PnlPct), s.PnlPct, r.PnlPct)
		check("Fees", bitEqual(s.Fees, r.Fees), s.Fees, r.Fees)
	}
	return divergences
}

// ComparePerformance compares two metric summaries within FloatTolerance.
func ComparePerformance(stored, replayed domain.Performance) []FieldDivergence {
	var divergences []FieldDivergence
	a, b := stored.AsMap(), replayed.AsMap()
	for _, name := range domain.MetricNames {
		if !floatEquals(a[name], b[name]) {
			divergences = append(divergences, FieldDivergence{
				Bar:      -1,
				Field:    name,
				Expected: a[name],
				Actual:   b[name],
			})
		}
	}
	return divergences
}

func bitEqual(a, b float64) bool {
	if math.IsNaN(a) && math.IsNaN(b) {
		return true
	}
	return math.Float64bits(a) == math.Float64bits(b)
}

// floatEquals compares two float64 values within FloatTolerance.
func floatEquals(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	if math.IsInf(a, 0) || math.IsInf(b, 0) {
		return a == b
	}
	return math.Abs(a-b) <= FloatTolerance
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
