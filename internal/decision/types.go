// Package decision turns backtest output into things a live bot acts on:
// per-bar order actions and a GO/NO-GO deployment gate for a parameter set.
package decision

import "errors"

// Decision represents the final GO/NO-GO result.
type Decision string

const (
	DecisionGO   Decision = "GO"
	DecisionNOGO Decision = "NO-GO"

	// DecisionInsufficientData is reported instead of evaluating the gate
	// when the input bars fail sufficiency checks.
	DecisionInsufficientData Decision = "INSUFFICIENT_DATA"
)

var (
	// ErrEmptyRunID is returned when the gate input names no run.
	ErrEmptyRunID = errors.New("run id is empty")

	// ErrNilInput is returned for a nil gate input.
	ErrNilInput = errors.New("gate input is nil")
)

// GateInput contains numeric metrics for decision evaluation.
type GateInput struct {
	RunID  string
	Symbol string

	// Candidate run
	TotalReturn float64
	SharpeRatio float64
	MaxDrawdown float64
	TotalTrades int
	WinRate     float64

	// Sweep distribution of total_return; zero unless HasSweep
	HasSweep          bool
	SweepRuns         int
	SweepMedianReturn float64
	SweepP10Return    float64
}

// Validate checks required fields.
func (in *GateInput) Validate() error {
	if in == nil {
		return ErrNilInput
	}
	if in.RunID == "" {
		return ErrEmptyRunID
	}
	return nil
}

// Thresholds parameterize the gate.
type Thresholds struct {
	MinTotalReturn       float64
	MinSharpe            float64
	MaxDrawdown          float64 // GO criterion
	MinTrades            int
	MinSweepMedianReturn float64
	RuinDrawdown         float64 // NO-GO trigger
}

// DefaultThresholds returns the standard gate settings.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinTotalReturn:       0,
		MinSharpe:            0.5,
		MaxDrawdown:          0.3,
		MinTrades:            10,
		MinSweepMedianReturn: 0,
		RuinDrawdown:         0.5,
	}
}

// CriterionResult represents pass/fail for one criterion.
type CriterionResult struct {
	Name      string
	Threshold string
	Actual    string
	Pass      bool
}

// DecisionResult contains the final decision with checklist.
type DecisionResult struct {
	Decision   Decision
	GOCriteria []CriterionResult // 5 GO criteria
	NOGOChecks []CriterionResult // 4 NO-GO triggers
}
