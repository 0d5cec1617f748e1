// Package reporting renders run and sweep results as Markdown, CSV and
// Arrow IPC.
package reporting

import (
	"time"

	"github.com/hxse/pyo3-quant-sub000/internal/domain"
)

// Report represents a run or sweep report.
type Report struct {
	// Metadata
	GeneratedAt time.Time
	Title       string
	JobID       string // empty for single-run reports
	BestRunID   string
	Decision    string // deployment gate outcome, empty until evaluated

	// Data Summary
	DataSummary DataSummary

	// Data Quality (sufficiency checks)
	DataQuality DataQualitySection

	// Run Metrics, best total_return first
	RunMetrics []RunMetricRow

	// Sweep distribution per metric (sweep reports only)
	Aggregates []*domain.SweepAggregate

	// Trades of the best run
	Trades []TradeRow

	// Replay References (run_id and command)
	ReplayReferences []ReplayReferenceRow

	// Reproducibility
	Reproducibility ReproducibilityMetadata
}

// ReproducibilityMetadata contains versioning info for reproducibility.
type ReproducibilityMetadata struct {
	ReportTimestamp  time.Time
	GeneratorVersion string
	DataVersion      string // hash of run ids and results
	ReplayCommitHash string // git commit hash
	ReplayCommand    string // command to reproduce the report
}

// DataQualitySection contains data sufficiency checks and integrity errors.
type DataQualitySection struct {
	SufficiencyChecks []SufficiencyCheckRow
	IntegrityErrors   []string
	AllChecksPassed   bool
}

// SufficiencyCheckRow represents one sufficiency criterion.
type SufficiencyCheckRow struct {
	Name      string
	Threshold string
	Actual    string
	Pass      bool
}

// DataSummary contains data description.
type DataSummary struct {
	Symbol         string
	Timeframe      string
	Bars           int
	Runs           int
	TotalTrades    int
	DateRangeStart int64 // Unix ms
	DateRangeEnd   int64 // Unix ms
}

// RunMetricRow represents one row in run metrics table.
type RunMetricRow struct {
	RunID          string
	Params         domain.Params
	InitialCapital float64
	FinalEquity    float64
	Performance    domain.Performance
}

// TradeRow is one trade of the best run.
type TradeRow struct {
	Seq int
	domain.Trade
}

// ReplayReferenceRow lists replay identifiers.
type ReplayReferenceRow struct {
	RunID   string
	Command string
}
