package pipeline

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hxse/pyo3-quant-sub000/internal/decision"
	"github.com/hxse/pyo3-quant-sub000/internal/domain"
	"github.com/hxse/pyo3-quant-sub000/internal/reporting"
	"github.com/hxse/pyo3-quant-sub000/internal/storage"
)

// GeneratorVersion is stamped into every report for reproducibility.
const GeneratorVersion = "1.0.0"

// Output file names written by ReportPipeline.
const (
	FileReport       = "REPORT.md"
	FileRunMetrics   = "run_metrics.csv"
	FileAggregates   = "sweep_aggregates.csv"
	FileTrades       = "trades.csv"
	FileLedger       = "ledger.arrow"
	FileDecisionGate = "DECISION_GATE_REPORT.md"
)

// ReportStores groups the stores the report pipeline reads from.
// Only Runs is required.
type ReportStores struct {
	Runs       storage.RunStore
	Trades     storage.TradeStore
	Ledgers    storage.LedgerStore
	Aggregates storage.SweepAggregateStore
	Bars       storage.BarStore
}

// ReportOutcome summarizes one pipeline run.
type ReportOutcome struct {
	Decision    decision.Decision
	BestRunID   string
	DataVersion string
	Files       []string
}

// ReportPipeline orchestrates report + decision generation.
type ReportPipeline struct {
	stores          ReportStores
	reportGen       *reporting.Generator
	evaluator       *decision.Evaluator
	sufficiency     *SufficiencyChecker
	outputDir       string
	clock           func() time.Time
	integrityErrors []string
	dataSource      string // "fixtures" or "db" for the replay command
	postgresDSN     string
	clickhouseDSN   string
}

// NewReportPipeline creates a new pipeline writing into outputDir.
func NewReportPipeline(stores ReportStores, thresholds decision.Thresholds, outputDir string) *ReportPipeline {
	return &ReportPipeline{
		stores:    stores,
		reportGen: reporting.NewGenerator(stores.Runs, stores.Trades, stores.Aggregates),
		evaluator: decision.NewEvaluator(thresholds),
		outputDir: outputDir,
		clock:     func() time.Time { return time.Now().UTC() },
	}
}

// WithSufficiencyChecker enables bar checks before the gate is evaluated.
// Requires stores.Bars.
func (p *ReportPipeline) WithSufficiencyChecker(cfg SufficiencyConfig, crossover CrossoverConfig) *ReportPipeline {
	if p.stores.Bars != nil {
		p.sufficiency = NewSufficiencyChecker(p.stores.Bars, cfg, crossover)
	}
	return p
}

// WithClock sets a custom clock function for deterministic output.
func (p *ReportPipeline) WithClock(clock func() time.Time) *ReportPipeline {
	p.clock = clock
	p.reportGen = p.reportGen.WithClock(clock)
	return p
}

// WithIntegrityErrors adds integrity errors to include in the report.
// These are merged with errors from sufficiency checks.
func (p *ReportPipeline) WithIntegrityErrors(errors []string) *ReportPipeline {
	p.integrityErrors = append(p.integrityErrors, errors...)
	return p
}

// WithDataSource sets the data source for reproducibility metadata.
// Use "fixtures" for fixture mode. For DB mode, use WithDBSource instead.
func (p *ReportPipeline) WithDataSource(source string) *ReportPipeline {
	p.dataSource = source
	return p
}

// WithDBSource sets the data source to DB mode with DSN values for the replay command.
func (p *ReportPipeline) WithDBSource(postgresDSN, clickhouseDSN string) *ReportPipeline {
	p.dataSource = "db"
	p.postgresDSN = postgresDSN
	p.clickhouseDSN = clickhouseDSN
	return p
}

// RunJob reports on every run of a sweep job.
func (p *ReportPipeline) RunJob(ctx context.Context, jobID string) (*ReportOutcome, error) {
	report, err := p.reportGen.GenerateJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return p.run(ctx, report, fmt.Sprintf("-job-id %s", jobID))
}

// RunSingle reports on one stored run.
func (p *ReportPipeline) RunSingle(ctx context.Context, runID string) (*ReportOutcome, error) {
	report, err := p.reportGen.GenerateRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	return p.run(ctx, report, fmt.Sprintf("-run-id %s", runID))
}

// run writes, in order:
// - REPORT.md
// - run_metrics.csv
// - sweep_aggregates.csv (sweeps only)
// - trades.csv (best run)
// - ledger.arrow (best run, when a ledger store is configured)
// - DECISION_GATE_REPORT.md
func (p *ReportPipeline) run(ctx context.Context, report *reporting.Report, selector string) (*ReportOutcome, error) {
	if err := os.MkdirAll(p.outputDir, 0755); err != nil {
		return nil, err
	}
	outcome := &ReportOutcome{BestRunID: report.BestRunID}

	// 1. Sufficiency checks over the input bars
	var dataQuality reporting.DataQualitySection
	if p.sufficiency != nil {
		suffResult, err := p.sufficiency.Check(ctx, report.DataSummary.Symbol, report.DataSummary.Timeframe)
		if err != nil {
			return nil, err
		}
		dataQuality = ToDataQuality(suffResult)
	} else {
		dataQuality.AllChecksPassed = true
	}
	if len(p.integrityErrors) > 0 {
		dataQuality.IntegrityErrors = append(dataQuality.IntegrityErrors, p.integrityErrors...)
		dataQuality.AllChecksPassed = false
	}
	report.DataQuality = dataQuality

	// 2. Reproducibility metadata
	outcome.DataVersion = computeDataVersion(report)
	report.Reproducibility = reporting.ReproducibilityMetadata{
		ReportTimestamp:  p.clock(),
		GeneratorVersion: GeneratorVersion,
		DataVersion:      outcome.DataVersion,
		ReplayCommitHash: getGitCommitHash(),
		ReplayCommand:    p.buildReplayCommand(selector),
	}

	// 3. Gate decision
	var decisionMD string
	switch {
	case !dataQuality.AllChecksPassed:
		outcome.Decision = decision.DecisionInsufficientData
		decisionMD = p.renderInsufficientData(dataQuality, "")
	default:
		md, d, err := p.evaluateGate(ctx, report)
		if errors.Is(err, decision.ErrMissingReturnAggregate) {
			outcome.Decision = decision.DecisionInsufficientData
			decisionMD = p.renderInsufficientData(dataQuality, err.Error())
			break
		}
		if err != nil {
			return nil, err
		}
		outcome.Decision = d
		decisionMD = md
	}
	report.Decision = string(outcome.Decision)

	// 4. Write files
	write := func(name string, data []byte) error {
		if err := os.WriteFile(filepath.Join(p.outputDir, name), data, 0644); err != nil {
			return err
		}
		outcome.Files = append(outcome.Files, name)
		return nil
	}

	if err := write(FileReport, []byte(reporting.RenderMarkdown(report))); err != nil {
		return nil, err
	}
	if err := write(FileRunMetrics, []byte(reporting.RenderMetricsCSV(report.RunMetrics))); err != nil {
		return nil, err
	}
	if len(report.Aggregates) > 0 {
		if err := write(FileAggregates, []byte(reporting.RenderAggregatesCSV(report.Aggregates))); err != nil {
			return nil, err
		}
	}
	if p.stores.Trades != nil {
		var buf bytes.Buffer
		trades := make([]domain.Trade, len(report.Trades))
		for i, t := range report.Trades {
			trades[i] = t.Trade
		}
		if err := reporting.WriteTradesCSV(&buf, trades); err != nil {
			return nil, err
		}
		if err := write(FileTrades, buf.Bytes()); err != nil {
			return nil, err
		}
	}
	if p.stores.Ledgers != nil {
		lg, err := p.stores.Ledgers.GetLedger(ctx, report.BestRunID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			// Runs stored without a ledger have nothing to export
		case err != nil:
			return nil, err
		default:
			var buf bytes.Buffer
			if err := reporting.WriteLedgerArrow(&buf, lg, report.BestRunID); err != nil {
				return nil, err
			}
			if err := write(FileLedger, buf.Bytes()); err != nil {
				return nil, err
			}
		}
	}
	if err := write(FileDecisionGate, []byte(decisionMD)); err != nil {
		return nil, err
	}

	return outcome, nil
}

// evaluateGate runs the deployment gate on the best run of the report.
func (p *ReportPipeline) evaluateGate(ctx context.Context, report *reporting.Report) (string, decision.Decision, error) {
	rec, err := p.stores.Runs.GetByID(ctx, report.BestRunID)
	if err != nil {
		return "", decision.DecisionNOGO, err
	}
	input, err := decision.BuildGateInput(rec, report.Aggregates)
	if err != nil {
		return "", decision.DecisionNOGO, err
	}
	result := p.evaluator.Evaluate(*input)

	var sb strings.Builder
	sb.WriteString(decision.RenderMarkdown(*input, result))
	sb.WriteString("\n---\n\n")
	sb.WriteString(fmt.Sprintf("Generated at: %s\n", p.clock().Format("2006-01-02 15:04:05 UTC")))
	return sb.String(), result.Decision, nil
}

// ToDataQuality converts SufficiencyResult to reporting.DataQualitySection.
func ToDataQuality(result *SufficiencyResult) reporting.DataQualitySection {
	checks := make([]reporting.SufficiencyCheckRow, len(result.Checks))
	for i, c := range result.Checks {
		checks[i] = reporting.SufficiencyCheckRow{
			Name:      c.Name,
			Threshold: c.Threshold,
			Actual:    c.Actual,
			Pass:      c.Pass,
		}
	}
	return reporting.DataQualitySection{
		SufficiencyChecks: checks,
		IntegrityErrors:   result.Errors,
		AllChecksPassed:   result.AllPass,
	}
}

// buildReplayCommand returns the command to reproduce this report.
func (p *ReportPipeline) buildReplayCommand(selector string) string {
	switch p.dataSource {
	case "db":
		return fmt.Sprintf("go run ./cmd/report %s -postgres-dsn %q -clickhouse-dsn %q",
			selector, p.postgresDSN, p.clickhouseDSN)
	default:
		return fmt.Sprintf("go run ./cmd/report %s -use-fixtures", selector)
	}
}

// computeDataVersion hashes run ids, results and best-run trades so any
// change in stored data changes the version.
func computeDataVersion(report *reporting.Report) string {
	h := sha256.New()

	var runParts []string
	for _, m := range report.RunMetrics {
		runParts = append(runParts, fmt.Sprintf("%s|%d|%.10f|%.10f",
			m.RunID, m.Performance.TotalTrades, m.Performance.TotalReturn, m.Performance.MaxDrawdown))
	}
	sort.Strings(runParts)
	h.Write([]byte("RUNS\n"))
	h.Write([]byte(strings.Join(runParts, "\n")))

	h.Write([]byte("\nTRADES\n"))
	for _, t := range report.Trades {
		fmt.Fprintf(h, "%d|%d|%d|%.10f\n", t.Seq, t.EntryBar, t.ExitBar, t.PnlPct)
	}

	return hex.EncodeToString(h.Sum(nil))[:12]
}

// getGitCommitHash returns current git commit hash or "unknown" if not in git repo.
func getGitCommitHash() string {
	cmd := exec.Command("git", "rev-parse", "--short", "HEAD")
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "unknown"
	}
	return strings.TrimSpace(out.String())
}

// renderInsufficientData writes a gate report explaining why no GO/NO-GO was evaluated.
func (p *ReportPipeline) renderInsufficientData(dataQuality reporting.DataQualitySection, reason string) string {
	var sb strings.Builder
	sb.WriteString("# Deployment Gate Report\n\n")
	sb.WriteString("Generated at: " + p.clock().Format("2006-01-02 15:04:05 UTC") + "\n\n")
	sb.WriteString("## Decision: " + string(decision.DecisionInsufficientData) + "\n\n")
	if reason != "" {
		sb.WriteString("Cannot evaluate the gate: " + reason + ".\n\n")
	} else {
		sb.WriteString("Data sufficiency checks failed. Cannot proceed with GO/NO-GO evaluation.\n\n")
	}

	if len(dataQuality.SufficiencyChecks) > 0 {
		sb.WriteString("### Checks\n\n")
		sb.WriteString("| Check | Threshold | Actual | Status |\n")
		sb.WriteString("|-------|-----------|--------|--------|\n")
		for _, check := range dataQuality.SufficiencyChecks {
			status := "PASS"
			if !check.Pass {
				status = "FAIL"
			}
			sb.WriteString("| " + check.Name + " | " + check.Threshold + " | " + check.Actual + " | " + status + " |\n")
		}
		sb.WriteString("\n")
	}

	if len(dataQuality.IntegrityErrors) > 0 {
		sb.WriteString("### Integrity Errors\n\n")
		for _, err := range dataQuality.IntegrityErrors {
			sb.WriteString("- " + err + "\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString("### Required Actions\n\n")
	sb.WriteString("1. Collect more bars until all sufficiency checks pass\n")
	sb.WriteString("2. Fix any data integrity issues\n")
	sb.WriteString("3. Re-run the sweep and the report\n")
	return sb.String()
}
