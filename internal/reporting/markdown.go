package reporting

import (
	"fmt"
	"strings"
	"time"

	"github.com/hxse/pyo3-quant-sub000/internal/domain"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString(fmt.Sprintf("# %s\n\n", r.Title))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	if r.Decision != "" {
		sb.WriteString(fmt.Sprintf("**Decision: %s**\n\n", r.Decision))
	}

	// Data Summary
	s := r.DataSummary
	sb.WriteString("## Data Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Symbol | %s |\n", s.Symbol))
	sb.WriteString(fmt.Sprintf("| Timeframe | %s |\n", s.Timeframe))
	sb.WriteString(fmt.Sprintf("| Bars | %d |\n", s.Bars))
	sb.WriteString(fmt.Sprintf("| Runs | %d |\n", s.Runs))
	sb.WriteString(fmt.Sprintf("| Total Trades | %d |\n", s.TotalTrades))
	sb.WriteString(fmt.Sprintf("| Date Range Start | %s |\n", formatMs(s.DateRangeStart)))
	sb.WriteString(fmt.Sprintf("| Date Range End | %s |\n", formatMs(s.DateRangeEnd)))
	sb.WriteString("\n")

	// Data Quality
	if len(r.DataQuality.SufficiencyChecks) > 0 || len(r.DataQuality.IntegrityErrors) > 0 {
		sb.WriteString("## Data Quality\n\n")
	}
	if len(r.DataQuality.SufficiencyChecks) > 0 {
		sb.WriteString("| Check | Threshold | Actual | Status |\n")
		sb.WriteString("|-------|-----------|--------|--------|\n")
		for _, check := range r.DataQuality.SufficiencyChecks {
			status := "FAIL"
			if check.Pass {
				status = "PASS"
			}
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
				check.Name, check.Threshold, check.Actual, status))
		}
		sb.WriteString("\n")
		if r.DataQuality.AllChecksPassed {
			sb.WriteString("**All checks passed.**\n\n")
		} else {
			sb.WriteString("**Some checks failed.** Results below may not be representative.\n\n")
		}
	}
	if len(r.DataQuality.IntegrityErrors) > 0 {
		sb.WriteString("### Integrity Errors\n\n")
		for _, err := range r.DataQuality.IntegrityErrors {
			sb.WriteString(fmt.Sprintf("- %s\n", err))
		}
		sb.WriteString("\n")
	}

	// Run Metrics
	sb.WriteString("## Run Metrics\n\n")
	if len(r.RunMetrics) > 0 {
		sb.WriteString("| Run | Final Equity | Return | MaxDD | Sharpe | Sortino | Calmar | Trades | WinRate | P/L |\n")
		sb.WriteString("|-----|--------------|--------|-------|--------|---------|--------|--------|---------|-----|\n")
		for _, m := range r.RunMetrics {
			p := m.Performance
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %.4f | %.4f | %.4f | %d | %s | %.4f |\n",
				shortID(m.RunID), FormatMoney(m.FinalEquity), FormatPct(p.TotalReturn), FormatPct(p.MaxDrawdown),
				p.SharpeRatio, p.SortinoRatio, p.CalmarRatio, p.TotalTrades, FormatPct(p.WinRate), p.ProfitLossRatio))
		}
	} else {
		sb.WriteString("No runs available.\n")
	}
	sb.WriteString("\n")

	// Sweep Distribution
	if len(r.Aggregates) > 0 {
		sb.WriteString("## Sweep Distribution\n\n")
		sb.WriteString("| Metric | Runs | Best | Best Run | Mean | Median | P10 | P90 | Stddev |\n")
		sb.WriteString("|--------|------|------|----------|------|--------|-----|-----|--------|\n")
		for _, a := range r.Aggregates {
			sb.WriteString(fmt.Sprintf("| %s | %d | %.4f | %s | %.4f | %.4f | %.4f | %.4f | %.4f |\n",
				a.Metric, a.Runs, a.BestValue, shortID(a.BestRunID), a.Mean, a.Median, a.P10, a.P90, a.Stddev))
		}
		sb.WriteString("\n")
	}

	// Best Run Trades
	if len(r.Trades) > 0 {
		sb.WriteString(fmt.Sprintf("## Trades of %s\n\n", shortID(r.BestRunID)))
		sb.WriteString("| # | Side | Entry Bar | Exit Bar | Entry | Exit | Reason | PnL | Fees |\n")
		sb.WriteString("|---|------|-----------|----------|-------|------|--------|-----|------|\n")
		for _, t := range r.Trades {
			reason := t.ExitReason
			if t.InBar {
				reason += " (in-bar)"
			}
			sb.WriteString(fmt.Sprintf("| %d | %s | %d | %d | %.6g | %.6g | %s | %s | %s |\n",
				t.Seq, t.Side, t.EntryBar, t.ExitBar, t.EntryPrice, t.ExitPrice, reason, FormatPct(t.PnlPct), FormatMoney(t.Fees)))
		}
		sb.WriteString("\n")
	}

	// Replay References
	if len(r.ReplayReferences) > 0 {
		sb.WriteString("## Replay References\n\n")
		for _, ref := range r.ReplayReferences {
			sb.WriteString(fmt.Sprintf("- `%s`\n", ref.Command))
		}
		sb.WriteString("\n")
	}

	// Reproducibility
	if rp := r.Reproducibility; rp.DataVersion != "" {
		sb.WriteString("## Reproducibility\n\n")
		sb.WriteString("| Field | Value |\n")
		sb.WriteString("|-------|-------|\n")
		sb.WriteString(fmt.Sprintf("| Report Timestamp | %s |\n", rp.ReportTimestamp.Format(time.RFC3339)))
		sb.WriteString(fmt.Sprintf("| Generator Version | %s |\n", rp.GeneratorVersion))
		sb.WriteString(fmt.Sprintf("| Data Version | %s |\n", rp.DataVersion))
		sb.WriteString(fmt.Sprintf("| Commit | %s |\n", rp.ReplayCommitHash))
		sb.WriteString(fmt.Sprintf("| Command | `%s` |\n", rp.ReplayCommand))
		sb.WriteString("\n")
	}

	return sb.String()
}

// RenderPerformance renders one metric summary as a two-column table.
func RenderPerformance(p domain.Performance) string {
	var sb strings.Builder
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	m := p.AsMap()
	for _, name := range domain.MetricNames {
		sb.WriteString(fmt.Sprintf("| %s | %.6g |\n", name, m[name]))
	}
	return sb.String()
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func formatMs(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}
