package decision

import (
	"fmt"
	"strings"
)

// RenderMarkdown renders the gate checklist for one run.
func RenderMarkdown(input GateInput, result *DecisionResult) string {
	var sb strings.Builder

	title := "`" + input.RunID + "`"
	if input.Symbol != "" {
		title += " (" + input.Symbol + ")"
	}
	fmt.Fprintf(&sb, "# Deployment Gate Report\n\nRun: %s\n\n", title)
	fmt.Fprintf(&sb, "## Decision: %s\n\n", result.Decision)

	sb.WriteString("## Candidate Run\n\n")
	sb.WriteString("| Metric | Value |\n|--------|-------|\n")
	fmt.Fprintf(&sb, "| total_return | %.4f |\n", input.TotalReturn)
	fmt.Fprintf(&sb, "| sharpe_ratio | %.4f |\n", input.SharpeRatio)
	fmt.Fprintf(&sb, "| max_drawdown | %.2f%% |\n", input.MaxDrawdown*100)
	fmt.Fprintf(&sb, "| total_trades | %d |\n", input.TotalTrades)
	fmt.Fprintf(&sb, "| win_rate | %.2f%% |\n\n", input.WinRate*100)

	sb.WriteString("## Sweep Context\n\n")
	if input.HasSweep {
		fmt.Fprintf(&sb, "%d runs. total_return median %.4f, P10 %.4f.\n\n",
			input.SweepRuns, input.SweepMedianReturn, input.SweepP10Return)
	} else {
		sb.WriteString("Single run, no sweep distribution.\n\n")
	}

	sb.WriteString("## GO Criteria\n\n")
	passed := writeChecks(&sb, "Criterion", "Threshold", result.GOCriteria, "PASS", "FAIL")
	fmt.Fprintf(&sb, "GO Criteria: %d/%d passed\n\n", passed, len(result.GOCriteria))

	sb.WriteString("## NO-GO Triggers\n\n")
	quiet := writeChecks(&sb, "Trigger", "Condition", result.NOGOChecks, "NOT TRIGGERED", "TRIGGERED")
	fmt.Fprintf(&sb, "NO-GO Triggers: %d/%d triggered\n\n", len(result.NOGOChecks)-quiet, len(result.NOGOChecks))

	sb.WriteString("## Summary\n\n")
	if result.Decision == DecisionGO {
		sb.WriteString("All GO criteria passed and no NO-GO triggers fired.\n")
		return sb.String()
	}
	sb.WriteString("Decision is NO-GO due to:\n")
	for _, c := range result.GOCriteria {
		if !c.Pass {
			fmt.Fprintf(&sb, "- GO criterion failed: %s (actual: %s)\n", c.Name, c.Actual)
		}
	}
	for _, c := range result.NOGOChecks {
		if !c.Pass {
			fmt.Fprintf(&sb, "- NO-GO trigger fired: %s (actual: %s)\n", c.Name, c.Actual)
		}
	}
	return sb.String()
}

// writeChecks writes one checklist table and returns how many rows passed.
func writeChecks(sb *strings.Builder, name, cond string, checks []CriterionResult, pass, fail string) int {
	fmt.Fprintf(sb, "| # | %s | %s | Actual | Status |\n", name, cond)
	sb.WriteString("|---|---|---|---|---|\n")
	n := 0
	for i, c := range checks {
		status := fail
		if c.Pass {
			status = pass
			n++
		}
		fmt.Fprintf(sb, "| %d | %s | %s | %s | %s |\n", i+1, c.Name, c.Threshold, c.Actual, status)
	}
	sb.WriteString("\n")
	return n
}
