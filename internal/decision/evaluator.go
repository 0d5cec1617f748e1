package decision

import "fmt"

// Evaluator evaluates decision criteria.
type Evaluator struct {
	th Thresholds
}

// NewEvaluator creates a new decision evaluator.
func NewEvaluator(th Thresholds) *Evaluator {
	return &Evaluator{th: th}
}

// Evaluate produces DecisionResult from GateInput.
// GO if ALL criteria pass and NO NO-GO triggers.
// NO-GO if ANY criterion fails or ANY trigger fires.
func (e *Evaluator) Evaluate(input GateInput) *DecisionResult {
	goCriteria := e.evaluateGOCriteria(input)
	nogoChecks := e.evaluateNOGOTriggers(input)

	allGOPass := true
	for _, c := range goCriteria {
		if !c.Pass {
			allGOPass = false
			break
		}
	}

	anyNOGOTriggered := false
	for _, c := range nogoChecks {
		if !c.Pass { // Pass=false means triggered
			anyNOGOTriggered = true
			break
		}
	}

	decision := DecisionGO
	if !allGOPass || anyNOGOTriggered {
		decision = DecisionNOGO
	}

	return &DecisionResult{
		Decision:   decision,
		GOCriteria: goCriteria,
		NOGOChecks: nogoChecks,
	}
}

func (e *Evaluator) evaluateGOCriteria(input GateInput) []CriterionResult {
	criteria := make([]CriterionResult, 5)

	criteria[0] = CriterionResult{
		Name:      "Total return",
		Threshold: fmt.Sprintf("> %.4f", e.th.MinTotalReturn),
		Actual:    fmt.Sprintf("%.4f", input.TotalReturn),
		Pass:      input.TotalReturn > e.th.MinTotalReturn,
	}

	criteria[1] = CriterionResult{
		Name:      "Sharpe ratio",
		Threshold: fmt.Sprintf(">= %.2f", e.th.MinSharpe),
		Actual:    fmt.Sprintf("%.4f", input.SharpeRatio),
		Pass:      input.SharpeRatio >= e.th.MinSharpe,
	}

	criteria[2] = CriterionResult{
		Name:      "Max drawdown",
		Threshold: fmt.Sprintf("<= %.2f%%", e.th.MaxDrawdown*100),
		Actual:    fmt.Sprintf("%.2f%%", input.MaxDrawdown*100),
		Pass:      input.MaxDrawdown <= e.th.MaxDrawdown,
	}

	criteria[3] = CriterionResult{
		Name:      "Sample size",
		Threshold: fmt.Sprintf(">= %d trades", e.th.MinTrades),
		Actual:    fmt.Sprintf("%d", input.TotalTrades),
		Pass:      input.TotalTrades >= e.th.MinTrades,
	}

	// A single run has no neighbourhood to check.
	robust := CriterionResult{
		Name:      "Robust across sweep",
		Threshold: fmt.Sprintf("median total_return >= %.4f", e.th.MinSweepMedianReturn),
		Actual:    "n/a (single run)",
		Pass:      true,
	}
	if input.HasSweep {
		robust.Actual = fmt.Sprintf("%.4f over %d runs", input.SweepMedianReturn, input.SweepRuns)
		robust.Pass = input.SweepMedianReturn >= e.th.MinSweepMedianReturn
	}
	criteria[4] = robust

	return criteria
}

// evaluateNOGOTriggers evaluates the 4 NO-GO triggers.
// Pass=true means NOT triggered, Pass=false means triggered.
func (e *Evaluator) evaluateNOGOTriggers(input GateInput) []CriterionResult {
	checks := make([]CriterionResult, 4)

	checks[0] = CriterionResult{
		Name:      "Losing run",
		Threshold: "total_return <= 0",
		Actual:    fmt.Sprintf("%.4f", input.TotalReturn),
		Pass:      input.TotalReturn > 0,
	}

	checks[1] = CriterionResult{
		Name:      "Ruinous drawdown",
		Threshold: fmt.Sprintf(">= %.2f%%", e.th.RuinDrawdown*100),
		Actual:    fmt.Sprintf("%.2f%%", input.MaxDrawdown*100),
		Pass:      input.MaxDrawdown < e.th.RuinDrawdown,
	}

	// Best run positive while most of the grid loses: curve fitting.
	overfit := input.HasSweep && input.TotalReturn > 0 && input.SweepP10Return < 0 && input.SweepMedianReturn <= 0
	checks[2] = CriterionResult{
		Name:      "Edge disappears across sweep",
		Threshold: "total_return > 0 AND sweep median <= 0 AND P10 < 0",
		Actual:    fmt.Sprintf("median=%.4f, P10=%.4f", input.SweepMedianReturn, input.SweepP10Return),
		Pass:      !overfit,
	}

	checks[3] = CriterionResult{
		Name:      "No trades",
		Threshold: "total_trades == 0",
		Actual:    fmt.Sprintf("%d", input.TotalTrades),
		Pass:      input.TotalTrades > 0,
	}

	return checks
}
