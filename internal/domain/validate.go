package domain

import "math"

// Validate rejects inconsistent configurations before any bar is processed.
// The first offending parameter is reported.
func (p Params) Validate() error {
	if !finite(p.InitialCapital) || p.InitialCapital <= 0 {
		return invalidParam("initial_capital", "must be a finite value > 0, got %v", p.InitialCapital)
	}
	if !finite(p.FeeFixed) || p.FeeFixed < 0 {
		return invalidParam("fee_fixed", "must be a finite value >= 0, got %v", p.FeeFixed)
	}
	if !finite(p.FeePct) || p.FeePct < 0 {
		return invalidParam("fee_pct", "must be a finite value >= 0, got %v", p.FeePct)
	}

	optional := []struct {
		name  string
		value float64
	}{
		{"sl_pct", p.SLPct},
		{"tp_pct", p.TPPct},
		{"tsl_pct", p.TSLPct},
		{"sl_atr", p.SLATR},
		{"tp_atr", p.TPATR},
		{"tsl_atr", p.TSLATR},
		{"tsl_psar_af0", p.TSLPSARAF0},
		{"tsl_psar_af_step", p.TSLPSARAFStep},
		{"tsl_psar_max_af", p.TSLPSARMaxAF},
		{"pause_drawdown", p.PauseDrawdown},
	}
	for _, o := range optional {
		if math.IsNaN(o.value) || math.IsInf(o.value, 0) {
			return invalidParam(o.name, "must be finite, got %v", o.value)
		}
		if o.value < 0 {
			return invalidParam(o.name, "must be >= 0 (0 disables it), got %v", o.value)
		}
	}

	// Exit-in-bar fills at the level price, which is only observable
	// when the trigger compares against the bar's High/Low.
	if p.SLExitInBar && !p.SLTriggerMode {
		return invalidParam("sl_exit_in_bar", "requires sl_trigger_mode=true")
	}
	if p.TPExitInBar && !p.TPTriggerMode {
		return invalidParam("tp_exit_in_bar", "requires tp_trigger_mode=true")
	}

	if p.ATREnabled() && p.ATRPeriod <= 0 {
		return invalidParam("atr_period", "must be > 0 when an ATR risk level is set, got %d", p.ATRPeriod)
	}

	psarSet := 0
	for _, v := range []float64{p.TSLPSARAF0, p.TSLPSARAFStep, p.TSLPSARMaxAF} {
		if enabled(v) {
			psarSet++
		}
	}
	if psarSet != 0 && psarSet != 3 {
		return invalidParam("tsl_psar", "tsl_psar_af0, tsl_psar_af_step and tsl_psar_max_af must be set together")
	}
	if psarSet == 3 && p.TSLPSARAF0 > p.TSLPSARMaxAF {
		return invalidParam("tsl_psar_af0", "must not exceed tsl_psar_max_af (%v > %v)", p.TSLPSARAF0, p.TSLPSARMaxAF)
	}

	if p.PauseDrawdown > 1 {
		return invalidParam("pause_drawdown", "must be a fraction <= 1, got %v", p.PauseDrawdown)
	}

	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
