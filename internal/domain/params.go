package domain

import "math"

// Params is the plain configuration of one backtest run.
// Optional risk values are "not configured" unless strictly positive.
type Params struct {
	InitialCapital float64 `json:"initial_capital"`
	FeeFixed       float64 `json:"fee_fixed"`
	FeePct         float64 `json:"fee_pct"`

	// Percentage risk levels (fraction of price, e.g. 0.02 = 2%)
	SLPct  float64 `json:"sl_pct,omitempty"`
	TPPct  float64 `json:"tp_pct,omitempty"`
	TSLPct float64 `json:"tsl_pct,omitempty"`

	// ATR multiples
	SLATR     float64 `json:"sl_atr,omitempty"`
	TPATR     float64 `json:"tp_atr,omitempty"`
	TSLATR    float64 `json:"tsl_atr,omitempty"`
	ATRPeriod int     `json:"atr_period,omitempty"`

	// Parabolic trailing stop; all three or none
	TSLPSARAF0    float64 `json:"tsl_psar_af0,omitempty"`
	TSLPSARAFStep float64 `json:"tsl_psar_af_step,omitempty"`
	TSLPSARMaxAF  float64 `json:"tsl_psar_max_af,omitempty"`

	SLExitInBar    bool `json:"sl_exit_in_bar"`
	TPExitInBar    bool `json:"tp_exit_in_bar"`
	SLTriggerMode  bool `json:"sl_trigger_mode"`
	TPTriggerMode  bool `json:"tp_trigger_mode"`
	TSLTriggerMode bool `json:"tsl_trigger_mode"`
	SLAnchorMode   bool `json:"sl_anchor_mode"`
	TPAnchorMode   bool `json:"tp_anchor_mode"`
	TSLAnchorMode  bool `json:"tsl_anchor_mode"`
	TSLATRTight    bool `json:"tsl_atr_tight"`

	// PauseDrawdown suspends new entries while drawdown >= this fraction.
	PauseDrawdown float64 `json:"pause_drawdown,omitempty"`
}

// DefaultParams returns the reference configuration: 10k capital, no fees, no risk.
func DefaultParams() Params {
	return Params{
		InitialCapital: 10000,
		ATRPeriod:      14,
	}
}

func enabled(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

func (p Params) SLPctEnabled() bool  { return enabled(p.SLPct) }
func (p Params) TPPctEnabled() bool  { return enabled(p.TPPct) }
func (p Params) TSLPctEnabled() bool { return enabled(p.TSLPct) }
func (p Params) SLATREnabled() bool  { return enabled(p.SLATR) }
func (p Params) TPATREnabled() bool  { return enabled(p.TPATR) }
func (p Params) TSLATREnabled() bool { return enabled(p.TSLATR) }

// ATREnabled reports whether any ATR-based risk level is configured.
func (p Params) ATREnabled() bool {
	return p.SLATREnabled() || p.TPATREnabled() || p.TSLATREnabled()
}

// PSAREnabled reports whether the parabolic trailing stop is configured.
func (p Params) PSAREnabled() bool {
	return enabled(p.TSLPSARAF0) && enabled(p.TSLPSARAFStep) && enabled(p.TSLPSARMaxAF)
}

// PauseEnabled reports whether drawdown pause control is configured.
func (p Params) PauseEnabled() bool { return enabled(p.PauseDrawdown) }

// RiskEnabled reports whether any risk level is configured.
func (p Params) RiskEnabled() bool {
	return p.SLPctEnabled() || p.TPPctEnabled() || p.TSLPctEnabled() ||
		p.ATREnabled() || p.PSAREnabled()
}
