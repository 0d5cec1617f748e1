package domain

// Param is a tunable value with optimizer metadata.
// Only Value is meaningful to the engine.
type Param struct {
	Value    float64 `json:"value"`
	Min      float64 `json:"min,omitempty"`
	Max      float64 `json:"max,omitempty"`
	Step     float64 `json:"step,omitempty"`
	Optimize bool    `json:"optimize,omitempty"`
}

// NewParam creates a fixed (non-optimized) Param.
func NewParam(v float64) *Param {
	return &Param{Value: v}
}

// Grid expands the parameter into its optimization grid [Min, Max] by Step.
// A non-optimized or degenerate parameter yields its Value only.
func (p *Param) Grid() []float64 {
	if p == nil {
		return nil
	}
	if !p.Optimize || p.Step <= 0 || p.Max < p.Min {
		return []float64{p.Value}
	}
	var out []float64
	n := int((p.Max-p.Min)/p.Step + 1e-9)
	for i := 0; i <= n; i++ {
		out = append(out, p.Min+float64(i)*p.Step)
	}
	return out
}

// ParamSet is the optimizer-facing form of Params.
// Nil pointers mean "not configured".
type ParamSet struct {
	InitialCapital float64 `json:"initial_capital"`
	FeeFixed       float64 `json:"fee_fixed"`
	FeePct         float64 `json:"fee_pct"`

	SLPct  *Param `json:"sl_pct,omitempty"`
	TPPct  *Param `json:"tp_pct,omitempty"`
	TSLPct *Param `json:"tsl_pct,omitempty"`
	SLATR  *Param `json:"sl_atr,omitempty"`
	TPATR  *Param `json:"tp_atr,omitempty"`
	TSLATR *Param `json:"tsl_atr,omitempty"`

	ATRPeriod int `json:"atr_period,omitempty"`

	TSLPSARAF0    *Param `json:"tsl_psar_af0,omitempty"`
	TSLPSARAFStep *Param `json:"tsl_psar_af_step,omitempty"`
	TSLPSARMaxAF  *Param `json:"tsl_psar_max_af,omitempty"`

	SLExitInBar    bool `json:"sl_exit_in_bar"`
	TPExitInBar    bool `json:"tp_exit_in_bar"`
	SLTriggerMode  bool `json:"sl_trigger_mode"`
	TPTriggerMode  bool `json:"tp_trigger_mode"`
	TSLTriggerMode bool `json:"tsl_trigger_mode"`
	SLAnchorMode   bool `json:"sl_anchor_mode"`
	TPAnchorMode   bool `json:"tp_anchor_mode"`
	TSLAnchorMode  bool `json:"tsl_anchor_mode"`
	TSLATRTight    bool `json:"tsl_atr_tight"`

	PauseDrawdown *Param `json:"pause_drawdown,omitempty"`
}

func value(p *Param) float64 {
	if p == nil {
		return 0
	}
	return p.Value
}

// Unwrap strips optimizer metadata and returns the plain run configuration.
func (s ParamSet) Unwrap() Params {
	return Params{
		InitialCapital: s.InitialCapital,
		FeeFixed:       s.FeeFixed,
		FeePct:         s.FeePct,
		SLPct:          value(s.SLPct),
		TPPct:          value(s.TPPct),
		TSLPct:         value(s.TSLPct),
		SLATR:          value(s.SLATR),
		TPATR:          value(s.TPATR),
		TSLATR:         value(s.TSLATR),
		ATRPeriod:      s.ATRPeriod,
		TSLPSARAF0:     value(s.TSLPSARAF0),
		TSLPSARAFStep:  value(s.TSLPSARAFStep),
		TSLPSARMaxAF:   value(s.TSLPSARMaxAF),
		SLExitInBar:    s.SLExitInBar,
		TPExitInBar:    s.TPExitInBar,
		SLTriggerMode:  s.SLTriggerMode,
		TPTriggerMode:  s.TPTriggerMode,
		TSLTriggerMode: s.TSLTriggerMode,
		SLAnchorMode:   s.SLAnchorMode,
		TPAnchorMode:   s.TPAnchorMode,
		TSLAnchorMode:  s.TSLAnchorMode,
		TSLATRTight:    s.TSLATRTight,
		PauseDrawdown:  value(s.PauseDrawdown),
	}
}

// Expand returns the cartesian product of all optimized parameter grids
// as plain Params, in deterministic order.
func (s ParamSet) Expand() []Params {
	type axis struct {
		set  func(*Params, float64)
		grid []float64
	}
	var axes []axis
	add := func(p *Param, set func(*Params, float64)) {
		if p != nil && p.Optimize {
			axes = append(axes, axis{set: set, grid: p.Grid()})
		}
	}
	add(s.SLPct, func(p *Params, v float64) { p.SLPct = v })
	add(s.TPPct, func(p *Params, v float64) { p.TPPct = v })
	add(s.TSLPct, func(p *Params, v float64) { p.TSLPct = v })
	add(s.SLATR, func(p *Params, v float64) { p.SLATR = v })
	add(s.TPATR, func(p *Params, v float64) { p.TPATR = v })
	add(s.TSLATR, func(p *Params, v float64) { p.TSLATR = v })
	add(s.TSLPSARAF0, func(p *Params, v float64) { p.TSLPSARAF0 = v })
	add(s.TSLPSARAFStep, func(p *Params, v float64) { p.TSLPSARAFStep = v })
	add(s.TSLPSARMaxAF, func(p *Params, v float64) { p.TSLPSARMaxAF = v })
	add(s.PauseDrawdown, func(p *Params, v float64) { p.PauseDrawdown = v })

	out := []Params{s.Unwrap()}
	for _, a := range axes {
		next := make([]Params, 0, len(out)*len(a.grid))
		for _, base := range out {
			for _, v := range a.grid {
				p := base
				a.set(&p, v)
				next = append(next, p)
			}
		}
		out = next
	}
	return out
}
