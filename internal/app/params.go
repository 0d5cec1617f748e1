package app

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/hxse/pyo3-quant-sub000/internal/domain"
)

// ErrBadGrid is returned by ParseGrid for malformed grid expressions.
var ErrBadGrid = errors.New("invalid parameter grid")

// RegisterParamFlags binds every Params field to fs. Defaults come from
// domain.DefaultParams and the environment.
func RegisterParamFlags(fs *flag.FlagSet) *domain.Params {
	p := domain.DefaultParams()
	fs.Float64Var(&p.InitialCapital, "initial-capital", EnvFloat("INITIAL_CAPITAL", p.InitialCapital), "Starting balance")
	fs.Float64Var(&p.FeeFixed, "fee-fixed", EnvFloat("FEE_FIXED", 0), "Fixed fee per fill")
	fs.Float64Var(&p.FeePct, "fee-pct", EnvFloat("FEE_PCT", 0), "Proportional fee per fill")

	fs.Float64Var(&p.SLPct, "sl-pct", 0, "Stop loss, fraction of anchor price")
	fs.Float64Var(&p.TPPct, "tp-pct", 0, "Take profit, fraction of anchor price")
	fs.Float64Var(&p.TSLPct, "tsl-pct", 0, "Trailing stop, fraction of extreme price")
	fs.Float64Var(&p.SLATR, "sl-atr", 0, "Stop loss, ATR multiple")
	fs.Float64Var(&p.TPATR, "tp-atr", 0, "Take profit, ATR multiple")
	fs.Float64Var(&p.TSLATR, "tsl-atr", 0, "Trailing stop, ATR multiple")
	fs.IntVar(&p.ATRPeriod, "atr-period", p.ATRPeriod, "ATR period")
	fs.Float64Var(&p.TSLPSARAF0, "psar-af0", 0, "Parabolic stop initial acceleration")
	fs.Float64Var(&p.TSLPSARAFStep, "psar-af-step", 0, "Parabolic stop acceleration step")
	fs.Float64Var(&p.TSLPSARMaxAF, "psar-max-af", 0, "Parabolic stop maximum acceleration")

	fs.BoolVar(&p.SLExitInBar, "sl-exit-in-bar", false, "Fill stop loss at the level price within the bar")
	fs.BoolVar(&p.TPExitInBar, "tp-exit-in-bar", false, "Fill take profit at the level price within the bar")
	fs.BoolVar(&p.SLTriggerMode, "sl-trigger-hl", false, "Trigger stop loss on high/low instead of close")
	fs.BoolVar(&p.TPTriggerMode, "tp-trigger-hl", false, "Trigger take profit on high/low instead of close")
	fs.BoolVar(&p.TSLTriggerMode, "tsl-trigger-hl", false, "Trigger trailing stops on high/low instead of close")
	fs.BoolVar(&p.SLAnchorMode, "sl-anchor-hl", false, "Anchor stop loss on signal bar high/low instead of close")
	fs.BoolVar(&p.TPAnchorMode, "tp-anchor-hl", false, "Anchor take profit on signal bar high/low instead of close")
	fs.BoolVar(&p.TSLAnchorMode, "tsl-anchor-hl", false, "Track trailing extremes on high/low instead of close")
	fs.BoolVar(&p.TSLATRTight, "tsl-atr-tight", false, "Ratchet the ATR trailing stop from every new extreme")

	fs.Float64Var(&p.PauseDrawdown, "pause-drawdown", 0, "Pause new entries while drawdown reaches this fraction")
	return &p
}

// LoadParams reads a Params JSON file on top of DefaultParams.
func LoadParams(path string) (domain.Params, error) {
	p := domain.DefaultParams()
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read params: %w", err)
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse params %s: %w", path, err)
	}
	return p, nil
}

// LoadParamSet reads a ParamSet JSON file. Missing capital falls back to
// the default.
func LoadParamSet(path string) (domain.ParamSet, error) {
	var s domain.ParamSet
	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("read param set: %w", err)
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse param set %s: %w", path, err)
	}
	if s.InitialCapital == 0 {
		s.InitialCapital = domain.DefaultParams().InitialCapital
	}
	if s.ATRPeriod == 0 {
		s.ATRPeriod = domain.DefaultParams().ATRPeriod
	}
	return s, nil
}

// ParseGrid parses "v" as a fixed Param and "min:max:step" as an optimized one.
// An empty expression returns nil.
func ParseGrid(expr string) (*domain.Param, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}
	parts := strings.Split(expr, ":")
	vals := make([]float64, len(parts))
	for i, s := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrBadGrid, expr, err)
		}
		vals[i] = v
	}
	switch len(vals) {
	case 1:
		return domain.NewParam(vals[0]), nil
	case 3:
		lo, hi, step := vals[0], vals[1], vals[2]
		if step <= 0 || hi < lo {
			return nil, fmt.Errorf("%w: %q: need min <= max and step > 0", ErrBadGrid, expr)
		}
		return &domain.Param{Value: lo, Min: lo, Max: hi, Step: step, Optimize: true}, nil
	default:
		return nil, fmt.Errorf("%w: %q: want value or min:max:step", ErrBadGrid, expr)
	}
}

// GridFlags collects grid expressions for the optimizable parameters.
type GridFlags struct {
	SLPct, TPPct, TSLPct           string
	SLATR, TPATR, TSLATR           string
	PSARAF0, PSARAFStep, PSARMaxAF string
	PauseDrawdown                  string
}

// RegisterGridFlags binds one grid flag per optimizable parameter.
func RegisterGridFlags(fs *flag.FlagSet) *GridFlags {
	g := &GridFlags{}
	fs.StringVar(&g.SLPct, "grid-sl-pct", "", "Stop loss pct grid (v or min:max:step)")
	fs.StringVar(&g.TPPct, "grid-tp-pct", "", "Take profit pct grid")
	fs.StringVar(&g.TSLPct, "grid-tsl-pct", "", "Trailing stop pct grid")
	fs.StringVar(&g.SLATR, "grid-sl-atr", "", "Stop loss ATR grid")
	fs.StringVar(&g.TPATR, "grid-tp-atr", "", "Take profit ATR grid")
	fs.StringVar(&g.TSLATR, "grid-tsl-atr", "", "Trailing stop ATR grid")
	fs.StringVar(&g.PSARAF0, "grid-psar-af0", "", "Parabolic stop initial acceleration grid")
	fs.StringVar(&g.PSARAFStep, "grid-psar-af-step", "", "Parabolic stop step grid")
	fs.StringVar(&g.PSARMaxAF, "grid-psar-max-af", "", "Parabolic stop max acceleration grid")
	fs.StringVar(&g.PauseDrawdown, "grid-pause-drawdown", "", "Drawdown pause grid")
	return g
}

// ParamSet builds a ParamSet from base with the grid expressions applied.
func (g *GridFlags) ParamSet(base domain.Params) (domain.ParamSet, error) {
	s := domain.ParamSet{
		InitialCapital: base.InitialCapital,
		FeeFixed:       base.FeeFixed,
		FeePct:         base.FeePct,
		ATRPeriod:      base.ATRPeriod,
		SLExitInBar:    base.SLExitInBar,
		TPExitInBar:    base.TPExitInBar,
		SLTriggerMode:  base.SLTriggerMode,
		TPTriggerMode:  base.TPTriggerMode,
		TSLTriggerMode: base.TSLTriggerMode,
		SLAnchorMode:   base.SLAnchorMode,
		TPAnchorMode:   base.TPAnchorMode,
		TSLAnchorMode:  base.TSLAnchorMode,
		TSLATRTight:    base.TSLATRTight,
	}
	fields := []struct {
		expr string
		base float64
		dst  **domain.Param
	}{
		{g.SLPct, base.SLPct, &s.SLPct},
		{g.TPPct, base.TPPct, &s.TPPct},
		{g.TSLPct, base.TSLPct, &s.TSLPct},
		{g.SLATR, base.SLATR, &s.SLATR},
		{g.TPATR, base.TPATR, &s.TPATR},
		{g.TSLATR, base.TSLATR, &s.TSLATR},
		{g.PSARAF0, base.TSLPSARAF0, &s.TSLPSARAF0},
		{g.PSARAFStep, base.TSLPSARAFStep, &s.TSLPSARAFStep},
		{g.PSARMaxAF, base.TSLPSARMaxAF, &s.TSLPSARMaxAF},
		{g.PauseDrawdown, base.PauseDrawdown, &s.PauseDrawdown},
	}
	for _, f := range fields {
		p, err := ParseGrid(f.expr)
		if err != nil {
			return s, err
		}
		if p == nil && f.base != 0 {
			p = domain.NewParam(f.base)
		}
		*f.dst = p
	}
	return s, nil
}
