// Package backtest runs the bar-by-bar execution state machine over a
// prepared frame and produces the ledger of one run.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/hxse/pyo3-quant-sub000/internal/domain"
	"github.com/hxse/pyo3-quant-sub000/internal/indicators"
	"github.com/hxse/pyo3-quant-sub000/internal/ledger"
	"github.com/hxse/pyo3-quant-sub000/internal/risk"
	"github.com/hxse/pyo3-quant-sub000/internal/signal"
)

// ErrUnreachableState is returned when a bar's fills form a price pattern
// outside the eleven position states.
var ErrUnreachableState = errors.New("unreachable position state")

// cancelCheckEvery is how many bars run between context checks.
const cancelCheckEvery = 256

// Observer receives every ledger row of the final pass, in bar order.
type Observer interface {
	// OnBar is called once per bar. An error aborts the run.
	OnBar(ctx context.Context, i int, row *domain.LedgerRow) error
}

// Result holds the output of one run.
type Result struct {
	Ledger *domain.Ledger
	Trades []domain.Trade
	ATR    []float64 // nil unless an ATR level is configured
}

// Engine orchestrates one run. An Engine holds no run state and can be
// shared by concurrent runs as long as its Observer is safe for that.
type Engine struct {
	observer Observer
}

// Options configures an Engine.
type Options struct {
	Observer Observer // optional
}

// NewEngine creates a new backtest engine.
func NewEngine(opts Options) *Engine {
	return &Engine{observer: opts.Observer}
}

// Run validates p and f, then simulates every bar of f.
// The caller receives either a complete ledger or an error; configuration
// errors are returned before any bar is processed. f is never modified.
func (e *Engine) Run(ctx context.Context, f *domain.Frame, p domain.Params) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}

	var atr []float64
	if p.ATREnabled() {
		atr = indicators.ATR(f.High, f.Low, f.Close, p.ATRPeriod)
	}

	if !p.PauseEnabled() {
		return e.simulate(ctx, f, p, atr, nil, e.observer)
	}

	// Drawdown pause: a first pass finds the paused bars, the second pass
	// reruns with entries blocked on them.
	first, err := e.simulate(ctx, f, p, atr, nil, nil)
	if err != nil {
		return nil, err
	}
	pause := make([]bool, f.Len())
	for i, row := range first.Ledger.Rows {
		pause[i] = row.CurrentDrawdown >= p.PauseDrawdown
	}
	res, err := e.simulate(ctx, f, p, atr, pause, e.observer)
	if err != nil {
		return nil, err
	}
	res.Ledger.Pause = pause
	return res, nil
}

func (e *Engine) simulate(ctx context.Context, f *domain.Frame, p domain.Params, atr []float64, pause []bool, obs Observer) (*Result, error) {
	n := f.Len()
	r := &run{
		f:    f,
		p:    p,
		atr:  atr,
		sig:  signal.Clean(f, signal.Options{ATR: atr, Block: pause}),
		acct: ledger.NewAccount(p.InitialCapital, p.FeeFixed, p.FeePct),
		risk: risk.New(p, f, atr),
	}

	lg := &domain.Ledger{
		Rows:     make([]domain.LedgerRow, n),
		Optional: domain.OptionalColumns(p),
	}
	if f.HasLeadingNaN != nil {
		lg.HasLeadingNaN = append([]bool(nil), f.HasLeadingNaN...)
	}

	for i := 0; i < n; i++ {
		if i%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		row, err := r.step(i)
		if err != nil {
			return nil, err
		}
		lg.Rows[i] = row

		if obs != nil {
			if err := obs.OnBar(ctx, i, &lg.Rows[i]); err != nil {
				return nil, fmt.Errorf("observer at bar %d: %w", i, err)
			}
		}
	}

	return &Result{Ledger: lg, Trades: r.trades, ATR: atr}, nil
}

// pending is what the close of the previous bar decided for the next open.
type pending struct {
	exit   bool
	reason string
	entry  domain.Side
}

// run is the mutable context of one simulation pass.
type run struct {
	f    *domain.Frame
	p    domain.Params
	atr  []float64
	sig  *signal.Cleaned
	acct *ledger.Account
	risk *risk.Calculator

	side       domain.Side
	entryPrice float64
	entryBar   int
	entryFee   float64

	next     pending
	prevCode domain.PositionCode
	trades   []domain.Trade
}

// fills collects what executed on one bar.
type fills struct {
	row     domain.LedgerRow
	prices  domain.FramePrices
	fee     float64
	pnl     float64
	entered bool
}

func (x *fills) setEntry(side domain.Side, price float64) {
	if side == domain.Long {
		x.row.EntryLongPrice = price
		x.prices.EntryLong = true
	} else {
		x.row.EntryShortPrice = price
		x.prices.EntryShort = true
	}
}

func (x *fills) setExit(side domain.Side, price float64) {
	if side == domain.Long {
		x.row.ExitLongPrice = price
		x.prices.ExitLong = true
	} else {
		x.row.ExitShortPrice = price
		x.prices.ExitShort = true
	}
}

func (x *fills) addPnl(ret float64) {
	if math.IsNaN(x.pnl) {
		x.pnl = ret
		return
	}
	x.pnl = (1+x.pnl)*(1+ret) - 1
}

func isRiskReason(reason string) bool {
	switch reason {
	case domain.ExitReasonSL, domain.ExitReasonTP, domain.ExitReasonTSL, domain.ExitReasonPSAR:
		return true
	}
	return false
}

// step processes bar i in the fixed order: fills at the open, trailing
// update and risk check, in-bar exit, decision at the close, then marking.
func (r *run) step(i int) (domain.LedgerRow, error) {
	x := &fills{row: domain.NewLedgerRow(), pnl: math.NaN()}
	if r.atr != nil {
		x.row.ATR = r.atr[i]
	}

	if i > 0 {
		r.fillAtOpen(i, x)
	}

	trig, closedInBar := r.intrabar(i, x)

	// bar 0 only initializes; nothing is decided at its close
	code := domain.CodeFlat
	if i > 0 {
		code = r.decide(i, trig, closedInBar)
	}

	state, ok := domain.StateFromPrices(x.prices)
	if !ok {
		return x.row, fmt.Errorf("bar %d: %w: %+v", i, ErrUnreachableState, x.prices)
	}

	carry := r.prevCode.IsHold() && r.side != domain.Flat
	unrealized := 0.0
	if carry {
		unrealized = ledger.Return(r.side.Sign(), r.entryPrice, r.f.Close[i])
	}
	snap := r.acct.Mark(unrealized, carry)

	x.row.CurrentPosition = code
	x.row.FrameState = state
	x.row.RiskInBarDir = x.prices.RiskDir
	x.row.Balance = snap.Balance
	x.row.Equity = snap.Equity
	x.row.PeakEquity = snap.Peak
	x.row.CurrentDrawdown = snap.Drawdown
	x.row.TotalReturnPct = snap.TotalReturn
	x.row.Fee = x.fee
	x.row.FeeCum = snap.FeeCum
	x.row.TradePnlPct = x.pnl

	r.prevCode = code
	return x.row, nil
}

// fillAtOpen executes the exit and entry decided at the previous close.
func (r *run) fillAtOpen(i int, x *fills) {
	open := r.f.Open[i]
	next := r.next
	r.next = pending{}

	closedSide := domain.Flat
	if next.exit && r.side != domain.Flat {
		closedSide = r.side
		r.risk.Levels().Apply(&x.row)
		r.closePosition(i, open, next.reason, false, x)
	}

	if next.entry != domain.Flat && !r.acct.Exhausted() && r.risk.Init(next.entry, i, open) {
		fee := r.acct.Open()
		x.fee += fee
		r.side = next.entry
		r.entryPrice = open
		r.entryBar = i
		r.entryFee = fee
		x.entered = true
	}

	if closedSide != domain.Flat && !x.entered && isRiskReason(next.reason) {
		x.prices.RiskDir = int8(closedSide)
	}
}

// intrabar advances the trailing levels of the open position, checks the
// bar against them and executes an in-bar exit. It returns the trigger and
// the side closed in-bar, Flat when none.
func (r *run) intrabar(i int, x *fills) (risk.Trigger, domain.Side) {
	if r.side == domain.Flat {
		return risk.Trigger{}, domain.Flat
	}

	side := r.side
	x.setEntry(side, r.entryPrice)
	r.risk.Update(i)
	trig := r.risk.Check(i)
	r.risk.Levels().Apply(&x.row)

	if !trig.InBar {
		return trig, domain.Flat
	}
	r.closePosition(i, trig.Price, trig.Reason, true, x)
	x.prices.RiskDir = int8(side)
	return trig, side
}

// closePosition realizes the open position at price and records the trade.
func (r *run) closePosition(i int, price float64, reason string, inBar bool, x *fills) {
	side := r.side
	ret := ledger.Return(side.Sign(), r.entryPrice, price)
	fee := r.acct.Close(ret)
	x.fee += fee
	x.addPnl(ret)
	x.setEntry(side, r.entryPrice)
	x.setExit(side, price)

	r.trades = append(r.trades, domain.Trade{
		Side:       side,
		EntryBar:   r.entryBar,
		ExitBar:    i,
		EntryPrice: r.entryPrice,
		ExitPrice:  price,
		ExitReason: reason,
		InBar:      inBar,
		PnlPct:     ret,
		Fees:       r.entryFee + fee,
	})

	r.side = domain.Flat
	r.entryPrice = 0
	r.entryFee = 0
	r.risk.Reset()
}

// decide takes the decision at bar i's close and returns its position code.
func (r *run) decide(i int, trig risk.Trigger, closedInBar domain.Side) domain.PositionCode {
	s := r.sig.At(i)

	if r.side != domain.Flat {
		sign := domain.PositionCode(r.side)
		d := signal.Decide(s, r.side)
		switch {
		case d == domain.ReverseToLong || d == domain.ReverseToShort:
			r.next = pending{exit: true, reason: domain.ExitReasonReversal, entry: r.side.Opposite()}
			return -sign * domain.CodeLongEntry
		case trig.Hit():
			r.next = pending{exit: true, reason: trig.Reason}
			return sign * domain.CodeLongRiskExit
		case d == domain.ExitLong || d == domain.ExitShort:
			r.next = pending{exit: true, reason: domain.ExitReasonSignal}
			return sign * domain.CodeLongExit
		}
		return sign * domain.CodeLongHold
	}

	switch d := signal.Decide(s, domain.Flat); {
	case d == domain.EnterLong && !r.acct.Exhausted():
		r.next = pending{entry: domain.Long}
		return domain.CodeLongEntry
	case d == domain.EnterShort && !r.acct.Exhausted():
		r.next = pending{entry: domain.Short}
		return domain.CodeShortEntry
	}
	if closedInBar != domain.Flat {
		return domain.PositionCode(closedInBar) * domain.CodeLongRiskExit
	}
	return domain.CodeFlat
}
