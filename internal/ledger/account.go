// Package ledger keeps the cash bookkeeping of one run: balance, fees,
// equity, peak equity and drawdown.
package ledger

import "math"

// Account is the mutable money state of a single run.
// Position sizing is 100% of balance with no leverage.
type Account struct {
	initial  float64
	feeFixed float64
	feePct   float64

	balance float64
	peak    float64
	feeCum  float64
}

// Snapshot is the account state at a bar's close.
type Snapshot struct {
	Balance     float64
	Equity      float64
	Peak        float64
	Drawdown    float64
	TotalReturn float64
	FeeCum      float64
}

// NewAccount opens an account with initial capital.
func NewAccount(initial, feeFixed, feePct float64) *Account {
	return &Account{
		initial:  initial,
		feeFixed: feeFixed,
		feePct:   feePct,
		balance:  initial,
		peak:     initial,
	}
}

// Balance returns the current cash balance.
func (a *Account) Balance() float64 {
	return a.balance
}

// FeeCum returns the fees charged so far.
func (a *Account) FeeCum() float64 {
	return a.feeCum
}

// Exhausted reports whether no capital is left to open a position.
func (a *Account) Exhausted() bool {
	return a.balance <= 0
}

// charge deducts the fee on notional, capped at what is available.
func (a *Account) charge(notional float64) float64 {
	fee := a.feeFixed + math.Abs(notional)*a.feePct
	if fee > a.balance {
		fee = a.balance
	}
	if fee < 0 {
		fee = 0
	}
	a.balance -= fee
	a.feeCum += fee
	return fee
}

// Open charges the entry fee on the full balance and returns it.
func (a *Account) Open() float64 {
	return a.charge(a.balance)
}

// Close realizes a trade with raw return ret (already sign-adjusted for
// shorts) and charges the exit fee on the realized value. It returns the fee.
func (a *Account) Close(ret float64) float64 {
	value := a.balance * (1 + ret)
	if value < 0 || math.IsNaN(value) {
		value = 0
	}
	a.balance = value
	return a.charge(value)
}

// Mark closes the bar. unrealized is the open position's return at the
// close; it is applied only when carry is set, otherwise equity equals balance.
func (a *Account) Mark(unrealized float64, carry bool) Snapshot {
	equity := a.balance
	if carry && !math.IsNaN(unrealized) {
		equity = a.balance * (1 + unrealized)
	}
	if equity < 0 {
		equity = 0
	}
	if equity > a.peak {
		a.peak = equity
	}

	dd := 0.0
	if a.peak > 0 && equity < a.peak {
		dd = (a.peak - equity) / a.peak
	}
	return Snapshot{
		Balance:     a.balance,
		Equity:      equity,
		Peak:        a.peak,
		Drawdown:    dd,
		TotalReturn: equity/a.initial - 1,
		FeeCum:      a.feeCum,
	}
}

// Return computes the raw price return of a position, sign-flipped for shorts.
func Return(sign, entry, exit float64) float64 {
	return (exit - entry) / entry * sign
}
