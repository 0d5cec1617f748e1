package decision

import (
	"math"

	"github.com/hxse/pyo3-quant-sub000/internal/domain"
)

// ActionType names an order operation a live bot performs.
type ActionType string

const (
	ActionClosePosition          ActionType = "close_position"
	ActionCancelAllOrders        ActionType = "cancel_all_orders"
	ActionCreateLimitOrder       ActionType = "create_limit_order"
	ActionCreateStopMarket       ActionType = "create_stop_market_order"
	ActionCreateTakeProfitMarket ActionType = "create_take_profit_market_order"
)

// Action is one order operation. Side and Price are empty for
// position-wide operations.
type Action struct {
	Type   ActionType `json:"action_type"`
	Symbol string     `json:"symbol"`
	Side   string     `json:"side,omitempty"`
	Price  *float64   `json:"price,omitempty"`
}

// ActionPlan is the set of actions derived from one ledger row.
type ActionPlan struct {
	Bar     int      `json:"bar"`
	State   string   `json:"frame_state"`
	Actions []Action `json:"actions"`
	HasExit bool     `json:"has_exit"`
}

// ActionOptions configures ResolveActions.
type ActionOptions struct {
	Symbol string

	// Resting stop and target orders are placed only for levels the
	// backtest also fills in-bar.
	SLExitInBar bool
	TPExitInBar bool
}

// ResolveActions maps the executed state of row to bot actions.
// prev is the row before it, nil on the first bar; it tells a fresh entry
// apart from a held position.
//
// Risk exits produce no actions: the resting exchange orders placed at entry
// already closed the position.
func ResolveActions(i int, prev, row *domain.LedgerRow, opts ActionOptions) ActionPlan {
	plan := ActionPlan{Bar: i, State: row.FrameState.String(), Actions: []Action{}}

	switch row.FrameState {
	case domain.HoldLong:
		if opened(prev, domain.Long) {
			plan.Actions = append(plan.Actions, entry(opts, domain.Long, row)...)
		}
	case domain.HoldShort:
		if opened(prev, domain.Short) {
			plan.Actions = append(plan.Actions, entry(opts, domain.Short, row)...)
		}
	case domain.ExitLongSignal, domain.ExitShortSignal:
		plan.Actions = append(plan.Actions, closeAll(opts)...)
		plan.HasExit = true
	case domain.ExitLongRisk, domain.ExitShortRisk:
		plan.HasExit = true
	case domain.ReversalShortToLong, domain.ReversalToLongThenExit:
		plan.Actions = append(plan.Actions, closeAll(opts)...)
		plan.Actions = append(plan.Actions, entry(opts, domain.Long, row)...)
		plan.HasExit = true
	case domain.ReversalLongToShort, domain.ReversalToShortThenExit:
		plan.Actions = append(plan.Actions, closeAll(opts)...)
		plan.Actions = append(plan.Actions, entry(opts, domain.Short, row)...)
		plan.HasExit = true
	}
	return plan
}

// ResolveLedger resolves every row of lg.
func ResolveLedger(lg *domain.Ledger, opts ActionOptions) []ActionPlan {
	plans := make([]ActionPlan, lg.Len())
	var prev *domain.LedgerRow
	for i := range lg.Rows {
		plans[i] = ResolveActions(i, prev, &lg.Rows[i], opts)
		prev = &lg.Rows[i]
	}
	return plans
}

// opened reports whether a position on side was filled on the current bar,
// i.e. the previous bar did not end holding that side.
func opened(prev *domain.LedgerRow, side domain.Side) bool {
	if prev == nil {
		return true
	}
	switch prev.FrameState {
	case domain.HoldLong, domain.ReversalShortToLong:
		return side != domain.Long
	case domain.HoldShort, domain.ReversalLongToShort:
		return side != domain.Short
	}
	return true
}

func closeAll(opts ActionOptions) []Action {
	return []Action{
		{Type: ActionClosePosition, Symbol: opts.Symbol},
		{Type: ActionCancelAllOrders, Symbol: opts.Symbol},
	}
}

func entry(opts ActionOptions, side domain.Side, row *domain.LedgerRow) []Action {
	price := row.EntryLongPrice
	if side == domain.Short {
		price = row.EntryShortPrice
	}
	actions := []Action{{
		Type:   ActionCreateLimitOrder,
		Symbol: opts.Symbol,
		Side:   side.String(),
		Price:  priceOf(price),
	}}

	// Percentage and ATR levels are placed independently.
	if opts.SLExitInBar {
		actions = appendLevel(actions, opts.Symbol, side, ActionCreateStopMarket, row.SLPctPrice)
		actions = appendLevel(actions, opts.Symbol, side, ActionCreateStopMarket, row.SLATRPrice)
	}
	if opts.TPExitInBar {
		actions = appendLevel(actions, opts.Symbol, side, ActionCreateTakeProfitMarket, row.TPPctPrice)
		actions = appendLevel(actions, opts.Symbol, side, ActionCreateTakeProfitMarket, row.TPATRPrice)
	}
	return actions
}

func appendLevel(actions []Action, symbol string, side domain.Side, t ActionType, level float64) []Action {
	p := priceOf(level)
	if p == nil {
		return actions
	}
	return append(actions, Action{Type: t, Symbol: symbol, Side: side.String(), Price: p})
}

func priceOf(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}
