package domain

// Exit reason codes.
const (
	ExitReasonSignal   = "SIGNAL"
	ExitReasonReversal = "REVERSAL"
	ExitReasonSL       = "SL"
	ExitReasonTP       = "TP"
	ExitReasonTSL      = "TSL"
	ExitReasonPSAR     = "PSAR"
)

// Trade is one round trip from an entry fill to its exit fill.
// EntryBar == ExitBar for a same-bar kill.
type Trade struct {
	Side       Side
	EntryBar   int
	ExitBar    int
	EntryPrice float64
	ExitPrice  float64
	ExitReason string
	InBar      bool    // exit filled at the level price within the bar
	PnlPct     float64 // raw price return, sign-adjusted for shorts
	Fees       float64 // entry fee + exit fee
}

// HoldingBars returns the number of bars the trade spans, inclusive.
func (t Trade) HoldingBars() int {
	return t.ExitBar - t.EntryBar + 1
}

// Win reports whether the trade had a positive raw return.
func (t Trade) Win() bool {
	return t.PnlPct > 0
}
