package domain

// Side is the direction of a position.
type Side int8

const (
	Flat  Side = 0
	Long  Side = 1
	Short Side = -1
)

// Sign returns +1 for Long, -1 for Short and 0 for Flat.
func (s Side) Sign() float64 {
	return float64(s)
}

// Opposite returns the other trading side. Flat stays Flat.
func (s Side) Opposite() Side {
	return -s
}

func (s Side) String() string {
	switch s {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return "flat"
	}
}

// Decision is the cleaned per-bar intent produced by the signal resolver.
type Decision uint8

const (
	NoOp Decision = iota
	EnterLong
	EnterShort
	ExitLong
	ExitShort
	ReverseToLong
	ReverseToShort
)

var decisionNames = [...]string{
	NoOp:           "no_op",
	EnterLong:      "enter_long",
	EnterShort:     "enter_short",
	ExitLong:       "exit_long",
	ExitShort:      "exit_short",
	ReverseToLong:  "reverse_to_long",
	ReverseToShort: "reverse_to_short",
}

func (d Decision) String() string {
	if int(d) < len(decisionNames) {
		return decisionNames[d]
	}
	return "unknown"
}

// PositionState is what executed on a bar. Exactly one is active per bar.
type PositionState uint8

const (
	NoPosition PositionState = iota
	HoldLong
	HoldShort
	ExitLongSignal
	ExitLongRisk
	ExitShortSignal
	ExitShortRisk
	ReversalLongToShort
	ReversalShortToLong
	ReversalToLongThenExit
	ReversalToShortThenExit
)

var positionStateNames = [...]string{
	NoPosition:              "no_position",
	HoldLong:                "hold_long",
	HoldShort:               "hold_short",
	ExitLongSignal:          "exit_long_signal",
	ExitLongRisk:            "exit_long_risk",
	ExitShortSignal:         "exit_short_signal",
	ExitShortRisk:           "exit_short_risk",
	ReversalLongToShort:     "reversal_long_to_short",
	ReversalShortToLong:     "reversal_short_to_long",
	ReversalToLongThenExit:  "reversal_to_long_then_exit",
	ReversalToShortThenExit: "reversal_to_short_then_exit",
}

func (s PositionState) String() string {
	if int(s) < len(positionStateNames) {
		return positionStateNames[s]
	}
	return "invalid"
}

// ParsePositionState is the inverse of String.
func ParsePositionState(name string) (PositionState, bool) {
	for i, n := range positionStateNames {
		if n == name {
			return PositionState(i), true
		}
	}
	return NoPosition, false
}

// FramePrices is the presence pattern of the four price columns of a bar
// plus the direction of a risk exit (1 long, -1 short, 0 none).
type FramePrices struct {
	EntryLong  bool
	ExitLong   bool
	EntryShort bool
	ExitShort  bool
	RiskDir    int8
}

// StateFromPrices infers the bar's PositionState from its price pattern.
// ok is false for combinations outside the 11-state whitelist.
func StateFromPrices(p FramePrices) (state PositionState, ok bool) {
	key := [5]int8{b2i(p.EntryLong), b2i(p.ExitLong), b2i(p.EntryShort), b2i(p.ExitShort), p.RiskDir}
	switch key {
	case [5]int8{0, 0, 0, 0, 0}:
		return NoPosition, true
	case [5]int8{1, 0, 0, 0, 0}:
		return HoldLong, true
	case [5]int8{0, 0, 1, 0, 0}:
		return HoldShort, true
	case [5]int8{1, 1, 0, 0, 0}:
		return ExitLongSignal, true
	case [5]int8{1, 1, 0, 0, 1}:
		return ExitLongRisk, true
	case [5]int8{0, 0, 1, 1, 0}:
		return ExitShortSignal, true
	case [5]int8{0, 0, 1, 1, -1}:
		return ExitShortRisk, true
	case [5]int8{1, 1, 1, 0, 0}:
		return ReversalLongToShort, true
	case [5]int8{1, 0, 1, 1, 0}:
		return ReversalShortToLong, true
	case [5]int8{1, 1, 1, 1, 1}:
		return ReversalToLongThenExit, true
	case [5]int8{1, 1, 1, 1, -1}:
		return ReversalToShortThenExit, true
	}
	return NoPosition, false
}

func b2i(b bool) int8 {
	if b {
		return 1
	}
	return 0
}

// PositionCode is the decision-at-close encoding of current_position.
type PositionCode int8

const (
	CodeFlat          PositionCode = 0
	CodeLongEntry     PositionCode = 1
	CodeLongHold      PositionCode = 2
	CodeLongExit      PositionCode = 3
	CodeLongRiskExit  PositionCode = 4
	CodeShortEntry    PositionCode = -1
	CodeShortHold     PositionCode = -2
	CodeShortExit     PositionCode = -3
	CodeShortRiskExit PositionCode = -4
)

// IsHold reports the "holding, no event" codes 2 and -2.
func (c PositionCode) IsHold() bool {
	return c == CodeLongHold || c == CodeShortHold
}
