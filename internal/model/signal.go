package model

// PositionState is the holding state of a single-position strategy.
type PositionState string

const (
	Flat PositionState = "FLAT"
	Long PositionState = "LONG"
)

// Action is the transition emitted when a strategy is stepped.
type Action string

const (
	Hold      Action = "HOLD"
	EnterLong Action = "ENTER_LONG"
	ExitLong  Action = "EXIT_LONG"
)

// Entry is a candidate long entry produced by an event strategy.
// Stop and Target are absolute prices; zero means unset.
type Entry struct {
	Index  int
	Price  float64
	Stop   float64
	Target float64
	Reason string
}

// Observation is one evaluated symbol in observe mode.
type Observation struct {
	Symbol string
	Price  float64
	RSI    float64
	State  PositionState
	Action Action
}
