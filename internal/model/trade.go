package model

import "time"

// ExitReason explains why a simulated position was closed.
type ExitReason string

const (
	ExitStop       ExitReason = "STOP"
	ExitTarget     ExitReason = "TARGET"
	ExitSignal     ExitReason = "SIGNAL"
	ExitSessionEnd ExitReason = "SESSION_END"
	ExitEndOfData  ExitReason = "END_OF_DATA"
)

// Position is an open simulated position. It lives only for the duration of a run.
type Position struct {
	Symbol     string
	EntryIndex int
	EntryTime  time.Time
	EntryPrice float64
	Stop       float64
	Target     float64
	Shares     float64
	Reason     string
}

// Trade is a closed round trip.
type Trade struct {
	Symbol     string
	Strategy   string
	EntryTime  time.Time
	ExitTime   time.Time
	EntryPrice float64
	ExitPrice  float64
	Shares     float64
	GrossPnL   float64
	Cost       float64
	NetPnL     float64
	ExitReason ExitReason
	Note       string
}

// Winner reports whether the trade made money after costs.
func (t Trade) Winner() bool { return t.NetPnL > 0 }
