package types

import "time"

type SignalAction string

const (
	// SignalActionBuy tells the engine to open a long position
	SignalActionBuy SignalAction = "buy"
	// SignalActionSell tells the engine to close the long position
	SignalActionSell SignalAction = "sell"
)

// Signal is emitted by a strategy for a bar it has just observed. The date
// must be on or before the last bar the strategy was given.
type Signal struct {
	// Date is the trade date of the bar the signal applies to
	Date time.Time `json:"date"`
	// Action is what the engine should do on that bar
	Action SignalAction `json:"action"`
}
