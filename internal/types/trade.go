package types

import "time"

// Trade records an executed position change. The trade ledger is append-only
// for the life of one engine run and immutable afterwards.
type Trade struct {
	Date   time.Time    `json:"date"`
	Action SignalAction `json:"action"`
	// Price is the fill price after slippage
	Price  float64 `json:"price"`
	Shares float64 `json:"shares"`
	// Commission is the fee charged for this fill
	Commission float64 `json:"commission"`
}

// EquityPoint is one mark-to-market observation of total portfolio value,
// recorded once per bar whether or not a trade happened.
type EquityPoint struct {
	Date time.Time `json:"date"`
	// TotalEquity is cash + shares held * bar close
	TotalEquity float64 `json:"total_equity"`
}
