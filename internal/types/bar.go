package types

import "time"

// Bar is one OHLCV observation for a fixed time interval. Bar sequences are
// ordered ascending by TradeDate and treated as immutable once constructed;
// they may be shared by concurrent backtest runs.
type Bar struct {
	TradeDate time.Time `json:"trade_date"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}
