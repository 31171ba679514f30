package strategy

import (
	"github.com/quantframe/quantframe/internal/types"
	"github.com/quantframe/quantframe/pkg/errors"
)

// SMACrossName is the registry name of the moving average crossover strategy.
const SMACrossName = "sma_cross"

// Compile-time interface check.
var _ Strategy = (*SMACross)(nil)

// SMACross generates a buy signal when the short-period simple moving average
// crosses above the long-period one, and a sell signal when it crosses below.
type SMACross struct {
	symbol      string
	shortWindow int
	longWindow  int
}

// NewSMACross creates an SMACross with default windows trading the given symbol.
func NewSMACross(symbol string) Strategy {
	return &SMACross{
		symbol:      symbol,
		shortWindow: 5,
		longWindow:  20,
	}
}

// Name implements Strategy.
func (s *SMACross) Name() string {
	return SMACrossName
}

// Initialize implements Strategy.
func (s *SMACross) Initialize() error {
	if s.symbol == "" {
		return errors.New(errors.ErrCodeStrategyInitialization, "traded symbol is not set")
	}

	if s.shortWindow >= s.longWindow {
		return errors.Newf(errors.ErrCodeStrategyInitialization,
			"short_window (%d) must be smaller than long_window (%d)", s.shortWindow, s.longWindow)
	}

	return nil
}

// WarmupLength implements Strategy. The long window must be filled before the
// first crossover can be evaluated.
func (s *SMACross) WarmupLength() int {
	return s.longWindow
}

// Parameters implements Strategy.
func (s *SMACross) Parameters() []Parameter {
	return []Parameter{
		{Name: "short_window", Default: 5, Description: "period of the fast moving average"},
		{Name: "long_window", Default: 20, Description: "period of the slow moving average"},
	}
}

// SetParameter implements Strategy.
func (s *SMACross) SetParameter(name string, value float64) error {
	if value < 1 {
		return errors.Newf(errors.ErrCodeInvalidParameter, "parameter %q must be at least 1, got %f", name, value)
	}

	switch name {
	case "short_window":
		s.shortWindow = int(value)
	case "long_window":
		s.longWindow = int(value)
	default:
		return errors.Newf(errors.ErrCodeUnknownParameter, "parameter %q is not declared by strategy %q", name, SMACrossName)
	}

	return nil
}

// HandleData implements Strategy. It compares the short and long moving
// averages at the current bar against the previous bar and emits a signal
// dated on the current bar when they cross.
func (s *SMACross) HandleData(bars []types.Bar) ([]types.Signal, error) {
	// one extra bar is needed to observe the averages before the cross
	if len(bars) < s.longWindow+1 {
		return nil, nil
	}

	current := bars[len(bars)-1]

	shortNow := sma(bars, s.shortWindow)
	longNow := sma(bars, s.longWindow)
	shortPrev := sma(bars[:len(bars)-1], s.shortWindow)
	longPrev := sma(bars[:len(bars)-1], s.longWindow)

	if shortPrev <= longPrev && shortNow > longNow {
		return []types.Signal{{Date: current.TradeDate, Action: types.SignalActionBuy}}, nil
	}

	if shortPrev >= longPrev && shortNow < longNow {
		return []types.Signal{{Date: current.TradeDate, Action: types.SignalActionSell}}, nil
	}

	return nil, nil
}

// sma averages the closes of the trailing window bars.
func sma(bars []types.Bar, window int) float64 {
	sum := 0.0
	for _, bar := range bars[len(bars)-window:] {
		sum += bar.Close
	}

	return sum / float64(window)
}
