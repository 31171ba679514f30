package strategy

import (
	"github.com/quantframe/quantframe/internal/types"
	"github.com/quantframe/quantframe/pkg/errors"
)

// MomentumName is the registry name of the close-to-close momentum strategy.
const MomentumName = "momentum"

var _ Strategy = (*Momentum)(nil)

// Momentum buys when the close rises versus the previous bar and sells when
// it falls. It declares no tunable parameters.
type Momentum struct {
	symbol string
}

// NewMomentum creates a Momentum strategy trading the given symbol.
func NewMomentum(symbol string) Strategy {
	return &Momentum{symbol: symbol}
}

// Name implements Strategy.
func (m *Momentum) Name() string {
	return MomentumName
}

// Initialize implements Strategy.
func (m *Momentum) Initialize() error {
	if m.symbol == "" {
		return errors.New(errors.ErrCodeStrategyInitialization, "traded symbol is not set")
	}

	return nil
}

// WarmupLength implements Strategy. One prior bar is enough to compare closes.
func (m *Momentum) WarmupLength() int {
	return 1
}

// Parameters implements Strategy.
func (m *Momentum) Parameters() []Parameter {
	return nil
}

// SetParameter implements Strategy.
func (m *Momentum) SetParameter(name string, _ float64) error {
	return errors.Newf(errors.ErrCodeUnknownParameter, "parameter %q is not declared by strategy %q", name, MomentumName)
}

// HandleData implements Strategy.
func (m *Momentum) HandleData(bars []types.Bar) ([]types.Signal, error) {
	if len(bars) < 2 {
		return nil, nil
	}

	current := bars[len(bars)-1]
	previous := bars[len(bars)-2]

	switch {
	case current.Close > previous.Close:
		return []types.Signal{{Date: current.TradeDate, Action: types.SignalActionBuy}}, nil
	case current.Close < previous.Close:
		return []types.Signal{{Date: current.TradeDate, Action: types.SignalActionSell}}, nil
	default:
		return nil, nil
	}
}
