// Package strategy defines the contract a trading strategy must satisfy to be
// driven by the simulation engine, and a registry that instantiates a fresh,
// isolated strategy instance per run.
package strategy

import (
	"github.com/quantframe/quantframe/internal/types"
)

// Parameter declares one named numeric tunable of a strategy together with
// its default value.
type Parameter struct {
	// Name is the override key, e.g. "short_window"
	Name string `json:"name"`
	// Default is the value used when no override is supplied
	Default float64 `json:"default"`
	// Description is a human readable explanation of the parameter
	Description string `json:"description,omitempty"`
}

// Strategy is the interface every strategy implementation must satisfy. The
// engine never inspects a strategy beyond this contract.
//
// A new instance is constructed per run; implementations must not mutate
// shared global state so that parallel optimizer runs stay isolated.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string
	// Initialize is called once before any bar is processed. It must fail if
	// required fields such as the traded symbol are unset.
	Initialize() error
	// WarmupLength returns the number of bars the strategy needs to observe
	// before HandleData is first invoked.
	WarmupLength() int
	// Parameters declares the named numeric parameters with their defaults.
	Parameters() []Parameter
	// SetParameter overrides a declared parameter. It must reject names that
	// are not declared and values outside the parameter's domain.
	SetParameter(name string, value float64) error
	// HandleData receives all bars up to and including the current one and
	// returns zero or more signals dated on or before the last bar. It must
	// never look past the end of the slice.
	HandleData(bars []types.Bar) ([]types.Signal, error)
}
