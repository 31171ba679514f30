package types

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// PerformanceSummary is the read-only snapshot of risk/return metrics computed
// once from a completed run's equity curve and trade ledger.
type PerformanceSummary struct {
	// InitialEquity is the cash the run started with.
	InitialEquity float64 `yaml:"initial_equity" json:"initial_equity"`
	// FinalEquity is the mark-to-market equity after terminal liquidation.
	FinalEquity float64 `yaml:"final_equity" json:"final_equity"`
	// TotalReturn is final_equity / initial_equity - 1.
	TotalReturn float64 `yaml:"total_return" json:"total_return"`
	// AnnualizedReturn compounds the total return over 365 calendar days.
	AnnualizedReturn float64 `yaml:"annualized_return" json:"annualized_return"`
	// AnnualizedVolatility is the stdev of per-bar returns scaled by sqrt(252).
	AnnualizedVolatility float64 `yaml:"annualized_volatility" json:"annualized_volatility"`
	// SharpeRatio is annualized return over annualized volatility.
	SharpeRatio float64 `yaml:"sharpe_ratio" json:"sharpe_ratio"`
	// SortinoRatio is annualized return over downside deviation.
	SortinoRatio float64 `yaml:"sortino_ratio" json:"sortino_ratio"`
	// CalmarRatio is annualized return over the absolute max drawdown.
	CalmarRatio float64 `yaml:"calmar_ratio" json:"calmar_ratio"`
	// MaxDrawdown is the largest peak-to-trough decline, a non-positive fraction.
	MaxDrawdown float64 `yaml:"max_drawdown" json:"max_drawdown"`
	// TotalTrades counts completed round-trips (a buy paired with its sell).
	TotalTrades int `yaml:"total_trades" json:"total_trades"`
	// WinningTrades counts round-trips with a positive return.
	WinningTrades int `yaml:"winning_trades" json:"winning_trades"`
	// LosingTrades counts round-trips with a zero or negative return.
	LosingTrades int `yaml:"losing_trades" json:"losing_trades"`
	// WinRate is winning round-trips over total round-trips.
	WinRate float64 `yaml:"win_rate" json:"win_rate"`
	// ProfitFactor is the sum of positive round-trip returns over the
	// absolute sum of negative ones. +Inf when there are winners but no
	// losers.
	ProfitFactor float64 `yaml:"profit_factor" json:"profit_factor"`
}

// MarshalJSON renders the summary with ProfitFactor encoded as the string
// "inf" when it is infinite, since JSON has no representation for infinity.
func (s PerformanceSummary) MarshalJSON() ([]byte, error) {
	type alias PerformanceSummary

	out := struct {
		alias
		ProfitFactor any `json:"profit_factor"`
	}{
		alias:        alias(s),
		ProfitFactor: s.ProfitFactor,
	}

	if math.IsInf(s.ProfitFactor, 1) {
		out.ProfitFactor = "inf"
	}

	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (s *PerformanceSummary) UnmarshalJSON(data []byte) error {
	type alias PerformanceSummary

	in := struct {
		*alias
		ProfitFactor any `json:"profit_factor"`
	}{
		alias: (*alias)(s),
	}

	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	switch v := in.ProfitFactor.(type) {
	case string:
		s.ProfitFactor = math.Inf(1)
	case float64:
		s.ProfitFactor = v
	case nil:
		s.ProfitFactor = 0
	default:
		return fmt.Errorf("unexpected profit_factor type %T", v)
	}

	return nil
}

// WritePerformanceSummary writes the summary to a YAML file.
func WritePerformanceSummary(path string, summary PerformanceSummary) error {
	// Marshal the struct to YAML
	data, err := yaml.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal performance summary to YAML: %w", err)
	}

	// Write the YAML data to the file
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write performance summary to file: %w", err)
	}

	return nil
}
