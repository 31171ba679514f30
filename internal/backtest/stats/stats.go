// Package stats derives risk/return metrics from a completed run's equity
// curve and trade ledger. Analyze is a pure function so it can be exercised
// independently of the engine.
package stats

import (
	"math"

	"github.com/quantframe/quantframe/internal/types"
	"github.com/quantframe/quantframe/pkg/errors"
	"github.com/shopspring/decimal"
)

// tradingDaysPerYear scales per-bar volatility to annual terms.
const tradingDaysPerYear = 252

// roundTrip is one buy paired with its subsequent sell.
type roundTrip struct {
	buy  types.Trade
	sell types.Trade
}

// ret is the fill-price return of the round-trip. Commission already shows in
// the equity-based metrics; trade classification is on price alone.
func (r roundTrip) ret() decimal.Decimal {
	buyPrice := decimal.NewFromFloat(r.buy.Price)

	return decimal.NewFromFloat(r.sell.Price).Sub(buyPrice).Div(buyPrice)
}

// Analyze computes a PerformanceSummary from the equity curve, the trade
// ledger, and the starting cash. It never mutates its inputs and returns the
// same summary for the same inputs.
func Analyze(equity []types.EquityPoint, trades []types.Trade, initialCash float64) (types.PerformanceSummary, error) {
	if len(equity) == 0 {
		return types.PerformanceSummary{}, errors.New(errors.ErrCodeEmptyEquityCurve, "cannot analyze an empty equity curve")
	}

	if initialCash <= 0 {
		return types.PerformanceSummary{}, errors.Newf(errors.ErrCodeInvalidParameter, "initial cash must be positive, got %f", initialCash)
	}

	finalEquity := equity[len(equity)-1].TotalEquity
	totalReturn := finalEquity/initialCash - 1

	days := equity[len(equity)-1].Date.Sub(equity[0].Date).Hours() / 24

	var annualizedReturn float64
	if days > 0 {
		annualizedReturn = math.Pow(1+totalReturn, 365/days) - 1
	}

	returns := barReturns(equity)
	volatility := sampleStdev(returns) * math.Sqrt(tradingDaysPerYear)

	var sharpe float64
	if volatility != 0 {
		sharpe = annualizedReturn / volatility
	}

	var downside []float64
	for _, r := range returns {
		if r < 0 {
			downside = append(downside, r)
		}
	}

	var sortino float64
	if dd := sampleStdev(downside) * math.Sqrt(tradingDaysPerYear); dd != 0 {
		sortino = annualizedReturn / dd
	}

	drawdown := maxDrawdown(equity)

	var calmar float64
	if drawdown != 0 {
		calmar = annualizedReturn / math.Abs(drawdown)
	}

	wins, losses, grossProfit, grossLoss := tallyRoundTrips(trades)
	total := wins + losses

	var winRate float64
	if total > 0 {
		winRate = float64(wins) / float64(total)
	}

	var profitFactor float64

	switch {
	case grossLoss.IsZero() && grossProfit.IsPositive():
		profitFactor = math.Inf(1)
	case grossLoss.IsZero():
		profitFactor = 0
	default:
		profitFactor, _ = grossProfit.Div(grossLoss.Abs()).Float64()
	}

	return types.PerformanceSummary{
		InitialEquity:        initialCash,
		FinalEquity:          finalEquity,
		TotalReturn:          totalReturn,
		AnnualizedReturn:     annualizedReturn,
		AnnualizedVolatility: volatility,
		SharpeRatio:          sharpe,
		SortinoRatio:         sortino,
		CalmarRatio:          calmar,
		MaxDrawdown:          drawdown,
		TotalTrades:          total,
		WinningTrades:        wins,
		LosingTrades:         losses,
		WinRate:              winRate,
		ProfitFactor:         profitFactor,
	}, nil
}

// barReturns computes simple per-bar returns with the first return defined
// as zero.
func barReturns(equity []types.EquityPoint) []float64 {
	returns := make([]float64, len(equity))

	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].TotalEquity
		if prev != 0 {
			returns[i] = equity[i].TotalEquity/prev - 1
		}
	}

	return returns
}

// sampleStdev is the n-1 standard deviation; zero for fewer than two samples.
func sampleStdev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}

	var mean float64
	for _, v := range values {
		mean += v
	}

	mean /= float64(len(values))

	var sum float64
	for _, v := range values {
		sum += (v - mean) * (v - mean)
	}

	return math.Sqrt(sum / float64(len(values)-1))
}

// maxDrawdown is the most negative deviation from the running equity peak.
func maxDrawdown(equity []types.EquityPoint) float64 {
	var peak, worst float64

	for _, point := range equity {
		if point.TotalEquity > peak {
			peak = point.TotalEquity
		}

		if peak != 0 {
			drawdown := (point.TotalEquity - peak) / peak
			if drawdown < worst {
				worst = drawdown
			}
		}
	}

	return worst
}

// tallyRoundTrips pairs trades sequentially into (buy, sell) round-trips and
// accumulates win/loss counts and gross positive/negative returns with
// decimal arithmetic. A trailing unmatched buy is ignored.
func tallyRoundTrips(trades []types.Trade) (wins, losses int, grossProfit, grossLoss decimal.Decimal) {
	var open *types.Trade

	for i := range trades {
		trade := trades[i]

		switch trade.Action {
		case types.SignalActionBuy:
			if open == nil {
				open = &trade
			}
		case types.SignalActionSell:
			if open == nil {
				continue
			}

			ret := roundTrip{buy: *open, sell: trade}.ret()
			open = nil

			if ret.IsPositive() {
				wins++
				grossProfit = grossProfit.Add(ret)
			} else {
				losses++
				grossLoss = grossLoss.Add(ret)
			}
		}
	}

	return wins, losses, grossProfit, grossLoss
}
