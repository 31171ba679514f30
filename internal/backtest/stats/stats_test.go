package stats

import (
	"math"
	"testing"
	"time"

	"github.com/quantframe/quantframe/internal/types"
	"github.com/quantframe/quantframe/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type StatsTestSuite struct {
	suite.Suite
}

func TestStatsSuite(t *testing.T) {
	suite.Run(t, new(StatsTestSuite))
}

func equityCurve(start time.Time, values ...float64) []types.EquityPoint {
	points := make([]types.EquityPoint, len(values))
	for i, v := range values {
		points[i] = types.EquityPoint{Date: start.AddDate(0, 0, i), TotalEquity: v}
	}

	return points
}

func buy(date time.Time, price, shares float64) types.Trade {
	return types.Trade{Date: date, Action: types.SignalActionBuy, Price: price, Shares: shares}
}

func sell(date time.Time, price, shares float64) types.Trade {
	return types.Trade{Date: date, Action: types.SignalActionSell, Price: price, Shares: shares}
}

func (suite *StatsTestSuite) TestEmptyEquityCurve() {
	_, err := Analyze(nil, nil, 100000)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeEmptyEquityCurve))
}

func (suite *StatsTestSuite) TestTotalAndAnnualizedReturn() {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	equity := equityCurve(start, 100000, 101000, 102000, 110000)

	summary, err := Analyze(equity, nil, 100000)
	suite.Require().NoError(err)

	suite.InDelta(0.10, summary.TotalReturn, 1e-9)
	// three calendar days elapsed
	expected := math.Pow(1.10, 365.0/3.0) - 1
	suite.InDelta(expected, summary.AnnualizedReturn, 1e-9)
}

func (suite *StatsTestSuite) TestSinglePointHasZeroAnnualizedReturn() {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	equity := equityCurve(start, 105000)

	summary, err := Analyze(equity, nil, 100000)
	suite.Require().NoError(err)
	suite.InDelta(0.05, summary.TotalReturn, 1e-9)
	suite.Zero(summary.AnnualizedReturn)
	suite.Zero(summary.AnnualizedVolatility)
	suite.Zero(summary.SharpeRatio)
}

func (suite *StatsTestSuite) TestVolatilityUsesSampleStdev() {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	equity := equityCurve(start, 100, 110, 99)

	summary, err := Analyze(equity, nil, 100)
	suite.Require().NoError(err)

	// per-bar returns including the leading zero: [0, 0.1, -0.1]
	returns := []float64{0, 0.1, 99.0/110.0 - 1}
	mean := (returns[0] + returns[1] + returns[2]) / 3

	var sum float64
	for _, r := range returns {
		sum += (r - mean) * (r - mean)
	}

	expected := math.Sqrt(sum/2) * math.Sqrt(252)
	suite.InDelta(expected, summary.AnnualizedVolatility, 1e-9)
}

func (suite *StatsTestSuite) TestMaxDrawdown() {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	equity := equityCurve(start, 100, 120, 90, 110)

	summary, err := Analyze(equity, nil, 100)
	suite.Require().NoError(err)
	suite.InDelta(-0.25, summary.MaxDrawdown, 1e-9)
	suite.True(summary.CalmarRatio != 0)
}

func (suite *StatsTestSuite) TestMonotonicEquityHasZeroDrawdownAndCalmar() {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	equity := equityCurve(start, 100, 105, 110)

	summary, err := Analyze(equity, nil, 100)
	suite.Require().NoError(err)
	suite.Zero(summary.MaxDrawdown)
	suite.Zero(summary.CalmarRatio)
}

func (suite *StatsTestSuite) TestRoundTripTally() {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	equity := equityCurve(start, 100000, 101000)
	trades := []types.Trade{
		buy(start, 100, 10),
		sell(start.AddDate(0, 0, 1), 110, 10), // +10%
		buy(start.AddDate(0, 0, 2), 110, 10),
		sell(start.AddDate(0, 0, 3), 105, 10), // -5/110
		buy(start.AddDate(0, 0, 4), 105, 10),  // unmatched, ignored
	}

	summary, err := Analyze(equity, trades, 100000)
	suite.Require().NoError(err)
	suite.Equal(2, summary.TotalTrades)
	suite.Equal(1, summary.WinningTrades)
	suite.Equal(1, summary.LosingTrades)
	suite.InDelta(0.5, summary.WinRate, 1e-9)
	// 0.1 / (5/110)
	suite.InDelta(2.2, summary.ProfitFactor, 1e-9)
}

func (suite *StatsTestSuite) TestProfitFactorInfiniteWithOnlyWinners() {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	equity := equityCurve(start, 100000, 101000)
	trades := []types.Trade{
		buy(start, 100, 10),
		sell(start.AddDate(0, 0, 1), 110, 10),
	}

	summary, err := Analyze(equity, trades, 100000)
	suite.Require().NoError(err)
	suite.True(math.IsInf(summary.ProfitFactor, 1))
	suite.Equal(1.0, summary.WinRate)
}

func (suite *StatsTestSuite) TestProfitFactorZeroWithNoRoundTrips() {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	equity := equityCurve(start, 100000, 100000)

	summary, err := Analyze(equity, nil, 100000)
	suite.Require().NoError(err)
	suite.Zero(summary.ProfitFactor)
	suite.Zero(summary.WinRate)
	suite.Zero(summary.TotalTrades)
}

func (suite *StatsTestSuite) TestClassificationIgnoresCommission() {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	equity := equityCurve(start, 100000, 100000)
	buyTrade := buy(start, 100, 10)
	buyTrade.Commission = 30
	sellTrade := sell(start.AddDate(0, 0, 1), 102, 10)
	sellTrade.Commission = 30

	// fill prices rose 2%, so the round-trip counts as a winner even though
	// commissions ate more than the price gain; fees only show up through
	// the equity curve metrics
	summary, err := Analyze(equity, []types.Trade{buyTrade, sellTrade}, 100000)
	suite.Require().NoError(err)
	suite.Equal(1, summary.WinningTrades)
	suite.Equal(0, summary.LosingTrades)
	suite.True(math.IsInf(summary.ProfitFactor, 1))
}

func (suite *StatsTestSuite) TestIdempotence() {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	equity := equityCurve(start, 100000, 102000, 99000, 104000)
	trades := []types.Trade{
		buy(start, 100, 1000),
		sell(start.AddDate(0, 0, 2), 99, 1000),
	}

	first, err := Analyze(equity, trades, 100000)
	suite.Require().NoError(err)
	second, err := Analyze(equity, trades, 100000)
	suite.Require().NoError(err)
	suite.Equal(first, second)
}
