package datasource

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type BarGeneratorTestSuite struct {
	suite.Suite
}

func TestBarGeneratorSuite(t *testing.T) {
	suite.Run(t, new(BarGeneratorTestSuite))
}

func (suite *BarGeneratorTestSuite) TestDeterministicWithSameSeed() {
	first := NewBarGenerator(42).Generate(DefaultGeneratorConfig())
	second := NewBarGenerator(42).Generate(DefaultGeneratorConfig())
	suite.Equal(first, second)
}

func (suite *BarGeneratorTestSuite) TestOHLCInvariants() {
	bars := NewBarGenerator(7).Generate(DefaultGeneratorConfig())
	suite.Require().Len(bars, 252)

	for _, bar := range bars {
		suite.GreaterOrEqual(bar.High, bar.Open)
		suite.GreaterOrEqual(bar.High, bar.Close)
		suite.LessOrEqual(bar.Low, bar.Open)
		suite.LessOrEqual(bar.Low, bar.Close)
		suite.Greater(bar.Close, 0.0)
		suite.GreaterOrEqual(bar.Volume, 0.0)
	}
}

func (suite *BarGeneratorTestSuite) TestAscendingDates() {
	bars := NewBarGenerator(7).Generate(DefaultGeneratorConfig())

	for i := 1; i < len(bars); i++ {
		suite.True(bars[i].TradeDate.After(bars[i-1].TradeDate))
	}
}

func (suite *BarGeneratorTestSuite) TestTrendDriftsPrices() {
	config := DefaultGeneratorConfig()
	config.Volatility = 0.001
	config.Trend = 0.5

	bars := NewBarGenerator(1).Generate(config)
	suite.Greater(bars[len(bars)-1].Close, bars[0].Open)
}
