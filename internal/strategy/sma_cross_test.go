package strategy

import (
	"testing"
	"time"

	"github.com/quantframe/quantframe/internal/types"
	"github.com/quantframe/quantframe/pkg/errors"
	"github.com/stretchr/testify/suite"
)

// barsFromCloses builds a daily bar series from a list of closes.
func barsFromCloses(closes []float64) []types.Bar {
	bars := make([]types.Bar, len(closes))
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, c := range closes {
		bars[i] = types.Bar{
			TradeDate: start.AddDate(0, 0, i),
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
			Volume:    1000,
		}
	}

	return bars
}

type SMACrossTestSuite struct {
	suite.Suite
	strategy Strategy
}

func TestSMACrossSuite(t *testing.T) {
	suite.Run(t, new(SMACrossTestSuite))
}

func (suite *SMACrossTestSuite) SetupTest() {
	s := NewSMACross("AAPL")
	suite.Require().NoError(s.SetParameter("short_window", 2))
	suite.Require().NoError(s.SetParameter("long_window", 3))
	suite.Require().NoError(s.Initialize())
	suite.strategy = s
}

func (suite *SMACrossTestSuite) TestInitializeWithoutSymbol() {
	s := NewSMACross("")
	err := s.Initialize()
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeStrategyInitialization))
}

func (suite *SMACrossTestSuite) TestInitializeWindowOrder() {
	s := NewSMACross("AAPL")
	suite.Require().NoError(s.SetParameter("short_window", 20))
	suite.Require().NoError(s.SetParameter("long_window", 5))

	err := s.Initialize()
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeStrategyInitialization))
}

func (suite *SMACrossTestSuite) TestNoSignalDuringWarmup() {
	bars := barsFromCloses([]float64{100, 101, 102})

	signals, err := suite.strategy.HandleData(bars)
	suite.Require().NoError(err)
	suite.Empty(signals)
}

func (suite *SMACrossTestSuite) TestBuyOnCrossAbove() {
	// fast average crosses above the slow one on the last bar
	bars := barsFromCloses([]float64{105, 103, 101, 100, 108})

	signals, err := suite.strategy.HandleData(bars)
	suite.Require().NoError(err)
	suite.Require().Len(signals, 1)
	suite.Equal(types.SignalActionBuy, signals[0].Action)
	suite.Equal(bars[len(bars)-1].TradeDate, signals[0].Date)
}

func (suite *SMACrossTestSuite) TestSellOnCrossBelow() {
	bars := barsFromCloses([]float64{100, 102, 104, 105, 97})

	signals, err := suite.strategy.HandleData(bars)
	suite.Require().NoError(err)
	suite.Require().Len(signals, 1)
	suite.Equal(types.SignalActionSell, signals[0].Action)
}

func (suite *SMACrossTestSuite) TestNoSignalWithoutCross() {
	bars := barsFromCloses([]float64{100, 101, 102, 103, 104})

	signals, err := suite.strategy.HandleData(bars)
	suite.Require().NoError(err)
	suite.Empty(signals)
}

func (suite *SMACrossTestSuite) TestSignalsNeverDatedAfterLastBar() {
	closes := []float64{105, 103, 101, 100, 108, 95, 112, 90, 120, 85}
	bars := barsFromCloses(closes)

	for i := suite.strategy.WarmupLength(); i < len(bars); i++ {
		window := bars[:i+1]
		signals, err := suite.strategy.HandleData(window)
		suite.Require().NoError(err)

		for _, sig := range signals {
			suite.False(sig.Date.After(window[len(window)-1].TradeDate))
		}
	}
}

type MomentumTestSuite struct {
	suite.Suite
}

func TestMomentumSuite(t *testing.T) {
	suite.Run(t, new(MomentumTestSuite))
}

func (suite *MomentumTestSuite) TestBuyOnRisingClose() {
	s := NewMomentum("AAPL")
	suite.Require().NoError(s.Initialize())

	signals, err := s.HandleData(barsFromCloses([]float64{100, 110}))
	suite.Require().NoError(err)
	suite.Require().Len(signals, 1)
	suite.Equal(types.SignalActionBuy, signals[0].Action)
}

func (suite *MomentumTestSuite) TestSellOnFallingClose() {
	s := NewMomentum("AAPL")
	suite.Require().NoError(s.Initialize())

	signals, err := s.HandleData(barsFromCloses([]float64{110, 105}))
	suite.Require().NoError(err)
	suite.Require().Len(signals, 1)
	suite.Equal(types.SignalActionSell, signals[0].Action)
}

func (suite *MomentumTestSuite) TestNoSignalOnFlatClose() {
	s := NewMomentum("AAPL")
	suite.Require().NoError(s.Initialize())

	signals, err := s.HandleData(barsFromCloses([]float64{100, 100}))
	suite.Require().NoError(err)
	suite.Empty(signals)
}

func (suite *MomentumTestSuite) TestRejectsAnyParameter() {
	s := NewMomentum("AAPL")
	err := s.SetParameter("window", 5)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeUnknownParameter))
}
