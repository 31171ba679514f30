package datasource

import (
	"context"
	"testing"
	"time"

	"github.com/quantframe/quantframe/internal/types"
	"github.com/quantframe/quantframe/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type InMemoryDataSourceTestSuite struct {
	suite.Suite
	ds *InMemoryDataSource
}

func TestInMemoryDataSourceSuite(t *testing.T) {
	suite.Run(t, new(InMemoryDataSourceTestSuite))
}

func (suite *InMemoryDataSourceTestSuite) SetupTest() {
	suite.ds = NewInMemoryDataSource()

	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]types.Bar, 10)

	for i := range bars {
		bars[i] = types.Bar{
			TradeDate: start.AddDate(0, 0, i),
			Close:     100 + float64(i),
			Volume:    1000,
		}
	}

	suite.ds.Add("AAPL", Timeframe1d, bars)
}

func (suite *InMemoryDataSourceTestSuite) TestFetchBarsFullRange() {
	bars, err := suite.ds.FetchBars(context.Background(), "AAPL", Timeframe1d,
		time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 1, 10, 0, 0, 0, 0, time.UTC),
	)
	suite.Require().NoError(err)
	suite.Len(bars, 10)
}

func (suite *InMemoryDataSourceTestSuite) TestFetchBarsInclusiveBounds() {
	bars, err := suite.ds.FetchBars(context.Background(), "AAPL", Timeframe1d,
		time.Date(2023, 1, 3, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC),
	)
	suite.Require().NoError(err)
	suite.Require().Len(bars, 3)
	suite.Equal(time.Date(2023, 1, 3, 0, 0, 0, 0, time.UTC), bars[0].TradeDate)
	suite.Equal(time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC), bars[2].TradeDate)
}

func (suite *InMemoryDataSourceTestSuite) TestFetchBarsAscendingOrder() {
	bars, err := suite.ds.FetchBars(context.Background(), "AAPL", Timeframe1d,
		time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 1, 10, 0, 0, 0, 0, time.UTC),
	)
	suite.Require().NoError(err)

	for i := 1; i < len(bars); i++ {
		suite.True(bars[i].TradeDate.After(bars[i-1].TradeDate))
	}
}

func (suite *InMemoryDataSourceTestSuite) TestFetchBarsNoData() {
	_, err := suite.ds.FetchBars(context.Background(), "AAPL", Timeframe1d,
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
	)
	suite.Require().Error(err)
	suite.True(errors.IsNoDataError(err))
}

func (suite *InMemoryDataSourceTestSuite) TestFetchBarsUnknownSymbol() {
	_, err := suite.ds.FetchBars(context.Background(), "GOOG", Timeframe1d,
		time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 1, 10, 0, 0, 0, 0, time.UTC),
	)
	suite.Require().Error(err)
	suite.True(errors.IsNoDataError(err))
}

func (suite *InMemoryDataSourceTestSuite) TestParseTimeframe() {
	tf, err := ParseTimeframe("1d")
	suite.Require().NoError(err)
	suite.Equal(Timeframe1d, tf)

	_, err = ParseTimeframe("2w")
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidTimeframe))
}
