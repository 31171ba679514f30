package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/quantframe/quantframe/internal/backtest/engine"
	"github.com/quantframe/quantframe/internal/datasource"
	"github.com/quantframe/quantframe/internal/optimizer"
	"github.com/quantframe/quantframe/internal/store"
	"github.com/quantframe/quantframe/internal/strategy"
	"github.com/quantframe/quantframe/internal/types"
	"github.com/quantframe/quantframe/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type SchedulerTestSuite struct {
	suite.Suite
	source    *datasource.InMemoryDataSource
	store     *store.RunStore
	scheduler *Scheduler
}

func TestSchedulerSuite(t *testing.T) {
	suite.Run(t, new(SchedulerTestSuite))
}

func (suite *SchedulerTestSuite) SetupTest() {
	suite.source = datasource.NewInMemoryDataSource()

	runStore, err := store.NewRunStore("", nil)
	suite.Require().NoError(err)
	suite.Require().NoError(runStore.Initialize())
	suite.store = runStore

	suite.scheduler = NewScheduler(strategy.NewDefaultRegistry(), suite.source, runStore, nil)

	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	closes := []float64{100, 110, 105, 115, 112, 118, 116, 121}
	bars := make([]types.Bar, len(closes))

	for i, close := range closes {
		bars[i] = types.Bar{TradeDate: start.AddDate(0, 0, i), Close: close, Volume: 1000}
	}

	suite.source.Add("AAPL", datasource.Timeframe1d, bars)
}

func (suite *SchedulerTestSuite) TearDownTest() {
	suite.scheduler.Wait()
	suite.Require().NoError(suite.store.Close())
}

func (suite *SchedulerTestSuite) config() engine.RunConfig {
	return engine.DefaultConfig("AAPL", 100000)
}

func (suite *SchedulerTestSuite) TestSubmitBacktestPersistsSuccess() {
	runID, err := suite.scheduler.SubmitBacktest(context.Background(), suite.config(), strategy.MomentumName)
	suite.Require().NoError(err)
	suite.NotEmpty(runID)

	suite.scheduler.Wait()

	status, statusErr := suite.scheduler.Status(runID).Take()
	suite.Require().NoError(statusErr)
	suite.Equal(types.RunStatusSuccess, status)

	loaded, err := suite.store.GetRun(runID)
	suite.Require().NoError(err)

	record, takeErr := loaded.Take()
	suite.Require().NoError(takeErr)
	suite.Equal(types.RunStatusSuccess, record.Status)
	suite.Require().NotNil(record.Summary)
	suite.Greater(record.Summary.FinalEquity, 0.0)

	equity, err := suite.store.GetEquityCurve(runID)
	suite.Require().NoError(err)
	suite.Len(equity, 8)
}

func (suite *SchedulerTestSuite) TestSubmitBacktestDetachedFromCallerContext() {
	// an already-cancelled caller context must not fail the accepted run
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runID, err := suite.scheduler.SubmitBacktest(ctx, suite.config(), strategy.MomentumName)
	suite.Require().NoError(err)

	suite.scheduler.Wait()

	loaded, err := suite.store.GetRun(runID)
	suite.Require().NoError(err)

	record, takeErr := loaded.Take()
	suite.Require().NoError(takeErr)
	suite.Equal(types.RunStatusSuccess, record.Status)
	suite.Empty(record.ErrorMessage)
}

func (suite *SchedulerTestSuite) TestSubmitBacktestPersistsFailure() {
	config := suite.config()
	config.Symbol = "GOOG" // no bars loaded

	runID, err := suite.scheduler.SubmitBacktest(context.Background(), config, strategy.MomentumName)
	suite.Require().NoError(err)

	suite.scheduler.Wait()

	loaded, err := suite.store.GetRun(runID)
	suite.Require().NoError(err)

	record, takeErr := loaded.Take()
	suite.Require().NoError(takeErr)
	suite.Equal(types.RunStatusFailure, record.Status)
	suite.Nil(record.Summary)
	suite.NotEmpty(record.ErrorMessage)
}

func (suite *SchedulerTestSuite) TestOneActiveJobPerStrategy() {
	_, err := suite.scheduler.SubmitBacktest(context.Background(), suite.config(), strategy.MomentumName)
	suite.Require().NoError(err)

	_, err = suite.scheduler.SubmitBacktest(context.Background(), suite.config(), strategy.MomentumName)
	if err == nil {
		// first job may already have finished; claim again while one is held
		suite.scheduler.Wait()

		return
	}

	suite.True(errors.HasCode(err, errors.ErrCodeRunAlreadyActive))
}

func (suite *SchedulerTestSuite) TestDifferentStrategiesRunConcurrently() {
	_, err := suite.scheduler.SubmitBacktest(context.Background(), suite.config(), strategy.MomentumName)
	suite.Require().NoError(err)

	_, err = suite.scheduler.SubmitBacktest(context.Background(), suite.config(), strategy.SMACrossName)
	suite.Require().NoError(err)
}

func (suite *SchedulerTestSuite) TestUnknownJobStatus() {
	suite.True(suite.scheduler.Status("missing").IsNone())
}

func (suite *SchedulerTestSuite) TestSubmitOptimizationPersistsEveryCombination() {
	optimizationID, err := suite.scheduler.SubmitOptimization(context.Background(), suite.config(), strategy.SMACrossName, []optimizer.ParameterRange{
		{Name: "short_window", Start: 2, End: 3, Step: 1},
		{Name: "long_window", Start: 4, End: 5, Step: 1},
	})
	suite.Require().NoError(err)

	suite.scheduler.Wait()

	records, err := suite.store.ListRunsByOptimization(optimizationID)
	suite.Require().NoError(err)
	suite.Len(records, 4)

	for _, record := range records {
		suite.Equal(strategy.SMACrossName, record.StrategyName)
		suite.NotEmpty(record.Combination)
		suite.Require().Equal(types.RunStatusSuccess, record.Status)

		// every combination carries its full ledger and curve, not just the
		// summary
		equity, err := suite.store.GetEquityCurve(record.RunID)
		suite.Require().NoError(err)
		suite.Len(equity, 8)
	}
}

func (suite *SchedulerTestSuite) TestSubmitOptimizationRejectsBadGrid() {
	_, err := suite.scheduler.SubmitOptimization(context.Background(), suite.config(), strategy.SMACrossName, nil)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidRange))
}
