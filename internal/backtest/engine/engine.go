// Package engine contains the bar-by-bar simulation loop. One Backtest owns
// one RunConfig, one strategy instance, and the position state for exactly one
// run; nothing in here is shared across concurrent runs.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/quantframe/quantframe/internal/datasource"
	"github.com/quantframe/quantframe/internal/logger"
	"github.com/quantframe/quantframe/internal/strategy"
	"github.com/quantframe/quantframe/internal/types"
	"github.com/quantframe/quantframe/pkg/errors"
	"go.uber.org/zap"
)

// Status is the internal lifecycle state of a single run.
type Status string

const (
	StatusCreated      Status = "created"
	StatusInitializing Status = "initializing"
	StatusRunning      Status = "running"
	StatusLiquidating  Status = "liquidating"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
)

// Observer receives progress events while a run executes. Implementations
// must not block; publishing is best-effort and never affects run outcome.
type Observer interface {
	Publish(event types.Event)
}

// OnProcessDataCallback is invoked after each processed bar with the bar
// count so far and the total bar count, for driving progress displays.
type OnProcessDataCallback func(current int, total int)

// Result is the frozen outcome of one run. On FAILURE only RunID, Status and
// ErrorMessage are populated; partial trades and equity points are discarded.
type Result struct {
	RunID        string                    `json:"run_id"`
	Status       types.RunStatus           `json:"status"`
	Summary      *types.PerformanceSummary `json:"summary,omitempty"`
	Trades       []types.Trade             `json:"trades,omitempty"`
	EquityCurve  []types.EquityPoint       `json:"equity_curve,omitempty"`
	ErrorMessage string                    `json:"error_message,omitempty"`
}

// Backtest drives one strategy over one bar series. Construct a fresh
// instance per run; Run may be called at most once.
type Backtest struct {
	config   RunConfig
	strategy strategy.Strategy
	source   datasource.DataSource
	log      *logger.Logger

	runID         string
	observer      optional.Option[Observer]
	onProcessData optional.Option[OnProcessDataCallback]

	status Status

	// position state, exclusively owned by Run
	cash        float64
	shares      float64
	lastApplied optional.Option[types.SignalAction]
	trades      []types.Trade
	equity      []types.EquityPoint
}

func NewBacktest(config RunConfig, strat strategy.Strategy, source datasource.DataSource, log *logger.Logger) *Backtest {
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Backtest{
		config:   config,
		strategy: strat,
		source:   source,
		log:      log,
		runID:    uuid.New().String(),
		status:   StatusCreated,
	}
}

// SetRunID overrides the generated run id, e.g. with one assigned by a
// scheduler before the run was constructed.
func (b *Backtest) SetRunID(id string) {
	b.runID = id
}

// SetObserver attaches a progress observer.
func (b *Backtest) SetObserver(observer Observer) {
	b.observer = optional.Some(observer)
}

// SetOnProcessData attaches a per-bar progress callback.
func (b *Backtest) SetOnProcessData(callback OnProcessDataCallback) {
	b.onProcessData = optional.Some(callback)
}

// RunID returns the identifier this run reports under.
func (b *Backtest) RunID() string {
	return b.runID
}

// Status returns the current lifecycle state.
func (b *Backtest) Status() Status {
	return b.status
}

func (b *Backtest) publish(event types.Event) {
	b.observer.IfSome(func(observer Observer) {
		event.RunID = b.runID
		observer.Publish(event)
	})
}

// Run executes the full state machine and returns the frozen result. Any
// error is also reflected in the result as a FAILURE record so callers can
// hand it to persistence unchanged.
func (b *Backtest) Run(ctx context.Context) (*Result, error) {
	if err := b.config.Validate(); err != nil {
		return b.fail(err)
	}

	b.status = StatusInitializing

	if err := b.strategy.Initialize(); err != nil {
		return b.fail(errors.Wrap(errors.ErrCodeStrategyInitialization,
			fmt.Sprintf("strategy %q failed to initialize", b.strategy.Name()), err))
	}

	start := b.config.StartTime.TakeOr(time.Time{})
	end := b.config.EndTime.TakeOr(time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC))

	bars, err := b.source.FetchBars(ctx, b.config.Symbol, b.config.Timeframe, start, end)
	if err != nil {
		return b.fail(err)
	}

	b.log.Debug("Backtest started",
		zap.String("run_id", b.runID),
		zap.String("symbol", b.config.Symbol),
		zap.String("strategy", b.strategy.Name()),
		zap.Int("bars", len(bars)),
	)

	b.status = StatusRunning
	b.cash = b.config.InitialCash
	warmup := b.strategy.WarmupLength()

	for i, bar := range bars {
		if err := ctx.Err(); err != nil {
			return b.fail(errors.Wrap(errors.ErrCodeRunCancelled, "run cancelled", err))
		}

		if i >= warmup {
			signals, err := b.invokeStrategy(bars[:i+1])
			if err != nil {
				return b.fail(err)
			}

			b.applySignals(signals, bar)
		}

		equity := b.cash + b.shares*bar.Close
		b.equity = append(b.equity, types.EquityPoint{
			Date:        bar.TradeDate,
			TotalEquity: equity,
		})
		b.publish(types.Event{
			Type:  types.EventTypePnlUpdate,
			Date:  bar.TradeDate,
			Value: equity,
		})
		b.onProcessData.IfSome(func(callback OnProcessDataCallback) {
			callback(i+1, len(bars))
		})
	}

	b.status = StatusLiquidating

	if b.shares > 0 {
		// terminal mark-to-market close at the last bar, no fill costs and
		// no trade record
		last := bars[len(bars)-1]
		b.cash += b.shares * last.Close
		b.shares = 0
		b.log.Debug("Terminal liquidation",
			zap.String("run_id", b.runID),
			zap.Float64("close", last.Close),
			zap.Float64("final_equity", b.cash),
		)
	}

	b.status = StatusCompleted

	result := &Result{
		RunID:       b.runID,
		Status:      types.RunStatusSuccess,
		Trades:      b.trades,
		EquityCurve: b.equity,
	}

	b.publish(types.Event{
		Type:   types.EventTypeBacktestResult,
		Status: types.RunStatusSuccess,
	})

	return result, nil
}

// invokeStrategy shields the engine from a panicking strategy by converting
// the panic into a strategy execution error.
func (b *Backtest) invokeStrategy(bars []types.Bar) (signals []types.Signal, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf(errors.ErrCodeStrategyExecution,
				"strategy %q panicked: %v", b.strategy.Name(), r)
		}
	}()

	signals, err = b.strategy.HandleData(bars)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStrategyExecution,
			fmt.Sprintf("strategy %q failed on bar %s", b.strategy.Name(), bars[len(bars)-1].TradeDate.Format(time.RFC3339)), err)
	}

	return signals, nil
}

// applySignals considers only the first signal dated on the current bar.
// Whether or not it executes, later same-bar signals are ignored.
func (b *Backtest) applySignals(signals []types.Signal, bar types.Bar) {
	for _, signal := range signals {
		if !signal.Date.Equal(bar.TradeDate) {
			continue
		}

		// a repeat of the last applied action is ignored outright
		if action, err := b.lastApplied.Take(); err == nil && action == signal.Action {
			return
		}

		switch signal.Action {
		case types.SignalActionBuy:
			b.executeBuy(bar)
		case types.SignalActionSell:
			b.executeSell(bar)
		}

		return
	}
}

func (b *Backtest) executeBuy(bar types.Bar) {
	if b.shares > 0 {
		return
	}

	fillPrice := bar.Close + b.config.Slippage
	if b.cash < fillPrice {
		// not an error: skip the fill and leave the position untouched
		b.log.Debug("Buy skipped, insufficient funds",
			zap.String("run_id", b.runID),
			zap.Float64("cash", b.cash),
			zap.Float64("fill_price", fillPrice),
		)
		b.publish(types.Event{
			Type:    types.EventTypeLog,
			Date:    bar.TradeDate,
			Message: fmt.Sprintf("buy skipped: cash %.2f below fill price %.2f", b.cash, fillPrice),
		})

		return
	}

	shares := b.cash / fillPrice
	commission := shares * fillPrice * b.config.CommissionRate
	// full-notional sizing: the notional is invested first, then commission
	// is taken out of the residual, which can leave cash negative by the
	// commission amount
	b.cash -= shares*fillPrice + commission
	b.shares = shares

	b.recordTrade(types.Trade{
		Date:       bar.TradeDate,
		Action:     types.SignalActionBuy,
		Price:      fillPrice,
		Shares:     shares,
		Commission: commission,
	})
}

func (b *Backtest) executeSell(bar types.Bar) {
	if b.shares == 0 {
		return
	}

	fillPrice := bar.Close - b.config.Slippage
	proceeds := b.shares * fillPrice
	commission := proceeds * b.config.CommissionRate
	shares := b.shares

	b.cash += proceeds - commission
	b.shares = 0

	b.recordTrade(types.Trade{
		Date:       bar.TradeDate,
		Action:     types.SignalActionSell,
		Price:      fillPrice,
		Shares:     shares,
		Commission: commission,
	})
}

func (b *Backtest) recordTrade(trade types.Trade) {
	b.trades = append(b.trades, trade)
	b.lastApplied = optional.Some(trade.Action)

	b.log.Debug("Trade executed",
		zap.String("run_id", b.runID),
		zap.String("action", string(trade.Action)),
		zap.Float64("price", trade.Price),
		zap.Float64("shares", trade.Shares),
		zap.Float64("commission", trade.Commission),
	)
	b.publish(types.Event{
		Type:  types.EventTypeOrderEvent,
		Date:  trade.Date,
		Trade: &trade,
	})
}

// fail transitions the run to Failed and returns a FAILURE result carrying
// the error message. Partial trades and equity points are dropped.
func (b *Backtest) fail(err error) (*Result, error) {
	b.status = StatusFailed
	b.trades = nil
	b.equity = nil

	b.log.Error("Backtest failed",
		zap.String("run_id", b.runID),
		zap.Error(err),
	)
	b.publish(types.Event{
		Type:    types.EventTypeBacktestResult,
		Status:  types.RunStatusFailure,
		Message: err.Error(),
	})

	return &Result{
		RunID:        b.runID,
		Status:       types.RunStatusFailure,
		ErrorMessage: err.Error(),
	}, err
}
