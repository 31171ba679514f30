// Package optimizer sweeps a strategy's parameter grid, running one isolated
// backtest per combination with bounded parallelism.
package optimizer

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/quantframe/quantframe/internal/backtest/engine"
	"github.com/quantframe/quantframe/internal/backtest/stats"
	"github.com/quantframe/quantframe/internal/datasource"
	"github.com/quantframe/quantframe/internal/logger"
	"github.com/quantframe/quantframe/internal/strategy"
	"github.com/quantframe/quantframe/internal/types"
	"github.com/quantframe/quantframe/pkg/errors"
	"go.uber.org/zap"
)

// DefaultConcurrency bounds parallel runs when the caller does not choose.
const DefaultConcurrency = 4

// CombinationResult tags one run's outcome with the grid point that produced
// it and the sweep it belongs to.
type CombinationResult struct {
	OptimizationID string                    `json:"optimization_id"`
	RunID          string                    `json:"run_id"`
	Combination    Combination               `json:"combination"`
	Status         types.RunStatus           `json:"status"`
	Summary        *types.PerformanceSummary `json:"summary,omitempty"`
	Trades         []types.Trade             `json:"trades,omitempty"`
	EquityCurve    []types.EquityPoint       `json:"equity_curve,omitempty"`
	ErrorMessage   string                    `json:"error_message,omitempty"`
}

// OnResultCallback streams each combination's outcome as it completes.
type OnResultCallback func(result CombinationResult)

// Optimizer owns the sweep configuration. Each call to Run is an independent
// sweep with its own optimization id.
type Optimizer struct {
	registry     *strategy.Registry
	source       datasource.DataSource
	log          *logger.Logger
	concurrency  int
	onResult     optional.Option[OnResultCallback]
	observer     optional.Option[engine.Observer]
}

func NewOptimizer(registry *strategy.Registry, source datasource.DataSource, log *logger.Logger) *Optimizer {
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Optimizer{
		registry:    registry,
		source:      source,
		log:         log,
		concurrency: DefaultConcurrency,
	}
}

// SetConcurrency bounds the number of combinations running at once.
func (o *Optimizer) SetConcurrency(n int) {
	if n > 0 {
		o.concurrency = n
	}
}

// SetOnResult attaches a callback fired once per finished combination.
func (o *Optimizer) SetOnResult(callback OnResultCallback) {
	o.onResult = optional.Some(callback)
}

// SetObserver forwards per-run progress events from every combination.
func (o *Optimizer) SetObserver(observer engine.Observer) {
	o.observer = optional.Some(observer)
}

// Run sweeps the grid. optimizationID may be empty, in which case one is
// generated. Cancelling ctx stops combinations that have not started;
// combinations already running finish and report normally. Failures are
// isolated: a failing combination yields one FAILURE row and its siblings
// proceed.
func (o *Optimizer) Run(ctx context.Context, optimizationID string, config engine.RunConfig, strategyName string, ranges []ParameterRange) ([]CombinationResult, error) {
	combinations, err := Combinations(ranges)
	if err != nil {
		return nil, err
	}

	if optimizationID == "" {
		optimizationID = uuid.New().String()
	}

	o.log.Info("Optimization started",
		zap.String("optimization_id", optimizationID),
		zap.String("strategy", strategyName),
		zap.Int("combinations", len(combinations)),
		zap.Int("concurrency", o.concurrency),
	)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []CombinationResult
	)

	sem := make(chan struct{}, o.concurrency)

	for _, combination := range combinations {
		if ctx.Err() != nil {
			break
		}

		sem <- struct{}{}

		if ctx.Err() != nil {
			<-sem

			break
		}

		wg.Add(1)

		go func(combination Combination) {
			defer wg.Done()
			defer func() { <-sem }()

			result := o.runCombination(optimizationID, config, strategyName, combination)

			mu.Lock()
			results = append(results, result)
			mu.Unlock()

			o.onResult.IfSome(func(callback OnResultCallback) {
				callback(result)
			})
		}(combination)
	}

	wg.Wait()

	o.log.Info("Optimization finished",
		zap.String("optimization_id", optimizationID),
		zap.Int("completed", len(results)),
	)

	return results, ctx.Err()
}

// runCombination executes one grid point in full isolation. A run already in
// flight is never interrupted, so the engine gets a background context.
func (o *Optimizer) runCombination(optimizationID string, config engine.RunConfig, strategyName string, combination Combination) CombinationResult {
	overrides := make(map[string]float64, len(config.ParameterOverrides)+len(combination))
	for k, v := range config.ParameterOverrides {
		overrides[k] = v
	}

	for k, v := range combination {
		overrides[k] = v
	}

	runConfig := config
	runConfig.ParameterOverrides = overrides

	result := CombinationResult{
		OptimizationID: optimizationID,
		Combination:    combination,
	}

	strat, err := o.registry.Load(strategyName, runConfig.Symbol, overrides)
	if err != nil {
		result.RunID = uuid.New().String()
		result.Status = types.RunStatusFailure
		result.ErrorMessage = err.Error()

		return result
	}

	backtest := engine.NewBacktest(runConfig, strat, o.source, o.log)
	o.observer.IfSome(func(observer engine.Observer) {
		backtest.SetObserver(observer)
	})

	result.RunID = backtest.RunID()

	runResult, err := backtest.Run(context.Background())
	if err != nil {
		result.Status = types.RunStatusFailure
		result.ErrorMessage = runResult.ErrorMessage

		return result
	}

	summary, err := stats.Analyze(runResult.EquityCurve, runResult.Trades, runConfig.InitialCash)
	if err != nil {
		result.Status = types.RunStatusFailure
		result.ErrorMessage = errors.Wrap(errors.ErrCodeRunFailed, "failed to analyze run", err).Error()

		return result
	}

	result.Status = types.RunStatusSuccess
	result.Summary = &summary
	result.Trades = runResult.Trades
	result.EquityCurve = runResult.EquityCurve

	return result
}
