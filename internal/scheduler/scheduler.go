// Package scheduler dispatches backtests and optimization sweeps as
// background jobs. It enforces zero-or-one active job per strategy, hands
// terminal results to the run store, and streams progress through an
// optional observer.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/quantframe/quantframe/internal/backtest/engine"
	"github.com/quantframe/quantframe/internal/backtest/stats"
	"github.com/quantframe/quantframe/internal/datasource"
	"github.com/quantframe/quantframe/internal/logger"
	"github.com/quantframe/quantframe/internal/optimizer"
	"github.com/quantframe/quantframe/internal/store"
	"github.com/quantframe/quantframe/internal/strategy"
	"github.com/quantframe/quantframe/internal/types"
	"github.com/quantframe/quantframe/pkg/errors"
	"go.uber.org/zap"
)

type Scheduler struct {
	registry *strategy.Registry
	source   datasource.DataSource
	store    *store.RunStore
	log      *logger.Logger
	observer optional.Option[engine.Observer]

	concurrency int

	mu       sync.Mutex
	active   map[string]string          // strategy name -> job id
	statuses map[string]types.RunStatus // job id -> lifecycle status

	wg sync.WaitGroup
}

func NewScheduler(registry *strategy.Registry, source datasource.DataSource, runStore *store.RunStore, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Scheduler{
		registry:    registry,
		source:      source,
		store:       runStore,
		log:         log,
		concurrency: optimizer.DefaultConcurrency,
		active:      make(map[string]string),
		statuses:    make(map[string]types.RunStatus),
	}
}

// SetObserver attaches a progress observer shared by every dispatched job.
func (s *Scheduler) SetObserver(observer engine.Observer) {
	s.observer = optional.Some(observer)
}

// SetConcurrency bounds parallelism inside optimization sweeps.
func (s *Scheduler) SetConcurrency(n int) {
	if n > 0 {
		s.concurrency = n
	}
}

// Status reports the lifecycle status of a job id, or None for unknown ids.
func (s *Scheduler) Status(jobID string) optional.Option[types.RunStatus] {
	s.mu.Lock()
	defer s.mu.Unlock()

	if status, ok := s.statuses[jobID]; ok {
		return optional.Some(status)
	}

	return optional.None[types.RunStatus]()
}

// Wait blocks until every dispatched job has finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// claim reserves the strategy for a new job, failing when one is active.
func (s *Scheduler) claim(strategyName string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if jobID, ok := s.active[strategyName]; ok {
		return "", errors.Newf(errors.ErrCodeRunAlreadyActive,
			"strategy %q already has active job %s", strategyName, jobID)
	}

	jobID := uuid.New().String()
	s.active[strategyName] = jobID
	s.statuses[jobID] = types.RunStatusPending

	return jobID, nil
}

func (s *Scheduler) finish(strategyName, jobID string, status types.RunStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.active, strategyName)
	s.statuses[jobID] = status
}

func (s *Scheduler) markRunning(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.statuses[jobID] = types.RunStatusRunning
}

// SubmitBacktest dispatches a single run in the background and returns its
// run id immediately. It fails when the strategy already has an active job.
func (s *Scheduler) SubmitBacktest(ctx context.Context, config engine.RunConfig, strategyName string) (string, error) {
	runID, err := s.claim(strategyName)
	if err != nil {
		return "", err
	}

	// the job outlives the submitting call: an HTTP request context is
	// cancelled the moment the handler returns, which must not abort an
	// accepted run
	jobCtx := context.WithoutCancel(ctx)

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.markRunning(runID)

		record := s.executeBacktest(jobCtx, runID, config, strategyName)

		if err := s.store.SaveResult(record.record, record.trades, record.equity); err != nil {
			s.log.Error("Failed to persist run",
				zap.String("run_id", runID),
				zap.Error(err),
			)
		}

		s.finish(strategyName, runID, record.record.Status)
	}()

	return runID, nil
}

type backtestOutcome struct {
	record store.RunRecord
	trades []types.Trade
	equity []types.EquityPoint
}

func (s *Scheduler) executeBacktest(ctx context.Context, runID string, config engine.RunConfig, strategyName string) backtestOutcome {
	record := store.RunRecord{
		RunID:        runID,
		StrategyName: strategyName,
		Symbol:       config.Symbol,
		Combination:  config.ParameterOverrides,
		CreatedAt:    time.Now().UTC(),
	}

	strat, err := s.registry.Load(strategyName, config.Symbol, config.ParameterOverrides)
	if err != nil {
		record.Status = types.RunStatusFailure
		record.ErrorMessage = err.Error()

		return backtestOutcome{record: record}
	}

	backtest := engine.NewBacktest(config, strat, s.source, s.log)
	backtest.SetRunID(runID)
	s.observer.IfSome(func(observer engine.Observer) {
		backtest.SetObserver(observer)
	})

	result, err := backtest.Run(ctx)
	if err != nil {
		record.Status = types.RunStatusFailure
		record.ErrorMessage = result.ErrorMessage

		return backtestOutcome{record: record}
	}

	summary, err := stats.Analyze(result.EquityCurve, result.Trades, config.InitialCash)
	if err != nil {
		record.Status = types.RunStatusFailure
		record.ErrorMessage = err.Error()

		return backtestOutcome{record: record}
	}

	record.Status = types.RunStatusSuccess
	record.Summary = &summary

	return backtestOutcome{record: record, trades: result.Trades, equity: result.EquityCurve}
}

// SubmitOptimization dispatches a sweep in the background and returns its
// optimization id immediately. Every combination is persisted as its own run
// record tagged with the optimization id.
func (s *Scheduler) SubmitOptimization(ctx context.Context, config engine.RunConfig, strategyName string, ranges []optimizer.ParameterRange) (string, error) {
	// reject malformed grids before claiming the strategy
	if _, err := optimizer.Combinations(ranges); err != nil {
		return "", err
	}

	optimizationID, err := s.claim(strategyName)
	if err != nil {
		return "", err
	}

	// detached for the same reason as SubmitBacktest: the sweep must not be
	// cancelled by the submitting request ending
	jobCtx := context.WithoutCancel(ctx)

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.markRunning(optimizationID)

		opt := optimizer.NewOptimizer(s.registry, s.source, s.log)
		opt.SetConcurrency(s.concurrency)
		s.observer.IfSome(func(observer engine.Observer) {
			opt.SetObserver(observer)
		})

		opt.SetOnResult(func(result optimizer.CombinationResult) {
			s.persistCombination(config, strategyName, result)
		})

		results, err := opt.Run(jobCtx, optimizationID, config, strategyName, ranges)

		status := types.RunStatusSuccess
		if err != nil || allFailed(results) {
			status = types.RunStatusFailure
		}

		s.finish(strategyName, optimizationID, status)
	}()

	return optimizationID, nil
}

func (s *Scheduler) persistCombination(config engine.RunConfig, strategyName string, result optimizer.CombinationResult) {
	record := store.RunRecord{
		RunID:          result.RunID,
		OptimizationID: result.OptimizationID,
		StrategyName:   strategyName,
		Symbol:         config.Symbol,
		Combination:    result.Combination,
		Status:         result.Status,
		Summary:        result.Summary,
		ErrorMessage:   result.ErrorMessage,
		CreatedAt:      time.Now().UTC(),
	}

	if err := s.store.SaveResult(record, result.Trades, result.EquityCurve); err != nil {
		s.log.Error("Failed to persist combination",
			zap.String("run_id", result.RunID),
			zap.String("optimization_id", result.OptimizationID),
			zap.Error(err),
		)
	}
}

func allFailed(results []optimizer.CombinationResult) bool {
	if len(results) == 0 {
		return true
	}

	for _, result := range results {
		if result.Status == types.RunStatusSuccess {
			return false
		}
	}

	return true
}
