package main

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/moznion/go-optional"
	"github.com/quantframe/quantframe/internal/backtest/engine"
	"github.com/quantframe/quantframe/internal/datasource"
	"github.com/quantframe/quantframe/internal/logger"
	"github.com/quantframe/quantframe/internal/optimizer"
	"github.com/quantframe/quantframe/internal/store"
	"github.com/quantframe/quantframe/internal/strategy"
	"github.com/quantframe/quantframe/internal/types"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
)

// parseRanges turns repeated --range name=start:end:step flags into grid
// dimensions.
func parseRanges(specs []string) ([]optimizer.ParameterRange, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("at least one --range is required")
	}

	ranges := make([]optimizer.ParameterRange, 0, len(specs))

	for _, spec := range specs {
		name, raw, found := strings.Cut(spec, "=")
		if !found {
			return nil, fmt.Errorf("invalid range %q, expected name=start:end:step", spec)
		}

		parts := strings.Split(raw, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid range %q, expected name=start:end:step", spec)
		}

		values := make([]float64, 3)

		for i, part := range parts {
			value, err := strconv.ParseFloat(part, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid range bound %q: %w", part, err)
			}

			values[i] = value
		}

		ranges = append(ranges, optimizer.ParameterRange{
			Name:  name,
			Start: values[0],
			End:   values[1],
			Step:  values[2],
		})
	}

	return ranges, nil
}

func formatCombination(combination optimizer.Combination) string {
	names := make([]string, 0, len(combination))
	for name := range combination {
		names = append(names, name)
	}

	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%g", name, combination[name]))
	}

	return strings.Join(parts, " ")
}

// optimizeAction sweeps a parameter grid and prints results ranked by total
// return.
func optimizeAction(ctx context.Context, cmd *cli.Command) error {
	zlog, err := logger.NewLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer zlog.Sync()

	ranges, err := parseRanges(cmd.StringSlice("range"))
	if err != nil {
		return err
	}

	combinations, err := optimizer.Combinations(ranges)
	if err != nil {
		return err
	}

	timeframe, err := datasource.ParseTimeframe(cmd.String("timeframe"))
	if err != nil {
		return err
	}

	config := engine.RunConfig{
		Symbol:         cmd.String("symbol"),
		Timeframe:      timeframe,
		InitialCash:    cmd.Float("cash"),
		CommissionRate: cmd.Float("commission"),
		Slippage:       cmd.Float("slippage"),
	}

	if start := cmd.Timestamp("start"); !start.IsZero() {
		config.StartTime = optional.Some(start)
	}

	if end := cmd.Timestamp("end"); !end.IsZero() {
		config.EndTime = optional.Some(end)
	}

	source, err := datasource.NewDuckDBDataSource("", zlog)
	if err != nil {
		return fmt.Errorf("failed to create data source: %w", err)
	}
	defer source.Close()

	if err := source.LoadParquet(cmd.String("data")); err != nil {
		return fmt.Errorf("failed to load bars: %w", err)
	}

	opt := optimizer.NewOptimizer(strategy.NewDefaultRegistry(), source, zlog)
	opt.SetConcurrency(int(cmd.Int("concurrency")))

	bar := progressbar.Default(int64(len(combinations)))
	opt.SetOnResult(func(result optimizer.CombinationResult) {
		bar.Add(1)
	})

	results, err := opt.Run(ctx, "", config, cmd.String("strategy"), ranges)
	if err != nil {
		return err
	}

	sort.Slice(results, func(i, j int) bool {
		left, right := math.Inf(-1), math.Inf(-1)
		if results[i].Summary != nil {
			left = results[i].Summary.TotalReturn
		}

		if results[j].Summary != nil {
			right = results[j].Summary.TotalReturn
		}

		return left > right
	})

	fmt.Printf("\noptimization %s: %d combinations\n", results[0].OptimizationID, len(results))

	for _, result := range results {
		if result.Status == types.RunStatusFailure {
			fmt.Printf("  %-40s FAILURE %s\n", formatCombination(result.Combination), result.ErrorMessage)

			continue
		}

		fmt.Printf("  %-40s return %7.2f%%  sharpe %5.2f  drawdown %6.2f%%\n",
			formatCombination(result.Combination),
			result.Summary.TotalReturn*100,
			result.Summary.SharpeRatio,
			result.Summary.MaxDrawdown*100,
		)
	}

	output := cmd.String("output")
	if output == "" {
		return nil
	}

	runStore, err := store.NewRunStore("", zlog)
	if err != nil {
		return fmt.Errorf("failed to create run store: %w", err)
	}
	defer runStore.Close()

	if err := runStore.Initialize(); err != nil {
		return err
	}

	for _, result := range results {
		record := store.RunRecord{
			RunID:          result.RunID,
			OptimizationID: result.OptimizationID,
			StrategyName:   cmd.String("strategy"),
			Symbol:         config.Symbol,
			Combination:    result.Combination,
			Status:         result.Status,
			Summary:        result.Summary,
			ErrorMessage:   result.ErrorMessage,
		}

		if err := runStore.SaveResult(record, nil, nil); err != nil {
			return err
		}
	}

	return runStore.Write(output)
}

func main() {
	cmd := &cli.Command{
		Name:  "optimize",
		Usage: "Sweep a strategy parameter grid over historical bars",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "data",
				Aliases:  []string{"d"},
				Usage:    "Path to the Parquet file with OHLCV bars",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "symbol",
				Aliases:  []string{"s"},
				Usage:    "Instrument symbol to backtest",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "timeframe",
				Usage: "Bar timeframe (1m, 5m, 15m, 1h, 1d)",
				Value: "1d",
			},
			&cli.StringFlag{
				Name:  "strategy",
				Usage: "Registered strategy name",
				Value: strategy.SMACrossName,
			},
			&cli.StringSliceFlag{
				Name:     "range",
				Aliases:  []string{"r"},
				Usage:    "Parameter range as name=start:end:step, repeatable",
				Required: true,
			},
			&cli.TimestampFlag{
				Name:  "start",
				Usage: "Start date in `YYYY-MM-DD` format",
				Config: cli.TimestampConfig{
					Layouts: []string{"2006-01-02"},
				},
			},
			&cli.TimestampFlag{
				Name:  "end",
				Usage: "End date in `YYYY-MM-DD` format",
				Config: cli.TimestampConfig{
					Layouts: []string{"2006-01-02"},
				},
			},
			&cli.FloatFlag{
				Name:  "cash",
				Usage: "Initial cash",
				Value: 100000,
			},
			&cli.FloatFlag{
				Name:  "commission",
				Usage: "Commission rate as a fraction of fill notional",
			},
			&cli.FloatFlag{
				Name:  "slippage",
				Usage: "Absolute price slippage per fill",
			},
			&cli.IntFlag{
				Name:  "concurrency",
				Usage: "Parallel combinations",
				Value: optimizer.DefaultConcurrency,
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Directory for Parquet exports of the sweep",
			},
		},
		Action: optimizeAction,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
