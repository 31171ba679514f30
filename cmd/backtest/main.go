package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/moznion/go-optional"
	"github.com/quantframe/quantframe/internal/backtest/engine"
	"github.com/quantframe/quantframe/internal/backtest/stats"
	"github.com/quantframe/quantframe/internal/datasource"
	"github.com/quantframe/quantframe/internal/logger"
	"github.com/quantframe/quantframe/internal/store"
	"github.com/quantframe/quantframe/internal/strategy"
	"github.com/quantframe/quantframe/internal/types"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
)

// parseOverrides turns repeated --param name=value flags into a map.
func parseOverrides(params []string) (map[string]float64, error) {
	if len(params) == 0 {
		return nil, nil
	}

	overrides := make(map[string]float64, len(params))

	for _, param := range params {
		name, raw, found := strings.Cut(param, "=")
		if !found {
			return nil, fmt.Errorf("invalid parameter %q, expected name=value", param)
		}

		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid parameter value %q: %w", raw, err)
		}

		overrides[name] = value
	}

	return overrides, nil
}

// backtestAction runs a single backtest against a Parquet bar file.
func backtestAction(ctx context.Context, cmd *cli.Command) error {
	zlog, err := logger.NewLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer zlog.Sync()

	overrides, err := parseOverrides(cmd.StringSlice("param"))
	if err != nil {
		return err
	}

	timeframe, err := datasource.ParseTimeframe(cmd.String("timeframe"))
	if err != nil {
		return err
	}

	config := engine.RunConfig{
		Symbol:             cmd.String("symbol"),
		Timeframe:          timeframe,
		InitialCash:        cmd.Float("cash"),
		CommissionRate:     cmd.Float("commission"),
		Slippage:           cmd.Float("slippage"),
		ParameterOverrides: overrides,
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

	registry := strategy.NewDefaultRegistry()

	strat, err := registry.Load(cmd.String("strategy"), config.Symbol, overrides)
	if err != nil {
		return err
	}

	backtest := engine.NewBacktest(config, strat, source, zlog)

	var bar *progressbar.ProgressBar

	backtest.SetOnProcessData(func(current int, total int) {
		if bar == nil {
			bar = progressbar.Default(int64(total))
		}

		bar.Add(1)
	})

	result, err := backtest.Run(ctx)
	if err != nil {
		return err
	}

	summary, err := stats.Analyze(result.EquityCurve, result.Trades, config.InitialCash)
	if err != nil {
		return err
	}

	result.Summary = &summary

	fmt.Printf("\nrun %s finished\n", result.RunID)
	fmt.Printf("  total return:   %.2f%%\n", summary.TotalReturn*100)
	fmt.Printf("  sharpe ratio:   %.2f\n", summary.SharpeRatio)
	fmt.Printf("  max drawdown:   %.2f%%\n", summary.MaxDrawdown*100)
	fmt.Printf("  round trips:    %d (win rate %.0f%%)\n", summary.TotalTrades, summary.WinRate*100)

	output := cmd.String("output")
	if output == "" {
		return nil
	}

	if err := os.MkdirAll(output, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := types.WritePerformanceSummary(filepath.Join(output, "summary.yaml"), summary); err != nil {
		return err
	}

	runStore, err := store.NewRunStore("", zlog)
	if err != nil {
		return fmt.Errorf("failed to create run store: %w", err)
	}
	defer runStore.Close()

	if err := runStore.Initialize(); err != nil {
		return err
	}

	record := store.RunRecord{
		RunID:        result.RunID,
		StrategyName: strat.Name(),
		Symbol:       config.Symbol,
		Combination:  overrides,
		Status:       result.Status,
		Summary:      &summary,
		CreatedAt:    time.Now().UTC(),
	}

	if err := runStore.SaveResult(record, result.Trades, result.EquityCurve); err != nil {
		return err
	}

	return runStore.Write(output)
}

func main() {
	cmd := &cli.Command{
		Name:  "backtest",
		Usage: "Run a trading strategy against historical bars",
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
			&cli.StringSliceFlag{
				Name:    "param",
				Aliases: []string{"p"},
				Usage:   "Strategy parameter override as name=value, repeatable",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Directory for the summary and Parquet exports",
			},
		},
		Action: backtestAction,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
