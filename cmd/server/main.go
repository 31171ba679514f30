package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quantframe/quantframe/internal/datasource"
	"github.com/quantframe/quantframe/internal/logger"
	"github.com/quantframe/quantframe/internal/scheduler"
	"github.com/quantframe/quantframe/internal/server"
	"github.com/quantframe/quantframe/internal/store"
	"github.com/quantframe/quantframe/internal/strategy"
	"github.com/quantframe/quantframe/internal/stream"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

func serveAction(ctx context.Context, cmd *cli.Command) error {
	zlog, err := logger.NewLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer zlog.Sync()

	source, err := datasource.NewDuckDBDataSource("", zlog)
	if err != nil {
		return fmt.Errorf("failed to create data source: %w", err)
	}
	defer source.Close()

	if err := source.LoadParquet(cmd.String("data")); err != nil {
		return fmt.Errorf("failed to load bars: %w", err)
	}

	runStore, err := store.NewRunStore(cmd.String("db"), zlog)
	if err != nil {
		return fmt.Errorf("failed to create run store: %w", err)
	}
	defer runStore.Close()

	if err := runStore.Initialize(); err != nil {
		return err
	}

	registry := strategy.NewDefaultRegistry()
	hub := stream.NewHub(zlog)
	defer hub.Close()

	sched := scheduler.NewScheduler(registry, source, runStore, zlog)
	sched.SetObserver(hub)
	sched.SetConcurrency(int(cmd.Int("concurrency")))

	srv := &http.Server{
		Addr:              cmd.String("listen"),
		Handler:           server.NewServer(sched, runStore, hub, registry, zlog),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			zlog.Error("Server shutdown failed", zap.Error(err))
		}
	}()

	zlog.Info("Server listening",
		zap.String("addr", srv.Addr),
	)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	// let in-flight jobs report before exiting
	sched.Wait()

	return nil
}

func main() {
	cmd := &cli.Command{
		Name:  "server",
		Usage: "Serve the backtesting REST and WebSocket API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "data",
				Aliases:  []string{"d"},
				Usage:    "Path to the Parquet file with OHLCV bars",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "db",
				Usage: "Path to the run database, in-memory when omitted",
			},
			&cli.StringFlag{
				Name:    "listen",
				Aliases: []string{"l"},
				Usage:   "Listen address",
				Value:   ":8080",
			},
			&cli.IntFlag{
				Name:  "concurrency",
				Usage: "Parallel combinations per optimization sweep",
				Value: 4,
			},
		},
		Action: serveAction,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
