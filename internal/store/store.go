// Package store persists run records, trade ledgers and equity curves in
// DuckDB. The engine never writes here itself; completed or failed results
// are handed over by the scheduler or CLI at the run boundary.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/moznion/go-optional"
	"github.com/quantframe/quantframe/internal/logger"
	"github.com/quantframe/quantframe/internal/types"
	"go.uber.org/zap"
)

// RunRecord is one persisted run: either a SUCCESS row carrying a summary or
// a FAILURE row carrying an error message.
type RunRecord struct {
	RunID          string                    `json:"run_id"`
	OptimizationID string                    `json:"optimization_id,omitempty"`
	StrategyName   string                    `json:"strategy_name"`
	Symbol         string                    `json:"symbol"`
	Combination    map[string]float64        `json:"combination,omitempty"`
	Status         types.RunStatus           `json:"status"`
	Summary        *types.PerformanceSummary `json:"summary,omitempty"`
	ErrorMessage   string                    `json:"error_message,omitempty"`
	CreatedAt      time.Time                 `json:"created_at"`
}

type RunStore struct {
	db     *sql.DB
	logger *logger.Logger
	sq     squirrel.StatementBuilderType
}

// NewRunStore opens a DuckDB database at path, or in memory when path is
// empty.
func NewRunStore(path string, log *logger.Logger) (*RunStore, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}

	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &RunStore{
		db:     db,
		logger: log,
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}, nil
}

// Initialize creates the tables for runs, trades and equity curves.
func (s *RunStore) Initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			optimization_id TEXT,
			strategy_name TEXT,
			symbol TEXT,
			combination TEXT,
			status TEXT,
			summary TEXT,
			error_message TEXT,
			created_at TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create runs table: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS trades (
			run_id TEXT,
			trade_date TIMESTAMP,
			action TEXT,
			price DOUBLE,
			shares DOUBLE,
			commission DOUBLE
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create trades table: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS equity_curve (
			run_id TEXT,
			trade_date TIMESTAMP,
			total_equity DOUBLE
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create equity_curve table: %w", err)
	}

	return nil
}

// SaveResult writes the run record with its trade ledger and equity curve in
// one transaction.
func (s *RunStore) SaveResult(record RunRecord, trades []types.Trade, equity []types.EquityPoint) error {
	combination, summary, err := encodeRecord(record)
	if err != nil {
		return err
	}

	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	insertRun := s.sq.
		Insert("runs").
		Columns("run_id", "optimization_id", "strategy_name", "symbol", "combination", "status", "summary", "error_message", "created_at").
		Values(record.RunID, record.OptimizationID, record.StrategyName, record.Symbol, combination, string(record.Status), summary, record.ErrorMessage, record.CreatedAt).
		RunWith(tx)

	if _, err := insertRun.Exec(); err != nil {
		tx.Rollback()

		return fmt.Errorf("failed to insert run: %w", err)
	}

	if len(trades) > 0 {
		insertTrades := s.sq.
			Insert("trades").
			Columns("run_id", "trade_date", "action", "price", "shares", "commission")

		for _, trade := range trades {
			insertTrades = insertTrades.Values(record.RunID, trade.Date, string(trade.Action), trade.Price, trade.Shares, trade.Commission)
		}

		if _, err := insertTrades.RunWith(tx).Exec(); err != nil {
			tx.Rollback()

			return fmt.Errorf("failed to insert trades: %w", err)
		}
	}

	if len(equity) > 0 {
		insertEquity := s.sq.
			Insert("equity_curve").
			Columns("run_id", "trade_date", "total_equity")

		for _, point := range equity {
			insertEquity = insertEquity.Values(record.RunID, point.Date, point.TotalEquity)
		}

		if _, err := insertEquity.RunWith(tx).Exec(); err != nil {
			tx.Rollback()

			return fmt.Errorf("failed to insert equity curve: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Debug("Run persisted",
		zap.String("run_id", record.RunID),
		zap.String("status", string(record.Status)),
		zap.Int("trades", len(trades)),
		zap.Int("equity_points", len(equity)),
	)

	return nil
}

// GetRun returns the run record for the id, or None when it does not exist.
func (s *RunStore) GetRun(runID string) (optional.Option[RunRecord], error) {
	selectRun := s.sq.
		Select("run_id", "optimization_id", "strategy_name", "symbol", "combination", "status", "summary", "error_message", "created_at").
		From("runs").
		Where(squirrel.Eq{"run_id": runID}).
		RunWith(s.db)

	record, err := scanRun(selectRun.QueryRow())
	if err == sql.ErrNoRows {
		return optional.None[RunRecord](), nil
	}

	if err != nil {
		return optional.None[RunRecord](), fmt.Errorf("failed to query run: %w", err)
	}

	return optional.Some(record), nil
}

// ListRuns returns all run records, newest first.
func (s *RunStore) ListRuns() ([]RunRecord, error) {
	return s.listRuns(nil)
}

// ListRunsByOptimization returns every run of one sweep.
func (s *RunStore) ListRunsByOptimization(optimizationID string) ([]RunRecord, error) {
	return s.listRuns(squirrel.Eq{"optimization_id": optimizationID})
}

func (s *RunStore) listRuns(where squirrel.Sqlizer) ([]RunRecord, error) {
	selectRuns := s.sq.
		Select("run_id", "optimization_id", "strategy_name", "symbol", "combination", "status", "summary", "error_message", "created_at").
		From("runs").
		OrderBy("created_at DESC")

	if where != nil {
		selectRuns = selectRuns.Where(where)
	}

	rows, err := selectRuns.RunWith(s.db).Query()
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord

	for rows.Next() {
		record, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return records, nil
}

// GetTrades returns the trade ledger of one run in execution order.
func (s *RunStore) GetTrades(runID string) ([]types.Trade, error) {
	selectTrades := s.sq.
		Select("trade_date", "action", "price", "shares", "commission").
		From("trades").
		Where(squirrel.Eq{"run_id": runID}).
		OrderBy("trade_date ASC").
		RunWith(s.db)

	rows, err := selectTrades.Query()
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []types.Trade

	for rows.Next() {
		var (
			trade  types.Trade
			action string
		)

		if err := rows.Scan(&trade.Date, &action, &trade.Price, &trade.Shares, &trade.Commission); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}

		trade.Action = types.SignalAction(action)
		trades = append(trades, trade)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trades: %w", err)
	}

	return trades, nil
}

// GetEquityCurve returns the equity curve of one run in date order.
func (s *RunStore) GetEquityCurve(runID string) ([]types.EquityPoint, error) {
	selectEquity := s.sq.
		Select("trade_date", "total_equity").
		From("equity_curve").
		Where(squirrel.Eq{"run_id": runID}).
		OrderBy("trade_date ASC").
		RunWith(s.db)

	rows, err := selectEquity.Query()
	if err != nil {
		return nil, fmt.Errorf("failed to query equity curve: %w", err)
	}
	defer rows.Close()

	var points []types.EquityPoint

	for rows.Next() {
		var point types.EquityPoint
		if err := rows.Scan(&point.Date, &point.TotalEquity); err != nil {
			return nil, fmt.Errorf("failed to scan equity point: %w", err)
		}

		points = append(points, point)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating equity curve: %w", err)
	}

	return points, nil
}

// Write exports all tables to Parquet files under path.
func (s *RunStore) Write(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// raw SQL, squirrel has no COPY syntax
	for _, table := range []string{"runs", "trades", "equity_curve"} {
		target := filepath.Join(path, table+".parquet")

		if _, err := s.db.Exec(fmt.Sprintf(`COPY %s TO '%s' (FORMAT PARQUET)`, table, target)); err != nil {
			return fmt.Errorf("failed to export %s to Parquet: %w", table, err)
		}
	}

	s.logger.Info("Exported run records to Parquet",
		zap.String("path", path),
	)

	return nil
}

// Cleanup drops all tables.
func (s *RunStore) Cleanup() error {
	_, err := s.db.Exec(`
		DROP TABLE IF EXISTS equity_curve;
		DROP TABLE IF EXISTS trades;
		DROP TABLE IF EXISTS runs;
	`)
	if err != nil {
		return fmt.Errorf("failed to drop tables: %w", err)
	}

	return nil
}

// Close closes the underlying database.
func (s *RunStore) Close() error {
	return s.db.Close()
}

func encodeRecord(record RunRecord) (combination string, summary string, err error) {
	if record.Combination != nil {
		data, err := json.Marshal(record.Combination)
		if err != nil {
			return "", "", fmt.Errorf("failed to marshal combination: %w", err)
		}

		combination = string(data)
	}

	if record.Summary != nil {
		data, err := json.Marshal(record.Summary)
		if err != nil {
			return "", "", fmt.Errorf("failed to marshal summary: %w", err)
		}

		summary = string(data)
	}

	return combination, summary, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (RunRecord, error) {
	var (
		record      RunRecord
		status      string
		combination sql.NullString
		summary     sql.NullString
	)

	err := row.Scan(
		&record.RunID,
		&record.OptimizationID,
		&record.StrategyName,
		&record.Symbol,
		&combination,
		&status,
		&summary,
		&record.ErrorMessage,
		&record.CreatedAt,
	)
	if err != nil {
		return RunRecord{}, err
	}

	record.Status = types.RunStatus(status)

	if combination.Valid && combination.String != "" {
		if err := json.Unmarshal([]byte(combination.String), &record.Combination); err != nil {
			return RunRecord{}, fmt.Errorf("failed to unmarshal combination: %w", err)
		}
	}

	if summary.Valid && summary.String != "" {
		var parsed types.PerformanceSummary
		if err := json.Unmarshal([]byte(summary.String), &parsed); err != nil {
			return RunRecord{}, fmt.Errorf("failed to unmarshal summary: %w", err)
		}

		record.Summary = &parsed
	}

	return record, nil
}
