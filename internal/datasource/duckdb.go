package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/quantframe/quantframe/internal/logger"
	"github.com/quantframe/quantframe/internal/types"
	"github.com/quantframe/quantframe/pkg/errors"
	"go.uber.org/zap"
)

// DuckDBDataSource serves bars from a DuckDB view over Parquet files. The
// Parquet schema must carry symbol, timeframe, trade_date, open, high, low,
// close and volume columns; bars are read back ordered ascending by
// trade_date.
type DuckDBDataSource struct {
	db     *sql.DB
	logger *logger.Logger
	sq     squirrel.StatementBuilderType
}

var _ DataSource = (*DuckDBDataSource)(nil)

// NewDuckDBDataSource opens a DuckDB database at the given path. Use
// ":memory:" for an ephemeral database populated via LoadParquet.
func NewDuckDBDataSource(path string, log *logger.Logger) (*DuckDBDataSource, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}

	return &DuckDBDataSource{
		db:     db,
		logger: log,
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}, nil
}

// LoadParquet (re)creates the bars view from the Parquet file or glob at the
// given path.
func (ds *DuckDBDataSource) LoadParquet(path string) error {
	ds.logger.Debug("Loading bars from parquet", zap.String("path", path))

	if _, err := ds.db.Exec(`DROP VIEW IF EXISTS bars;`); err != nil {
		return fmt.Errorf("failed to drop existing bars view: %w", err)
	}

	// raw SQL: Squirrel has no CREATE VIEW support
	query := fmt.Sprintf(`
		CREATE VIEW bars AS
		SELECT * FROM read_parquet('%s');
	`, path)

	if _, err := ds.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create bars view: %w", err)
	}

	return nil
}

// FetchBars implements DataSource.
func (ds *DuckDBDataSource) FetchBars(ctx context.Context, symbol string, timeframe Timeframe, start, end time.Time) ([]types.Bar, error) {
	query := ds.sq.
		Select("trade_date", "open", "high", "low", "close", "volume").
		From("bars").
		Where(squirrel.Eq{"symbol": symbol, "timeframe": string(timeframe)}).
		Where(squirrel.GtOrEq{"trade_date": start}).
		Where(squirrel.LtOrEq{"trade_date": end}).
		OrderBy("trade_date ASC").
		RunWith(ds.db)

	rows, err := query.QueryContext(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query bars", err)
	}
	defer rows.Close()

	var bars []types.Bar

	for rows.Next() {
		var bar types.Bar

		err := rows.Scan(
			&bar.TradeDate,
			&bar.Open,
			&bar.High,
			&bar.Low,
			&bar.Close,
			&bar.Volume,
		)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan bar", err)
		}

		bars = append(bars, bar)
	}

	if err = rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "error iterating bars", err)
	}

	if len(bars) == 0 {
		return nil, errors.NewNoDataError(symbol, string(timeframe), start, end)
	}

	return bars, nil
}

// Count returns the number of bars available for the symbol and timeframe in
// the given range.
func (ds *DuckDBDataSource) Count(ctx context.Context, symbol string, timeframe Timeframe, start, end time.Time) (int, error) {
	query := ds.sq.
		Select("COUNT(*)").
		From("bars").
		Where(squirrel.Eq{"symbol": symbol, "timeframe": string(timeframe)}).
		Where(squirrel.GtOrEq{"trade_date": start}).
		Where(squirrel.LtOrEq{"trade_date": end}).
		RunWith(ds.db)

	var count int
	if err := query.QueryRowContext(ctx).Scan(&count); err != nil {
		return 0, errors.Wrap(errors.ErrCodeQueryFailed, "failed to count bars", err)
	}

	return count, nil
}

// Close implements DataSource.
func (ds *DuckDBDataSource) Close() error {
	return ds.db.Close()
}
