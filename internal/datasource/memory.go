package datasource

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/quantframe/quantframe/internal/types"
	"github.com/quantframe/quantframe/pkg/errors"
)

// InMemoryDataSource serves bar series preloaded into memory. It is the
// backing source for tests and for optimizer sweeps, where one series is
// fetched up front and shared read-only by every combination.
type InMemoryDataSource struct {
	mu     sync.RWMutex
	series map[string][]types.Bar
}

var _ DataSource = (*InMemoryDataSource)(nil)

// NewInMemoryDataSource creates an empty in-memory data source.
func NewInMemoryDataSource() *InMemoryDataSource {
	return &InMemoryDataSource{
		series: make(map[string][]types.Bar),
	}
}

// Add stores a bar series for the symbol and timeframe. Bars must already be
// sorted ascending by trade date.
func (ds *InMemoryDataSource) Add(symbol string, timeframe Timeframe, bars []types.Bar) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	ds.series[seriesKey(symbol, timeframe)] = bars
}

// FetchBars implements DataSource.
func (ds *InMemoryDataSource) FetchBars(_ context.Context, symbol string, timeframe Timeframe, start, end time.Time) ([]types.Bar, error) {
	ds.mu.RLock()
	all := ds.series[seriesKey(symbol, timeframe)]
	ds.mu.RUnlock()

	var filtered []types.Bar

	for _, bar := range all {
		if bar.TradeDate.Before(start) || bar.TradeDate.After(end) {
			continue
		}

		filtered = append(filtered, bar)
	}

	if len(filtered) == 0 {
		return nil, errors.NewNoDataError(symbol, string(timeframe), start, end)
	}

	return filtered, nil
}

// Close implements DataSource.
func (ds *InMemoryDataSource) Close() error {
	return nil
}

func seriesKey(symbol string, timeframe Timeframe) string {
	return fmt.Sprintf("%s|%s", symbol, timeframe)
}
