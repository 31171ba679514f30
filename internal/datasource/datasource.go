// Package datasource provides validated, date-filtered, ascending bar series
// for the simulation engine. The engine consumes the returned slices
// read-only; a series may be shared by many concurrent runs.
package datasource

import (
	"context"
	"time"

	"github.com/quantframe/quantframe/internal/types"
	"github.com/quantframe/quantframe/pkg/errors"
)

// Timeframe is the bar interval of a series.
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe1h  Timeframe = "1h"
	Timeframe1d  Timeframe = "1d"
)

// AllTimeframes lists every supported bar interval.
var AllTimeframes = []Timeframe{Timeframe1m, Timeframe5m, Timeframe15m, Timeframe1h, Timeframe1d}

// ParseTimeframe validates a timeframe string.
func ParseTimeframe(s string) (Timeframe, error) {
	for _, tf := range AllTimeframes {
		if string(tf) == s {
			return tf, nil
		}
	}

	return "", errors.Newf(errors.ErrCodeInvalidTimeframe, "unsupported timeframe %q", s)
}

// DataSource fetches historical bars. Implementations must return bars
// ordered ascending by trade date and fail with a NoDataError when the
// requested range is empty. The engine does not re-sort or de-duplicate.
type DataSource interface {
	// FetchBars returns all bars for the symbol and timeframe whose trade
	// date falls within [start, end], inclusive on both ends.
	FetchBars(ctx context.Context, symbol string, timeframe Timeframe, start, end time.Time) ([]types.Bar, error)
	// Close releases any resources held by the data source.
	Close() error
}
