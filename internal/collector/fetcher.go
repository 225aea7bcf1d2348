package collector

import (
	"context"
	"errors"
	"time"

	"QuantBench/internal/model"
)

// ErrEmptySeries is returned when a source yields no usable bars.
var ErrEmptySeries = errors.New("no bars returned")

// Fetcher defines the interface for fetching historical bars.
// Returned bars cover [start, end) and are in chronological order.
type Fetcher interface {
	FetchBars(ctx context.Context, symbol string, tf model.Timeframe, start, end time.Time) ([]model.OHLCV, error)
	Name() string
}
