package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"QuantBench/internal/model"
)

// barsClient is the subset of the Alpaca market data client the fetcher needs.
type barsClient interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
}

// AlpacaFetcher implements Fetcher using the Alpaca market data API.
type AlpacaFetcher struct {
	Client barsClient
	Feed   string
}

// NewAlpacaFetcher creates a fetcher backed by the Alpaca v2 bars endpoint.
// dataURL may be empty to use the SDK default.
func NewAlpacaFetcher(apiKey, apiSecret, dataURL, feed string) *AlpacaFetcher {
	client := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   dataURL,
	})
	return &AlpacaFetcher{Client: client, Feed: feed}
}

func (f *AlpacaFetcher) Name() string { return "alpaca" }

func alpacaTimeFrame(tf model.Timeframe) (marketdata.TimeFrame, error) {
	switch tf {
	case model.OneMinute:
		return marketdata.NewTimeFrame(1, marketdata.Min), nil
	case model.FiveMinutes:
		return marketdata.NewTimeFrame(5, marketdata.Min), nil
	case model.FifteenMinute:
		return marketdata.NewTimeFrame(15, marketdata.Min), nil
	case model.OneHour:
		return marketdata.NewTimeFrame(1, marketdata.Hour), nil
	case model.OneDay:
		return marketdata.NewTimeFrame(1, marketdata.Day), nil
	default:
		return marketdata.TimeFrame{}, fmt.Errorf("alpaca: unsupported timeframe %q", tf)
	}
}

func (f *AlpacaFetcher) FetchBars(ctx context.Context, symbol string, tf model.Timeframe, start, end time.Time) ([]model.OHLCV, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	atf, err := alpacaTimeFrame(tf)
	if err != nil {
		return nil, err
	}
	req := marketdata.GetBarsRequest{
		TimeFrame:  atf,
		Adjustment: marketdata.Split,
		Start:      start,
		End:        end,
	}
	if f.Feed != "" {
		req.Feed = marketdata.Feed(f.Feed)
	}
	raw, err := f.Client.GetBars(symbol, req)
	if err != nil {
		return nil, fmt.Errorf("alpaca get bars %s: %w", symbol, err)
	}
	bars := make([]model.OHLCV, 0, len(raw))
	for _, b := range raw {
		if !b.Timestamp.Before(end) {
			continue
		}
		bars = append(bars, model.OHLCV{
			Time:   b.Timestamp,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: float64(b.Volume),
		})
	}
	return Clean(bars), nil
}
