package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"QuantBench/internal/model"
)

// FMPFetcher implements Fetcher using the Financial Modeling Prep REST API.
type FMPFetcher struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
	Limiter *rate.Limiter
}

// NewFMPFetcher creates a new fetcher with optional proxy support and a per-minute request budget.
func NewFMPFetcher(baseURL, apiKey, proxyURL string, requestsPerMinute int) *FMPFetcher {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if requestsPerMinute <= 0 {
		requestsPerMinute = 250
	}
	return &FMPFetcher{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		Limiter: rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), 1),
	}
}

func (f *FMPFetcher) Name() string { return "fmp" }

// fmpBar is the JSON shape shared by the intraday and daily endpoints.
type fmpBar struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

func fmpInterval(tf model.Timeframe) (string, error) {
	switch tf {
	case model.OneMinute:
		return "1min", nil
	case model.FiveMinutes:
		return "5min", nil
	case model.FifteenMinute:
		return "15min", nil
	case model.OneHour:
		return "1hour", nil
	default:
		return "", fmt.Errorf("fmp: unsupported intraday timeframe %q", tf)
	}
}

// fmpSymbol spells share classes the way FMP expects (BRK.B -> BRK-B).
func fmpSymbol(symbol string) string {
	return strings.ReplaceAll(symbol, ".", "-")
}

func (f *FMPFetcher) FetchBars(ctx context.Context, symbol string, tf model.Timeframe, start, end time.Time) ([]model.OHLCV, error) {
	symbol = fmpSymbol(symbol)
	q := url.Values{}
	q.Set("from", start.In(model.MarketLocation()).Format("2006-01-02"))
	q.Set("to", end.In(model.MarketLocation()).Format("2006-01-02"))
	q.Set("apikey", f.APIKey)

	var (
		raw    []fmpBar
		layout string
	)
	if tf == model.OneDay {
		endpoint := fmt.Sprintf("%s/api/v3/historical-price-full/%s?%s", f.BaseURL, url.PathEscape(symbol), q.Encode())
		var resp struct {
			Symbol     string   `json:"symbol"`
			Historical []fmpBar `json:"historical"`
		}
		if err := f.getJSON(ctx, endpoint, &resp); err != nil {
			return nil, err
		}
		raw = resp.Historical
		layout = "2006-01-02"
	} else {
		interval, err := fmpInterval(tf)
		if err != nil {
			return nil, err
		}
		endpoint := fmt.Sprintf("%s/api/v3/historical-chart/%s/%s?%s", f.BaseURL, interval, url.PathEscape(symbol), q.Encode())
		if err := f.getJSON(ctx, endpoint, &raw); err != nil {
			return nil, err
		}
		layout = "2006-01-02 15:04:05"
	}

	bars := make([]model.OHLCV, 0, len(raw))
	for _, rb := range raw {
		ts, err := time.ParseInLocation(layout, rb.Date, model.MarketLocation())
		if err != nil {
			return nil, fmt.Errorf("fmp: parse date %q: %w", rb.Date, err)
		}
		if ts.Before(start) || !ts.Before(end) {
			continue
		}
		bars = append(bars, model.OHLCV{
			Time:   ts,
			Open:   rb.Open,
			High:   rb.High,
			Low:    rb.Low,
			Close:  rb.Close,
			Volume: rb.Volume,
		})
	}
	// FMP returns newest first; Clean restores chronological order.
	return Clean(bars), nil
}

func (f *FMPFetcher) getJSON(ctx context.Context, endpoint string, out any) error {
	if f.Limiter != nil {
		if err := f.Limiter.Wait(ctx); err != nil {
			return fmt.Errorf("fmp rate limit: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return fmt.Errorf("fmp fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("fmp: status %d, body: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("fmp decode: %w", err)
	}
	return nil
}
