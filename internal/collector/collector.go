package collector

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"QuantBench/internal/metrics"
	"QuantBench/internal/model"
)

// MockFetcher returns deterministic bars for development and testing.
// Bars overrides generation per symbol; Errs forces a failure per symbol.
// ExtendedHours generates 04:00-20:00 intraday bars the way Alpaca returns them.
type MockFetcher struct {
	Price         float64
	Bars          map[string][]model.OHLCV
	Errs          map[string]error
	ExtendedHours bool

	mu    sync.Mutex
	calls int
}

func (m *MockFetcher) Name() string { return "mock" }

// Calls returns how many times FetchBars was invoked.
func (m *MockFetcher) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockFetcher) FetchBars(ctx context.Context, symbol string, tf model.Timeframe, start, end time.Time) ([]model.OHLCV, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.Errs[symbol]; err != nil {
		return nil, err
	}
	if bars, ok := m.Bars[symbol]; ok {
		return bars, nil
	}
	price := m.Price
	if price <= 0 {
		price = 100
	}
	return generateMockBars(symbol, price, tf, start, end, m.ExtendedHours), nil
}

// generateMockBars walks a seeded random price path over weekday sessions in [start, end).
func generateMockBars(symbol string, basePrice float64, tf model.Timeframe, start, end time.Time, extended bool) []model.OHLCV {
	h := fnv.New64a()
	h.Write([]byte(strings.ToUpper(symbol)))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	loc := model.MarketLocation()
	step := tf.Duration()
	if step <= 0 {
		return nil
	}
	var bars []model.OHLCV
	price := basePrice
	day := time.Date(start.In(loc).Year(), start.In(loc).Month(), start.In(loc).Day(), 0, 0, 0, 0, loc)
	for ; day.Before(end); day = day.AddDate(0, 0, 1) {
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		open := day.Add(9*time.Hour + 30*time.Minute)
		closeAt := day.Add(16 * time.Hour)
		if extended {
			open, closeAt = day.Add(4*time.Hour), day.Add(20*time.Hour)
		}
		if !tf.Intraday() {
			open, closeAt = day, day.Add(time.Nanosecond)
		}
		for t := open; t.Before(closeAt); t = t.Add(step) {
			if t.Before(start) || !t.Before(end) {
				continue
			}
			ret := rng.NormFloat64() * 0.002
			o := price
			c := price * math.Exp(ret)
			spread := math.Abs(rng.NormFloat64()) * 0.001 * price
			bars = append(bars, model.OHLCV{
				Time:   t,
				Open:   o,
				High:   math.Max(o, c) + spread,
				Low:    math.Min(o, c) - spread,
				Close:  c,
				Volume: math.Round(10000 + rng.Float64()*40000),
			})
			price = c
		}
	}
	return bars
}

// Collector loads bar series through an optional cache in front of a Fetcher.
// Intraday series are cut to the 09:30-16:00 regular session unless
// ExtendedHours is set; the cache always holds the unfiltered bars.
type Collector struct {
	Fetcher       Fetcher
	Cache         Cache
	Workers       int
	ExtendedHours bool
}

// NewCollector creates a new Collector. cache may be nil.
func NewCollector(fetcher Fetcher, cache Cache, workers int) *Collector {
	return &Collector{Fetcher: fetcher, Cache: cache, Workers: workers}
}

// Load returns the cleaned series for symbol, consulting the cache first.
func (c *Collector) Load(ctx context.Context, symbol string, tf model.Timeframe, start, end time.Time) (*model.Series, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if !start.Before(end) {
		return nil, fmt.Errorf("invalid range %s..%s", start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	source := c.Fetcher.Name()

	if c.Cache != nil {
		bars, ok, err := c.Cache.Get(source, symbol, tf, start, end)
		if err != nil {
			zap.S().Warnf("cache read failed for %s: %v, refetching", symbol, err)
		} else if ok && len(bars) > 0 {
			metrics.CacheHits.Inc()
			return c.series(source, symbol, tf, bars)
		}
	}

	raw, err := c.Fetcher.FetchBars(ctx, symbol, tf, start, end)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", symbol, err)
	}
	bars := Clean(raw)
	if len(bars) == 0 {
		return nil, fmt.Errorf("%s %s: %w", source, symbol, ErrEmptySeries)
	}
	metrics.BarsFetched.WithLabelValues(source).Add(float64(len(bars)))

	if c.Cache != nil {
		if err := c.Cache.Put(source, symbol, tf, start, end, bars); err != nil {
			zap.S().Warnf("cache write failed for %s: %v", symbol, err)
		}
	}
	return c.series(source, symbol, tf, bars)
}

func (c *Collector) series(source, symbol string, tf model.Timeframe, bars []model.OHLCV) (*model.Series, error) {
	if tf.Intraday() && !c.ExtendedHours {
		bars = RegularSession(bars, nil)
		if len(bars) == 0 {
			return nil, fmt.Errorf("%s %s: no regular-session bars: %w", source, symbol, ErrEmptySeries)
		}
	}
	return &model.Series{Symbol: symbol, Timeframe: tf, Bars: bars, FetchedAt: time.Now()}, nil
}

// LoadMany loads symbols concurrently. A failing symbol is skipped and its
// error joined into the returned error; the batch itself never aborts.
func (c *Collector) LoadMany(ctx context.Context, symbols []string, tf model.Timeframe, start, end time.Time) (map[string]*model.Series, []string, error) {
	var (
		mu      sync.Mutex
		out     = make(map[string]*model.Series, len(symbols))
		skipped []string
		errs    []error
	)

	g, gctx := errgroup.WithContext(ctx)
	workers := c.Workers
	if workers <= 0 {
		workers = 4
	}
	g.SetLimit(workers)

	for _, sym := range symbols {
		sym := sym
		g.Go(func() error {
			series, err := c.Load(gctx, sym, tf, start, end)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				zap.S().Warnf("skipping %s: %v", sym, err)
				metrics.SymbolsSkipped.WithLabelValues("fetch").Inc()
				skipped = append(skipped, sym)
				errs = append(errs, err)
				return nil
			}
			out[series.Symbol] = series
			return nil
		})
	}
	_ = g.Wait()
	return out, skipped, errors.Join(errs...)
}
