package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"QuantBench/internal/model"
)

func sessionDay(d int, h, m int) time.Time {
	return time.Date(2024, 3, d, h, m, 0, 0, model.MarketLocation())
}

func TestMockFetcher_Deterministic(t *testing.T) {
	f := &MockFetcher{Price: 50}
	start, end := sessionDay(4, 0, 0), sessionDay(6, 0, 0)

	a, err := f.FetchBars(context.Background(), "SPY", model.FiveMinutes, start, end)
	require.NoError(t, err)
	b, err := f.FetchBars(context.Background(), "SPY", model.FiveMinutes, start, end)
	require.NoError(t, err)

	// two sessions of 78 five-minute bars
	assert.Len(t, a, 156)
	assert.Equal(t, a, b)
	for _, bar := range a {
		assert.True(t, model.InRegularSession(bar.Time))
		assert.GreaterOrEqual(t, bar.High, bar.Close)
		assert.LessOrEqual(t, bar.Low, bar.Close)
	}
}

func TestMockFetcher_SkipsWeekend(t *testing.T) {
	f := &MockFetcher{}
	// 2024-03-09 and 10 are a weekend
	bars, err := f.FetchBars(context.Background(), "QQQ", model.OneDay, sessionDay(8, 0, 0), sessionDay(12, 0, 0))
	require.NoError(t, err)
	assert.Len(t, bars, 2)
}

func TestCollector_LoadUsesCache(t *testing.T) {
	f := &MockFetcher{Price: 10}
	c := NewCollector(f, NewParquetCache(t.TempDir()), 2)
	start, end := sessionDay(4, 0, 0), sessionDay(5, 0, 0)

	first, err := c.Load(context.Background(), "aapl", model.FifteenMinute, start, end)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", first.Symbol)
	assert.Len(t, first.Bars, 26)

	second, err := c.Load(context.Background(), "AAPL", model.FifteenMinute, start, end)
	require.NoError(t, err)
	assert.Equal(t, 1, f.Calls())
	require.Len(t, second.Bars, len(first.Bars))
	for i := range first.Bars {
		assert.True(t, first.Bars[i].Time.Equal(second.Bars[i].Time))
		assert.Equal(t, first.Bars[i].Close, second.Bars[i].Close)
	}
}

func TestCollector_EmptySeries(t *testing.T) {
	f := &MockFetcher{Bars: map[string][]model.OHLCV{"ZZZ": {{Time: sessionDay(4, 10, 0), Close: -1}}}}
	c := NewCollector(f, nil, 1)

	_, err := c.Load(context.Background(), "ZZZ", model.OneMinute, sessionDay(4, 0, 0), sessionDay(5, 0, 0))
	assert.ErrorIs(t, err, ErrEmptySeries)
}

func TestCollector_InvalidRange(t *testing.T) {
	c := NewCollector(&MockFetcher{}, nil, 1)
	_, err := c.Load(context.Background(), "SPY", model.OneMinute, sessionDay(5, 0, 0), sessionDay(4, 0, 0))
	assert.Error(t, err)
}

func TestCollector_LoadManySkipsFailures(t *testing.T) {
	boom := errors.New("boom")
	f := &MockFetcher{Errs: map[string]error{"BAD": boom}}
	c := NewCollector(f, nil, 2)

	out, skipped, err := c.LoadMany(context.Background(), []string{"SPY", "BAD", "QQQ"},
		model.OneHour, sessionDay(4, 0, 0), sessionDay(5, 0, 0))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"BAD"}, skipped)
	assert.Len(t, out, 2)
	assert.Contains(t, out, "SPY")
	assert.Contains(t, out, "QQQ")
}

func TestCollector_DropsExtendedHours(t *testing.T) {
	f := &MockFetcher{Price: 10, ExtendedHours: true}
	start, end := sessionDay(4, 0, 0), sessionDay(5, 0, 0)

	raw, err := f.FetchBars(context.Background(), "SPY", model.FifteenMinute, start, end)
	require.NoError(t, err)
	assert.Len(t, raw, 64)
	assert.True(t, raw[0].Time.Equal(sessionDay(4, 4, 0)))

	cache := NewParquetCache(t.TempDir())
	series, err := NewCollector(f, cache, 1).Load(context.Background(), "SPY", model.FifteenMinute, start, end)
	require.NoError(t, err)
	require.Len(t, series.Bars, 26)
	assert.True(t, series.Bars[0].Time.Equal(sessionDay(4, 9, 30)))
	assert.True(t, series.Bars[25].Time.Equal(sessionDay(4, 15, 45)))

	// the cache keeps the full day; a collector that wants extended hours gets it back
	c := NewCollector(f, cache, 1)
	c.ExtendedHours = true
	full, err := c.Load(context.Background(), "SPY", model.FifteenMinute, start, end)
	require.NoError(t, err)
	assert.Len(t, full.Bars, 64)
	assert.Equal(t, 1, f.Calls())
}

func TestCollector_OnlyExtendedHoursIsEmpty(t *testing.T) {
	f := &MockFetcher{Bars: map[string][]model.OHLCV{"PRE": {{Time: sessionDay(4, 7, 0), Open: 1, High: 1, Low: 1, Close: 1}}}}
	_, err := NewCollector(f, nil, 1).Load(context.Background(), "PRE", model.OneMinute, sessionDay(4, 0, 0), sessionDay(5, 0, 0))
	assert.ErrorIs(t, err, ErrEmptySeries)

	daily := &MockFetcher{Bars: map[string][]model.OHLCV{"PRE": {{Time: sessionDay(4, 0, 0), Open: 1, High: 1, Low: 1, Close: 1}}}}
	s, err := NewCollector(daily, nil, 1).Load(context.Background(), "PRE", model.OneDay, sessionDay(4, 0, 0), sessionDay(5, 0, 0))
	require.NoError(t, err)
	assert.Len(t, s.Bars, 1)
}
