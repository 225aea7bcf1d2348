package walkforward

import (
	"context"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"QuantBench/internal/collector"
	"QuantBench/internal/features"
	"QuantBench/internal/model"
)

func mockSeries(t *testing.T, days int) *model.Series {
	t.Helper()
	start := time.Date(2024, 3, 4, 0, 0, 0, 0, model.MarketLocation())
	end := start.AddDate(0, 0, days)
	bars, err := (&collector.MockFetcher{Price: 100}).FetchBars(context.Background(), "SPY", model.FifteenMinute, start, end)
	require.NoError(t, err)
	return &model.Series{Symbol: "SPY", Timeframe: model.FifteenMinute, Bars: bars}
}

func testConfig() Config {
	return Config{
		InSampleDays:    10,
		OutOfSampleDays: 5,
		RetrainEvery:    1,
		WeightStep:      0.5,
		MinBars:         20,
		Horizon:         2,
		Threshold:       0.25,
		FrictionBps:     2,
		Factors:         []string{features.RSI, features.VolumeZ},
	}
}

func TestSimplex(t *testing.T) {
	grid, err := Simplex(3, 0.5)
	require.NoError(t, err)
	require.Len(t, grid, 6)
	assert.Equal(t, []float64{0, 0, 1}, grid[0])
	assert.Equal(t, []float64{1, 0, 0}, grid[5])
	for _, w := range grid {
		sum := 0.0
		for _, v := range w {
			assert.GreaterOrEqual(t, v, 0.0)
			sum += v
		}
		assert.InDelta(t, 1, sum, 1e-12)
	}

	grid, err = Simplex(4, 0.25)
	require.NoError(t, err)
	assert.Len(t, grid, 35)

	_, err = Simplex(0, 0.5)
	assert.Error(t, err)
	_, err = Simplex(2, 0)
	assert.Error(t, err)
}

func TestRun_Windows(t *testing.T) {
	series := mockSeries(t, 56)
	days := len(model.Sessions(series.Bars, nil))
	cfg := testConfig()

	rep, err := Run(series, features.DefaultParams(), cfg)
	require.NoError(t, err)
	assert.NotEmpty(t, rep.RunID)
	assert.Len(t, rep.Windows, (days-cfg.InSampleDays)/cfg.OutOfSampleDays)
	assert.Equal(t, 0, rep.Skipped)

	for i, w := range rep.Windows {
		assert.True(t, w.Retrained)
		assert.Less(t, w.ISEnd, w.OOSStart)
		assert.InDelta(t, 1, w.Weights[features.RSI]+w.Weights[features.VolumeZ], 1e-12)
		if i > 0 {
			assert.Greater(t, w.ISStart, rep.Windows[i-1].ISStart)
		}
		assert.GreaterOrEqual(t, w.OOS.HitRate, 0.0)
		assert.LessOrEqual(t, w.OOS.HitRate, 1.0)
	}
	assert.False(t, math.IsNaN(rep.WFE))
}

func TestRun_OrderInvariant(t *testing.T) {
	series := mockSeries(t, 35)
	cfg := testConfig()

	a, err := Run(series, features.DefaultParams(), cfg)
	require.NoError(t, err)

	shuffled := *series
	shuffled.Bars = append([]model.OHLCV(nil), series.Bars...)
	rand.New(rand.NewSource(3)).Shuffle(len(shuffled.Bars), func(i, j int) {
		shuffled.Bars[i], shuffled.Bars[j] = shuffled.Bars[j], shuffled.Bars[i]
	})
	b, err := Run(&shuffled, features.DefaultParams(), cfg)
	require.NoError(t, err)

	b.RunID = a.RunID
	assert.Equal(t, a, b)
}

func TestRun_RetrainInterval(t *testing.T) {
	series := mockSeries(t, 42)
	cfg := testConfig()
	cfg.RetrainEvery = 2

	rep, err := Run(series, features.DefaultParams(), cfg)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(rep.Windows), 3)
	assert.True(t, rep.Windows[0].Retrained)
	assert.False(t, rep.Windows[1].Retrained)
	assert.Equal(t, rep.Windows[0].Weights, rep.Windows[1].Weights)
	assert.True(t, rep.Windows[2].Retrained)
}

func TestRun_SkipsThinWindows(t *testing.T) {
	cfg := testConfig()
	cfg.MinBars = 10000
	rep, err := Run(mockSeries(t, 28), features.DefaultParams(), cfg)
	require.NoError(t, err)
	assert.Equal(t, len(rep.Windows), rep.Skipped)
	assert.Equal(t, 0, rep.OOSTrades)
	assert.Equal(t, 0.0, rep.WFE)
}

func TestRun_Errors(t *testing.T) {
	_, err := Run(mockSeries(t, 7), features.DefaultParams(), testConfig())
	assert.ErrorIs(t, err, ErrNotEnoughDays)

	cfg := testConfig()
	cfg.Factors = []string{"unknown"}
	_, err = Run(mockSeries(t, 28), features.DefaultParams(), cfg)
	assert.ErrorIs(t, err, features.ErrUnknownColumn)

	cfg = testConfig()
	cfg.Horizon = 0
	_, err = Run(mockSeries(t, 28), features.DefaultParams(), cfg)
	assert.Error(t, err)
}

func TestEfficiency(t *testing.T) {
	assert.InDelta(t, 1, Efficiency(0.1, 100, 0.05, 50), 1e-12)
	assert.InDelta(t, -0.5, Efficiency(0.1, 100, -0.025, 50), 1e-12)
	assert.Equal(t, 0.0, Efficiency(0, 100, 0.05, 50))
	assert.Equal(t, 0.0, Efficiency(-0.1, 100, 0.05, 50))
}
