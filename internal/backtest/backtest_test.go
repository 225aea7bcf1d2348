package backtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"QuantBench/internal/model"
)

type barSpec struct{ o, h, l, c float64 }

func makeSeries(tf model.Timeframe, day int, specs []barSpec) *model.Series {
	start := time.Date(2024, 3, day, 9, 30, 0, 0, model.MarketLocation())
	bars := make([]model.OHLCV, len(specs))
	for i, s := range specs {
		bars[i] = model.OHLCV{Time: start.Add(time.Duration(i) * time.Minute), Open: s.o, High: s.h, Low: s.l, Close: s.c, Volume: 100}
	}
	return &model.Series{Symbol: "TEST", Timeframe: tf, Bars: bars}
}

func baseConfig() Config {
	return Config{Strategy: "test", InitialCapital: 10000, RiskPercent: 1, MaxPositionPct: 100}
}

func TestPositionSize(t *testing.T) {
	assert.Equal(t, 50.0, PositionSize(10000, 1, 100, 98, 100))
	// notional cap: 10% of 10000 at 100 = 10 shares
	assert.Equal(t, 10.0, PositionSize(10000, 1, 100, 98, 10))
	assert.Equal(t, 0.0, PositionSize(10000, 1, 100, 100, 100))
	assert.Equal(t, 0.0, PositionSize(10000, 1, 100, 101, 100))
	assert.Equal(t, 0.0, PositionSize(0, 1, 100, 98, 100))
}

func TestRun_TargetHit(t *testing.T) {
	s := makeSeries(model.OneMinute, 4, []barSpec{
		{100, 100, 100, 100},
		{100, 101, 99.5, 100.5},
		{100.5, 104.5, 100, 104},
		{104, 104, 103, 103},
	})
	res, err := Run(s, []model.Entry{{Index: 0, Price: 100, Stop: 98, Target: 104}}, baseConfig())
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	tr := res.Trades[0]
	assert.Equal(t, model.ExitTarget, tr.ExitReason)
	assert.Equal(t, 104.0, tr.ExitPrice)
	assert.Equal(t, 50.0, tr.Shares)
	assert.InDelta(t, 200, tr.NetPnL, 1e-9)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 1, res.Stats.Wins)
}

func TestRun_StopBeforeTargetOnSameBar(t *testing.T) {
	s := makeSeries(model.OneMinute, 4, []barSpec{
		{100, 100, 100, 100},
		{100, 105, 97, 101},
		{101, 101, 101, 101},
	})
	res, err := Run(s, []model.Entry{{Index: 0, Price: 100, Stop: 98, Target: 104}}, baseConfig())
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, model.ExitStop, res.Trades[0].ExitReason)
	assert.Equal(t, 98.0, res.Trades[0].ExitPrice)
}

func TestRun_GapThroughStopFillsAtOpen(t *testing.T) {
	s := makeSeries(model.OneMinute, 4, []barSpec{
		{100, 100, 100, 100},
		{95, 96, 94, 95},
		{95, 95, 95, 95},
	})
	res, err := Run(s, []model.Entry{{Index: 0, Price: 100, Stop: 98}}, baseConfig())
	require.NoError(t, err)
	assert.Equal(t, 95.0, res.Trades[0].ExitPrice)
}

func TestRun_SessionEndAndOverlap(t *testing.T) {
	day1 := makeSeries(model.OneMinute, 4, []barSpec{
		{100, 100, 100, 100},
		{100, 101, 99, 100.5},
		{100.5, 101, 100, 101},
	})
	day2 := makeSeries(model.OneMinute, 5, []barSpec{
		{101, 101, 101, 101},
		{101, 102, 100.5, 102},
	})
	s := &model.Series{Symbol: "TEST", Timeframe: model.OneMinute, Bars: append(day1.Bars, day2.Bars...)}
	cfg := baseConfig()
	cfg.CloseAtSessionEnd = true

	entries := []model.Entry{
		{Index: 0, Price: 100, Stop: 90, Target: 200},
		{Index: 1, Price: 100.5, Stop: 90},  // overlaps the open position
		{Index: 2, Price: 101, Stop: 90},    // last bar of the session
		{Index: 3, Price: 101, Stop: 90},
	}
	res, err := Run(s, entries, cfg)
	require.NoError(t, err)
	require.Len(t, res.Trades, 2)
	assert.Equal(t, model.ExitSessionEnd, res.Trades[0].ExitReason)
	assert.Equal(t, 101.0, res.Trades[0].ExitPrice)
	assert.Equal(t, model.ExitEndOfData, res.Trades[1].ExitReason)
	assert.Equal(t, 2, res.Skipped)
}

func TestRun_FrictionNeverImprovesPnL(t *testing.T) {
	s := makeSeries(model.OneMinute, 4, []barSpec{
		{100, 100, 100, 100},
		{100, 103, 99, 102},
		{102, 102, 101, 101},
	})
	entries := []model.Entry{{Index: 0, Price: 100, Stop: 98, Target: 103}}
	free, err := Run(s, entries, baseConfig())
	require.NoError(t, err)

	cfg := baseConfig()
	cfg.FrictionBps = 10
	cfg.FlatFee = 1
	costly, err := Run(s, entries, cfg)
	require.NoError(t, err)

	assert.Equal(t, free.Stats.GrossPnL, costly.Stats.GrossPnL)
	assert.Less(t, costly.Stats.NetPnL, free.Stats.NetPnL)
	for _, tr := range costly.Trades {
		assert.InDelta(t, tr.GrossPnL-tr.Cost, tr.NetPnL, 1e-9)
	}
	// 50 shares * (100 + 103) * 10bps + 1
	assert.InDelta(t, 11.15, costly.Stats.TotalCost, 1e-9)
}

func TestRunStates(t *testing.T) {
	s := makeSeries(model.OneDay, 4, []barSpec{
		{10, 10, 10, 10},
		{10, 11, 10, 11},
		{11, 12, 11, 12},
		{12, 12, 11, 11.5},
	})
	states := []model.PositionState{model.Flat, model.Long, model.Long, model.Flat}
	cfg := baseConfig()
	cfg.MaxPositionPct = 50
	res, err := RunStates(s, states, cfg)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	tr := res.Trades[0]
	assert.Equal(t, model.ExitSignal, tr.ExitReason)
	assert.Equal(t, 11.0, tr.EntryPrice)
	assert.Equal(t, 11.5, tr.ExitPrice)
	assert.Equal(t, 454.0, tr.Shares)

	_, err = RunStates(s, states[:2], cfg)
	assert.Error(t, err)
}

func TestRun_Errors(t *testing.T) {
	_, err := Run(&model.Series{}, nil, baseConfig())
	assert.ErrorIs(t, err, ErrNoBars)

	s := makeSeries(model.OneMinute, 4, []barSpec{{1, 1, 1, 1}})
	_, err = Run(s, []model.Entry{{Index: 5}}, baseConfig())
	assert.Error(t, err)
}

func TestStatsHelpers(t *testing.T) {
	assert.InDelta(t, 0.2, MaxDrawdown([]float64{100, 120, 96, 130}), 1e-12)
	assert.Equal(t, 0.0, Sharpe([]float64{100, 100, 100, 100}, 252))
	assert.Equal(t, 252.0, BarsPerYear(model.OneDay))
	assert.Equal(t, 252.0*78, BarsPerYear(model.FiveMinutes))

	st := ComputeStats([]model.Trade{{NetPnL: 30, GrossPnL: 31, Cost: 1}, {NetPnL: -10, GrossPnL: -9, Cost: 1}}, nil, 1000, 252)
	assert.Equal(t, 0.5, st.HitRate)
	assert.InDelta(t, 3, st.ProfitFactor, 1e-12)
	assert.InDelta(t, 2, st.ReturnPct, 1e-12)
	assert.InDelta(t, -10, st.AvgLoss, 1e-12)
}
