package features

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"QuantBench/internal/model"
)

func testSeries(n int) *model.Series {
	start := time.Date(2024, 3, 4, 9, 30, 0, 0, model.MarketLocation())
	bars := make([]model.OHLCV, n)
	for i := range bars {
		p := 100 + 5*math.Sin(float64(i)/4)
		bars[i] = model.OHLCV{
			Time:   start.Add(time.Duration(i) * time.Minute),
			Open:   p,
			High:   p + 0.5,
			Low:    p - 0.5,
			Close:  p + 0.1,
			Volume: float64(1000 + (i%7)*100),
		}
	}
	return &model.Series{Symbol: "SPY", Timeframe: model.OneMinute, Bars: bars}
}

func TestCompute_Columns(t *testing.T) {
	f, err := Compute(testSeries(120), DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, 120, f.Len())
	assert.Equal(t, []string{RSI, VolumeZ, ATR, Parkinson, VWAP, EMA, Return1, MACDHist}, f.Names())

	rsi, err := f.Column(RSI)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(rsi[0]))
	for _, v := range rsi[14:] {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 100.0)
	}

	row := f.Row(50)
	assert.Contains(t, row, Parkinson)
	assert.InDelta(t, f.Closes[50]/f.Closes[49]-1, row[Return1], 1e-12)

	_, err = f.Column("nope")
	assert.ErrorIs(t, err, ErrUnknownColumn)
}

func TestCompute_InvalidInput(t *testing.T) {
	_, err := Compute(&model.Series{}, DefaultParams())
	assert.Error(t, err)

	p := DefaultParams()
	p.RSIPeriod = 0
	_, err = Compute(testSeries(10), p)
	assert.Error(t, err)
}

func TestForwardReturn(t *testing.T) {
	f := NewFrame("X", make([]time.Time, 3), []float64{10, 11, 12.1})
	r, ok := f.ForwardReturn(0, 2)
	assert.True(t, ok)
	assert.InDelta(t, 0.21, r, 1e-12)

	_, ok = f.ForwardReturn(2, 1)
	assert.False(t, ok)
	_, ok = f.ForwardReturn(0, 0)
	assert.False(t, ok)
}

func TestNormalize(t *testing.T) {
	f := NewFrame("X", make([]time.Time, 4), []float64{1, 1, 1, 1})
	require.NoError(t, f.Set("a", []float64{1, 2, 3, math.NaN()}))
	require.NoError(t, f.Set("flat", []float64{5, 5, 5, 5}))

	n, err := Normalize(f, []string{"a", "flat"})
	require.NoError(t, err)
	a, _ := n.Column("a")
	assert.InDelta(t, -1.2247, a[0], 1e-4)
	assert.InDelta(t, 0, a[1], 1e-12)
	assert.True(t, math.IsNaN(a[3]))
	flat, _ := n.Column("flat")
	assert.Equal(t, []float64{0, 0, 0, 0}, flat)

	orig, _ := f.Column("a")
	assert.Equal(t, 1.0, orig[0])

	_, err = Normalize(f, []string{"missing"})
	assert.Error(t, err)
}

func TestCompare(t *testing.T) {
	a := NewFrame("X", make([]time.Time, 3), nil)
	b := NewFrame("X", make([]time.Time, 3), nil)
	require.NoError(t, a.Set(RSI, []float64{math.NaN(), 50, 60}))
	require.NoError(t, b.Set(RSI, []float64{math.NaN(), 50.0000001, 61}))
	require.NoError(t, a.Set("only_a", []float64{1, 2, 3}))

	mm, err := Compare(a, b, 1e-6)
	require.NoError(t, err)
	require.Len(t, mm, 1)
	assert.Equal(t, Mismatch{Column: RSI, Index: 2, A: 60, B: 61}, mm[0])

	short := NewFrame("X", make([]time.Time, 2), nil)
	_, err = Compare(a, short, 0)
	assert.Error(t, err)
}

func TestFrameSetLengthMismatch(t *testing.T) {
	f := NewFrame("X", make([]time.Time, 2), nil)
	assert.Error(t, f.Set("a", []float64{1}))
}
