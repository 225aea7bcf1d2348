package calculator

import (
	"math"

	"QuantBench/internal/model"
)

// TrueRange returns the bar-level true range. The first bar uses high-low.
func TrueRange(bars []model.OHLCV) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		tr := b.High - b.Low
		if i > 0 {
			prev := bars[i-1].Close
			tr = math.Max(tr, math.Max(math.Abs(b.High-prev), math.Abs(b.Low-prev)))
		}
		out[i] = tr
	}
	return out
}

// ATRSeries is the rolling mean of true range over period bars.
func ATRSeries(bars []model.OHLCV, period int) []float64 {
	return SMASeries(TrueRange(bars), period)
}
