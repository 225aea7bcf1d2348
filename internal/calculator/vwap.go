package calculator

import (
	"time"

	"QuantBench/internal/model"
)

// VWAPSeries returns the cumulative typical-price VWAP, reset at each calendar day in loc.
func VWAPSeries(bars []model.OHLCV, loc *time.Location) []float64 {
	if loc == nil {
		loc = time.UTC
	}
	out := make([]float64, len(bars))
	var pv, vol float64
	var day string
	for i, b := range bars {
		d := b.Time.In(loc).Format("2006-01-02")
		if d != day {
			day = d
			pv, vol = 0, 0
		}
		tp := (b.High + b.Low + b.Close) / 3
		pv += tp * b.Volume
		vol += b.Volume
		if vol == 0 {
			out[i] = tp
			continue
		}
		out[i] = pv / vol
	}
	return out
}
