package calculator

import (
	"errors"
	"math"

	"QuantBench/internal/model"
)

// CalculateRSI computes the Wilder-smoothed RSI of the latest bar.
// Requires at least period+1 bars. Returns 50.0 if data is insufficient.
func CalculateRSI(bars []model.OHLCV, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(bars) < period+1 {
		return 50.0, nil // default when data insufficient
	}
	series := RSISeries(Closes(bars), period)
	last := series[len(series)-1]
	if math.IsNaN(last) {
		return 50.0, nil
	}
	return last, nil
}

// RSISeries computes Wilder's RSI for every element of closes.
// Values before the first full window are NaN. NaN closes are forward-filled
// from the last valid close; leading NaNs are skipped.
func RSISeries(closes []float64, period int) []float64 {
	out := nanSlice(len(closes))
	if period <= 0 {
		return out
	}
	filled := forwardFill(closes)

	start := 0
	for start < len(filled) && math.IsNaN(filled[start]) {
		start++
	}
	if len(filled)-start < period+1 {
		return out
	}

	// Initial average gain/loss over the first `period` changes
	var avgGain, avgLoss float64
	for i := start + 1; i <= start+period; i++ {
		change := filled[i] - filled[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[start+period] = rsiValue(avgGain, avgLoss)

	// Wilder smoothing for remaining bars
	for i := start + period + 1; i < len(filled); i++ {
		change := filled[i] - filled[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	switch {
	case avgLoss == 0 && avgGain == 0:
		return 50.0
	case avgLoss == 0:
		return 100.0
	}
	rs := avgGain / avgLoss
	rsi := 100.0 - 100.0/(1.0+rs)
	return math.Max(0, math.Min(100, rsi))
}
