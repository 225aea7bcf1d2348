package calculator

import (
	"math"

	"QuantBench/internal/model"
)

var parkinsonScale = 1.0 / (4.0 * math.Ln2)

// ParkinsonSeries estimates per-bar volatility from the high/low range over a rolling window:
// sqrt(mean(ln(H/L)^2) / (4 ln 2)). Windows containing an invalid bar are NaN.
func ParkinsonSeries(bars []model.OHLCV, window int) []float64 {
	out := nanSlice(len(bars))
	if window <= 0 {
		return out
	}
	sq := make([]float64, len(bars))
	for i, b := range bars {
		if b.High <= 0 || b.Low <= 0 || b.High < b.Low {
			sq[i] = math.NaN()
			continue
		}
		lr := math.Log(b.High / b.Low)
		sq[i] = lr * lr
	}
	for i := window - 1; i < len(bars); i++ {
		sum := 0.0
		for j := i - window + 1; j <= i; j++ {
			sum += sq[j]
		}
		if math.IsNaN(sum) {
			continue
		}
		out[i] = math.Sqrt(sum / float64(window) * parkinsonScale)
	}
	return out
}

// LogReturns computes r_t = ln(C_t / C_{t-1}); the first element is NaN.
func LogReturns(closes []float64) []float64 {
	out := nanSlice(len(closes))
	for i := 1; i < len(closes); i++ {
		prev, cur := closes[i-1], closes[i]
		if prev <= 0 || cur <= 0 {
			continue
		}
		out[i] = math.Log(cur / prev)
	}
	return out
}

// RealizedVolatility computes annualized volatility of the latest window of returns.
func RealizedVolatility(returns []float64, window int, barsPerYear float64) float64 {
	if window <= 1 || len(returns) < window {
		return 0
	}
	sum, sum2 := 0.0, 0.0
	n := 0.0
	for _, r := range returns[len(returns)-window:] {
		if math.IsNaN(r) {
			continue
		}
		sum += r
		sum2 += r * r
		n++
	}
	if n < 2 {
		return 0
	}
	mean := sum / n
	variance := (sum2 - n*mean*mean) / (n - 1)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance * barsPerYear)
}
