package calculator

import (
	"errors"
	"math"

	"QuantBench/internal/model"
)

// CalculateSMA computes the simple moving average of the given prices over the specified period.
func CalculateSMA(prices []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(prices) < period {
		return 0, errors.New("not enough data for SMA calculation")
	}
	sum := 0.0
	for i := len(prices) - period; i < len(prices); i++ {
		sum += prices[i]
	}
	return sum / float64(period), nil
}

// SMASeries returns the rolling simple moving average. A window that holds a
// NaN (or is not yet full) yields NaN; later windows recover once it slides out.
func SMASeries(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 {
		return out
	}
	sum, bad := 0.0, 0
	for i, v := range values {
		if isFinite(v) {
			sum += v
		} else {
			bad++
		}
		if i >= period {
			if old := values[i-period]; isFinite(old) {
				sum -= old
			} else {
				bad--
			}
		}
		if i >= period-1 && bad == 0 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMASeries returns an exponential moving average seeded with the mean of
// the first period finite values. NaN inputs carry the previous average.
func EMASeries(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 {
		return out
	}
	alpha := 2.0 / float64(period+1)
	var (
		prev, seed float64
		n          int
	)
	for i, v := range values {
		finite := isFinite(v)
		switch {
		case n < period && !finite:
			continue
		case n < period:
			seed += v
			n++
			if n == period {
				prev = seed / float64(period)
				out[i] = prev
			}
		case !finite:
			out[i] = prev
		default:
			prev = alpha*v + (1-alpha)*prev
			out[i] = prev
		}
	}
	return out
}

// Closes extracts close prices from bars.
func Closes(bars []model.OHLCV) []float64 {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}

// Volumes extracts volumes from bars.
func Volumes(bars []model.OHLCV) []float64 {
	vols := make([]float64, len(bars))
	for i, b := range bars {
		vols[i] = b.Volume
	}
	return vols
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func forwardFill(values []float64) []float64 {
	out := make([]float64, len(values))
	last := math.NaN()
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			out[i] = last
			continue
		}
		out[i] = v
		last = v
	}
	return out
}
