package calculator

import "math"

// ZScoreSeries returns the rolling z-score of each value against the trailing window
// (inclusive) using the sample standard deviation. A zero-variance window scores 0.
func ZScoreSeries(values []float64, window int) []float64 {
	out := nanSlice(len(values))
	if window < 2 {
		return out
	}
	for i := window - 1; i < len(values); i++ {
		sum, sum2 := 0.0, 0.0
		valid := true
		for _, v := range values[i-window+1 : i+1] {
			if math.IsNaN(v) {
				valid = false
				break
			}
			sum += v
			sum2 += v * v
		}
		if !valid {
			continue
		}
		n := float64(window)
		mean := sum / n
		variance := (sum2 - n*mean*mean) / (n - 1)
		if variance <= 1e-18 {
			out[i] = 0
			continue
		}
		out[i] = (values[i] - mean) / math.Sqrt(variance)
	}
	return out
}
