package calculator

import (
	"math"

	"github.com/thrasher-corp/gct-ta/indicators"
)

// MACDHistogram returns the MACD histogram aligned to closes.
// Too-short inputs yield an all-NaN slice.
func MACDHistogram(closes []float64, fast, slow, signal int) []float64 {
	if fast <= 0 || slow <= fast || signal <= 0 || len(closes) <= slow+signal {
		return nanSlice(len(closes))
	}
	_, _, hist := indicators.MACD(forwardFill(closes), fast, slow, signal)
	out := alignTail(hist, len(closes))
	for i := 0; i < slow+signal-2 && i < len(out); i++ {
		out[i] = math.NaN()
	}
	return out
}

// ReferenceRSI computes RSI with the gct-ta implementation. It is used as an
// independent pipeline when checking feature parity; warm-up values are NaN.
func ReferenceRSI(closes []float64, period int) []float64 {
	if period <= 0 || len(closes) <= period {
		return nanSlice(len(closes))
	}
	out := alignTail(indicators.RSI(forwardFill(closes), period), len(closes))
	for i := 0; i < period && i < len(out); i++ {
		out[i] = math.NaN()
	}
	return out
}

// alignTail right-aligns v into a slice of length n, padding the front with NaN.
func alignTail(v []float64, n int) []float64 {
	out := nanSlice(n)
	if len(v) > n {
		v = v[len(v)-n:]
	}
	copy(out[n-len(v):], v)
	return out
}
