package features

import "math"

// Normalize returns a copy of f whose named columns are z-scored over the
// whole frame. NaN values stay NaN and are excluded from the moments; a
// constant column becomes all zeros.
func Normalize(f *Frame, names []string) (*Frame, error) {
	out := NewFrame(f.Symbol, f.Times, f.Closes)
	for _, name := range f.order {
		if err := out.Set(name, f.columns[name]); err != nil {
			return nil, err
		}
	}
	for _, name := range names {
		col, err := f.Column(name)
		if err != nil {
			return nil, err
		}
		if err := out.Set(name, zscore(col)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func zscore(values []float64) []float64 {
	sum, n := 0.0, 0.0
	for _, v := range values {
		if !math.IsNaN(v) {
			sum += v
			n++
		}
	}
	out := make([]float64, len(values))
	if n == 0 {
		copy(out, values)
		return out
	}
	mean := sum / n
	ss := 0.0
	for _, v := range values {
		if !math.IsNaN(v) {
			ss += (v - mean) * (v - mean)
		}
	}
	std := math.Sqrt(ss / n)
	for i, v := range values {
		switch {
		case math.IsNaN(v):
			out[i] = v
		case std < 1e-12:
			out[i] = 0
		default:
			out[i] = (v - mean) / std
		}
	}
	return out
}
