package walkforward

import (
	"math"

	"QuantBench/internal/features"
	"QuantBench/internal/strategy"
)

type evaluator struct {
	frame *features.Frame
	cols  [][]float64
	cfg   Config
}

type moment struct{ mean, std float64 }

// moments z-scores factors with in-sample statistics only, so out-of-sample
// rows never inform their own scaling.
func (e *evaluator) moments(r span) []moment {
	out := make([]moment, len(e.cols))
	for c, col := range e.cols {
		var sum, n float64
		for i := r.start; i < r.end; i++ {
			if !math.IsNaN(col[i]) {
				sum += col[i]
				n++
			}
		}
		if n == 0 {
			out[c] = moment{}
			continue
		}
		mean := sum / n
		var ss float64
		for i := r.start; i < r.end; i++ {
			if !math.IsNaN(col[i]) {
				ss += (col[i] - mean) * (col[i] - mean)
			}
		}
		out[c] = moment{mean: mean, std: math.Sqrt(ss / n)}
	}
	return out
}

func (e *evaluator) alpha(w []float64, i int, norm []moment) float64 {
	score := 0.0
	for c, col := range e.cols {
		v := col[i]
		if math.IsNaN(v) {
			return math.NaN()
		}
		if w[c] == 0 {
			continue
		}
		z := 0.0
		if norm[c].std > 1e-12 {
			z = (v - norm[c].mean) / norm[c].std
		}
		score += w[c] * z
	}
	return score
}

// score trades the rule inside r: when alpha exceeds the threshold, hold for
// Horizon bars, one position at a time, never past the end of r.
func (e *evaluator) score(w []float64, r span, norm []moment) Score {
	s := Score{Bars: r.end - r.start}
	friction := 2 * e.cfg.FrictionBps / 10000
	for i := r.start; i+e.cfg.Horizon < r.end; i++ {
		a := e.alpha(w, i, norm)
		if math.IsNaN(a) || a <= e.cfg.Threshold {
			continue
		}
		ret, ok := e.frame.ForwardReturn(i, e.cfg.Horizon)
		if !ok {
			continue
		}
		s.Trades++
		if ret > 0 {
			s.Hits++
		}
		s.NetReturn += ret - friction
		i += e.cfg.Horizon - 1
	}
	if s.Trades > 0 {
		s.HitRate = float64(s.Hits) / float64(s.Trades)
	}
	return s
}

// optimise picks the grid point with the best in-sample hit rate, then the
// best in-sample net return, then the earliest in grid order.
func (e *evaluator) optimise(grid [][]float64, r span, norm []moment) []float64 {
	best := grid[0]
	bestScore := e.score(best, r, norm)
	for _, w := range grid[1:] {
		s := e.score(w, r, norm)
		switch {
		case s.HitRate > bestScore.HitRate+1e-12:
		case math.Abs(s.HitRate-bestScore.HitRate) <= 1e-12 && s.NetReturn > bestScore.NetReturn+1e-12:
		default:
			continue
		}
		best, bestScore = w, s
	}
	return best
}

func (e *evaluator) weights(w []float64) strategy.Weights {
	out := make(strategy.Weights, len(w))
	for i, name := range e.cfg.Factors {
		out[name] = w[i]
	}
	return out
}
