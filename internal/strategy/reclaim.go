package strategy

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"QuantBench/internal/features"
	"QuantBench/internal/model"
)

// Gate vetoes candidate entries from their feature row.
type Gate interface {
	Allow(row map[string]float64) (bool, float64)
}

// Reclaim trades the bear trap: a bar undercuts the prior Lookback-bar low,
// then a close within ReclaimBars gets back above it.
type Reclaim struct {
	Lookback    int
	ReclaimBars int
	TargetR     float64
	Gate        Gate

	// Vetoed is the number of candidates rejected by Gate on the last call.
	Vetoed int
}

func (r *Reclaim) Name() string { return "reclaim" }

func (r *Reclaim) Entries(series *model.Series, f *features.Frame) ([]model.Entry, error) {
	if r.Lookback <= 0 || r.ReclaimBars <= 0 || r.TargetR <= 0 {
		return nil, errors.New("reclaim: lookback, reclaim bars and target R must be positive")
	}
	if r.Gate != nil && f == nil {
		return nil, errors.New("reclaim: gate needs a feature frame")
	}
	r.Vetoed = 0

	bars := series.Bars
	var entries []model.Entry
	for i := r.Lookback; i < len(bars); i++ {
		level := math.Inf(1)
		for _, b := range bars[i-r.Lookback : i] {
			level = math.Min(level, b.Low)
		}
		if bars[i].Low >= level {
			continue
		}

		trapLow := bars[i].Low
		for j := i; j < len(bars) && j <= i+r.ReclaimBars; j++ {
			trapLow = math.Min(trapLow, bars[j].Low)
			if bars[j].Close <= level {
				continue
			}
			c := bars[j].Close
			if r.Gate != nil {
				ok, p := r.Gate.Allow(f.Row(j))
				if !ok {
					zap.S().Debugf("reclaim at %s vetoed, p=%.3f", bars[j].Time.Format("2006-01-02 15:04"), p)
					r.Vetoed++
					break
				}
			}
			entries = append(entries, model.Entry{
				Index:  j,
				Price:  c,
				Stop:   trapLow,
				Target: c + r.TargetR*(c-trapLow),
				Reason: fmt.Sprintf("reclaim of %.2f", level),
			})
			i = j
			break
		}
	}
	return entries, nil
}
