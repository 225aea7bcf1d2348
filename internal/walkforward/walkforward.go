// Package walkforward runs rolling in-sample optimisation with out-of-sample evaluation.
package walkforward

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"QuantBench/internal/features"
	"QuantBench/internal/model"
	"QuantBench/internal/strategy"
)

// ErrNotEnoughDays is returned when the series cannot fill a single window.
var ErrNotEnoughDays = errors.New("not enough trading days for one window")

// Config controls window sizes, the weight grid and the trade rule.
type Config struct {
	InSampleDays    int
	OutOfSampleDays int
	RetrainEvery    int
	WeightStep      float64
	MinBars         int
	Horizon         int
	Threshold       float64
	FrictionBps     float64
	Factors         []string
}

func (c Config) validate() error {
	switch {
	case c.InSampleDays <= 0 || c.OutOfSampleDays <= 0:
		return errors.New("window sizes must be positive")
	case c.RetrainEvery <= 0:
		return errors.New("retrain interval must be positive")
	case c.WeightStep <= 0 || c.WeightStep > 1:
		return errors.New("weight step must be in (0, 1]")
	case c.Horizon <= 0:
		return errors.New("horizon must be positive")
	case len(c.Factors) == 0:
		return errors.New("no factors configured")
	}
	return nil
}

// Window is the outcome of one in-sample/out-of-sample pair.
type Window struct {
	Index      int              `json:"index"`
	ISStart    string           `json:"is_start"`
	ISEnd      string           `json:"is_end"`
	OOSStart   string           `json:"oos_start"`
	OOSEnd     string           `json:"oos_end"`
	Weights    strategy.Weights `json:"weights,omitempty"`
	Retrained  bool             `json:"retrained"`
	IS         Score            `json:"in_sample"`
	OOS        Score            `json:"out_of_sample"`
	Skipped    bool             `json:"skipped"`
	SkipReason string           `json:"skip_reason,omitempty"`
}

// Score is the trade tally of one window half.
type Score struct {
	Bars      int     `json:"bars"`
	Trades    int     `json:"trades"`
	Hits      int     `json:"hits"`
	HitRate   float64 `json:"hit_rate"`
	NetReturn float64 `json:"net_return"`
}

// Report aggregates all windows of a run.
type Report struct {
	RunID        string   `json:"run_id"`
	Symbol       string   `json:"symbol"`
	Windows      []Window `json:"windows"`
	OOSTrades    int      `json:"oos_trades"`
	OOSHitRate   float64  `json:"oos_hit_rate"`
	OOSNetReturn float64  `json:"oos_net_return"`
	ISNetReturn  float64  `json:"is_net_return"`
	WFE          float64  `json:"wfe"`
	Skipped      int      `json:"skipped"`
}

// Simplex enumerates every k-vector of non-negative multiples of step that
// sums to 1. The first component varies slowest, ascending.
func Simplex(k int, step float64) ([][]float64, error) {
	if k <= 0 {
		return nil, errors.New("simplex needs at least one dimension")
	}
	if step <= 0 || step > 1 {
		return nil, fmt.Errorf("invalid simplex step %.4f", step)
	}
	n := int(math.Round(1 / step))
	var out [][]float64
	parts := make([]int, k)
	var rec func(pos, left int)
	rec = func(pos, left int) {
		if pos == k-1 {
			parts[pos] = left
			v := make([]float64, k)
			for i, p := range parts {
				v[i] = float64(p) / float64(n)
			}
			out = append(out, v)
			return
		}
		for p := 0; p <= left; p++ {
			parts[pos] = p
			rec(pos+1, left-p)
		}
	}
	rec(0, n)
	return out, nil
}

type span struct{ start, end int }

// Run executes the rolling walk-forward over series. Bars are sorted by time
// first, so the result does not depend on input order.
func Run(series *model.Series, params features.Params, cfg Config) (*Report, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if series == nil || len(series.Bars) == 0 {
		return nil, errors.New("walkforward: empty series")
	}
	sorted := *series
	sorted.Bars = append([]model.OHLCV(nil), series.Bars...)
	sort.SliceStable(sorted.Bars, func(i, j int) bool { return sorted.Bars[i].Time.Before(sorted.Bars[j].Time) })

	frame, err := features.Compute(&sorted, params)
	if err != nil {
		return nil, err
	}
	cols := make([][]float64, len(cfg.Factors))
	for i, name := range cfg.Factors {
		if cols[i], err = frame.Column(name); err != nil {
			return nil, err
		}
	}
	grid, err := Simplex(len(cfg.Factors), cfg.WeightStep)
	if err != nil {
		return nil, err
	}

	days := model.Sessions(sorted.Bars, nil)
	if len(days) < cfg.InSampleDays+cfg.OutOfSampleDays {
		return nil, fmt.Errorf("%d days, need %d: %w", len(days), cfg.InSampleDays+cfg.OutOfSampleDays, ErrNotEnoughDays)
	}

	ev := &evaluator{frame: frame, cols: cols, cfg: cfg}
	rep := &Report{RunID: uuid.NewString(), Symbol: series.Symbol}
	var locked []float64
	var isDays, oosDays int

	for k, s := 0, 0; s+cfg.InSampleDays+cfg.OutOfSampleDays <= len(days); k, s = k+1, s+cfg.OutOfSampleDays {
		isDaysSpan := days[s : s+cfg.InSampleDays]
		oosDaysSpan := days[s+cfg.InSampleDays : s+cfg.InSampleDays+cfg.OutOfSampleDays]
		is := span{isDaysSpan[0].Start, isDaysSpan[len(isDaysSpan)-1].End}
		oos := span{oosDaysSpan[0].Start, oosDaysSpan[len(oosDaysSpan)-1].End}

		w := Window{
			Index:    k,
			ISStart:  isDaysSpan[0].Date,
			ISEnd:    isDaysSpan[len(isDaysSpan)-1].Date,
			OOSStart: oosDaysSpan[0].Date,
			OOSEnd:   oosDaysSpan[len(oosDaysSpan)-1].Date,
		}
		if n := is.end - is.start; n < cfg.MinBars {
			w.Skipped, w.SkipReason = true, fmt.Sprintf("in-sample has %d bars", n)
		} else if n := oos.end - oos.start; n < cfg.MinBars {
			w.Skipped, w.SkipReason = true, fmt.Sprintf("out-of-sample has %d bars", n)
		}
		if w.Skipped {
			zap.S().Warnf("walkforward window %d skipped: %s", k, w.SkipReason)
			rep.Skipped++
			rep.Windows = append(rep.Windows, w)
			continue
		}

		norm := ev.moments(is)
		if locked == nil || k%cfg.RetrainEvery == 0 {
			locked = ev.optimise(grid, is, norm)
			w.Retrained = true
		}
		w.Weights = ev.weights(locked)
		w.IS = ev.score(locked, is, norm)
		w.OOS = ev.score(locked, oos, norm)

		rep.Windows = append(rep.Windows, w)
		rep.OOSTrades += w.OOS.Trades
		rep.OOSNetReturn += w.OOS.NetReturn
		rep.ISNetReturn += w.IS.NetReturn
		isDays += cfg.InSampleDays
		oosDays += cfg.OutOfSampleDays
	}

	hits := 0
	for _, w := range rep.Windows {
		hits += w.OOS.Hits
	}
	if rep.OOSTrades > 0 {
		rep.OOSHitRate = float64(hits) / float64(rep.OOSTrades)
	}
	rep.WFE = Efficiency(rep.ISNetReturn, isDays, rep.OOSNetReturn, oosDays)
	return rep, nil
}

// Efficiency is annualised out-of-sample return over annualised in-sample
// return, or 0 when the in-sample return is not positive.
func Efficiency(isReturn float64, isDays int, oosReturn float64, oosDays int) float64 {
	if isDays <= 0 || oosDays <= 0 || isReturn <= 0 {
		return 0
	}
	isAnnual := isReturn / float64(isDays) * 252
	oosAnnual := oosReturn / float64(oosDays) * 252
	return oosAnnual / isAnnual
}
