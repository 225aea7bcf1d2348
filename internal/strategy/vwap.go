package strategy

import (
	"errors"
	"math"

	"QuantBench/internal/features"
	"QuantBench/internal/model"
)

// VWAPScalp buys a close crossing above session VWAP on elevated volume.
type VWAPScalp struct {
	MinVolZ   float64
	TargetPct float64
	StopPct   float64
}

func (v VWAPScalp) Name() string { return "vwap" }

func (v VWAPScalp) Entries(series *model.Series, f *features.Frame) ([]model.Entry, error) {
	if v.TargetPct <= 0 || v.StopPct <= 0 || v.StopPct >= 1 {
		return nil, errors.New("vwap: target and stop percentages must be in (0, 1)")
	}
	vwap, err := f.Column(features.VWAP)
	if err != nil {
		return nil, err
	}
	volZ, err := f.Column(features.VolumeZ)
	if err != nil {
		return nil, err
	}

	bars := series.Bars
	loc := model.MarketLocation()
	var entries []model.Entry
	for i := 1; i < len(bars); i++ {
		if bars[i].Time.In(loc).YearDay() != bars[i-1].Time.In(loc).YearDay() {
			continue
		}
		if math.IsNaN(volZ[i]) || volZ[i] < v.MinVolZ {
			continue
		}
		crossed := bars[i-1].Close <= vwap[i-1] && bars[i].Close > vwap[i]
		if !crossed {
			continue
		}
		c := bars[i].Close
		entries = append(entries, model.Entry{
			Index:  i,
			Price:  c,
			Stop:   c * (1 - v.StopPct),
			Target: c * (1 + v.TargetPct),
			Reason: "vwap reclaim",
		})
	}
	return entries, nil
}
