package strategy

import (
	"errors"

	"QuantBench/internal/calculator"
	"QuantBench/internal/features"
	"QuantBench/internal/model"
)

// ORB enters long when a close breaks above the opening range high.
// The range starts at the 09:30 open; extended-hours bars never form the
// range or trigger an entry. At most one entry per session.
type ORB struct {
	RangeMinutes    int
	TargetR         float64
	MaxEntryMinutes int
}

func (o ORB) Name() string { return "orb" }

func (o ORB) Entries(series *model.Series, _ *features.Frame) ([]model.Entry, error) {
	if o.RangeMinutes <= 0 || o.TargetR <= 0 {
		return nil, errors.New("orb: range minutes and target R must be positive")
	}
	if !series.Timeframe.Intraday() {
		return nil, errors.New("orb: needs intraday bars")
	}
	var entries []model.Entry
	for _, span := range model.Sessions(series.Bars, nil) {
		bars := series.Bars[span.Start:span.End]
		open := model.SessionOpen(bars[0].Time)
		high, low, next, err := calculator.OpeningRange(bars, open, o.RangeMinutes)
		if err != nil || next >= len(bars) || high <= low {
			continue
		}
		for j := next; j < len(bars); j++ {
			if !model.InRegularSession(bars[j].Time) {
				break
			}
			if o.MaxEntryMinutes > 0 && bars[j].Time.Sub(open).Minutes() > float64(o.MaxEntryMinutes) {
				break
			}
			c := bars[j].Close
			if c <= high {
				continue
			}
			entries = append(entries, model.Entry{
				Index:  span.Start + j,
				Price:  c,
				Stop:   low,
				Target: c + o.TargetR*(c-low),
				Reason: "orb breakout",
			})
			break
		}
	}
	return entries, nil
}
