package strategy

import (
	"testing"
	"time"

	"QuantBench/internal/features"
	"QuantBench/internal/model"
)

func minuteBars(day int, closes []float64) []model.OHLCV {
	start := time.Date(2024, 3, day, 9, 30, 0, 0, model.MarketLocation())
	bars := make([]model.OHLCV, len(closes))
	for i, c := range closes {
		bars[i] = model.OHLCV{
			Time: start.Add(time.Duration(i) * time.Minute),
			Open: c, High: c + 0.1, Low: c - 0.1, Close: c, Volume: 1000,
		}
	}
	return bars
}

func TestORB_OneEntryPerSession(t *testing.T) {
	day1 := minuteBars(4, []float64{10, 10.5, 9.8, 10.2, 10.9, 11.2, 11.5})
	day2 := minuteBars(5, []float64{20, 20.2, 20.1, 20.0, 19.9})
	series := &model.Series{Timeframe: model.OneMinute, Bars: append(day1, day2...)}

	entries, err := ORB{RangeMinutes: 3, TargetR: 2}.Entries(series, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	// range high is 10.6 from bar 1; bar 4 closes at 10.9
	if e.Index != 4 || e.Price != 10.9 {
		t.Errorf("unexpected entry %+v", e)
	}
	if want := 9.7; abs(e.Stop-want) > 1e-9 {
		t.Errorf("stop = %.2f, want %.2f", e.Stop, want)
	}
	if want := 10.9 + 2*(10.9-9.7); abs(e.Target-want) > 1e-9 {
		t.Errorf("target = %.2f, want %.2f", e.Target, want)
	}
}

func TestORB_MaxEntryWindow(t *testing.T) {
	series := &model.Series{Timeframe: model.OneMinute, Bars: minuteBars(4, []float64{10, 10, 10, 10, 10, 12})}
	entries, err := ORB{RangeMinutes: 2, TargetR: 1, MaxEntryMinutes: 3}.Entries(series, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no entries past the entry window, got %v", entries)
	}
}

func TestORB_IgnoresExtendedHours(t *testing.T) {
	loc := model.MarketLocation()
	var bars []model.OHLCV
	pre := time.Date(2024, 3, 4, 4, 0, 0, 0, loc)
	for i := 0; i < 15; i++ {
		bars = append(bars, model.OHLCV{Time: pre.Add(time.Duration(i) * time.Minute), Open: 50, High: 50.1, Low: 49.9, Close: 50, Volume: 100})
	}
	closes := make([]float64, 15)
	for i := range closes {
		closes[i] = 100
	}
	bars = append(bars, minuteBars(4, append(closes, 101))...)
	post := time.Date(2024, 3, 4, 16, 0, 0, 0, loc)
	bars = append(bars, model.OHLCV{Time: post, Open: 120, High: 120.1, Low: 119.9, Close: 120, Volume: 100})
	series := &model.Series{Timeframe: model.OneMinute, Bars: bars}

	entries, err := ORB{RangeMinutes: 15, TargetR: 2}.Entries(series, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %+v", entries)
	}
	e := entries[0]
	if e.Index != 30 || e.Price != 101 {
		t.Errorf("unexpected entry %+v", e)
	}
	if abs(e.Stop-99.9) > 1e-9 {
		t.Errorf("stop = %.2f, want 99.90 from the regular-session range", e.Stop)
	}

	// a breakout that only happens after the close is not taken
	late := &model.Series{Timeframe: model.OneMinute, Bars: append(minuteBars(5, closes), model.OHLCV{
		Time: time.Date(2024, 3, 5, 16, 30, 0, 0, loc), Open: 120, High: 120.1, Low: 119.9, Close: 120,
	})}
	entries, err = ORB{RangeMinutes: 15, TargetR: 2}.Entries(late, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no after-hours entry, got %+v", entries)
	}
}

func TestVWAPScalp_CrossWithVolume(t *testing.T) {
	bars := minuteBars(4, []float64{10, 9.9, 10.3})
	series := &model.Series{Timeframe: model.OneMinute, Bars: bars}
	f := features.NewFrame("X", make([]time.Time, 3), nil)
	_ = f.Set(features.VWAP, []float64{10, 10, 10})
	_ = f.Set(features.VolumeZ, []float64{0, 0, 2})

	entries, err := VWAPScalp{MinVolZ: 1.5, TargetPct: 0.01, StopPct: 0.005}.Entries(series, f)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Index != 2 {
		t.Fatalf("unexpected entries %+v", entries)
	}
	if abs(entries[0].Stop-10.3*0.995) > 1e-9 {
		t.Errorf("unexpected stop %.4f", entries[0].Stop)
	}

	_ = f.Set(features.VolumeZ, []float64{0, 0, 1})
	entries, _ = VWAPScalp{MinVolZ: 1.5, TargetPct: 0.01, StopPct: 0.005}.Entries(series, f)
	if len(entries) != 0 {
		t.Errorf("expected volume filter to block entry, got %+v", entries)
	}
}

type fixedGate struct{ allow bool }

func (g fixedGate) Allow(map[string]float64) (bool, float64) {
	if g.allow {
		return true, 0.1
	}
	return false, 0.9
}

func TestReclaim_BearTrap(t *testing.T) {
	closes := []float64{10, 10.2, 10.1, 10.3, 9.5, 9.8, 10.4, 10.5}
	series := &model.Series{Timeframe: model.OneMinute, Bars: minuteBars(4, closes)}
	f := features.NewFrame("X", make([]time.Time, len(closes)), closes)

	r := &Reclaim{Lookback: 4, ReclaimBars: 3, TargetR: 2}
	entries, err := r.Entries(series, f)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %+v", entries)
	}
	e := entries[0]
	// prior low 9.9, trap low 9.4 on bar 4, reclaim close 10.4 on bar 6
	if e.Index != 6 || abs(e.Stop-9.4) > 1e-9 {
		t.Errorf("unexpected entry %+v", e)
	}

	r.Gate = fixedGate{allow: false}
	entries, _ = r.Entries(series, f)
	if len(entries) != 0 || r.Vetoed == 0 {
		t.Errorf("expected gate veto, got %d entries, %d vetoed", len(entries), r.Vetoed)
	}

	r.Gate = fixedGate{allow: true}
	entries, _ = r.Entries(series, f)
	if len(entries) != 1 {
		t.Errorf("expected gated entry to pass, got %d", len(entries))
	}
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
