package collector

import (
	"fmt"
	"math"
	"sort"
	"time"

	"QuantBench/internal/model"
)

// Clean drops bars with non-positive or NaN prices, sorts by time and
// removes duplicate timestamps (the last occurrence wins).
func Clean(bars []model.OHLCV) []model.OHLCV {
	out := make([]model.OHLCV, 0, len(bars))
	for _, b := range bars {
		if !validPrice(b.Open) || !validPrice(b.High) || !validPrice(b.Low) || !validPrice(b.Close) {
			continue
		}
		if math.IsNaN(b.Volume) || b.Volume < 0 {
			b.Volume = 0
		}
		out = append(out, b)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })

	deduped := out[:0]
	for _, b := range out {
		if n := len(deduped); n > 0 && deduped[n-1].Time.Equal(b.Time) {
			deduped[n-1] = b
			continue
		}
		deduped = append(deduped, b)
	}
	return deduped
}

func validPrice(p float64) bool {
	return p > 0 && !math.IsNaN(p) && !math.IsInf(p, 0)
}

// Resample aggregates chronological bars into buckets of tf. Intraday
// buckets are aligned to the 09:30 session open, daily buckets to midnight,
// both in the exchange time zone. Each output bar is stamped with its bucket
// start.
func Resample(bars []model.OHLCV, tf model.Timeframe) []model.OHLCV {
	step := tf.Duration()
	if step <= 0 || len(bars) == 0 {
		return nil
	}
	loc := model.MarketLocation()
	bucketOf := func(t time.Time) time.Time {
		lt := t.In(loc)
		if !tf.Intraday() {
			return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
		}
		open := model.SessionOpen(lt)
		d := lt.Sub(open)
		k := d / step
		if d < 0 && d%step != 0 {
			k--
		}
		return open.Add(k * step)
	}

	var out []model.OHLCV
	var current time.Time
	for _, b := range bars {
		bucket := bucketOf(b.Time)
		if len(out) == 0 || !bucket.Equal(current) {
			current = bucket
			out = append(out, model.OHLCV{
				Time:   bucket,
				Open:   b.Open,
				High:   b.High,
				Low:    b.Low,
				Close:  b.Close,
				Volume: b.Volume,
			})
			continue
		}
		agg := &out[len(out)-1]
		agg.High = math.Max(agg.High, b.High)
		agg.Low = math.Min(agg.Low, b.Low)
		agg.Close = b.Close
		agg.Volume += b.Volume
	}
	return out
}

// RegularSession keeps bars stamped between 09:30 and 16:00 in loc.
// A nil loc means the exchange time zone.
func RegularSession(bars []model.OHLCV, loc *time.Location) []model.OHLCV {
	if loc == nil {
		loc = model.MarketLocation()
	}
	out := make([]model.OHLCV, 0, len(bars))
	for _, b := range bars {
		lt := b.Time.In(loc)
		m := lt.Hour()*60 + lt.Minute()
		if m >= 9*60+30 && m < 16*60 {
			out = append(out, b)
		}
	}
	return out
}

// SplitSessions groups bars by trading date.
func SplitSessions(bars []model.OHLCV) [][]model.OHLCV {
	spans := model.Sessions(bars, nil)
	out := make([][]model.OHLCV, len(spans))
	for i, s := range spans {
		out[i] = bars[s.Start:s.End]
	}
	return out
}

// ResampleSeries returns s aggregated into the coarser timeframe tf.
func ResampleSeries(s *model.Series, tf model.Timeframe) (*model.Series, error) {
	if tf == s.Timeframe {
		return s, nil
	}
	if tf.Duration() <= 0 || tf.Duration() < s.Timeframe.Duration() {
		return nil, fmt.Errorf("cannot resample %s bars into %s", s.Timeframe, tf)
	}
	bars := Resample(s.Bars, tf)
	if len(bars) == 0 {
		return nil, fmt.Errorf("resample %s: %w", s.Symbol, ErrEmptySeries)
	}
	return &model.Series{Symbol: s.Symbol, Timeframe: tf, Bars: bars, FetchedAt: s.FetchedAt}, nil
}
