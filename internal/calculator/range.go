package calculator

import (
	"errors"
	"math"
	"time"

	"QuantBench/internal/model"
)

// CalculateRange scans the most recent lookback bars and returns the high and low.
func CalculateRange(bars []model.OHLCV, lookback int) (high, low float64, err error) {
	if len(bars) == 0 {
		return 0, 0, errors.New("no bars provided")
	}
	n := len(bars)
	start := n - lookback
	if lookback <= 0 || start < 0 {
		start = 0
	}
	high = math.Inf(-1)
	low = math.Inf(1)
	for i := start; i < n; i++ {
		if bars[i].High > high {
			high = bars[i].High
		}
		if bars[i].Low < low {
			low = bars[i].Low
		}
	}
	return high, low, nil
}

// RangePosition returns where price sits within [low, high] (0.0~1.0).
func RangePosition(current, high, low float64) (float64, error) {
	if high == low {
		return 0.5, nil
	}
	if high < low {
		return 0, errors.New("high must be >= low")
	}
	pos := (current - low) / (high - low)
	return math.Max(0, math.Min(1, pos)), nil
}

// OpeningRange returns the high and low of the bars stamped in
// [open, open+minutes), plus the index of the first bar at or after the end
// of the range (len(bars) when none). Bars before open are ignored.
// bars must be in chronological order.
func OpeningRange(bars []model.OHLCV, open time.Time, minutes int) (high, low float64, next int, err error) {
	if len(bars) == 0 {
		return 0, 0, 0, errors.New("no bars provided")
	}
	if minutes <= 0 {
		return 0, 0, 0, errors.New("minutes must be positive")
	}
	cutoff := open.Add(time.Duration(minutes) * time.Minute)
	high = math.Inf(-1)
	low = math.Inf(1)
	next = len(bars)
	found := false
	for i, b := range bars {
		if b.Time.Before(open) {
			continue
		}
		if !b.Time.Before(cutoff) {
			next = i
			break
		}
		high = math.Max(high, b.High)
		low = math.Min(low, b.Low)
		found = true
	}
	if !found {
		return 0, 0, 0, errors.New("no bars inside the opening range")
	}
	return high, low, next, nil
}
