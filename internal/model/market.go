package model

import (
	"fmt"
	"strings"
	"time"
)

// OHLCV represents a single candlestick bar.
type OHLCV struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Timeframe is the bar interval of a series.
type Timeframe string

const (
	OneMinute     Timeframe = "1Min"
	FiveMinutes   Timeframe = "5Min"
	FifteenMinute Timeframe = "15Min"
	OneHour       Timeframe = "1Hour"
	OneDay        Timeframe = "1Day"
)

// Duration returns the wall-clock length of one bar.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case OneMinute:
		return time.Minute
	case FiveMinutes:
		return 5 * time.Minute
	case FifteenMinute:
		return 15 * time.Minute
	case OneHour:
		return time.Hour
	case OneDay:
		return 24 * time.Hour
	default:
		return 0
	}
}

// Intraday reports whether bars are shorter than a trading day.
func (tf Timeframe) Intraday() bool {
	return tf != OneDay
}

// ParseTimeframe accepts the canonical names plus a few common aliases.
func ParseTimeframe(s string) (Timeframe, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1min", "1m", "minute":
		return OneMinute, nil
	case "5min", "5m":
		return FiveMinutes, nil
	case "15min", "15m":
		return FifteenMinute, nil
	case "1hour", "1h", "hour":
		return OneHour, nil
	case "1day", "1d", "day", "daily":
		return OneDay, nil
	default:
		return "", fmt.Errorf("unknown timeframe %q", s)
	}
}

// Series holds the bars of one symbol in chronological order.
type Series struct {
	Symbol    string
	Timeframe Timeframe
	Bars      []OHLCV
	FetchedAt time.Time
}

// Closes returns the close prices of the series.
func (s *Series) Closes() []float64 {
	closes := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		closes[i] = b.Close
	}
	return closes
}

// Last returns the most recent bar, or false when the series is empty.
func (s *Series) Last() (OHLCV, bool) {
	if len(s.Bars) == 0 {
		return OHLCV{}, false
	}
	return s.Bars[len(s.Bars)-1], true
}
