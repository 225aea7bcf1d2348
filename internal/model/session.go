package model

import (
	"time"
	_ "time/tzdata"
)

var marketLoc = loadMarketLocation()

func loadMarketLocation() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.FixedZone("EST", -5*60*60)
	}
	return loc
}

// MarketLocation is the exchange time zone used for session boundaries.
func MarketLocation() *time.Location { return marketLoc }

// SessionSpan is a half-open index range [Start, End) of bars sharing a trading date.
type SessionSpan struct {
	Date  string
	Start int
	End   int
}

// Len returns the number of bars in the session.
func (s SessionSpan) Len() int { return s.End - s.Start }

// Sessions groups chronologically ordered bars by calendar date in loc.
func Sessions(bars []OHLCV, loc *time.Location) []SessionSpan {
	if loc == nil {
		loc = marketLoc
	}
	var spans []SessionSpan
	for i, b := range bars {
		d := b.Time.In(loc).Format("2006-01-02")
		if len(spans) == 0 || spans[len(spans)-1].Date != d {
			spans = append(spans, SessionSpan{Date: d, Start: i, End: i + 1})
			continue
		}
		spans[len(spans)-1].End = i + 1
	}
	return spans
}

// SessionOpen returns 09:30 exchange time on t's trading date.
func SessionOpen(t time.Time) time.Time {
	lt := t.In(marketLoc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 9, 30, 0, 0, marketLoc)
}

// InRegularSession reports whether t falls within 09:30-16:00 exchange time.
func InRegularSession(t time.Time) bool {
	lt := t.In(marketLoc)
	minutes := lt.Hour()*60 + lt.Minute()
	return minutes >= 9*60+30 && minutes < 16*60
}
