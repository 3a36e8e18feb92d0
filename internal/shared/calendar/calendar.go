// Package calendar provides trading-day arithmetic for market batch scheduling.
package calendar

import "time"

// Calendar answers trading-day questions against a fixed holiday set.
// It is pure and performs no I/O; all dates are normalized to midnight UTC.
type Calendar struct {
	holidays map[string]struct{}
}

// New creates a Calendar. The holiday set is keyed by calendar date; the
// time-of-day and location of the supplied values are ignored.
func New(holidays []time.Time) *Calendar {
	hs := make(map[string]struct{}, len(holidays))
	for _, h := range holidays {
		hs[dayKey(h)] = struct{}{}
	}
	return &Calendar{holidays: hs}
}

// Normalize truncates a timestamp to its calendar date at midnight UTC.
func Normalize(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// IsTradingDay reports whether d is neither a weekend nor a configured holiday.
func (c *Calendar) IsTradingDay(d time.Time) bool {
	switch d.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	_, holiday := c.holidays[dayKey(d)]
	return !holiday
}

// TradingDaysBetween returns every trading day from start through end,
// inclusive on both ends, in ascending order. It returns nil if end is
// before start.
func (c *Calendar) TradingDaysBetween(start, end time.Time) []time.Time {
	start, end = Normalize(start), Normalize(end)
	if end.Before(start) {
		return nil
	}
	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if c.IsTradingDay(d) {
			days = append(days, d)
		}
	}
	return days
}

// MostRecentTradingDay returns the latest trading day at or before ref.
func (c *Calendar) MostRecentTradingDay(ref time.Time) time.Time {
	d := Normalize(ref)
	for !c.IsTradingDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// Staleness counts how many trading days the data lags the reference date.
// It returns 0 when dataDate is on or after the most recent trading day at
// or before ref; otherwise it counts the trading days strictly between
// dataDate and ref. Weekends and holidays never increment the count.
func (c *Calendar) Staleness(dataDate, ref time.Time) int {
	dataDate, ref = Normalize(dataDate), Normalize(ref)
	if !dataDate.Before(c.MostRecentTradingDay(ref)) {
		return 0
	}
	n := 0
	for d := dataDate.AddDate(0, 0, 1); d.Before(ref); d = d.AddDate(0, 0, 1) {
		if c.IsTradingDay(d) {
			n++
		}
	}
	return n
}

func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}
