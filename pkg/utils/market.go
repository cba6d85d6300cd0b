package utils

import (
	"time"
)

// IndiaLocation is the timezone for Indian markets.
var IndiaLocation *time.Location

func init() {
	var err error
	IndiaLocation, err = time.LoadLocation("Asia/Kolkata")
	if err != nil {
		// Fallback to UTC+5:30
		IndiaLocation = time.FixedZone("IST", 5*60*60+30*60)
	}
}

// SessionOpen returns the session open (9:15 IST) for the day containing t.
func SessionOpen(t time.Time) time.Time {
	t = t.In(IndiaLocation)
	return time.Date(t.Year(), t.Month(), t.Day(), 9, 15, 0, 0, IndiaLocation)
}

// SessionClose returns the session close (15:30 IST) for the day containing t.
func SessionClose(t time.Time) time.Time {
	t = t.In(IndiaLocation)
	return time.Date(t.Year(), t.Month(), t.Day(), 15, 30, 0, 0, IndiaLocation)
}

// IsTradingDay reports whether t falls on a weekday.
func IsTradingDay(t time.Time) bool {
	wd := t.In(IndiaLocation).Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// InSession reports whether t is within regular trading hours.
func InSession(t time.Time) bool {
	if !IsTradingDay(t) {
		return false
	}
	t = t.In(IndiaLocation)
	return !t.Before(SessionOpen(t)) && t.Before(SessionClose(t))
}

// DayKey returns the calendar-day key (YYYY-MM-DD) for t in session time.
func DayKey(t time.Time) string {
	return t.In(IndiaLocation).Format("2006-01-02")
}

// IntervalStart returns the start of the fixed-width interval containing t,
// anchored to the session open of t's day.
func IntervalStart(t time.Time, width time.Duration) time.Time {
	open := SessionOpen(t)
	if t.Before(open) {
		return open
	}
	n := t.In(IndiaLocation).Sub(open) / width
	return open.Add(n * width)
}

// DaysUntil returns the number of whole calendar days from t until date,
// both interpreted in session time.
func DaysUntil(t, date time.Time) int {
	a := t.In(IndiaLocation)
	b := date.In(IndiaLocation)
	a = time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, IndiaLocation)
	b = time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, IndiaLocation)
	return int(b.Sub(a).Hours() / 24)
}
