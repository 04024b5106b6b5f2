// Package markethours gates the trading loop to an exchange session.
package markethours

import (
	"fmt"
	"time"
)

// IST is the Indian Standard Time location (UTC+5:30).
var IST = time.FixedZone("IST", 5*3600+30*60)

// Session describes a daily trading window in a fixed location.
// The session runs from the start of OpenMinute up to and including the
// first instant of CloseMinute; 15:30:00 is open, 15:30:01 is not.
type Session struct {
	Loc         *time.Location
	OpenMinute  int // minutes after midnight
	CloseMinute int
	Holidays    map[string]bool // "2006-01-02" in Loc
}

// NSE returns the NSE cash/derivatives session: 09:15 to 15:30 IST,
// Monday to Friday, excluding exchange holidays.
func NSE() Session {
	return Session{
		Loc:         IST,
		OpenMinute:  9*60 + 15,
		CloseMinute: 15*60 + 30,
		Holidays:    nseHolidays(),
	}
}

// IsTradingDay reports whether t falls on a weekday that is not a holiday.
func (s Session) IsTradingDay(t time.Time) bool {
	local := t.In(s.Loc)
	wd := local.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	return !s.Holidays[local.Format("2006-01-02")]
}

// IsOpen reports whether t is inside the session.
func (s Session) IsOpen(t time.Time) bool {
	if !s.IsTradingDay(t) {
		return false
	}
	local := t.In(s.Loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.Loc)
	since := local.Sub(midnight)
	return since >= time.Duration(s.OpenMinute)*time.Minute &&
		since <= time.Duration(s.CloseMinute)*time.Minute
}

// NextOpen returns the next session open at or after t. If t is before
// today's open on a trading day, returns today's open.
func (s Session) NextOpen(t time.Time) time.Time {
	local := t.In(s.Loc)
	open := func(d time.Time) time.Time {
		return time.Date(d.Year(), d.Month(), d.Day(), 0, s.OpenMinute, 0, 0, s.Loc)
	}

	if today := open(local); !local.After(today) && s.IsTradingDay(local) {
		return today
	}
	d := local.AddDate(0, 0, 1)
	for i := 0; i < 14; i++ { // weekends plus holiday clusters
		if s.IsTradingDay(d) {
			return open(d)
		}
		d = d.AddDate(0, 0, 1)
	}
	return open(local.AddDate(0, 0, 1))
}

// StatusString returns a human-readable session status.
func (s Session) StatusString(t time.Time) string {
	if s.IsOpen(t) {
		local := t.In(s.Loc)
		cl := time.Date(local.Year(), local.Month(), local.Day(), 0, s.CloseMinute, 0, 0, s.Loc)
		return fmt.Sprintf("Market Open, closes in %s", fmtDur(cl.Sub(local)))
	}
	next := s.NextOpen(t)
	return fmt.Sprintf("Market Closed, opens %s %s (%s)",
		next.Weekday().String()[:3], next.Format("15:04"), fmtDur(next.Sub(t)))
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
