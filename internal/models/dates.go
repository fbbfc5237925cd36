package models

import (
	"strings"
	"time"
)

var dateLayouts = []string{"02.01.2006", "2.1.2006", "2006-01-02"}

// ParseDate reads an organizer-typed date as a civil date (midnight UTC).
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// LastDate → the last day the event runs: sessions end, period end, then the
// start dates. ok is false when the first date set does not parse.
func (e *Event) LastDate() (time.Time, bool) {
	for _, s := range []string{e.SessionsEndDate, e.EndDate, e.SessionsStartDate, e.StartDate, e.EventDate} {
		if strings.TrimSpace(s) != "" {
			return ParseDate(s)
		}
	}
	return time.Time{}, false
}
