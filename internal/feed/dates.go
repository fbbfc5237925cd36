package feed

import (
	"strings"
	"time"

	"eventsnow/internal/models"
)

var clockLayouts = []string{"15:04:05", "15:04", "15.04"}

// ParseDate reads an organizer-typed date as a civil date (midnight UTC).
func ParseDate(s string) (time.Time, bool) {
	return models.ParseDate(s)
}

// ParseClock reads a time of day and returns the offset from midnight.
func ParseClock(s string) (time.Duration, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Duration(t.Hour())*time.Hour +
				time.Duration(t.Minute())*time.Minute +
				time.Duration(t.Second())*time.Second, true
		}
	}
	return 0, false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// EffectiveStart picks sessions, then period, then single date.
func EffectiveStart(ev *models.Event) (time.Time, bool) {
	return ParseDate(firstNonEmpty(ev.SessionsStartDate, ev.StartDate, ev.EventDate))
}

// EffectiveEnd follows the same chain, falling back to the start dates and
// finally to the effective start when nothing parses.
func EffectiveEnd(ev *models.Event, start time.Time) time.Time {
	if end, ok := ev.LastDate(); ok {
		return end
	}
	return start
}

// EffectiveTime is the event's start time of day by format. ok is false when
// no time is set or it does not parse.
func EffectiveTime(ev *models.Event) (time.Duration, bool) {
	switch ev.Format {
	case models.FormatPeriod:
		return ParseClock(ev.OpenTime)
	case models.FormatSessions:
		times := ev.SessionTimes()
		if len(times) == 0 {
			return 0, false
		}
		return ParseClock(times[0])
	default:
		return ParseClock(ev.EventTime)
	}
}
