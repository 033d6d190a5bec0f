package calendar

import (
	"strings"
	"time"

	"eventcal/internal/model"
)

const (
	dateLayout          = "2006-01-02"
	localDateTimeLayout = "2006-01-02T15:04:05"
)

// Interval is the uniform shape of an event's start/end.
type Interval struct {
	Start time.Time
	// End is zero when the event has no (parsable) end.
	End time.Time
	// AllDay is true exactly when the start was a date without a time.
	AllDay bool
}

// HasEnd reports whether the interval carries an end instant.
func (iv Interval) HasEnd() bool {
	return !iv.End.IsZero()
}

// Normalize converts a provider start/end pair into an Interval. Date-only
// values become midnight in loc; timestamps keep their own offset, moved
// into their TimeZone when one is given and known. The second result is
// false when there is no usable start ("to be announced"). A nil loc means
// time.Local.
func Normalize(start, end *model.EventTime, loc *time.Location) (Interval, bool) {
	if loc == nil {
		loc = time.Local
	}
	s, dateOnly, ok := parseEventTime(start, loc)
	if !ok {
		return Interval{}, false
	}
	iv := Interval{Start: s, AllDay: dateOnly}
	if e, _, ok := parseEventTime(end, loc); ok {
		iv.End = e
	}
	return iv, true
}

// parseEventTime prefers DateTime over Date, matching the provider's
// convention when both happen to be set.
func parseEventTime(t *model.EventTime, loc *time.Location) (time.Time, bool, bool) {
	if t.IsZero() {
		return time.Time{}, false, false
	}
	if dt := strings.TrimSpace(t.DateTime); dt != "" {
		if ts, ok := parseTimestamp(dt, t.TimeZone, loc); ok {
			return ts, false, true
		}
	}
	if d := strings.TrimSpace(t.Date); d != "" {
		if day, err := time.ParseInLocation(dateLayout, d, loc); err == nil {
			return day, true, true
		}
	}
	return time.Time{}, false, false
}

func parseTimestamp(value, zone string, fallback *time.Location) (time.Time, bool) {
	tz := fallback
	if zone != "" {
		if l, err := time.LoadLocation(zone); err == nil {
			tz = l
		}
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts.In(tz), true
	}
	// Timestamps without an offset are wall-clock times in their zone.
	if ts, err := time.ParseInLocation(localDateTimeLayout, value, tz); err == nil {
		return ts, true
	}
	return time.Time{}, false
}
