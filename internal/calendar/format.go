package calendar

import (
	"regexp"
	"sort"
	"time"

	"eventcal/internal/model"
)

const (
	labelDate = "Mon, Jan 2"
	labelTime = "3:04 PM"
	// TBA is shown for events without a usable start.
	TBA = "TBA"
	// AllDay is the grid label for date-only events.
	AllDay = "All day"
)

// RangeLabel renders the when-line of an event card in loc: a date for
// all-day events, otherwise date and start time followed by the end time.
func RangeLabel(start, end *model.EventTime, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	iv, ok := Normalize(start, end, loc)
	if !ok {
		return TBA
	}
	s := iv.Start.In(loc)
	if iv.AllDay {
		label := s.Format(labelDate)
		if iv.HasEnd() {
			e := iv.End.In(loc)
			if !sameDay(s, e) && e.After(s) {
				label += " – " + e.Format(labelDate)
			}
		}
		return label
	}
	label := s.Format(labelDate + ", " + labelTime)
	if iv.HasEnd() {
		label += " – " + iv.End.In(loc).Format(labelTime)
	}
	return label
}

// TimeLabel renders the short time shown next to an event inside a grid
// cell.
func TimeLabel(start, end *model.EventTime, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	iv, ok := Normalize(start, end, loc)
	if !ok || iv.AllDay {
		return AllDay
	}
	label := iv.Start.In(loc).Format(labelTime)
	if iv.HasEnd() {
		label += " – " + iv.End.In(loc).Format(labelTime)
	}
	return label
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

var monthPattern = regexp.MustCompile(`^\d{4}-\d{2}$`)

// ParseMonth parses a YYYY-MM month reference into the first day of that
// month in loc.
func ParseMonth(s string, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.Local
	}
	if !monthPattern.MatchString(s) {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation("2006-01", s, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// MonthKey formats t as the YYYY-MM reference ParseMonth accepts.
func MonthKey(t time.Time) string {
	return t.Format("2006-01")
}

// SortByStart returns events ordered by normalized start. Events without a
// start go last; ties keep their input order. The input is not modified.
func SortByStart(events []model.RawEvent, loc *time.Location) []model.RawEvent {
	type keyed struct {
		ev    model.RawEvent
		start time.Time
		ok    bool
	}
	ks := make([]keyed, len(events))
	for i, ev := range events {
		iv, ok := Normalize(ev.Start, ev.End, loc)
		ks[i] = keyed{ev: ev, start: iv.Start, ok: ok}
	}
	sort.SliceStable(ks, func(i, j int) bool {
		if ks[i].ok != ks[j].ok {
			return ks[i].ok
		}
		return ks[i].start.Before(ks[j].start)
	})
	out := make([]model.RawEvent, len(ks))
	for i, k := range ks {
		out[i] = k.ev
	}
	return out
}
