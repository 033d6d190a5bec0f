// Package calendar normalizes event times and lays events out on a fixed
// six-week month grid. All functions are pure; the current instant is
// always passed in.
package calendar

import (
	"time"

	"eventcal/internal/model"
)

// GridDays is the number of cells in every month grid (six full weeks).
const GridDays = 42

// DefaultVisible is how many events a cell shows before "+N more".
const DefaultVisible = 3

// GridOptions carries the inputs that are fixed per deployment or request
// rather than per event.
type GridOptions struct {
	// WeekStart is the weekday in the first grid column.
	WeekStart time.Weekday
	// Location is the viewer's zone; nil means time.Local.
	Location *time.Location
	// Now drives Today markers and stands in for a zero reference date.
	Now time.Time
}

// Cell is one day of the grid.
type Cell struct {
	// Date is local midnight of the day.
	Date    time.Time
	InMonth bool
	Today   bool
	// Events holds every event overlapping Date, in caller order.
	Events []model.RawEvent
}

// Visible returns the first limit events of the cell and how many were
// left out.
func (c Cell) Visible(limit int) ([]model.RawEvent, int) {
	if limit < 0 {
		limit = 0
	}
	if len(c.Events) <= limit {
		return c.Events, 0
	}
	return c.Events[:limit], len(c.Events) - limit
}

// MonthGrid is the 42-day view of one month.
type MonthGrid struct {
	MonthStart time.Time
	GridStart  time.Time
	WeekStart  time.Weekday
	Cells      [GridDays]Cell
}

// Prev returns the first day of the preceding month.
func (g MonthGrid) Prev() time.Time {
	return g.MonthStart.AddDate(0, -1, 0)
}

// Next returns the first day of the following month.
func (g MonthGrid) Next() time.Time {
	return g.MonthStart.AddDate(0, 1, 0)
}

type placed struct {
	event model.RawEvent
	iv    Interval
}

// BuildMonthGrid lays events onto the grid of the month containing ref.
// An event lands in every cell whose day it overlaps; events without a
// usable start land nowhere. A zero ref means opts.Now.
func BuildMonthGrid(opts GridOptions, ref time.Time, events []model.RawEvent) MonthGrid {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	if ref.IsZero() {
		ref = opts.Now
	}
	ref = ref.In(loc)

	monthStart := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, loc)
	monthEnd := monthStart.AddDate(0, 1, 0)
	gridStart := StartOfWeek(monthStart, opts.WeekStart)

	items := make([]placed, 0, len(events))
	for _, ev := range events {
		if iv, ok := Normalize(ev.Start, ev.End, loc); ok {
			items = append(items, placed{event: ev, iv: iv})
		}
	}

	var today time.Time
	if !opts.Now.IsZero() {
		today = StartOfDay(opts.Now.In(loc))
	}

	grid := MonthGrid{
		MonthStart: monthStart,
		GridStart:  gridStart,
		WeekStart:  opts.WeekStart,
	}
	for i := range grid.Cells {
		day := time.Date(gridStart.Year(), gridStart.Month(), gridStart.Day()+i, 0, 0, 0, 0, loc)
		dayEnd := time.Date(day.Year(), day.Month(), day.Day()+1, 0, 0, 0, 0, loc).Add(-time.Nanosecond)

		cell := Cell{
			Date:    day,
			InMonth: !day.Before(monthStart) && day.Before(monthEnd),
			Today:   day.Equal(today),
		}
		for _, it := range items {
			if overlaps(it.iv, day, dayEnd) {
				cell.Events = append(cell.Events, it.event)
			}
		}
		grid.Cells[i] = cell
	}
	return grid
}

// overlaps reports whether iv touches [dayStart, dayEnd]. An interval
// without an end occupies only the day it starts on.
func overlaps(iv Interval, dayStart, dayEnd time.Time) bool {
	end := iv.End
	if !iv.HasEnd() {
		end = iv.Start
	}
	return !iv.Start.After(dayEnd) && !end.Before(dayStart)
}

// StartOfDay returns midnight of t's day in t's location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// StartOfWeek returns midnight of the most recent weekStart on or before t.
func StartOfWeek(t time.Time, weekStart time.Weekday) time.Time {
	diff := (int(t.Weekday()) - int(weekStart) + 7) % 7
	return time.Date(t.Year(), t.Month(), t.Day()-diff, 0, 0, 0, 0, t.Location())
}
