package calendar

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventcal/internal/model"
)

func timed(id string, start, end time.Time) model.RawEvent {
	ev := model.RawEvent{ID: id, Start: &model.EventTime{DateTime: start.Format(time.RFC3339)}}
	if !end.IsZero() {
		ev.End = &model.EventTime{DateTime: end.Format(time.RFC3339)}
	}
	return ev
}

func cellIDs(c Cell) []string {
	ids := make([]string, 0, len(c.Events))
	for _, ev := range c.Events {
		ids = append(ids, ev.ID)
	}
	return ids
}

func cellsContaining(g MonthGrid, id string) []int {
	var idx []int
	for i, c := range g.Cells {
		for _, ev := range c.Events {
			if ev.ID == id {
				idx = append(idx, i)
			}
		}
	}
	return idx
}

func TestBuildMonthGrid_Shape(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	for year := 2024; year <= 2026; year++ {
		for month := time.January; month <= time.December; month++ {
			for ws := time.Sunday; ws <= time.Saturday; ws++ {
				ref := time.Date(year, month, 15, 12, 0, 0, 0, loc)
				g := BuildMonthGrid(GridOptions{WeekStart: ws, Location: loc}, ref, nil)

				require.Len(t, g.Cells, GridDays)
				assert.Equal(t, ws, g.Cells[0].Date.Weekday())
				assert.Equal(t, ws, g.Cells[7].Date.Weekday())
				assert.False(t, g.GridStart.After(g.MonthStart))

				inMonth := 0
				monthStartSeen := false
				for i, c := range g.Cells {
					assert.Equal(t, 0, c.Date.Hour(), "cell %d of %s not at midnight", i, ref)
					if i > 0 {
						assert.Equal(t, c.Date, StartOfDay(g.Cells[i-1].Date.AddDate(0, 0, 1)))
					}
					if c.InMonth {
						inMonth++
						assert.Equal(t, month, c.Date.Month())
					}
					if c.Date.Equal(g.MonthStart) {
						monthStartSeen = true
						assert.True(t, c.InMonth)
					}
				}
				assert.True(t, monthStartSeen)
				assert.GreaterOrEqual(t, inMonth, 28)
				assert.Equal(t, g.MonthStart.AddDate(0, 1, -1).Day(), inMonth)
			}
		}
	}
}

func TestBuildMonthGrid_Placement(t *testing.T) {
	loc := time.UTC
	// October 2025 starts on a Wednesday; a Sunday grid starts on Sep 28.
	ref := time.Date(2025, time.October, 20, 0, 0, 0, 0, loc)
	opts := GridOptions{WeekStart: time.Sunday, Location: loc}
	day := func(i int) time.Time { return time.Date(2025, time.September, 28+i, 0, 0, 0, 0, loc) }

	events := []model.RawEvent{
		timed("multi", day(5).Add(10*time.Hour), day(7).Add(12*time.Hour)),
		{ID: "allday", Start: &model.EventTime{Date: "2025-10-09"}},
		timed("midnight", day(12), time.Time{}),
		timed("ends-at-midnight", day(13).Add(20*time.Hour), day(14)),
		{ID: "tba", Title: "no start"},
		{ID: "bad", Start: &model.EventTime{DateTime: "soon"}},
		timed("outside", day(-10), day(-9)),
	}

	g := BuildMonthGrid(opts, ref, events)

	require.Equal(t, day(0), g.GridStart)
	assert.Equal(t, []int{5, 6, 7}, cellsContaining(g, "multi"))
	assert.Equal(t, []int{11}, cellsContaining(g, "allday"))
	assert.Equal(t, []int{12}, cellsContaining(g, "midnight"))
	assert.Equal(t, []int{13, 14}, cellsContaining(g, "ends-at-midnight"))
	assert.Empty(t, cellsContaining(g, "tba"))
	assert.Empty(t, cellsContaining(g, "bad"))
	assert.Empty(t, cellsContaining(g, "outside"))
}

func TestBuildMonthGrid_KeepsCallerOrder(t *testing.T) {
	loc := time.UTC
	d := time.Date(2025, time.March, 12, 0, 0, 0, 0, loc)
	events := []model.RawEvent{
		timed("late", d.Add(20*time.Hour), time.Time{}),
		timed("early", d.Add(8*time.Hour), time.Time{}),
		{ID: "whole", Start: &model.EventTime{Date: "2025-03-12"}},
	}

	g := BuildMonthGrid(GridOptions{WeekStart: time.Monday, Location: loc}, d, events)

	for _, c := range g.Cells {
		if c.Date.Equal(d) {
			assert.Equal(t, []string{"late", "early", "whole"}, cellIDs(c))
			return
		}
	}
	t.Fatal("reference day not in grid")
}

func TestBuildMonthGrid_TodayAndZeroReference(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	// 20:00 UTC on Feb 3 is already Feb 4 in UTC+9.
	now := time.Date(2026, time.February, 3, 20, 0, 0, 0, time.UTC)

	g := BuildMonthGrid(GridOptions{WeekStart: time.Sunday, Location: loc, Now: now}, time.Time{}, nil)

	assert.Equal(t, time.February, g.MonthStart.Month())
	var today []time.Time
	for _, c := range g.Cells {
		if c.Today {
			today = append(today, c.Date)
		}
	}
	require.Len(t, today, 1)
	assert.Equal(t, 4, today[0].Day())
}

func TestBuildMonthGrid_ViewerZone(t *testing.T) {
	la, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)

	// 09:00 Tokyo on Jun 10 is still Jun 9 in Los Angeles.
	ev := model.RawEvent{
		ID:    "tokyo",
		Start: &model.EventTime{DateTime: "2025-06-10T09:00:00+09:00", TimeZone: "Asia/Tokyo"},
	}

	g := BuildMonthGrid(GridOptions{WeekStart: time.Sunday, Location: la}, time.Date(2025, 6, 1, 0, 0, 0, 0, la), []model.RawEvent{ev})

	idx := cellsContaining(g, "tokyo")
	require.Len(t, idx, 1)
	assert.Equal(t, 9, g.Cells[idx[0]].Date.Day())
}

func TestCell_Visible(t *testing.T) {
	c := Cell{Events: []model.RawEvent{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}, {ID: "e"}}}

	shown, more := c.Visible(DefaultVisible)
	assert.Len(t, shown, 3)
	assert.Equal(t, 2, more)
	assert.Len(t, c.Events, 5, "full list stays available")

	shown, more = Cell{Events: c.Events[:2]}.Visible(DefaultVisible)
	assert.Len(t, shown, 2)
	assert.Zero(t, more)

	shown, more = c.Visible(-1)
	assert.Empty(t, shown)
	assert.Equal(t, 5, more)
}

func TestMonthGrid_PrevNext(t *testing.T) {
	g := BuildMonthGrid(GridOptions{Location: time.UTC}, time.Date(2025, time.January, 31, 0, 0, 0, 0, time.UTC), nil)

	assert.Equal(t, time.Date(2024, time.December, 1, 0, 0, 0, 0, time.UTC), g.Prev())
	assert.Equal(t, time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC), g.Next())
}

func TestStartOfWeek(t *testing.T) {
	wed := time.Date(2025, time.October, 1, 15, 30, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2025, time.September, 28, 0, 0, 0, 0, time.UTC), StartOfWeek(wed, time.Sunday))
	assert.Equal(t, time.Date(2025, time.September, 29, 0, 0, 0, 0, time.UTC), StartOfWeek(wed, time.Monday))
	assert.Equal(t, time.Date(2025, time.October, 1, 0, 0, 0, 0, time.UTC), StartOfWeek(wed, time.Wednesday))
}
