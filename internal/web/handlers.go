package web

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"eventcal/internal/calendar"
	"eventcal/internal/feed"
	appLog "eventcal/internal/log"
	"eventcal/internal/model"
)

const maxListLimit = 250

// eventItem is one upcoming event with its derived display fields.
type eventItem struct {
	model.RawEvent
	Display model.ExtractedContent `json:"display"`
	AllDay  bool                   `json:"all_day"`
	When    string                 `json:"when"`
}

type eventsView struct {
	Items  []eventItem `json:"items"`
	Errors []string    `json:"errors,omitempty"`
	Error  string      `json:"error,omitempty"`
}

type cellEvent struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Link  string `json:"link"`
	Time  string `json:"time"`
}

type cellView struct {
	Date    string      `json:"date"`
	Day     int         `json:"day"`
	InMonth bool        `json:"in_month"`
	Today   bool        `json:"today"`
	Events  []cellEvent `json:"events"`
	More    int         `json:"more"`
}

type calendarView struct {
	Month     string       `json:"month"`
	Label     string       `json:"label"`
	Prev      string       `json:"prev"`
	Next      string       `json:"next"`
	Today     string       `json:"today"`
	WeekStart string       `json:"week_start"`
	Weekdays  []string     `json:"weekdays"`
	Cells     []cellView   `json:"cells"`
	Weeks     [][]cellView `json:"-"`
	Errors    []string     `json:"errors,omitempty"`
	Error     string       `json:"error,omitempty"`
}

type monthQuery struct {
	feed.Window
	Month time.Time
}

// upcomingWindow starts at the current minute so repeated requests share a
// cache entry.
func upcomingWindow(st state, now time.Time, limit int) feed.Window {
	if limit <= 0 {
		limit = st.cfg.Google.MaxResults
	}
	return feed.Window{From: now.Truncate(time.Minute), Limit: limit}
}

// monthWindow covers the whole 42-day grid of the month containing ref.
func monthWindow(st state, ref time.Time) monthQuery {
	ref = ref.In(st.loc)
	month := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, st.loc)
	gridStart := calendar.StartOfWeek(month, st.cfg.FirstWeekday())
	return monthQuery{
		Month: month,
		Window: feed.Window{
			From:  gridStart,
			To:    gridStart.AddDate(0, 0, calendar.GridDays),
			Limit: st.cfg.Google.GridMaxResults,
		},
	}
}

func (s *Server) upcoming(r *http.Request) eventsView {
	st := s.current()
	limit := parseIntDefault(r.URL.Query().Get("limit"), 0)
	if limit > maxListLimit {
		limit = maxListLimit
	}
	events, errs := s.load(r.Context(), st, upcomingWindow(st, s.now(), limit))

	view := eventsView{Items: make([]eventItem, 0, len(events))}
	for _, ev := range events {
		iv, ok := calendar.Normalize(ev.Start, ev.End, st.loc)
		view.Items = append(view.Items, eventItem{
			RawEvent: ev,
			Display:  st.extractor.Extract(ev),
			AllDay:   ok && iv.AllDay,
			When:     calendar.RangeLabel(ev.Start, ev.End, st.loc),
		})
	}
	view.Errors, view.Error = describeErrors(errs, len(events))
	return view
}

func (s *Server) month(r *http.Request) calendarView {
	st := s.current()
	now := s.now().In(st.loc)
	ref := now
	if m, ok := calendar.ParseMonth(r.URL.Query().Get("m"), st.loc); ok {
		ref = m
	}
	q := monthWindow(st, ref)
	events, errs := s.load(r.Context(), st, q.Window)

	grid := calendar.BuildMonthGrid(calendar.GridOptions{
		WeekStart: st.cfg.FirstWeekday(),
		Location:  st.loc,
		Now:       now,
	}, q.Month, events)

	view := calendarView{
		Month:     calendar.MonthKey(grid.MonthStart),
		Label:     grid.MonthStart.Format("January 2006"),
		Prev:      calendar.MonthKey(grid.Prev()),
		Next:      calendar.MonthKey(grid.Next()),
		Today:     calendar.MonthKey(now),
		WeekStart: st.cfg.WeekStart,
		Cells:     make([]cellView, 0, calendar.GridDays),
	}
	for i := 0; i < 7; i++ {
		view.Weekdays = append(view.Weekdays, time.Weekday((int(grid.WeekStart)+i)%7).String()[:3])
	}
	for _, c := range grid.Cells {
		shown, more := c.Visible(calendar.DefaultVisible)
		cv := cellView{
			Date:    c.Date.Format("2006-01-02"),
			Day:     c.Date.Day(),
			InMonth: c.InMonth,
			Today:   c.Today,
			Events:  make([]cellEvent, 0, len(shown)),
			More:    more,
		}
		for _, ev := range shown {
			link := ev.Permalink
			if link == "" {
				link = "#"
			}
			cv.Events = append(cv.Events, cellEvent{
				ID:    ev.ID,
				Title: st.extractor.Extract(ev).Title,
				Link:  link,
				Time:  calendar.TimeLabel(ev.Start, ev.End, st.loc),
			})
		}
		view.Cells = append(view.Cells, cv)
	}
	for i := 0; i < len(view.Cells); i += 7 {
		view.Weeks = append(view.Weeks, view.Cells[i:i+7])
	}
	view.Errors, view.Error = describeErrors(errs, len(events))
	return view
}

// describeErrors splits source failures into per-source messages and, when
// nothing loaded at all, a single headline error.
func describeErrors(errs []error, loaded int) ([]string, string) {
	if len(errs) == 0 {
		return nil, ""
	}
	msgs := make([]string, 0, len(errs))
	for _, err := range errs {
		msgs = append(msgs, err.Error())
	}
	if len(errs) == 1 && errors.Is(errs[0], errNoSources) {
		return nil, errNoSources.Error()
	}
	if loaded == 0 {
		return msgs, strings.Join(msgs, "; ")
	}
	return msgs, ""
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	view := s.upcoming(r)
	if view.Error != "" {
		appLog.Warn("api events degraded", "reason", view.Error)
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	if m := r.URL.Query().Get("m"); m != "" {
		if _, ok := calendar.ParseMonth(m, time.UTC); !ok {
			writeError(w, http.StatusBadRequest, "m must be YYYY-MM")
			return
		}
	}
	writeJSON(w, http.StatusOK, s.month(r))
}

func (s *Server) handleEventsPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, "events.html", s.upcoming(r))
}

// handleCalendarPage falls back to the current month for a malformed m.
func (s *Server) handleCalendarPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, "calendar.html", s.month(r))
}
