package web

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventcal/internal/config"
	"eventcal/internal/feed"
	"eventcal/internal/model"
)

type stubSource struct {
	name   string
	events []model.RawEvent
	err    error
	calls  atomic.Int32
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Events(context.Context, feed.Window) ([]model.RawEvent, error) {
	s.calls.Add(1)
	return s.events, s.err
}

var fixedNow = time.Date(2025, 10, 14, 9, 30, 0, 0, time.UTC)

func newTestServer(t *testing.T, cfg *config.Config, sources ...feed.Source) (*Server, *time.Time) {
	t.Helper()
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	now := fixedNow
	s := NewServer(cfg, sources)
	s.now = func() time.Time { return now }
	return s, &now
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func timed(id, title, start string) model.RawEvent {
	return model.RawEvent{ID: id, Title: title, Start: &model.EventTime{DateTime: start}}
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := get(t, s.Handler(), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestAPIEvents_NoSources(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := get(t, s.Handler(), "/api/events")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"items":[],"error":"no calendar sources configured"}`, rec.Body.String())
}

func TestAPIEvents_ExtractsAndSorts(t *testing.T) {
	src := &stubSource{name: "club", events: []model.RawEvent{
		timed("b", "Later", "2025-10-20T18:00:00Z"),
		{
			ID:          "a",
			Title:       "Launch",
			Description: "Tickets: https://tix.example.com/launch",
			Start:       &model.EventTime{DateTime: "2025-10-15T18:00:00Z"},
			End:         &model.EventTime{DateTime: "2025-10-15T20:00:00Z"},
		},
		{ID: "c", Start: &model.EventTime{Date: "2025-10-16"}, End: &model.EventTime{Date: "2025-10-16"}},
	}}
	s, _ := newTestServer(t, nil, src)

	rec := get(t, s.Handler(), "/api/events")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Items []struct {
			ID      string                 `json:"id"`
			Display model.ExtractedContent `json:"display"`
			AllDay  bool                   `json:"all_day"`
			When    string                 `json:"when"`
		} `json:"items"`
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Items, 3)
	assert.Empty(t, body.Error)

	assert.Equal(t, "a", body.Items[0].ID)
	assert.Equal(t, "https://tix.example.com/launch", body.Items[0].Display.TicketURL)
	assert.Equal(t, "Wed, Oct 15, 6:00 PM – 8:00 PM", body.Items[0].When)

	assert.Equal(t, "c", body.Items[1].ID)
	assert.True(t, body.Items[1].AllDay)
	assert.Equal(t, "Untitled event", body.Items[1].Display.Title)
	assert.Equal(t, "b", body.Items[2].ID)
}

func TestAPIEvents_CacheTTL(t *testing.T) {
	src := &stubSource{name: "club", events: []model.RawEvent{timed("a", "A", "2025-10-15T18:00:00Z")}}
	s, now := newTestServer(t, nil, src)
	h := s.Handler()

	get(t, h, "/api/events")
	get(t, h, "/api/events")
	assert.Equal(t, int32(1), src.calls.Load())

	*now = now.Add(31 * time.Second)
	get(t, h, "/api/events")
	assert.Equal(t, int32(2), src.calls.Load())

	s.Reconfigure(config.DefaultConfig(), []feed.Source{src})
	get(t, h, "/api/events")
	assert.Equal(t, int32(3), src.calls.Load())
}

func TestAPIEvents_PartialAndTotalFailure(t *testing.T) {
	ok := &stubSource{name: "ok", events: []model.RawEvent{timed("a", "A", "2025-10-15T18:00:00Z")}}
	broken := &stubSource{name: "broken", err: errors.New("status 403: forbidden")}

	s, _ := newTestServer(t, nil, ok, broken)
	rec := get(t, s.Handler(), "/api/events")
	var partial eventsView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &partial))
	assert.Len(t, partial.Items, 1)
	assert.Equal(t, []string{"broken: status 403: forbidden"}, partial.Errors)
	assert.Empty(t, partial.Error)

	s, _ = newTestServer(t, nil, broken)
	rec = get(t, s.Handler(), "/api/events")
	var total eventsView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &total))
	assert.Empty(t, total.Items)
	assert.Equal(t, "broken: status 403: forbidden", total.Error)
}

func busyDay() []model.RawEvent {
	var events []model.RawEvent
	for _, h := range []string{"09", "10", "11", "12", "13"} {
		events = append(events, timed("e"+h, "Session "+h, "2025-10-15T"+h+":00:00Z"))
	}
	return events
}

func TestAPICalendar(t *testing.T) {
	src := &stubSource{name: "club", events: busyDay()}
	s, _ := newTestServer(t, nil, src)

	rec := get(t, s.Handler(), "/api/calendar?m=2025-10")
	require.Equal(t, http.StatusOK, rec.Code)

	var view calendarView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "2025-10", view.Month)
	assert.Equal(t, "2025-09", view.Prev)
	assert.Equal(t, "2025-11", view.Next)
	assert.Equal(t, []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}, view.Weekdays)
	require.Len(t, view.Cells, 42)
	assert.Equal(t, "2025-09-28", view.Cells[0].Date)
	assert.False(t, view.Cells[0].InMonth)

	busy := view.Cells[17]
	assert.Equal(t, "2025-10-15", busy.Date)
	assert.Len(t, busy.Events, 3)
	assert.Equal(t, 2, busy.More)
	assert.Equal(t, "9:00 AM", busy.Events[0].Time)
	assert.Equal(t, "#", busy.Events[0].Link)

	assert.True(t, view.Cells[16].Today)
}

func TestAPICalendar_MondayStart(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.WeekStart = "monday"
	s, _ := newTestServer(t, cfg, &stubSource{name: "club"})

	rec := get(t, s.Handler(), "/api/calendar?m=2025-10")
	var view calendarView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "Mon", view.Weekdays[0])
	assert.Equal(t, "2025-09-29", view.Cells[0].Date)
}

func TestAPICalendar_BadMonth(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := get(t, s.Handler(), "/api/calendar?m=2025-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCalendarPage(t *testing.T) {
	s, _ := newTestServer(t, nil, &stubSource{name: "club", events: busyDay()})

	rec := get(t, s.Handler(), "/calendar?m=2025-10")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `data-ready="true"`)
	assert.Contains(t, body, "October 2025")
	assert.Contains(t, body, "+2 more")
	assert.Contains(t, body, `href="/calendar?m=2025-09"`)
	assert.Equal(t, 42, strings.Count(body, `class="cell`))
}

func TestEventsPage(t *testing.T) {
	s, _ := newTestServer(t, nil, &stubSource{name: "club"})
	rec := get(t, s.Handler(), "/events")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No upcoming events found.")

	s, _ = newTestServer(t, nil, &stubSource{name: "club", events: []model.RawEvent{{
		ID:          "a",
		Title:       "Launch",
		Permalink:   "https://calendar.example.com/event?eid=1",
		Start:       &model.EventTime{DateTime: "2025-10-15T18:00:00Z"},
		Attachments: []model.Attachment{{MimeType: "image/png", URL: "https://img.example.com/poster.png"}},
	}}})
	body := get(t, s.Handler(), "/events").Body.String()
	assert.Contains(t, body, `src="https://img.example.com/poster.png"`)
	assert.Contains(t, body, "Get tickets")
	assert.Contains(t, body, "https://calendar.example.com/event?eid=1")
}

func TestBasicAuth(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "pw"}
	s, _ := newTestServer(t, cfg)
	h := s.Handler()

	assert.Equal(t, http.StatusOK, get(t, h, "/health").Code)

	rec := get(t, h, "/api/events")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req.SetBasicAuth("admin", "pw")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsAndRoot(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Handler()
	get(t, h, "/health")

	rec := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "eventcal_http_requests_total")

	rec = get(t, h, "/")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/events", rec.Header().Get("Location"))
}

func TestWarm(t *testing.T) {
	src := &stubSource{name: "club", events: busyDay()}
	s, _ := newTestServer(t, nil, src)

	s.Warm(context.Background())
	assert.Equal(t, int32(2), src.calls.Load())

	get(t, s.Handler(), "/api/events")
	get(t, s.Handler(), "/api/calendar")
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestServe_GracefulShutdown(t *testing.T) {
	s, _ := newTestServer(t, nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	assert.NoError(t, <-done)
}
