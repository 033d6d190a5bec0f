// Package gcal reads public events from the Google Calendar v3 API and maps
// them onto model.RawEvent.
package gcal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gcalendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"eventcal/internal/feed"
	appLog "eventcal/internal/log"
	"eventcal/internal/model"
)

// maxPageSize is the largest maxResults the events.list endpoint accepts.
const maxPageSize = 2500

var errLimitReached = errors.New("gcal: limit reached")

// Client lists events of one calendar. It implements feed.Source.
type Client struct {
	id         string
	calendarID string
	svc        *gcalendar.Service
}

// New builds a Client authenticated with an API key, which is enough for
// public calendars. Extra options are passed to the service constructor.
func New(ctx context.Context, apiKey, calendarID string, opts ...option.ClientOption) (*Client, error) {
	if calendarID == "" {
		return nil, errors.New("gcal: calendar id is empty")
	}
	if apiKey != "" {
		opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	}
	svc, err := gcalendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcal: create service: %w", err)
	}
	return &Client{id: "google", calendarID: calendarID, svc: svc}, nil
}

func (c *Client) Name() string { return c.id }

// Events lists single (expanded) events ordered by start time.
func (c *Client) Events(ctx context.Context, w feed.Window) ([]model.RawEvent, error) {
	call := c.svc.Events.List(c.calendarID).
		SingleEvents(true).
		OrderBy("startTime").
		Fields("nextPageToken", "items(id,status,summary,description,location,htmlLink,start,end,attachments)")
	if !w.From.IsZero() {
		call = call.TimeMin(w.From.Format(time.RFC3339))
	}
	if !w.To.IsZero() {
		call = call.TimeMax(w.To.Format(time.RFC3339))
	}
	pageSize := maxPageSize
	if w.Limit > 0 && w.Limit < pageSize {
		pageSize = w.Limit
	}
	call = call.MaxResults(int64(pageSize))

	out := make([]model.RawEvent, 0)
	err := call.Pages(ctx, func(page *gcalendar.Events) error {
		for _, item := range page.Items {
			if item == nil || item.Status == "cancelled" {
				continue
			}
			out = append(out, ToRawEvent(c.id, item))
			if w.Limit > 0 && len(out) >= w.Limit {
				return errLimitReached
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, errLimitReached) {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) {
			return nil, fmt.Errorf("gcal: list events: status %d: %s", gerr.Code, gerr.Message)
		}
		return nil, fmt.Errorf("gcal: list events: %w", err)
	}

	appLog.Info("gcal list completed", "calendar", redactID(c.calendarID), "event_count", len(out))
	return out, nil
}

// ToRawEvent maps an API event onto the provider-neutral record.
func ToRawEvent(sourceID string, e *gcalendar.Event) model.RawEvent {
	ev := model.RawEvent{
		SourceID:    sourceID,
		ID:          e.Id,
		Title:       e.Summary,
		Description: e.Description,
		Location:    e.Location,
		Permalink:   e.HtmlLink,
		Start:       eventTime(e.Start),
		End:         eventTime(e.End),
	}
	ev.End = inclusiveEnd(ev.Start, ev.End)
	for _, a := range e.Attachments {
		if a == nil {
			continue
		}
		ev.Attachments = append(ev.Attachments, model.Attachment{
			Title:    a.Title,
			MimeType: a.MimeType,
			URL:      a.FileUrl,
		})
	}
	return ev
}

func eventTime(t *gcalendar.EventDateTime) *model.EventTime {
	if t == nil || (t.Date == "" && t.DateTime == "") {
		return nil
	}
	return &model.EventTime{Date: t.Date, DateTime: t.DateTime, TimeZone: t.TimeZone}
}

// inclusiveEnd turns the API's exclusive all-day end date (the day after the
// last day) into the last day itself. Timed ends pass through.
func inclusiveEnd(start, end *model.EventTime) *model.EventTime {
	if end == nil || end.Date == "" || end.DateTime != "" {
		return end
	}
	last, err := time.Parse("2006-01-02", end.Date)
	if err != nil {
		return end
	}
	last = last.AddDate(0, 0, -1)
	if start != nil && start.Date != "" {
		if first, err := time.Parse("2006-01-02", start.Date); err == nil && last.Before(first) {
			last = first
		}
	}
	return &model.EventTime{Date: last.Format("2006-01-02"), TimeZone: end.TimeZone}
}

// redactID keeps calendar ids (often e-mail addresses) out of logs.
func redactID(id string) string {
	if i := strings.IndexByte(id, '@'); i > 0 {
		return id[:1] + "…@" + id[i+1:]
	}
	if len(id) > 6 {
		return id[:6] + "…"
	}
	return id
}
