package ics

import (
	"context"
	"time"

	"eventcal/internal/feed"
	appLog "eventcal/internal/log"
	"eventcal/internal/model"
)

// defaultHorizon bounds open-ended windows so recurrence expansion stays
// finite.
const defaultHorizon = 90 * 24 * time.Hour

// Source is one ICS subscription. It implements feed.Source.
type Source struct {
	ID      string
	URL     string
	Fetcher *Fetcher
}

func (s *Source) Name() string { return s.ID }

// Events fetches, parses and expands the subscription for w.
func (s *Source) Events(ctx context.Context, w feed.Window) ([]model.RawEvent, error) {
	body, fromCache, err := s.Fetcher.Fetch(ctx, s.URL)
	if err != nil {
		return nil, err
	}
	parsed, err := ParseICS(s.ID, body)
	if err != nil {
		return nil, err
	}

	to := w.To
	if to.IsZero() {
		to = w.From.Add(defaultHorizon)
	}
	res, err := Expand(parsed, ExpandConfig{RangeStart: w.From, RangeEnd: to})
	if err != nil {
		return nil, err
	}

	appLog.Info("ics source loaded",
		"id", s.ID,
		"url", RedactURL(s.URL),
		"from_cache", fromCache,
		"event_count", len(res.Events),
		"truncated", len(res.Truncated),
	)
	return res.Events, nil
}
