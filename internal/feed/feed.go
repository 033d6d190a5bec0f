// Package feed defines where raw events come from and merges several
// providers into one ordered list.
package feed

import (
	"context"
	"fmt"
	"time"

	"eventcal/internal/calendar"
	appLog "eventcal/internal/log"
	"eventcal/internal/model"
)

// Window bounds a query against a provider. A zero To means open-ended; a
// non-positive Limit means no limit.
type Window struct {
	From  time.Time
	To    time.Time
	Limit int
}

// Source is a calendar provider that can list raw events in a window.
type Source interface {
	Name() string
	Events(ctx context.Context, w Window) ([]model.RawEvent, error)
}

// Merge queries every source, sorts the union by start in loc and applies
// w.Limit. A failing source is logged and skipped; its error is returned in
// the slice so callers can surface partial results.
func Merge(ctx context.Context, sources []Source, w Window, loc *time.Location) ([]model.RawEvent, []error) {
	all := make([]model.RawEvent, 0)
	errs := make([]error, 0)

	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		events, err := src.Events(ctx, w)
		if err != nil {
			appLog.Error("feed source failed", err, "source", src.Name())
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
			continue
		}
		appLog.Debug("feed source loaded", "source", src.Name(), "event_count", len(events))
		all = append(all, events...)
	}

	all = calendar.SortByStart(all, loc)
	if w.Limit > 0 && len(all) > w.Limit {
		all = all[:w.Limit]
	}
	return all, errs
}
