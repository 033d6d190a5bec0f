package ics

import (
	"errors"
	"math"
	"time"

	"github.com/teambition/rrule-go"

	appLog "eventcal/internal/log"
	"eventcal/internal/model"
)

const defaultMaxOccurrences = 500

// ExpandConfig bounds recurrence expansion.
type ExpandConfig struct {
	RangeStart time.Time
	RangeEnd   time.Time
	// MaxOccurrences caps instances per recurring event; zero means
	// defaultMaxOccurrences.
	MaxOccurrences int
}

// ExpandResult holds the concrete instances and the UIDs that hit the cap.
type ExpandResult struct {
	Events    []model.RawEvent
	Truncated []string
}

// Expand turns parsed VEVENTs into one RawEvent per instance overlapping
// [RangeStart, RangeEnd]. RRULE, EXDATE and RECURRENCE-ID overrides are
// honored.
func Expand(events []ParsedEvent, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult
	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, errors.New("ics: range end before range start")
	}
	if cfg.MaxOccurrences <= 0 {
		cfg.MaxOccurrences = defaultMaxOccurrences
	}

	overrides := make(map[string][]ParsedEvent)
	for _, ev := range events {
		if ev.IsOverride() {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
		}
	}

	for _, ev := range events {
		if ev.IsOverride() {
			continue
		}
		if ev.RawRRule == "" {
			if overlaps(ev.Start, ev.End, cfg.RangeStart, cfg.RangeEnd) {
				result.Events = append(result.Events, toRawEvent(ev, ev.Start, ev.End, false))
			}
			continue
		}
		instances, capped := expandRecurring(ev, overrides[ev.UID], cfg)
		result.Events = append(result.Events, instances...)
		if capped {
			result.Truncated = append(result.Truncated, ev.UID)
			appLog.Warn("ics: recurrence truncated", "uid", ev.UID, "cap", cfg.MaxOccurrences)
		}
	}

	// Overrides whose parent is outside the feed still describe a real
	// instance.
	for uid, ovs := range overrides {
		if hasBase(events, uid) {
			continue
		}
		for _, ov := range ovs {
			if overlaps(ov.Start, ov.End, cfg.RangeStart, cfg.RangeEnd) {
				result.Events = append(result.Events, toRawEvent(ov, ov.Start, ov.End, true))
			}
		}
	}

	return result, nil
}

func expandRecurring(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]model.RawEvent, bool) {
	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("ics: bad RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return nil, false
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	dur := ev.End.Sub(ev.Start)
	// Look back by one duration so instances already running at RangeStart
	// are included.
	from := cfg.RangeStart.Add(-dur).In(ev.Start.Location())
	to := cfg.RangeEnd.In(ev.Start.Location())
	starts := set.Between(from, to, true)

	capped := false
	if len(starts) > cfg.MaxOccurrences {
		starts = starts[:cfg.MaxOccurrences]
		capped = true
	}

	out := make([]model.RawEvent, 0, len(starts))
	for _, s := range starts {
		inst, instStart, instEnd := ev, s, s.Add(dur)
		if ev.AllDay {
			instStart = time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, s.Location())
			instEnd = instStart.AddDate(0, 0, int(math.Round(dur.Hours()/24)))
		}
		for _, ov := range overrides {
			if ov.Recurrence.Equal(s) {
				inst, instStart, instEnd = ov, ov.Start, ov.End
				break
			}
		}
		out = append(out, toRawEvent(inst, instStart, instEnd, true))
	}
	return out, capped
}

func hasBase(events []ParsedEvent, uid string) bool {
	for _, ev := range events {
		if ev.UID == uid && !ev.IsOverride() {
			return true
		}
	}
	return false
}

// toRawEvent renders one instance in the provider-neutral shape. All-day
// ends are exclusive in iCalendar and become the inclusive last day.
func toRawEvent(ev ParsedEvent, start, end time.Time, recurring bool) model.RawEvent {
	id := ev.UID
	if recurring {
		id = ev.UID + "_" + start.UTC().Format("20060102T150405Z")
	}
	out := model.RawEvent{
		SourceID:    ev.SourceID,
		ID:          id,
		Title:       ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		Permalink:   ev.URL,
		Attachments: ev.Attachments,
	}
	if ev.AllDay {
		last := end.AddDate(0, 0, -1)
		if last.Before(start) {
			last = start
		}
		out.Start = &model.EventTime{Date: start.Format("2006-01-02")}
		out.End = &model.EventTime{Date: last.Format("2006-01-02")}
		return out
	}
	out.Start = timestamp(start)
	if end.After(start) {
		out.End = timestamp(end)
	}
	return out
}

func timestamp(t time.Time) *model.EventTime {
	et := &model.EventTime{DateTime: t.Format(time.RFC3339)}
	if name := t.Location().String(); name != "Local" && name != "UTC" {
		et.TimeZone = name
	}
	return et
}

func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	if aEnd.Before(aStart) {
		aEnd = aStart
	}
	return !aEnd.Before(bStart) && !bEnd.Before(aStart)
}
