// Package extract derives display fields (title, image, ticket link) from
// the loosely structured text of a calendar event.
//
// Nothing here returns an error: every lookup that cannot be satisfied falls
// back to the next source in its priority list, ending in a fixed default.
package extract

import (
	"strings"

	"eventcal/internal/model"
)

// Untitled is the title used when an event carries no usable text at all.
const Untitled = "Untitled event"

// Extractor resolves ExtractedContent against a host table. The zero value
// is not usable; call New.
type Extractor struct {
	hosts Hosts
}

func New(hosts Hosts) *Extractor {
	return &Extractor{hosts: hosts}
}

var defaultExtractor = New(DefaultHosts)

// Extract resolves ev with DefaultHosts.
func Extract(ev model.RawEvent) model.ExtractedContent {
	return defaultExtractor.Extract(ev)
}

// Extract derives the display fields of ev. It is safe for concurrent use.
func (x *Extractor) Extract(ev model.RawEvent) model.ExtractedContent {
	tags := ParseTags(ev.Description)

	var descURLs []string
	if ev.Description != "" {
		descURLs = x.hosts.ExtractURLs(ev.Description)
	}

	return model.ExtractedContent{
		Title:     resolveTitle(ev, tags),
		ImageURL:  x.resolveImage(ev, tags, descURLs),
		TicketURL: x.resolveTicket(ev, tags, descURLs),
	}
}

// Title order: Title tag, title field, first plain description line,
// Untitled.
func resolveTitle(ev model.RawEvent, tags Tags) string {
	if tag, ok := tags.Get(KeyTitle); ok {
		return tag.Value
	}
	if t := strings.TrimSpace(ev.Title); t != "" {
		return t
	}
	if line, ok := firstTextLine(ev.Description); ok {
		return line
	}
	return Untitled
}

// Image order: first image attachment, Image tag, first image-like
// description URL.
func (x *Extractor) resolveImage(ev model.RawEvent, tags Tags, descURLs []string) string {
	for _, a := range ev.Attachments {
		u := strings.TrimSpace(a.URL)
		if u != "" && strings.HasPrefix(strings.ToLower(a.MimeType), "image/") {
			return u
		}
	}
	if tag, ok := tags.Get(KeyImage); ok {
		if u, found := x.hosts.Normalize(tag.Line); found && x.hosts.ImageLike(u) {
			return u
		}
	}
	for _, u := range descURLs {
		if x.hosts.ImageLike(u) {
			return u
		}
	}
	return ""
}

// Ticket order: Tickets tag, first non-provider description URL, permalink.
func (x *Extractor) resolveTicket(ev model.RawEvent, tags Tags, descURLs []string) string {
	if tag, ok := tags.Get(KeyTickets); ok {
		if u, found := x.hosts.Normalize(tag.Line); found {
			return u
		}
	}
	for _, u := range descURLs {
		if !x.hosts.IsProvider(u) {
			return u
		}
	}
	return strings.TrimSpace(ev.Permalink)
}
