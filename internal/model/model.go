package model

// RawEvent is a calendar event as delivered by a provider, before any
// display fields are derived from it. Nothing downstream writes to it.
type RawEvent struct {
	// SourceID names the configured feed the event came from.
	SourceID string `json:"source_id,omitempty"`
	// ID is the provider's stable identifier.
	ID string `json:"id"`

	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`
	Permalink   string `json:"permalink,omitempty"`

	Start *EventTime `json:"start,omitempty"`
	End   *EventTime `json:"end,omitempty"`

	Attachments []Attachment `json:"attachments,omitempty"`
}

// EventTime mirrors the provider convention: either Date (YYYY-MM-DD, whole
// day) or DateTime (RFC 3339, optionally without offset) is set. TimeZone is
// the IANA zone the provider associates with DateTime.
type EventTime struct {
	Date     string `json:"date,omitempty"`
	DateTime string `json:"dateTime,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

// IsZero reports whether neither a date nor a timestamp is present.
func (t *EventTime) IsZero() bool {
	return t == nil || (t.Date == "" && t.DateTime == "")
}

// Attachment is a file linked to an event.
type Attachment struct {
	Title    string `json:"title,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	URL      string `json:"fileUrl,omitempty"`
}

// ExtractedContent holds the display fields mined from one RawEvent.
// Empty ImageURL or TicketURL means "none"; Title is never empty.
type ExtractedContent struct {
	Title     string `json:"title"`
	ImageURL  string `json:"image_url,omitempty"`
	TicketURL string `json:"ticket_url,omitempty"`
}
