package extract

import (
	"regexp"
	"strings"
)

// Key is a recognized tag key inside an event description.
type Key string

const (
	KeyTitle   Key = "title"
	KeyImage   Key = "image"
	KeyTickets Key = "tickets"
)

// tagKeys maps the lower-cased spelling found in descriptions to its Key.
var tagKeys = map[string]Key{
	"title":   KeyTitle,
	"image":   KeyImage,
	"img":     KeyImage,
	"tickets": KeyTickets,
	"ticket":  KeyTickets,
}

// Tag is one "Key: value" line.
type Tag struct {
	// Value is the text after the colon with markup and entities removed.
	Value string
	// Line is the raw source line, markup included, for URL extraction.
	Line string
}

// Tags holds the first occurrence of each recognized key.
type Tags map[Key]Tag

// Get returns the tag for k and whether it was present.
func (t Tags) Get(k Key) (Tag, bool) {
	tag, ok := t[k]
	return tag, ok
}

var (
	lineBreakPattern = regexp.MustCompile(`(?i)<br\s*/?>|</(?:p|div|li|h[1-6])\s*>`)
	tagLinePattern   = regexp.MustCompile(`^([A-Za-z]+)\s*:\s*(.*)$`)
)

// ParseTags scans description once and returns its recognized tag lines.
// Keys are matched case-insensitively at the start of a line; the first
// non-empty value for a key wins.
func ParseTags(description string) Tags {
	tags := make(Tags)
	for _, line := range splitLines(description) {
		key, value, ok := matchTagLine(line)
		if !ok || value == "" {
			continue
		}
		if _, seen := tags[key]; seen {
			continue
		}
		tags[key] = Tag{Value: value, Line: line}
	}
	return tags
}

func matchTagLine(line string) (Key, string, bool) {
	m := tagLinePattern.FindStringSubmatch(plainText(line))
	if m == nil {
		return "", "", false
	}
	key, ok := tagKeys[strings.ToLower(m[1])]
	if !ok {
		return "", "", false
	}
	return key, strings.TrimSpace(m[2]), true
}

// splitLines breaks description on newlines and on the HTML elements
// calendar editors use as line breaks.
func splitLines(description string) []string {
	if description == "" {
		return nil
	}
	s := strings.ReplaceAll(description, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = lineBreakPattern.ReplaceAllString(s, "\n")
	return strings.Split(s, "\n")
}

// firstTextLine returns the first line that is neither blank, markup nor a
// tag line, with entities decoded.
func firstTextLine(description string) (string, bool) {
	for _, line := range splitLines(description) {
		raw := strings.TrimSpace(line)
		if raw == "" || tagPattern.MatchString(raw) {
			continue
		}
		if _, _, isTag := matchTagLine(raw); isTag {
			continue
		}
		if text := plainText(raw); text != "" {
			return text, true
		}
	}
	return "", false
}
