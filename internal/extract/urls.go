package extract

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// Iteration caps for the URL pipeline. Each decode stage stops early once a
// pass changes nothing.
const (
	maxDecodePasses   = 3
	maxUnwrapHops     = 4
	maxPipelinePasses = 4
)

// stage is one step of the URL pipeline. Stages always run in declaration
// order.
type stage int

const (
	stageEntities stage = iota
	stagePercent
	stageExtract
	stageUnwrap
	stageDone
)

var (
	tagPattern   = regexp.MustCompile(`<[^>]*>`)
	tokenPattern = regexp.MustCompile("(?i)https?://[^\\s<>\"'`]+")
	attrHint     = regexp.MustCompile(`(?i)\b(?:href|src)\s*=`)
)

// trailingJunk is trimmed off the end of bare URL tokens.
const trailingJunk = "\"'()[]{}<>.,;:!"

// Normalize runs fragment through the URL pipeline and returns the first
// URL it yields with the default host table.
func Normalize(fragment string) (string, bool) {
	return DefaultHosts.Normalize(fragment)
}

// Normalize runs fragment through the URL pipeline and returns the first
// URL it yields. Running Normalize on its own output returns it unchanged.
func (h Hosts) Normalize(fragment string) (string, bool) {
	urls := h.ExtractURLs(fragment)
	if len(urls) == 0 {
		return "", false
	}
	return urls[0], true
}

// ExtractURLs returns every URL found in text, in order and without
// duplicates. Attribute values (href/src) come before bare tokens.
func (h Hosts) ExtractURLs(text string) []string {
	found := h.pass(text)
	out := make([]string, 0, len(found))
	seen := make(map[string]bool, len(found))
	for _, u := range found {
		u = h.settle(u)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

// pass makes a single trip through all pipeline stages.
func (h Hosts) pass(text string) []string {
	var found []string
	for st := stageEntities; st != stageDone; st++ {
		switch st {
		case stageEntities:
			text = decodeEntities(text)
		case stagePercent:
			text = decodePercent(text)
		case stageExtract:
			found = candidates(text)
		case stageUnwrap:
			for i, u := range found {
				found[i] = h.unwrap(u)
			}
		}
	}
	return found
}

// settle feeds a candidate back through the pipeline until it stops
// changing. An unwrapped redirect target may itself still be encoded.
func (h Hosts) settle(u string) string {
	for i := 0; i < maxPipelinePasses; i++ {
		next := h.pass(u)
		if len(next) == 0 || next[0] == u {
			return u
		}
		u = next[0]
	}
	return u
}

func decodeEntities(s string) string {
	for i := 0; i < maxDecodePasses; i++ {
		next := html.UnescapeString(s)
		if next == s {
			break
		}
		s = next
	}
	return s
}

func decodePercent(s string) string {
	for i := 0; i < maxDecodePasses; i++ {
		next := unescapePercent(s)
		if next == s || !utf8.ValidString(next) {
			break
		}
		s = next
	}
	return s
}

// unescapePercent decodes %XX escapes in place. Malformed escapes are kept
// as-is, as are escapes for bytes that would split a URL token or change how
// a query string parses.
func unescapePercent(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) {
			hi, ok1 := unhex(s[i+1])
			lo, ok2 := unhex(s[i+2])
			if ok1 && ok2 {
				c := hi<<4 | lo
				if !keepEscaped(c) {
					b.WriteByte(c)
					i += 2
					continue
				}
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func keepEscaped(c byte) bool {
	if c <= ' ' || c == 0x7f {
		return true
	}
	switch c {
	case '"', '\'', '`', '<', '>', '&', '=', '#', '+':
		return true
	}
	return false
}

func unhex(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// candidates collects href/src attribute values first, then bare http(s)
// tokens from the tag-stripped text.
func candidates(text string) []string {
	var out []string
	if attrHint.MatchString(text) {
		out = append(out, attributeURLs(text)...)
	}
	stripped := tagPattern.ReplaceAllString(text, " ")
	for _, tok := range tokenPattern.FindAllString(stripped, -1) {
		tok = strings.TrimRight(tok, trailingJunk)
		if hasHTTPScheme(tok) && !strings.HasSuffix(tok, "//") {
			out = append(out, tok)
		}
	}
	return out
}

func attributeURLs(text string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return nil
	}
	var out []string
	doc.Find("[href], [src]").Each(func(_ int, sel *goquery.Selection) {
		for _, name := range []string{"href", "src"} {
			v, ok := sel.Attr(name)
			if !ok {
				continue
			}
			v = strings.TrimSpace(v)
			if hasHTTPScheme(v) {
				out = append(out, v)
			}
		}
	})
	return out
}

// plainText strips markup and entities from a short fragment.
func plainText(s string) string {
	s = tagPattern.ReplaceAllString(s, " ")
	s = decodeEntities(s)
	return strings.Join(strings.Fields(s), " ")
}
