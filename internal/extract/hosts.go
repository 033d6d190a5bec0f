package extract

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// Redirector describes a URL whose only job is forwarding to another URL
// carried in one of its query parameters.
type Redirector struct {
	// Domain matches the host itself and any subdomain of it.
	Domain string
	// Path must equal the URL path; empty matches any path.
	Path string
	// Params are tried in order; the first http(s) value wins.
	Params []string
}

// Hosts is the configuration table behind the host heuristics: which hosts
// serve images without a file extension, which hosts belong to the calendar
// provider itself, and which URLs are redirectors to unwrap.
type Hosts struct {
	ImageCDNs       []string
	ProviderDomains []string
	Redirectors     []Redirector
}

var imageExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".webp", ".svg"}

// DefaultHosts targets a Google Calendar feed.
var DefaultHosts = Hosts{
	ImageCDNs: []string{
		"googleusercontent.com",
		"images.unsplash.com",
		"i.imgur.com",
		"img.evbuc.com",
		"cdn.evbuc.com",
		"fbcdn.net",
	},
	ProviderDomains: []string{
		"google.com",
	},
	Redirectors: []Redirector{
		{Domain: "google.com", Path: "/url", Params: []string{"q", "url"}},
		{Domain: "google.com", Path: "/imgres", Params: []string{"imgurl"}},
		{Domain: "l.facebook.com", Params: []string{"u"}},
		{Domain: "lm.facebook.com", Params: []string{"u"}},
		{Domain: "l.instagram.com", Params: []string{"u"}},
		{Domain: "l.messenger.com", Params: []string{"u"}},
	},
}

// With returns a copy of h with extra CDN and provider domains appended.
// Blank entries are ignored.
func (h Hosts) With(imageCDNs, providerDomains []string) Hosts {
	out := Hosts{
		ImageCDNs:       appendDomains(append([]string(nil), h.ImageCDNs...), imageCDNs),
		ProviderDomains: appendDomains(append([]string(nil), h.ProviderDomains...), providerDomains),
		Redirectors:     append([]Redirector(nil), h.Redirectors...),
	}
	return out
}

func appendDomains(dst, extra []string) []string {
	for _, d := range extra {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			dst = append(dst, d)
		}
	}
	return dst
}

// IsProvider reports whether rawURL points at the calendar provider's own
// domain.
func (h Hosts) IsProvider(rawURL string) bool {
	host, ok := hostOf(rawURL)
	if !ok {
		return false
	}
	return matchAny(host, h.ProviderDomains)
}

// ImageLike reports whether rawURL plausibly serves an image: its path ends
// in a known image extension or its host is a known image CDN. Provider
// hosts never qualify.
func (h Hosts) ImageLike(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if matchAny(host, h.ProviderDomains) {
		return false
	}
	ext := strings.ToLower(path.Ext(u.Path))
	for _, e := range imageExtensions {
		if ext == e {
			return true
		}
	}
	return matchAny(host, h.ImageCDNs)
}

// unwrap returns the redirect target of rawURL, or rawURL unchanged when it
// is not a known redirector.
func (h Hosts) unwrap(rawURL string) string {
	for hop := 0; hop < maxUnwrapHops; hop++ {
		next, ok := h.unwrapOnce(rawURL)
		if !ok || next == rawURL {
			break
		}
		rawURL = next
	}
	return rawURL
}

func (h Hosts) unwrapOnce(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", false
	}
	host := strings.ToLower(u.Hostname())
	for _, r := range h.Redirectors {
		if !matchDomain(host, r.Domain) {
			continue
		}
		if r.Path != "" && u.Path != r.Path {
			continue
		}
		q := u.Query()
		for _, p := range r.Params {
			if v := strings.TrimSpace(q.Get(p)); hasHTTPScheme(v) {
				return escapeBreaking(v), true
			}
		}
	}
	return "", false
}

// escapeBreaking re-encodes bytes that would cut a URL token short. Query
// decoding turns %20 back into a space; the target must stay one token.
func escapeBreaking(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c <= ' ' || c == 0x7f || strings.IndexByte("\"'`<>", c) >= 0 {
			fmt.Fprintf(&b, "%%%02X", c)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func hostOf(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", false
	}
	return strings.ToLower(u.Hostname()), true
}

func matchAny(host string, domains []string) bool {
	for _, d := range domains {
		if matchDomain(host, d) {
			return true
		}
	}
	return false
}

func matchDomain(host, domain string) bool {
	domain = strings.ToLower(domain)
	return host == domain || strings.HasSuffix(host, "."+domain)
}

func hasHTTPScheme(s string) bool {
	l := strings.ToLower(s)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}
