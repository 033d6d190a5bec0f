package main

import (
	"context"
	"net"
	"strconv"

	"eventcal/internal/config"
	"eventcal/internal/feed"
	"eventcal/internal/gcal"
	"eventcal/internal/ics"
	appLog "eventcal/internal/log"
)

// buildSources turns configuration into calendar providers: Google first
// when a calendar id is set, then every ICS subscription.
func buildSources(ctx context.Context, conf *config.Config) ([]feed.Source, error) {
	sources := make([]feed.Source, 0, len(conf.ICS)+1)

	if conf.Google.CalendarID != "" {
		client, err := gcal.New(ctx, conf.Google.APIKey, conf.Google.CalendarID)
		if err != nil {
			return nil, err
		}
		sources = append(sources, client)
	}

	fetcher := ics.NewFetcher(conf.CacheDir, nil)
	for _, c := range conf.ICS {
		sources = append(sources, &ics.Source{ID: c.ID, URL: c.URL, Fetcher: fetcher})
	}

	if len(sources) == 0 {
		appLog.Warn("no calendar sources configured; pages will be empty")
	}
	return sources, nil
}

// localURL is the loopback base URL the snapshot browser uses to reach ln.
func localURL(addr net.Addr) string {
	host, port := "127.0.0.1", ""
	if tcp, ok := addr.(*net.TCPAddr); ok {
		port = strconv.Itoa(tcp.Port)
		if tcp.IP != nil && !tcp.IP.IsUnspecified() {
			host = tcp.IP.String()
		}
	} else if h, p, err := net.SplitHostPort(addr.String()); err == nil {
		port = p
		if h != "" && h != "0.0.0.0" && h != "::" {
			host = h
		}
	}
	return "http://" + net.JoinHostPort(host, port)
}
