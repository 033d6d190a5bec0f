package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"eventcal/internal/config"
	"eventcal/internal/extract"
	"eventcal/internal/feed"
	appLog "eventcal/internal/log"
	"eventcal/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

var errNoSources = errors.New("no calendar sources configured")

// Server serves the JSON API and the HTML views along with the last PNG
// capture.
type Server struct {
	mux   *http.ServeMux
	pages *template.Template
	cache *eventCache

	// now is swapped in tests.
	now func() time.Time

	mu        sync.RWMutex
	cfg       *config.Config
	sources   []feed.Source
	extractor *extract.Extractor
	loc       *time.Location
}

// NewServer constructs a Server over the given sources.
func NewServer(cfg *config.Config, sources []feed.Source) *Server {
	s := &Server{
		mux:   http.NewServeMux(),
		pages: template.Must(template.ParseFS(templateFS, "templates/*.html")),
		cache: newEventCache(cfg.CacheTTL()),
		now:   time.Now,
	}
	s.apply(cfg, sources)
	s.registerRoutes()
	return s
}

// Reconfigure swaps configuration and sources and drops cached results.
func (s *Server) Reconfigure(cfg *config.Config, sources []feed.Source) {
	s.apply(cfg, sources)
	s.cache.reset(cfg.CacheTTL())
}

func (s *Server) apply(cfg *config.Config, sources []feed.Source) {
	hosts := extract.DefaultHosts.With(cfg.Hosts.ImageCDNs, cfg.Hosts.ProviderDomains)
	s.mu.Lock()
	s.cfg = cfg
	s.sources = sources
	s.extractor = extract.New(hosts)
	s.loc = cfg.Location()
	s.mu.Unlock()
}

type state struct {
	cfg       *config.Config
	sources   []feed.Source
	extractor *extract.Extractor
	loc       *time.Location
}

func (s *Server) current() state {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return state{cfg: s.cfg, sources: s.sources, extractor: s.extractor, loc: s.loc}
}

// Handler returns the root handler with auth and instrumentation applied.
func (s *Server) Handler() http.Handler {
	return instrument(s.basicAuth(s.mux))
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("GET /api/calendar", s.handleCalendar)
	s.mux.HandleFunc("GET /events", s.handleEventsPage)
	s.mux.HandleFunc("GET /calendar", s.handleCalendarPage)
	s.mux.HandleFunc("GET /preview.png", s.handlePreview)
	s.mux.Handle("GET /metrics", promhttp.Handler())
	s.mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/events", http.StatusFound)
	})
}

// basicAuth guards every path except /health when credentials are set.
// Credentials are read per request so a reload takes effect immediately.
func (s *Server) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := s.current().cfg.BasicAuth
		if auth == nil || auth.Username == "" || auth.Password == "" || r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, auth.Username) || !secureCompare(p, auth.Password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="eventcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Serve accepts connections on ln until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

// load returns merged events for w, from cache when fresh.
func (s *Server) load(ctx context.Context, st state, w feed.Window) ([]model.RawEvent, []error) {
	if len(st.sources) == 0 {
		return nil, []error{errNoSources}
	}
	now := s.now()
	if e, ok := s.cache.get(w, now); ok {
		return e.events, e.errs
	}
	events, errs := feed.Merge(ctx, st.sources, w, st.loc)
	sourceErrors.Add(float64(len(errs)))
	if ctx.Err() == nil {
		s.cache.put(w, cacheEntry{events: events, errs: errs, updatedAt: now})
	}
	return events, errs
}

// Warm fills the cache for the upcoming list and the current month.
func (s *Server) Warm(ctx context.Context) {
	st := s.current()
	now := s.now()
	up, upErrs := s.load(ctx, st, upcomingWindow(st, now, 0))
	cal, calErrs := s.load(ctx, st, monthWindow(st, now).Window)
	appLog.Info("cache warmed",
		"upcoming", len(up),
		"month", len(cal),
		"errors", len(upErrs)+len(calErrs),
	)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, s.current().cfg.Snapshot.OutputPath)
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.pages.ExecuteTemplate(w, name, data); err != nil {
		appLog.Error("template render failed", err, "template", name)
	}
}
