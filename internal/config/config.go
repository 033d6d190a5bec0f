package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultListen         = "127.0.0.1:8080"
	defaultRefresh        = "*/15 * * * *"
	defaultMaxResults     = 24
	defaultGridMaxResults = 2500
	defaultCacheTTL       = 30
	defaultSnapshotWidth  = 1200
	defaultSnapshotHeight = 900
)

// ICSConfig describes a single ICS subscription source.
type ICSConfig struct {
	// ID is used for logging and as the event SourceID.
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
	URL  string `yaml:"url" json:"url"`
}

// GoogleConfig selects a public Google Calendar. An empty CalendarID
// disables the source.
type GoogleConfig struct {
	APIKey     string `yaml:"api_key" json:"-" env:"GOOGLE_API_KEY"`
	CalendarID string `yaml:"calendar_id" json:"calendar_id" env:"GOOGLE_CALENDAR_ID"`
	// MaxResults bounds the upcoming list; GridMaxResults bounds one month.
	MaxResults     int `yaml:"max_results" json:"max_results"`
	GridMaxResults int `yaml:"grid_max_results" json:"grid_max_results"`
}

// HostsConfig extends the built-in URL host tables.
type HostsConfig struct {
	ImageCDNs       []string `yaml:"image_cdns" json:"image_cdns"`
	ProviderDomains []string `yaml:"provider_domains" json:"provider_domains"`
}

// SnapshotConfig controls the headless-browser PNG of the month view.
type SnapshotConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	OutputPath string `yaml:"output_path" json:"output_path"`
	Width      int    `yaml:"width" json:"width"`
	Height     int    `yaml:"height" json:"height"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"-"`
}

// Config is the top-level application configuration.
type Config struct {
	Listen string `yaml:"listen" json:"listen" env:"EVENTCAL_LISTEN"`

	// Timezone is the IANA zone calendar days are computed in.
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart is "sunday" (default) or "monday".
	WeekStart string `yaml:"week_start" json:"week_start"`

	// RefreshCron is a 5-field cron schedule for cache warm-up.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	Google GoogleConfig `yaml:"google" json:"google"`
	ICS    []ICSConfig  `yaml:"ics" json:"ics"`

	CacheDir        string `yaml:"cache_dir" json:"cache_dir"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds" json:"cache_ttl_seconds"`

	Hosts    HostsConfig    `yaml:"hosts" json:"hosts"`
	Snapshot SnapshotConfig `yaml:"snapshot" json:"snapshot"`

	// BasicAuth, if non-nil, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	c := &Config{}
	c.Normalize()
	return c
}

// Normalize fills zero values with defaults so partial files behave.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	switch strings.ToLower(strings.TrimSpace(c.WeekStart)) {
	case "monday":
		c.WeekStart = "monday"
	default:
		c.WeekStart = "sunday"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefresh
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Google.MaxResults <= 0 {
		c.Google.MaxResults = defaultMaxResults
	}
	if c.Google.GridMaxResults <= 0 {
		c.Google.GridMaxResults = defaultGridMaxResults
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
	for i := range c.ICS {
		if c.ICS[i].ID == "" {
			c.ICS[i].ID = fmt.Sprintf("ics-%d", i+1)
		}
	}
	if c.CacheDir == "" {
		c.CacheDir = "./var/ics-cache"
	}
	if c.CacheTTLSeconds <= 0 {
		c.CacheTTLSeconds = defaultCacheTTL
	}
	if c.Snapshot.OutputPath == "" {
		c.Snapshot.OutputPath = "./var/calendar.png"
	}
	if c.Snapshot.Width <= 0 {
		c.Snapshot.Width = defaultSnapshotWidth
	}
	if c.Snapshot.Height <= 0 {
		c.Snapshot.Height = defaultSnapshotHeight
	}
}

// Location resolves Timezone, falling back to UTC when it is unknown.
func (c *Config) Location() *time.Location {
	if loc, err := time.LoadLocation(c.Timezone); err == nil {
		return loc
	}
	return time.UTC
}

// FirstWeekday maps WeekStart onto time.Weekday.
func (c *Config) FirstWeekday() time.Weekday {
	if c.WeekStart == "monday" {
		return time.Monday
	}
	return time.Sunday
}

// CacheTTL is CacheTTLSeconds as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// Validate reports settings that cannot be defaulted away.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	seen := make(map[string]bool, len(c.ICS))
	for _, s := range c.ICS {
		if strings.TrimSpace(s.URL) == "" {
			return fmt.Errorf("config: ics source %q has no url", s.ID)
		}
		if seen[s.ID] {
			return fmt.Errorf("config: duplicate ics id %q", s.ID)
		}
		seen[s.ID] = true
	}
	if c.BasicAuth != nil && c.BasicAuth.Username == "" {
		return errors.New("config: basic_auth requires a username")
	}
	return nil
}

// Load reads the YAML file at path and overlays environment variables.
// A missing file is created with defaults first.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		cfg = *DefaultConfig()
		if err := Save(path, &cfg); err != nil {
			return &cfg, err
		}
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: env: %w", err)
	}
	cfg.Normalize()
	return &cfg, nil
}

// Save writes cfg to path atomically with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}
	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".eventcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
