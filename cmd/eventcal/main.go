package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/robfig/cron/v3"

	"eventcal/internal/capture"
	"eventcal/internal/config"
	appLog "eventcal/internal/log"
	"eventcal/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	once       bool
	debug      bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	applyLogLevel(conf, flags.debug)

	appLog.Info("eventcal starting",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"week_start", conf.WeekStart,
		"refresh", conf.RefreshCron,
		"google", conf.Google.CalendarID != "",
		"ics_count", len(conf.ICS),
		"snapshot", conf.Snapshot.Enabled,
		"once", flags.once,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, conf, flags); err != nil {
		appLog.Error("eventcal stopped with error", err)
		os.Exit(1)
	}
	appLog.Info("eventcal exiting")
}

func run(ctx context.Context, conf *config.Config, flags flagConfig) error {
	sources, err := buildSources(ctx, conf)
	if err != nil {
		return err
	}
	srv := web.NewServer(conf, sources)

	ln, err := net.Listen("tcp", conf.Listen)
	if err != nil {
		return err
	}
	baseURL := localURL(ln.Addr())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ctx, ln) }()

	var current atomic.Pointer[config.Config]
	current.Store(conf)
	refresh := func() { refreshOnce(ctx, srv, current.Load(), baseURL) }

	if flags.once {
		refresh()
		cancel()
		return <-serveErr
	}

	sched := cron.New()
	if _, err := sched.AddFunc(conf.RefreshCron, refresh); err != nil {
		cancel()
		<-serveErr
		return fmt.Errorf("refresh schedule %q: %w", conf.RefreshCron, err)
	}
	sched.Start()
	defer func() { <-sched.Stop().Done() }()
	go refresh()

	go func() {
		err := config.Watch(ctx, flags.configPath, func(next *config.Config) {
			if flags.listen != "" {
				next.Listen = flags.listen
			}
			if fields := restartFields(current.Load(), next); len(fields) > 0 {
				appLog.Warn("config changes need a restart", "fields", strings.Join(fields, ","))
			}
			nextSources, err := buildSources(ctx, next)
			if err != nil {
				appLog.Error("config reload: sources", err)
				return
			}
			applyLogLevel(next, flags.debug)
			srv.Reconfigure(next, nextSources)
			current.Store(next)
		})
		if err != nil {
			appLog.Error("config watcher stopped", err)
		}
	}()

	return <-serveErr
}

// refreshOnce warms the event cache and, when enabled, re-captures the
// month view.
func refreshOnce(ctx context.Context, srv *web.Server, conf *config.Config, baseURL string) {
	srv.Warm(ctx)
	if !conf.Snapshot.Enabled {
		return
	}
	opts := capture.Options{
		URL:        baseURL + "/calendar",
		OutputPath: conf.Snapshot.OutputPath,
		Width:      conf.Snapshot.Width,
		Height:     conf.Snapshot.Height,
	}
	if conf.BasicAuth != nil {
		opts.Username = conf.BasicAuth.Username
		opts.Password = conf.BasicAuth.Password
	}
	if err := capture.Snapshot(ctx, opts); err != nil {
		appLog.Error("snapshot failed", err, "output", opts.OutputPath)
		return
	}
	appLog.Info("snapshot written", "output", opts.OutputPath)
}

// restartFields lists settings that differ between prev and next but only
// take effect at startup.
func restartFields(prev, next *config.Config) []string {
	var fields []string
	if next.Listen != prev.Listen {
		fields = append(fields, "listen")
	}
	if next.RefreshCron != prev.RefreshCron {
		fields = append(fields, "refresh")
	}
	return fields
}

func applyLogLevel(conf *config.Config, debug bool) {
	if debug {
		appLog.SetLevel(appLog.LevelDebug)
		return
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Warm the cache (and snapshot if enabled) once and exit")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()

	return cfg
}
