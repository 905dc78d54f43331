// Package main is the entry point for the asyncevent demo server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dshills/asyncevent/internal/config"
	"github.com/dshills/asyncevent/internal/events"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// options holds the command line flags.
type options struct {
	ConfigPath string
	PluginsDir string
	Event      string
	Count      int
	Rate       float64
	Timeout    time.Duration
	Watch      bool
}

func main() {
	os.Exit(run())
}

func run() int {
	opts := parseFlags()

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		return 1
	}
	if opts.PluginsDir != "" {
		cfg.Plugins.Dir = opts.PluginsDir
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize: %v\n", err)
		return 1
	}

	// Ensure cleanup on all exit paths
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.shutdown(shutdownCtx)
	}()

	if cfg.Plugins.Dir != "" {
		// Broken plugins are logged and skipped; the rest keep running.
		_ = a.loadPlugins(ctx, cfg.Plugins.Dir)
	}

	failed := 0
	if opts.Count > 0 {
		failed = a.dispatch(ctx, os.Stdout, opts.Event, opts.Count, opts.Rate, opts.Timeout)
	}

	if opts.Watch {
		if err := a.watch(ctx, opts.ConfigPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}

	if failed > 0 {
		return 1
	}
	return 0
}

func parseFlags() options {
	var opts options
	var showVersion bool
	var showHelp bool

	flag.StringVar(&opts.ConfigPath, "config", "", "Path to configuration file")
	flag.StringVar(&opts.ConfigPath, "c", "", "Path to configuration file (shorthand)")
	flag.StringVar(&opts.PluginsDir, "plugins", "", "Plugin directory (overrides plugins.dir)")
	flag.StringVar(&opts.Event, "event", events.NamePlayerJoin, "Name of the event to dispatch")
	flag.StringVar(&opts.Event, "e", events.NamePlayerJoin, "Name of the event to dispatch (shorthand)")
	flag.IntVar(&opts.Count, "count", 1, "Number of events to dispatch")
	flag.IntVar(&opts.Count, "n", 1, "Number of events to dispatch (shorthand)")
	flag.Float64Var(&opts.Rate, "rate", 0, "Maximum events dispatched per second (0 = unlimited)")
	flag.DurationVar(&opts.Timeout, "timeout", 10*time.Second, "How long to wait for each dispatch")
	flag.BoolVar(&opts.Watch, "watch", false, "Keep running and apply config changes until interrupted")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")
	flag.BoolVar(&showHelp, "help", false, "Show help message")
	flag.BoolVar(&showHelp, "h", false, "Show help message (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "asyncevent - tiered asynchronous event dispatch\n\n")
		fmt.Fprintf(os.Stderr, "Usage: asyncevent [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  asyncevent -plugins ./plugins               Dispatch one player.join\n")
		fmt.Fprintf(os.Stderr, "  asyncevent -e chest.pair -n 100 -rate 20    Dispatch 100 chest.pair events at 20/s\n")
		fmt.Fprintf(os.Stderr, "  asyncevent -c asyncevent.toml -n 0 -watch   Run and follow config changes\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if showVersion {
		fmt.Printf("asyncevent %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		os.Exit(0)
	}

	if opts.Count < 0 {
		fmt.Fprintf(os.Stderr, "Error: count must not be negative, got %d\n", opts.Count)
		os.Exit(1)
	}
	if opts.Watch && opts.ConfigPath == "" {
		fmt.Fprintf(os.Stderr, "Error: -watch requires -config\n")
		os.Exit(1)
	}

	return opts
}
