package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dshills/asyncevent/internal/config"
	"github.com/dshills/asyncevent/internal/event"
	"github.com/dshills/asyncevent/internal/events"
	"github.com/dshills/asyncevent/internal/logging"
	"github.com/dshills/asyncevent/internal/loop"
	"github.com/dshills/asyncevent/internal/plugin"
	"github.com/dshills/asyncevent/internal/promise"
	"github.com/dshills/asyncevent/internal/telemetry"
	"golang.org/x/time/rate"
)

// app wires the dispatcher and its collaborators together.
type app struct {
	level     *slog.LevelVar
	logger    *slog.Logger
	telemetry *telemetry.Provider
	types     *event.Types
	registry  *event.Registry
	loop      *loop.Loop
	depth     *event.DepthGuard
	d         *event.Dispatcher
	plugins   *plugin.Manager
}

func newApp(ctx context.Context, cfg *config.Config, logOut io.Writer) (*app, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	a := &app{level: new(slog.LevelVar)}
	a.level.Set(level)
	a.logger = logging.New(logOut, logging.Options{
		Level:   a.level,
		Format:  format,
		Service: cfg.Telemetry.ServiceName,
	})

	a.telemetry, err = telemetry.Init(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		ServiceName: cfg.Telemetry.ServiceName,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		SampleRatio: cfg.Telemetry.SampleRatio,
		ResourceAttributes: map[string]string{
			"service.version": version,
		},
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}
	timings, err := telemetry.NewTimings(a.telemetry.Tracer, a.telemetry.Meter)
	if err != nil {
		a.telemetry.Shutdown(ctx)
		return nil, fmt.Errorf("creating dispatch instruments: %w", err)
	}

	a.types = event.NewTypes()
	if err := events.RegisterAll(a.types); err != nil {
		a.telemetry.Shutdown(ctx)
		return nil, err
	}
	a.registry = event.NewRegistry()

	// Nesting is counted process-wide, so reloads adjust the shared guard.
	a.depth = event.GlobalDepth()
	a.depth.SetMax(cfg.Dispatch.MaxDepth)

	opts := []event.Option{
		event.WithDepthGuard(a.depth),
		event.WithTimings(timings),
		event.WithLogger(a.logger.With("component", "dispatcher")),
		event.WithTypes(a.types),
	}
	if cfg.Dispatch.Scheduler == config.SchedulerLoop {
		a.loop = loop.New(
			loop.WithQueueSize(cfg.Dispatch.QueueSize),
			loop.WithLogger(a.logger.With("component", "loop")),
		)
		if err := a.loop.Start(); err != nil {
			a.telemetry.Shutdown(ctx)
			return nil, err
		}
		opts = append(opts, event.WithScheduler(a.loop))
	}
	a.d = event.NewDispatcher(a.registry, opts...)

	a.plugins = plugin.NewManager(a.registry, a.types,
		plugin.WithLogger(a.logger.With("component", "plugins")),
	)

	a.logger.Info("asyncevent started",
		"version", version,
		"scheduler", cfg.Dispatch.Scheduler,
		"max_depth", cfg.Dispatch.MaxDepth,
		"event_types", len(a.types.Names()),
	)
	return a, nil
}

// loadPlugins loads every plugin under dir, logging the ones that fail.
func (a *app) loadPlugins(ctx context.Context, dir string) error {
	loaded, err := a.plugins.LoadDir(ctx, dir)
	if err != nil {
		a.logger.Warn("some plugins failed to load", "dir", dir, "error", err)
	}
	a.logger.Info("plugins loaded", "dir", dir, "count", len(loaded), "listeners", a.registry.Count())
	return err
}

// dispatch sends count sample events named name, at most rps per second
// when rps is positive, and writes a line per event to out as each one
// completes. It returns the number of dispatches that failed.
//
// In-flight dispatches still hold a depth slot for their event type, so at
// most half the ceiling run at once; the rest stays free for nested
// dispatches made by handlers.
func (a *app) dispatch(ctx context.Context, out io.Writer, name string, count int, rps float64, timeout time.Duration) int {
	start := time.Now()

	limiter := rate.NewLimiter(rate.Inf, 1)
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	window := max(1, a.depth.Max()/2)

	type pending struct {
		seq int
		ev  any
		p   *promise.Promise[any]
	}
	var inFlight []pending
	failed := 0

	report := func(pd pending) {
		waitCtx, cancel := context.WithTimeout(ctx, timeout)
		_, err := pd.p.Wait(waitCtx)
		cancel()

		switch {
		case errors.Is(err, context.DeadlineExceeded):
			failed++
			fmt.Fprintf(out, "%s #%d: still pending after %s\n", name, pd.seq, timeout)
		case err != nil:
			failed++
			fmt.Fprintf(out, "%s #%d: failed: %v\n", name, pd.seq, err)
		default:
			fmt.Fprintf(out, "%s #%d: %s %v\n", name, pd.seq, outcome(pd.ev), pd.ev)
		}
	}

	sent := 0
	for i := 0; i < count; i++ {
		if len(inFlight) >= window {
			report(inFlight[0])
			inFlight = inFlight[1:]
		}
		if err := limiter.Wait(ctx); err != nil {
			fmt.Fprintf(out, "%s: stopped after %d events: %v\n", name, i, err)
			break
		}
		ev, err := events.Sample(a.types, name, i)
		if err != nil {
			fmt.Fprintf(out, "%s: %v\n", name, err)
			failed += count - i
			break
		}
		inFlight = append(inFlight, pending{seq: i, ev: ev, p: a.start(ctx, ev)})
		sent++
	}
	for _, pd := range inFlight {
		report(pd)
	}

	stats := a.d.Stats()
	a.logger.Info("dispatch finished",
		"event", name,
		"sent", sent,
		"failed", failed,
		"elapsed", time.Since(start),
		"handlers_invoked", stats.HandlersInvoked,
		"recursion_rejected", stats.RecursionRejected,
	)
	return failed
}

// start dispatches ev. With an event loop the dispatch begins on the loop
// goroutine, so every listener pass runs there.
func (a *app) start(ctx context.Context, ev any) *promise.Promise[any] {
	if a.loop == nil {
		return a.d.Dispatch(ctx, ev)
	}

	r := promise.NewResolver[any]()
	err := a.loop.Schedule(func() {
		a.d.Dispatch(ctx, ev).OnCompletion(r.Resolve, r.Reject)
	})
	if err != nil {
		return promise.Rejected[any](fmt.Errorf("scheduling dispatch: %w", err))
	}
	return r.Promise()
}

func outcome(ev any) string {
	if c, ok := ev.(event.Cancellable); ok && c.IsCancelled() {
		return "cancelled"
	}
	return "ok"
}

// watch applies config reloads until ctx is done.
func (a *app) watch(ctx context.Context, path string) error {
	w, err := config.NewWatcher(path, config.WithWatcherLogger(a.logger.With("component", "config")))
	if err != nil {
		return fmt.Errorf("watching config: %w", err)
	}
	defer func() { _ = w.Close() }()

	w.OnChange(func(cfg *config.Config, err error) {
		if err != nil {
			a.logger.Error("config reload rejected", "path", path, "error", err)
			return
		}
		a.apply(cfg)
	})

	a.logger.Info("watching config", "path", path)
	<-ctx.Done()
	return nil
}

// apply updates the settings that can change while running. Others need a
// restart.
func (a *app) apply(cfg *config.Config) {
	if level, err := logging.ParseLevel(cfg.Logging.Level); err == nil && level != a.level.Level() {
		a.level.Set(level)
		a.logger.Info("log level changed", "level", level)
	}
	if cfg.Dispatch.MaxDepth != a.depth.Max() {
		a.depth.SetMax(cfg.Dispatch.MaxDepth)
		a.logger.Info("max depth changed", "max_depth", cfg.Dispatch.MaxDepth)
	}
}

func (a *app) shutdown(ctx context.Context) {
	if err := a.plugins.Close(); err != nil {
		a.logger.Error("closing plugins", "error", err)
	}
	if a.loop != nil {
		if err := a.loop.Stop(ctx); err != nil {
			a.logger.Error("stopping event loop", "error", err)
		}
	}
	a.telemetry.Shutdown(ctx)
}
