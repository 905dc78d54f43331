// Package config loads asyncevent configuration.
//
// Settings come from three layers, later layers overriding earlier ones:
// built-in defaults, a TOML file and ASYNCEVENT_* environment variables.
package config

import (
	"strings"

	"github.com/dshills/asyncevent/internal/event"
	"github.com/dshills/asyncevent/internal/logging"
)

// Scheduler names accepted in dispatch.scheduler.
const (
	SchedulerInline = "inline"
	SchedulerLoop   = "loop"
)

// Config is the complete asyncevent configuration.
type Config struct {
	Dispatch  DispatchConfig  `toml:"dispatch"`
	Logging   LoggingConfig   `toml:"logging"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Plugins   PluginsConfig   `toml:"plugins"`
}

// DispatchConfig configures the dispatch engine.
type DispatchConfig struct {
	// MaxDepth is the nested dispatch ceiling per event type.
	MaxDepth int `toml:"max_depth"`

	// Scheduler is where continuations resume: "inline" on the goroutine
	// that settled the awaited promise, "loop" on a single event loop.
	Scheduler string `toml:"scheduler"`

	// QueueSize is the event loop queue capacity.
	QueueSize int `toml:"queue_size"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled     bool    `toml:"enabled"`
	Endpoint    string  `toml:"endpoint"`
	ServiceName string  `toml:"service_name"`
	Insecure    bool    `toml:"insecure"`
	SampleRatio float64 `toml:"sample_ratio"`
}

// PluginsConfig configures script plugins.
type PluginsConfig struct {
	// Dir holds one sub-directory per plugin. Empty disables plugins.
	Dir string `toml:"dir"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Dispatch: DispatchConfig{
			MaxDepth:  event.DefaultMaxDepth,
			Scheduler: SchedulerInline,
			QueueSize: 1024,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: string(logging.FormatText),
		},
		Telemetry: TelemetryConfig{
			ServiceName: "asyncevent",
			Insecure:    true,
			SampleRatio: 1,
		},
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	var errs ValidationErrors

	if c.Dispatch.MaxDepth < 1 {
		errs = append(errs, &ValidationError{Path: "dispatch.max_depth", Value: c.Dispatch.MaxDepth, Message: "must be at least 1"})
	}
	switch strings.ToLower(c.Dispatch.Scheduler) {
	case SchedulerInline, SchedulerLoop:
	default:
		errs = append(errs, &ValidationError{Path: "dispatch.scheduler", Value: c.Dispatch.Scheduler, Message: "must be inline or loop"})
	}
	if c.Dispatch.QueueSize < 1 {
		errs = append(errs, &ValidationError{Path: "dispatch.queue_size", Value: c.Dispatch.QueueSize, Message: "must be positive"})
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, &ValidationError{Path: "logging.level", Value: c.Logging.Level, Message: "must be debug, info, warn or error"})
	}
	if _, err := logging.ParseFormat(c.Logging.Format); err != nil {
		errs = append(errs, &ValidationError{Path: "logging.format", Value: c.Logging.Format, Message: "must be text or json"})
	}

	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		errs = append(errs, &ValidationError{Path: "telemetry.endpoint", Value: "", Message: "required when telemetry is enabled"})
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		errs = append(errs, &ValidationError{Path: "telemetry.sample_ratio", Value: c.Telemetry.SampleRatio, Message: "must be between 0 and 1"})
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}
