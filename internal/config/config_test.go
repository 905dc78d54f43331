package config

import (
	"errors"
	"testing"

	"github.com/dshills/asyncevent/internal/event"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Dispatch.MaxDepth != event.DefaultMaxDepth {
		t.Errorf("MaxDepth = %d, want %d", cfg.Dispatch.MaxDepth, event.DefaultMaxDepth)
	}
	if cfg.Dispatch.Scheduler != SchedulerInline {
		t.Errorf("Scheduler = %q, want inline", cfg.Dispatch.Scheduler)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if cfg.Telemetry.Enabled {
		t.Error("telemetry should be disabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		path   string
	}{
		{"max depth", func(c *Config) { c.Dispatch.MaxDepth = 0 }, "dispatch.max_depth"},
		{"scheduler", func(c *Config) { c.Dispatch.Scheduler = "threads" }, "dispatch.scheduler"},
		{"queue size", func(c *Config) { c.Dispatch.QueueSize = -1 }, "dispatch.queue_size"},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"endpoint", func(c *Config) { c.Telemetry.Enabled = true }, "telemetry.endpoint"},
		{"sample ratio", func(c *Config) { c.Telemetry.SampleRatio = 2 }, "telemetry.sample_ratio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			if !errors.Is(err, ErrValidationFailed) {
				t.Fatalf("Validate() = %v, want ErrValidationFailed", err)
			}

			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected *ValidationError in %v", err)
			}
			if ve.Path != tt.path {
				t.Errorf("Path = %q, want %q", ve.Path, tt.path)
			}
		})
	}
}

func TestValidate_CollectsAll(t *testing.T) {
	cfg := Default()
	cfg.Dispatch.MaxDepth = 0
	cfg.Logging.Level = "loud"

	var errs ValidationErrors
	if !errors.As(cfg.Validate(), &errs) {
		t.Fatal("expected ValidationErrors")
	}
	if len(errs) != 2 {
		t.Errorf("got %d errors, want 2: %v", len(errs), errs)
	}
}

func TestValidate_SchedulerCaseInsensitive(t *testing.T) {
	cfg := Default()
	cfg.Dispatch.Scheduler = "Loop"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}
