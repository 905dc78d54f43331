package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "ASYNCEVENT_"

// envMapping maps environment variables to setting paths.
var envMapping = map[string]string{
	"ASYNCEVENT_MAX_DEPTH":             "dispatch.max_depth",
	"ASYNCEVENT_SCHEDULER":             "dispatch.scheduler",
	"ASYNCEVENT_QUEUE_SIZE":            "dispatch.queue_size",
	"ASYNCEVENT_LOG_LEVEL":             "logging.level",
	"ASYNCEVENT_LOG_FORMAT":            "logging.format",
	"ASYNCEVENT_TELEMETRY_ENABLED":     "telemetry.enabled",
	"ASYNCEVENT_TELEMETRY_ENDPOINT":    "telemetry.endpoint",
	"ASYNCEVENT_TELEMETRY_SERVICE":     "telemetry.service_name",
	"ASYNCEVENT_TELEMETRY_INSECURE":    "telemetry.insecure",
	"ASYNCEVENT_TELEMETRY_SAMPLE_RATE": "telemetry.sample_ratio",
	"ASYNCEVENT_PLUGINS_DIR":           "plugins.dir",
}

// FileSystem is the file access used by the loader.
type FileSystem interface {
	ReadFile(path string) ([]byte, error)
}

// OSFS reads from the real file system.
type OSFS struct{}

// ReadFile implements FileSystem.
func (OSFS) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// Loader builds a Config from defaults, a file and the environment.
type Loader struct {
	fs     FileSystem
	lookup func(string) (string, bool)
}

// NewLoader creates a loader reading the real file system and environment.
func NewLoader() *Loader {
	return &Loader{fs: OSFS{}, lookup: os.LookupEnv}
}

// NewLoaderWithFS creates a loader reading files from fsys.
func NewLoaderWithFS(fsys FileSystem) *Loader {
	return &Loader{fs: fsys, lookup: os.LookupEnv}
}

// Load is shorthand for NewLoader().Load(path).
func Load(path string) (*Config, error) {
	return NewLoader().Load(path)
}

// Load reads path, applies environment overrides and validates the result.
// An empty path or a missing file yields the defaults plus environment.
func (l *Loader) Load(path string) (*Config, error) {
	base, err := toMap(Default())
	if err != nil {
		return nil, err
	}

	if path != "" {
		file, err := l.readFile(path)
		if err != nil {
			return nil, err
		}
		base = DeepMerge(base, file)
	}

	env, err := l.readEnv(base)
	if err != nil {
		return nil, err
	}
	merged := DeepMerge(base, env)

	cfg, err := decode(path, merged)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *Loader) readFile(path string) (map[string]any, error) {
	data, err := l.fs.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	var m map[string]any
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, newParseError(path, err)
	}
	return m, nil
}

// readEnv collects overrides, converting each value to the type of the
// setting it replaces.
func (l *Loader) readEnv(defaults map[string]any) (map[string]any, error) {
	out := make(map[string]any)
	for name, path := range envMapping {
		raw, ok := l.lookup(name)
		if !ok {
			continue
		}

		current, _ := getByPath(defaults, path)
		val, err := convertEnv(raw, current)
		if err != nil {
			return nil, fmt.Errorf("environment variable %s: %w", name, err)
		}
		setByPath(out, path, val)
	}
	return out, nil
}

func convertEnv(raw string, like any) (any, error) {
	raw = strings.TrimSpace(raw)
	switch like.(type) {
	case bool:
		return strconv.ParseBool(raw)
	case int64:
		return strconv.ParseInt(raw, 10, 64)
	case float64:
		return strconv.ParseFloat(raw, 64)
	default:
		return raw, nil
	}
}

func toMap(cfg *Config) (map[string]any, error) {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	var m map[string]any
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return m, nil
}

func decode(source string, m map[string]any) (*Config, error) {
	data, err := toml.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}

	cfg := &Config{}
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, fmt.Errorf("unknown settings in %s: %w", source, err)
		}
		return nil, newParseError(source, err)
	}
	return cfg, nil
}

func newParseError(path string, err error) *ParseError {
	pe := &ParseError{Path: path, Err: err}
	var de *toml.DecodeError
	if errors.As(err, &de) {
		pe.Line, pe.Column = de.Position()
	}
	return pe
}

// DeepMerge merges src into dst and returns dst.
// Nested tables merge key by key; any other value in src replaces the one
// in dst.
func DeepMerge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for key, sv := range src {
		sm, srcIsMap := sv.(map[string]any)
		dm, dstIsMap := dst[key].(map[string]any)
		if srcIsMap && dstIsMap {
			dst[key] = DeepMerge(dm, sm)
			continue
		}
		dst[key] = sv
	}
	return dst
}

func getByPath(m map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	cur := m
	for i, p := range parts {
		v, ok := cur[p]
		if !ok {
			return nil, false
		}
		if i == len(parts)-1 {
			return v, true
		}
		if cur, ok = v.(map[string]any); !ok {
			return nil, false
		}
	}
	return nil, false
}

func setByPath(m map[string]any, path string, val any) {
	parts := strings.Split(path, ".")
	cur := m
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[p] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = val
}
