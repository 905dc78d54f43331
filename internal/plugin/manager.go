package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/dshills/asyncevent/internal/event"
	plua "github.com/dshills/asyncevent/internal/plugin/lua"
)

// Manager loads plugins and registers their listeners.
type Manager struct {
	registry  *event.Registry
	types     *event.Types
	logger    *slog.Logger
	stateOpts []plua.StateOption

	mu      sync.Mutex
	plugins map[string]*Plugin
	order   []string
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithStateOptions sets options for every plugin's Lua state.
func WithStateOptions(opts ...plua.StateOption) ManagerOption {
	return func(m *Manager) {
		m.stateOpts = append(m.stateOpts, opts...)
	}
}

// NewManager creates a manager registering listeners into registry.
// Scripts name event types through types.
func NewManager(registry *event.Registry, types *event.Types, opts ...ManagerOption) *Manager {
	m := &Manager{
		registry: registry,
		types:    types,
		logger:   slog.New(slog.DiscardHandler),
		plugins:  make(map[string]*Plugin),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// LoadDir loads every plugin found in the sub-directories of dir, in
// dependency order. A plugin that fails to load is skipped along with the
// plugins that depend on it; the failures are returned joined.
func (m *Manager) LoadDir(ctx context.Context, dir string) ([]*Plugin, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading plugin directory: %w", err)
	}

	var errs []error
	manifests := make(map[string]*Manifest)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		pdir := filepath.Join(dir, e.Name())
		if _, err := os.Stat(filepath.Join(pdir, ManifestFile)); err != nil {
			continue
		}

		mf, err := LoadManifest(pdir)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := manifests[mf.Name]; dup {
			errs = append(errs, fmt.Errorf("%w: %s found twice", ErrAlreadyLoaded, mf.Name))
			continue
		}
		manifests[mf.Name] = mf
	}

	order, err := loadOrder(manifests)
	if err != nil {
		errs = append(errs, err)
	}

	var loaded []*Plugin
	failed := make(map[string]bool)
	for _, name := range order {
		mf := manifests[name]

		if dep := firstMissing(mf.Depend, failed, m); dep != "" {
			failed[name] = true
			errs = append(errs, fmt.Errorf("plugin %s: %w: %s", name, ErrDependencyNotFound, dep))
			continue
		}

		p, err := m.load(ctx, mf)
		if err != nil {
			failed[name] = true
			errs = append(errs, err)
			continue
		}
		loaded = append(loaded, p)
	}

	return loaded, errors.Join(errs...)
}

// firstMissing returns the first dependency that failed or is not loaded.
func firstMissing(deps []string, failed map[string]bool, m *Manager) string {
	for _, dep := range deps {
		if failed[dep] {
			return dep
		}
		if _, ok := m.Get(dep); !ok {
			return dep
		}
	}
	return ""
}

// loadOrder sorts plugins so dependencies come first. Missing hard
// dependencies stay in the order and are reported when loading; cycles are
// reported here and their members dropped.
func loadOrder(manifests map[string]*Manifest) ([]string, error) {
	names := make([]string, 0, len(manifests))
	for name := range manifests {
		names = append(names, name)
	}
	sort.Strings(names)

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(names))
	var order []string
	var cycles []string

	var visit func(name string) bool
	visit = func(name string) bool {
		switch state[name] {
		case visiting:
			return false
		case done:
			return true
		}
		state[name] = visiting

		mf := manifests[name]
		deps := append(append([]string{}, mf.Depend...), mf.SoftDepend...)
		for _, dep := range deps {
			if _, ok := manifests[dep]; !ok {
				continue
			}
			if !visit(dep) {
				cycles = append(cycles, name)
				state[name] = done
				return false
			}
		}

		state[name] = done
		order = append(order, name)
		return true
	}

	for _, name := range names {
		visit(name)
	}

	if len(cycles) > 0 {
		sort.Strings(cycles)
		return order, fmt.Errorf("%w: %v", ErrCyclicDependency, cycles)
	}
	return order, nil
}

// Load loads the plugin in dir.
func (m *Manager) Load(ctx context.Context, dir string) (*Plugin, error) {
	mf, err := LoadManifest(dir)
	if err != nil {
		return nil, err
	}
	for _, dep := range mf.Depend {
		if _, ok := m.Get(dep); !ok {
			return nil, fmt.Errorf("plugin %s: %w: %s", mf.Name, ErrDependencyNotFound, dep)
		}
	}
	return m.load(ctx, mf)
}

func (m *Manager) load(ctx context.Context, mf *Manifest) (*Plugin, error) {
	m.mu.Lock()
	if _, exists := m.plugins[mf.Name]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyLoaded, mf.Name)
	}
	m.mu.Unlock()

	if _, err := os.Stat(mf.MainPath()); err != nil {
		return nil, fmt.Errorf("plugin %s: %w: %s", mf.Name, ErrNoEntryPoint, mf.Main)
	}

	p := &Plugin{
		manifest: mf,
		state:    plua.NewState(m.stateOpts...),
		logger:   m.logger.With("plugin", mf.Name),
		m:        m,
	}

	if err := plua.OpenEvents(ctx, p.state, p); err != nil {
		_ = p.state.Close()
		return nil, fmt.Errorf("plugin %s: %w", mf.Name, err)
	}
	if err := p.state.DoFile(ctx, mf.MainPath()); err != nil {
		m.registry.UnregisterOwner(mf.Name)
		_ = p.state.Close()
		return nil, fmt.Errorf("plugin %s: running %s: %w", mf.Name, mf.Main, err)
	}

	m.mu.Lock()
	m.plugins[mf.Name] = p
	m.order = append(m.order, mf.Name)
	m.mu.Unlock()

	m.logger.Info("plugin loaded", "plugin", mf.Name, "version", mf.Version, "listeners", p.Listeners())
	return p, nil
}

// subscribe registers h for every event type matching pattern, owned by
// the named plugin.
func (m *Manager) subscribe(owner, pattern string, h event.AsyncHandler, opts ...event.ListenerOption) (int, error) {
	names := m.types.Match(pattern)
	if len(names) == 0 {
		return 0, fmt.Errorf("%w: %s", event.ErrUnknownEventType, pattern)
	}

	opts = append(opts, event.WithOwner(owner))
	for _, name := range names {
		key, _ := m.types.Lookup(name)
		l, err := event.NewListener(h, opts...)
		if err != nil {
			return 0, err
		}
		m.registry.Register(key, l)
	}
	return len(names), nil
}

// Unload removes a plugin's listeners and closes its state.
func (m *Manager) Unload(name string) error {
	m.mu.Lock()
	p, ok := m.plugins[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrPluginNotFound, name)
	}
	delete(m.plugins, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i:i], m.order[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	removed := m.registry.UnregisterOwner(name)
	m.logger.Info("plugin unloaded", "plugin", name, "listeners", removed)
	return p.state.Close()
}

// Get returns a loaded plugin.
func (m *Manager) Get(name string) (*Plugin, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plugins[name]
	return p, ok
}

// Plugins returns the loaded plugins in load order.
func (m *Manager) Plugins() []*Plugin {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Plugin, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.plugins[name])
	}
	return out
}

// Close unloads every plugin in reverse load order.
func (m *Manager) Close() error {
	plugins := m.Plugins()

	var errs []error
	for i := len(plugins) - 1; i >= 0; i-- {
		if err := m.Unload(plugins[i].Name()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
