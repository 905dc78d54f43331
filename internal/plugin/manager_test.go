package plugin

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dshills/asyncevent/internal/event"
	plua "github.com/dshills/asyncevent/internal/plugin/lua"
)

type greetEvent struct {
	event.CancelState
	Player string
}

type fixture struct {
	types    *event.Types
	registry *event.Registry
	manager  *Manager
	d        *event.Dispatcher
	dir      string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	types := event.NewTypes()
	if err := event.RegisterType[*greetEvent](types, "player.greet"); err != nil {
		t.Fatal(err)
	}
	registry := event.NewRegistry()
	m := NewManager(registry, types)
	t.Cleanup(func() { _ = m.Close() })

	return &fixture{
		types:    types,
		registry: registry,
		manager:  m,
		d:        event.NewDispatcher(registry, event.WithTypes(types), event.WithMaxDepth(10)),
		dir:      t.TempDir(),
	}
}

func (f *fixture) writePlugin(t *testing.T, name, manifest, script string) string {
	t.Helper()

	dir := filepath.Join(f.dir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}
	if script != "" {
		if err := os.WriteFile(filepath.Join(dir, DefaultMain), []byte(script), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func (f *fixture) greet(t *testing.T) *greetEvent {
	t.Helper()

	ev := &greetEvent{Player: "steve"}
	if _, err := event.Call(context.Background(), f.d, ev).Wait(context.Background()); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	return ev
}

func TestManager_Load(t *testing.T) {
	f := newFixture(t)
	dir := f.writePlugin(t, "hello", "name: hello\nversion: 1.0.0\n", `
		events.on("player.greet", function(ev)
			ev.Player = "hello " .. ev.Player
		end)
	`)

	p, err := f.manager.Load(context.Background(), dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if p.Name() != "hello" || p.Listeners() != 1 {
		t.Errorf("plugin = %s with %d listeners", p.Name(), p.Listeners())
	}

	if ev := f.greet(t); ev.Player != "hello steve" {
		t.Errorf("Player = %q", ev.Player)
	}

	ls := f.registry.HandlersFor(event.KeyFor[*greetEvent]())
	if len(ls) != 1 || ls[0].Owner() != "hello" {
		t.Errorf("listener owner = %v", ls)
	}
}

func TestManager_LoadTwice(t *testing.T) {
	f := newFixture(t)
	dir := f.writePlugin(t, "hello", "name: hello\nversion: 1.0.0\n", "-- nothing")

	if _, err := f.manager.Load(context.Background(), dir); err != nil {
		t.Fatal(err)
	}
	if _, err := f.manager.Load(context.Background(), dir); !errors.Is(err, ErrAlreadyLoaded) {
		t.Errorf("error = %v, want ErrAlreadyLoaded", err)
	}
}

func TestManager_NoEntryPoint(t *testing.T) {
	f := newFixture(t)
	dir := f.writePlugin(t, "empty", "name: empty\nversion: 1.0.0\n", "")

	if _, err := f.manager.Load(context.Background(), dir); !errors.Is(err, ErrNoEntryPoint) {
		t.Errorf("error = %v, want ErrNoEntryPoint", err)
	}
}

func TestManager_ScriptErrorRollsBack(t *testing.T) {
	f := newFixture(t)
	dir := f.writePlugin(t, "broken", "name: broken\nversion: 1.0.0\n", `
		events.on("player.greet", function() end)
		error("startup failed")
	`)

	if _, err := f.manager.Load(context.Background(), dir); err == nil || !strings.Contains(err.Error(), "startup failed") {
		t.Fatalf("error = %v", err)
	}
	if f.registry.Count() != 0 {
		t.Error("listeners of a failed plugin should be removed")
	}
	if _, ok := f.manager.Get("broken"); ok {
		t.Error("failed plugin should not be registered")
	}
}

func TestManager_Unload(t *testing.T) {
	f := newFixture(t)
	dir := f.writePlugin(t, "hello", "name: hello\nversion: 1.0.0\n", `
		events.on("player.greet", function(ev) ev.Player = "x" end)
		events.on("player.greet", function(ev) end, {priority = "monitor"})
	`)
	if _, err := f.manager.Load(context.Background(), dir); err != nil {
		t.Fatal(err)
	}

	if err := f.manager.Unload("hello"); err != nil {
		t.Fatalf("Unload() error = %v", err)
	}
	if f.registry.Count() != 0 {
		t.Errorf("Count() = %d after unload", f.registry.Count())
	}
	if ev := f.greet(t); ev.Player != "steve" {
		t.Error("unloaded plugin should not handle events")
	}
	if err := f.manager.Unload("hello"); !errors.Is(err, ErrPluginNotFound) {
		t.Errorf("second Unload() = %v, want ErrPluginNotFound", err)
	}
}

func TestManager_LoadDirOrder(t *testing.T) {
	f := newFixture(t)

	// "alpha" sorts first but depends on "zeta"; "mid" soft-depends on alpha.
	f.writePlugin(t, "alpha", "name: alpha\nversion: 1.0.0\ndepend: [zeta]\n", `
		events.on("player.greet", function(ev) ev.Player = ev.Player .. ",alpha" end)
	`)
	f.writePlugin(t, "zeta", "name: zeta\nversion: 1.0.0\n", `
		events.on("player.greet", function(ev) ev.Player = ev.Player .. ",zeta" end)
	`)
	f.writePlugin(t, "mid", "name: mid\nversion: 1.0.0\nsoftdepend: [alpha, missing]\n", `
		events.on("player.greet", function(ev) ev.Player = ev.Player .. ",mid" end)
	`)
	if err := os.WriteFile(filepath.Join(f.dir, "README"), []byte("not a plugin"), 0o644); err != nil {
		t.Fatal(err)
	}

	loaded, err := f.manager.LoadDir(context.Background(), f.dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}

	var names []string
	for _, p := range loaded {
		names = append(names, p.Name())
	}
	if strings.Join(names, ",") != "zeta,alpha,mid" {
		t.Errorf("load order = %v", names)
	}

	// Same priority, so listeners run in registration (load) order.
	if ev := f.greet(t); ev.Player != "steve,zeta,alpha,mid" {
		t.Errorf("Player = %q", ev.Player)
	}
}

func TestManager_LoadDirFailures(t *testing.T) {
	f := newFixture(t)

	f.writePlugin(t, "needy", "name: needy\nversion: 1.0.0\ndepend: [absent]\n", "-- ok")
	f.writePlugin(t, "a", "name: a\nversion: 1.0.0\ndepend: [b]\n", "-- ok")
	f.writePlugin(t, "b", "name: b\nversion: 1.0.0\ndepend: [a]\n", "-- ok")
	f.writePlugin(t, "bad", "name: 'bad name'\nversion: 1.0.0\n", "-- ok")
	f.writePlugin(t, "fine", "name: fine\nversion: 1.0.0\n", "-- ok")

	loaded, err := f.manager.LoadDir(context.Background(), f.dir)

	if len(loaded) != 1 || loaded[0].Name() != "fine" {
		t.Errorf("loaded = %v", loaded)
	}
	for _, want := range []error{ErrDependencyNotFound, ErrCyclicDependency, ErrInvalidManifest} {
		if !errors.Is(err, want) {
			t.Errorf("LoadDir() error should include %v, got %v", want, err)
		}
	}
}

func TestManager_CloseUnloadsAll(t *testing.T) {
	f := newFixture(t)
	f.writePlugin(t, "one", "name: one\nversion: 1.0.0\n", `events.on("player.greet", function() end)`)
	f.writePlugin(t, "two", "name: two\nversion: 1.0.0\ndepend: [one]\n", `events.on("player.greet", function() end)`)

	if _, err := f.manager.LoadDir(context.Background(), f.dir); err != nil {
		t.Fatal(err)
	}
	if len(f.manager.Plugins()) != 2 {
		t.Fatalf("Plugins() = %d", len(f.manager.Plugins()))
	}

	if err := f.manager.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if len(f.manager.Plugins()) != 0 || f.registry.Count() != 0 {
		t.Error("Close should unload every plugin")
	}
}

func TestManager_UnknownEventInScript(t *testing.T) {
	f := newFixture(t)
	dir := f.writePlugin(t, "typo", "name: typo\nversion: 1.0.0\n", `events.on("player.gret", function() end)`)

	_, err := f.manager.Load(context.Background(), dir)
	if err == nil || !strings.Contains(err.Error(), "player.gret") {
		t.Errorf("error = %v", err)
	}
}

func TestManager_UnloadRejectsPendingDispatch(t *testing.T) {
	f := newFixture(t)
	dir := f.writePlugin(t, "slow", "name: slow\nversion: 1.0.0\n", `
		events.on("player.greet", function(ev)
			local p = events.promise()
			events.after(200, function() p:resolve() end)
			return p
		end)
	`)
	if _, err := f.manager.Load(context.Background(), dir); err != nil {
		t.Fatal(err)
	}

	p := event.Call(context.Background(), f.d, &greetEvent{Player: "steve"})
	if err := f.manager.Unload("slow"); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := p.Wait(ctx); !errors.Is(err, plua.ErrStateClosed) {
		t.Fatalf("Wait() error = %v, want ErrStateClosed", err)
	}
	if got := f.d.DepthGuard().Depth(event.KeyFor[*greetEvent]()); got != 0 {
		t.Errorf("Depth() = %d after unload, want 0", got)
	}
}
