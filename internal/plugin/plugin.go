// Package plugin loads Lua script plugins whose handlers take part in event
// dispatch.
//
// A plugin is a directory holding a plugin.yml manifest and a Lua entry
// script. The script subscribes handlers with the events module:
//
//	events.on("player.join", function(ev)
//	    events.log("welcome " .. ev.player)
//	end, {priority = "monitor"})
//
// Each plugin runs on its own Lua state, and its listeners are registered
// under the plugin's name so unloading removes them all.
package plugin

import (
	"log/slog"
	"sync/atomic"

	"github.com/dshills/asyncevent/internal/event"
	plua "github.com/dshills/asyncevent/internal/plugin/lua"
)

// Plugin is a loaded plugin.
type Plugin struct {
	manifest  *Manifest
	state     *plua.State
	logger    *slog.Logger
	m         *Manager
	listeners atomic.Int64
}

// Name returns the plugin name.
func (p *Plugin) Name() string { return p.manifest.Name }

// Manifest returns the plugin manifest.
func (p *Plugin) Manifest() *Manifest { return p.manifest }

// Listeners returns the number of listeners the plugin registered.
func (p *Plugin) Listeners() int { return int(p.listeners.Load()) }

// Subscribe implements lua.Host.
func (p *Plugin) Subscribe(pattern string, h event.AsyncHandler, opts ...event.ListenerOption) (int, error) {
	n, err := p.m.subscribe(p.Name(), pattern, h, opts...)
	p.listeners.Add(int64(n))
	return n, err
}

// EventName implements lua.Host.
func (p *Plugin) EventName(ev any) string {
	return p.m.types.Name(event.KeyOf(ev))
}

// EventNames implements lua.Host.
func (p *Plugin) EventNames() []string {
	return p.m.types.Names()
}

// Logger implements lua.Host.
func (p *Plugin) Logger() *slog.Logger {
	return p.logger
}
