package lua

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/asyncevent/internal/event"
	"github.com/dshills/asyncevent/internal/promise"
)

const (
	eventTypeName   = "asyncevent.event"
	promiseTypeName = "asyncevent.promise"
)

// Host connects the events module to the plugin that owns the state.
type Host interface {
	// Subscribe registers handler for every event type whose name matches
	// pattern and returns how many types it was registered for.
	Subscribe(pattern string, handler event.AsyncHandler, opts ...event.ListenerOption) (int, error)

	// EventName returns the registered name of an event.
	EventName(ev any) string

	// EventNames returns every registered event name.
	EventNames() []string

	// Logger returns the plugin's logger.
	Logger() *slog.Logger
}

// ScriptError is a failure raised by script code through promise:reject.
type ScriptError struct {
	Message string
}

// Error implements the error interface.
func (e *ScriptError) Error() string {
	return "script error: " + e.Message
}

// OpenEvents installs the global "events" module into s.
//
//	events.on(pattern, fn [, {priority=, concurrent=, handle_cancelled=}])
//	events.promise()          -> p; p:resolve(), p:reject(msg), p:settled()
//	events.after(ms, fn)
//	events.log(msg [, level])
//	events.names()
func OpenEvents(ctx context.Context, s *State, host Host) error {
	m := &module{s: s, host: host}
	return s.Run(ctx, func(L *lua.LState) error {
		m.registerTypes(L)
		mod := L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
			"on":      m.on,
			"promise": m.newPromise,
			"after":   m.after,
			"log":     m.log,
			"names":   m.names,
		})
		L.SetGlobal("events", mod)
		return nil
	})
}

type module struct {
	s    *State
	host Host
}

func (m *module) registerTypes(L *lua.LState) {
	emt := L.NewTypeMetatable(eventTypeName)
	L.SetField(emt, "__index", L.NewFunction(m.eventIndex))
	L.SetField(emt, "__newindex", L.NewFunction(m.eventNewIndex))

	pmt := L.NewTypeMetatable(promiseTypeName)
	L.SetField(pmt, "__index", L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"resolve": m.promiseResolve,
		"reject":  m.promiseReject,
		"settled": m.promiseSettled,
	}))
}

// on implements events.on.
func (m *module) on(L *lua.LState) int {
	pattern := L.CheckString(1)
	fn := L.CheckFunction(2)

	opts, err := listenerOptions(L.OptTable(3, nil))
	if err != nil {
		L.ArgError(3, err.Error())
		return 0
	}

	n, err := m.host.Subscribe(pattern, &handler{s: m.s, fn: fn}, opts...)
	if err != nil {
		L.RaiseError("events.on(%q): %s", pattern, err.Error())
		return 0
	}
	L.Push(lua.LNumber(n))
	return 1
}

func listenerOptions(t *lua.LTable) ([]event.ListenerOption, error) {
	if t == nil {
		return nil, nil
	}

	var opts []event.ListenerOption
	switch p := t.RawGetString("priority").(type) {
	case *lua.LNilType:
	case lua.LNumber:
		opts = append(opts, event.WithPriority(event.Priority(int(p))))
	case lua.LString:
		prio, err := event.ParsePriority(string(p))
		if err != nil {
			return nil, err
		}
		opts = append(opts, event.WithPriority(prio))
	default:
		return nil, fmt.Errorf("priority must be a name or number, got %s", p.Type())
	}

	if lua.LVAsBool(t.RawGetString("concurrent")) {
		opts = append(opts, event.Concurrent())
	}
	if lua.LVAsBool(t.RawGetString("handle_cancelled")) {
		opts = append(opts, event.HandleCancelled())
	}
	return opts, nil
}

// after implements events.after.
func (m *module) after(L *lua.LState) int {
	ms := L.CheckInt(1)
	fn := L.CheckFunction(2)

	m.s.After(time.Duration(ms)*time.Millisecond, func(L *lua.LState) error {
		_, err := CallFunction(L, fn)
		return err
	}, func(err error) {
		m.host.Logger().Warn("timer callback failed", "error", err)
	})
	return 0
}

// log implements events.log.
func (m *module) log(L *lua.LState) int {
	msg := L.CheckString(1)
	level := slog.LevelInfo
	switch strings.ToLower(L.OptString(2, "info")) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	m.host.Logger().Log(L.Context(), level, msg)
	return 0
}

// names implements events.names.
func (m *module) names(L *lua.LState) int {
	t := L.NewTable()
	for i, name := range m.host.EventNames() {
		t.RawSetInt(i+1, lua.LString(name))
	}
	L.Push(t)
	return 1
}

// handler adapts a Lua function to event.AsyncHandler.
// The function receives the event and may return a promise.
type handler struct {
	s  *State
	fn *lua.LFunction
}

// HandleAsync implements event.AsyncHandler.
func (h *handler) HandleAsync(ctx context.Context, ev any) (*promise.Promise[struct{}], error) {
	var result *promise.Promise[struct{}]
	err := h.s.Run(ctx, func(L *lua.LState) error {
		ud := L.NewUserData()
		ud.Value = ev
		L.SetMetatable(ud, L.GetTypeMetatable(eventTypeName))

		ret, err := CallFunction(L, h.fn, ud)
		if err != nil {
			return err
		}
		if rud, ok := ret.(*lua.LUserData); ok {
			if p, ok := rud.Value.(*scriptPromise); ok {
				result = p.r.Promise()
			}
		}
		return nil
	})
	return result, err
}

// scriptPromise is the Go side of events.promise().
type scriptPromise struct {
	r         *promise.Resolver[struct{}]
	requested bool
}

func (m *module) newPromise(L *lua.LState) int {
	p := &scriptPromise{r: promise.NewResolver[struct{}]()}
	// A dispatch waiting on p must not outlive the state.
	m.s.OnClose(p, func() { p.r.TryReject(ErrStateClosed) })

	ud := L.NewUserData()
	ud.Value = p
	L.SetMetatable(ud, L.GetTypeMetatable(promiseTypeName))
	L.Push(ud)
	return 1
}

func checkPromise(L *lua.LState) *scriptPromise {
	ud := L.CheckUserData(1)
	p, ok := ud.Value.(*scriptPromise)
	if !ok {
		L.ArgError(1, "promise expected")
	}
	return p
}

// promiseResolve settles the promise once the state is released, so
// continuations that re-enter this state do not deadlock.
func (m *module) promiseResolve(L *lua.LState) int {
	p := checkPromise(L)
	if p.requested {
		L.Push(lua.LFalse)
		return 1
	}
	p.requested = true
	m.s.Forget(p)
	m.s.Defer(func() { p.r.TryResolve(struct{}{}) })
	L.Push(lua.LTrue)
	return 1
}

func (m *module) promiseReject(L *lua.LState) int {
	p := checkPromise(L)
	msg := L.OptString(2, "rejected")
	if p.requested {
		L.Push(lua.LFalse)
		return 1
	}
	p.requested = true
	m.s.Forget(p)
	m.s.Defer(func() { p.r.TryReject(&ScriptError{Message: msg}) })
	L.Push(lua.LTrue)
	return 1
}

func (m *module) promiseSettled(L *lua.LState) int {
	p := checkPromise(L)
	L.Push(lua.LBool(p.requested || p.r.Promise().IsSettled()))
	return 1
}

// eventIndex implements reads on the event userdata: name, cancelled,
// cancel() and the event's exported fields.
func (m *module) eventIndex(L *lua.LState) int {
	ud := L.CheckUserData(1)
	key := L.CheckString(2)
	ev := ud.Value

	switch key {
	case "name":
		L.Push(lua.LString(m.host.EventName(ev)))
		return 1
	case "cancelled":
		c, ok := ev.(event.Cancellable)
		L.Push(lua.LBool(ok && c.IsCancelled()))
		return 1
	case "cancel":
		L.Push(L.NewFunction(func(L *lua.LState) int {
			c, ok := L.CheckUserData(1).Value.(event.Cancellable)
			if !ok {
				L.RaiseError("event %s cannot be cancelled", m.host.EventName(ev))
				return 0
			}
			c.SetCancelled(true)
			return 0
		}))
		return 1
	}

	field, ok := eventField(ev, key)
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(ToLua(L, field.Interface()))
	return 1
}

// eventNewIndex implements writes to the event userdata.
func (m *module) eventNewIndex(L *lua.LState) int {
	ud := L.CheckUserData(1)
	key := L.CheckString(2)
	val := L.Get(3)
	ev := ud.Value

	if key == "cancelled" {
		c, ok := ev.(event.Cancellable)
		if !ok {
			L.RaiseError("event %s cannot be cancelled", m.host.EventName(ev))
			return 0
		}
		c.SetCancelled(lua.LVAsBool(val))
		return 0
	}

	field, ok := eventField(ev, key)
	if !ok || !field.CanSet() {
		L.RaiseError("event %s has no writable field %q", m.host.EventName(ev), key)
		return 0
	}
	if err := assign(field, val); err != nil {
		L.RaiseError("setting %s.%s: %s", m.host.EventName(ev), key, err.Error())
	}
	return 0
}

// eventField finds an exported field by Go name or snake_case name.
// Only events passed by pointer have settable fields.
func eventField(ev any, key string) (reflect.Value, bool) {
	rv := reflect.ValueOf(ev)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return reflect.Value{}, false
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return reflect.Value{}, false
	}

	want := normalizeFieldName(key)
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if f.IsExported() && !f.Anonymous && normalizeFieldName(f.Name) == want {
			return rv.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func normalizeFieldName(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, "_", ""))
}

// IsScriptError reports whether err carries a ScriptError.
func IsScriptError(err error) bool {
	var se *ScriptError
	return errors.As(err, &se)
}
