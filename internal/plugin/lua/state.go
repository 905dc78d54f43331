// Package lua runs plugin scripts on sandboxed gopher-lua states and
// bridges them to the event dispatcher.
package lua

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// DefaultExecutionTimeout bounds a single entry into Lua code.
const DefaultExecutionTimeout = 5 * time.Second

// ErrStateClosed is returned when using a closed state.
var ErrStateClosed = errors.New("lua state is closed")

// State wraps a gopher-lua state.
//
// An LState is not goroutine-safe, so every entry into Lua goes through Run,
// which holds the state's mutex. Work that must happen outside the lock,
// such as settling promises whose continuations may call back into this
// state, is queued with Defer and runs once Run has released it.
type State struct {
	L *lua.LState

	mu      sync.Mutex
	timeout time.Duration
	closed  bool
	pending []func()
	timers  map[*time.Timer]struct{}
	onClose map[any]func()
}

// StateOption configures a State.
type StateOption func(*State)

// WithExecutionTimeout sets the deadline for each entry into Lua.
// Scripts that run longer are interrupted with an error.
func WithExecutionTimeout(d time.Duration) StateOption {
	return func(s *State) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewState creates a sandboxed Lua state.
func NewState(opts ...StateOption) *State {
	s := &State{
		timeout: DefaultExecutionTimeout,
		timers:  make(map[*time.Timer]struct{}),
		onClose: make(map[any]func()),
	}
	for _, opt := range opts {
		opt(s)
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibraries(L)
	s.L = L
	return s
}

// openSafeLibraries opens the base, table, string and math libraries and
// removes the loaders that could reach the file system.
func openSafeLibraries(L *lua.LState) {
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}

	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "module"} {
		L.SetGlobal(name, lua.LNil)
	}
}

// Run executes fn with exclusive access to the Lua state.
// ctx, bounded by the execution timeout, interrupts long-running scripts.
// Panics raised by gopher-lua are returned as errors.
func (s *State) Run(ctx context.Context, fn func(L *lua.LState) error) (err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStateClosed
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	s.L.SetContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
		s.L.RemoveContext()
		cancel()

		pending := s.pending
		s.pending = nil
		s.mu.Unlock()

		for _, task := range pending {
			task()
		}
	}()

	return fn(s.L)
}

// Defer queues task to run after the current Run releases the state.
// It must be called from within Run.
func (s *State) Defer(task func()) {
	s.pending = append(s.pending, task)
}

// OnClose registers fn to run when the state is closed, replacing any func
// already registered for key. Close runs it after releasing the state, so
// fn may settle promises whose continuations call back into the state.
// It must be called from within Run.
func (s *State) OnClose(key any, fn func()) {
	s.onClose[key] = fn
}

// Forget drops the func registered for key with OnClose.
// It must be called from within Run.
func (s *State) Forget(key any) {
	delete(s.onClose, key)
}

// DoString executes a chunk of Lua source.
func (s *State) DoString(ctx context.Context, code string) error {
	return s.Run(ctx, func(L *lua.LState) error {
		return L.DoString(code)
	})
}

// DoFile executes a Lua file.
func (s *State) DoFile(ctx context.Context, path string) error {
	return s.Run(ctx, func(L *lua.LState) error {
		return L.DoFile(path)
	})
}

// CallFunction calls fn with args and returns its first result, or LNil.
// It must be called from within Run.
func CallFunction(L *lua.LState, fn *lua.LFunction, args ...lua.LValue) (lua.LValue, error) {
	if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, args...); err != nil {
		return lua.LNil, err
	}
	ret := L.Get(-1)
	L.Pop(1)
	return ret, nil
}

// After runs fn on the state once d has elapsed.
// Errors from fn, including a closed state, are passed to onErr.
func (s *State) After(d time.Duration, fn func(L *lua.LState) error, onErr func(error)) {
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		s.mu.Lock()
		delete(s.timers, t)
		s.mu.Unlock()

		if err := s.Run(context.Background(), fn); err != nil && onErr != nil {
			onErr(err)
		}
	})

	// Called from within Run, so the mutex is already held.
	s.timers[t] = struct{}{}
}

// IsClosed reports whether the state has been closed.
func (s *State) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close stops pending timers, releases the Lua state and then runs the
// funcs registered with OnClose.
func (s *State) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	for t := range s.timers {
		t.Stop()
	}
	s.timers = nil
	s.L.Close()
	s.closed = true

	onClose := s.onClose
	s.onClose = nil
	s.mu.Unlock()

	for _, fn := range onClose {
		fn()
	}
	return nil
}
