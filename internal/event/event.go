package event

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
)

// KeyOf returns the dispatch key of an event: its dynamic type.
// Handlers and recursion depth are tracked per key.
func KeyOf(event any) reflect.Type {
	return reflect.TypeOf(event)
}

// KeyFor returns the dispatch key for events of type E.
func KeyFor[E any]() reflect.Type {
	return reflect.TypeFor[E]()
}

// Cancellable is implemented by events that handlers may cancel.
// Listeners skip cancelled events unless registered with HandleCancelled.
type Cancellable interface {
	IsCancelled() bool
	SetCancelled(cancelled bool)
}

// CancelState is an embeddable implementation of Cancellable.
type CancelState struct {
	mu        sync.Mutex
	cancelled bool
}

// IsCancelled reports whether the event has been cancelled.
func (c *CancelState) IsCancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

// SetCancelled sets the cancelled flag.
func (c *CancelState) SetCancelled(cancelled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled = cancelled
}

// Cancel marks the event as cancelled.
func (c *CancelState) Cancel() {
	c.SetCancelled(true)
}

// Types is a catalogue of named event types.
// It lets callers that only know an event by name (scripts, the CLI)
// resolve its dispatch key. It is safe for concurrent use.
type Types struct {
	mu     sync.RWMutex
	byName map[string]reflect.Type
	byKey  map[reflect.Type]string
	ctors  map[string]func() any
}

// NewTypes creates an empty catalogue.
func NewTypes() *Types {
	return &Types{
		byName: make(map[string]reflect.Type),
		byKey:  make(map[reflect.Type]string),
		ctors:  make(map[string]func() any),
	}
}

// Register adds a named event type. The constructor, if not nil, builds a
// fresh zero event of that type.
func (t *Types) Register(name string, key reflect.Type, ctor func() any) error {
	if name == "" || key == nil {
		return fmt.Errorf("%w: empty name or type", ErrUnknownEventType)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.byName[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateEventType, name)
	}
	if existing, exists := t.byKey[key]; exists {
		return fmt.Errorf("%w: %s already registered as %s", ErrDuplicateEventType, key, existing)
	}

	t.byName[name] = key
	t.byKey[key] = name
	if ctor != nil {
		t.ctors[name] = ctor
	}
	return nil
}

// RegisterType registers E under name with a constructor returning a new E.
// E is normally a pointer type, in which case the constructor allocates the
// pointed-to value.
func RegisterType[E any](t *Types, name string) error {
	key := KeyFor[E]()
	ctor := func() any {
		var zero E
		return zero
	}
	if key.Kind() == reflect.Pointer {
		elem := key.Elem()
		ctor = func() any {
			return reflect.New(elem).Interface()
		}
	}
	return t.Register(name, key, ctor)
}

// Lookup returns the dispatch key registered under name.
func (t *Types) Lookup(name string) (reflect.Type, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	key, ok := t.byName[name]
	return key, ok
}

// New builds a fresh event for a registered name.
func (t *Types) New(name string) (any, error) {
	t.mu.RLock()
	ctor, ok := t.ctors[name]
	t.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, name)
	}
	return ctor(), nil
}

// Name returns the registered name for a key, falling back to the Go type
// name for unregistered keys.
func (t *Types) Name(key reflect.Type) string {
	if t != nil {
		t.mu.RLock()
		name, ok := t.byKey[key]
		t.mu.RUnlock()
		if ok {
			return name
		}
	}
	if key == nil {
		return "<nil>"
	}
	return key.String()
}

// Names returns all registered names in sorted order.
func (t *Types) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	names := make([]string, 0, len(t.byName))
	for name := range t.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Match returns the registered names matching pattern, sorted.
//
// Names are dot-separated. In a pattern "*" stands for exactly one segment
// and "**" for any number of segments, including none.
func (t *Types) Match(pattern string) []string {
	want := strings.Split(pattern, ".")

	var out []string
	for _, name := range t.Names() {
		if matchName(strings.Split(name, "."), want) {
			out = append(out, name)
		}
	}
	return out
}

func matchName(name, pattern []string) bool {
	for len(pattern) > 0 {
		head := pattern[0]
		if head == "**" {
			rest := pattern[1:]
			for skip := 0; skip <= len(name); skip++ {
				if matchName(name[skip:], rest) {
					return true
				}
			}
			return false
		}
		if len(name) == 0 || (head != "*" && head != name[0]) {
			return false
		}
		name, pattern = name[1:], pattern[1:]
	}
	return len(name) == 0
}
