package event

import (
	"reflect"
	"sort"
	"sync"
)

// Source supplies the ordered listeners for an event type.
// Listeners are returned sorted by priority ascending, with registration
// order preserved within a priority.
type Source interface {
	HandlersFor(key reflect.Type) []*Listener
}

// HandlerList holds the listeners of one event type.
// It is safe for concurrent use.
type HandlerList struct {
	mu        sync.RWMutex
	listeners []*Listener
	sorted    []*Listener // cached snapshot, nil when stale
}

// NewHandlerList creates an empty handler list.
func NewHandlerList() *HandlerList {
	return &HandlerList{}
}

// Register adds a listener.
func (h *HandlerList) Register(l *Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.listeners = append(h.listeners, l)
	h.sorted = nil
}

// Unregister removes the listener with the given ID.
func (h *HandlerList) Unregister(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, l := range h.listeners {
		if l.ID() == id {
			h.listeners = append(h.listeners[:i:i], h.listeners[i+1:]...)
			h.sorted = nil
			return true
		}
	}
	return false
}

// UnregisterOwner removes every listener registered under owner.
// Returns the number of listeners removed.
func (h *HandlerList) UnregisterOwner(owner string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	kept := h.listeners[:0:0]
	for _, l := range h.listeners {
		if l.Owner() != owner {
			kept = append(kept, l)
		}
	}
	removed := len(h.listeners) - len(kept)
	if removed > 0 {
		h.listeners = kept
		h.sorted = nil
	}
	return removed
}

// Listeners returns the listeners ordered by priority, then registration.
// The returned slice is shared and must not be modified.
func (h *HandlerList) Listeners() []*Listener {
	h.mu.RLock()
	sorted := h.sorted
	h.mu.RUnlock()
	if sorted != nil || h.Len() == 0 {
		return sorted
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sorted == nil && len(h.listeners) > 0 {
		s := make([]*Listener, len(h.listeners))
		copy(s, h.listeners)
		sort.SliceStable(s, func(i, j int) bool {
			if s[i].Priority() != s[j].Priority() {
				return s[i].Priority() < s[j].Priority()
			}
			return s[i].seq < s[j].seq
		})
		h.sorted = s
	}
	return h.sorted
}

// Len returns the number of listeners.
func (h *HandlerList) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}

// Registry manages handler lists keyed by event type.
// It is safe for concurrent access and implements Source.
type Registry struct {
	mu    sync.RWMutex
	lists map[reflect.Type]*HandlerList
	byID  map[string]reflect.Type
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		lists: make(map[reflect.Type]*HandlerList),
		byID:  make(map[string]reflect.Type),
	}
}

// Register adds a listener for events whose dynamic type is key.
func (r *Registry) Register(key reflect.Type, l *Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list, ok := r.lists[key]
	if !ok {
		list = NewHandlerList()
		r.lists[key] = list
	}
	list.Register(l)
	r.byID[l.ID()] = key
}

// Subscribe registers a listener for events of type E.
func Subscribe[E any](r *Registry, l *Listener) {
	r.Register(KeyFor[E](), l)
}

// Unregister removes a listener by ID.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, ok := r.byID[id]
	if !ok {
		return false
	}
	delete(r.byID, id)

	list := r.lists[key]
	removed := list.Unregister(id)
	if list.Len() == 0 {
		delete(r.lists, key)
	}
	return removed
}

// UnregisterOwner removes every listener registered under owner.
// Returns the number of listeners removed.
func (r *Registry) UnregisterOwner(owner string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, list := range r.lists {
		for _, l := range list.Listeners() {
			if l.Owner() == owner {
				delete(r.byID, l.ID())
			}
		}
		removed += list.UnregisterOwner(owner)
		if list.Len() == 0 {
			delete(r.lists, key)
		}
	}
	return removed
}

// HandlersFor returns the ordered listeners for key.
func (r *Registry) HandlersFor(key reflect.Type) []*Listener {
	r.mu.RLock()
	list, ok := r.lists[key]
	r.mu.RUnlock()

	if !ok {
		return nil
	}
	return list.Listeners()
}

// Count returns the total number of listeners.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.byID)
}

// Clear removes all listeners.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lists = make(map[reflect.Type]*HandlerList)
	r.byID = make(map[string]reflect.Type)
}
