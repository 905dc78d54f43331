package event

import (
	"reflect"
	"sync"
)

// DefaultMaxDepth is the default ceiling on nested dispatches of one event type.
const DefaultMaxDepth = 50

// globalDepth is shared by every dispatcher that is not given its own guard,
// so nesting is counted process-wide.
var globalDepth = NewDepthGuard(DefaultMaxDepth)

// GlobalDepth returns the process-wide depth guard.
func GlobalDepth() *DepthGuard {
	return globalDepth
}

// DepthGuard tracks in-flight dispatch depth per event type and refuses new
// dispatches past a ceiling. It is safe for concurrent use.
type DepthGuard struct {
	mu    sync.Mutex
	depth map[reflect.Type]int
	max   int
}

// NewDepthGuard creates a guard with the given ceiling.
// A ceiling below 1 is replaced by DefaultMaxDepth.
func NewDepthGuard(maxDepth int) *DepthGuard {
	if maxDepth < 1 {
		maxDepth = DefaultMaxDepth
	}
	return &DepthGuard{
		depth: make(map[reflect.Type]int),
		max:   maxDepth,
	}
}

// Enter increments the depth for key and returns a release func that
// decrements it. The release func may be called any number of times; only
// the first call has an effect.
//
// If the depth is already at the ceiling, Enter returns a *RecursionError
// and leaves the counter untouched.
func (g *DepthGuard) Enter(key reflect.Type, name string) (release func(), err error) {
	g.mu.Lock()
	if g.depth[key] >= g.max {
		maxDepth := g.max
		g.mu.Unlock()
		return nil, &RecursionError{Event: name, MaxDepth: maxDepth}
	}
	g.depth[key]++
	g.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { g.leave(key) })
	}, nil
}

func (g *DepthGuard) leave(key reflect.Type) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.depth[key] <= 1 {
		delete(g.depth, key)
		return
	}
	g.depth[key]--
}

// Depth returns the current depth for key.
func (g *DepthGuard) Depth(key reflect.Type) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.depth[key]
}

// Max returns the ceiling.
func (g *DepthGuard) Max() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.max
}

// SetMax changes the ceiling. Dispatches already in flight are not affected;
// the new value applies to the next Enter. Values below 1 are ignored.
func (g *DepthGuard) SetMax(maxDepth int) {
	if maxDepth < 1 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.max = maxDepth
}
