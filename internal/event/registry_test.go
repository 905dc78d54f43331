package event

import (
	"context"
	"sync"
	"testing"
)

func newTestListener(t *testing.T, opts ...ListenerOption) *Listener {
	t.Helper()
	l, err := NewListener(SyncHandlerFunc(func(ctx context.Context, event any) error {
		return nil
	}), opts...)
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func ids(listeners []*Listener) []string {
	out := make([]string, len(listeners))
	for i, l := range listeners {
		out[i] = l.ID()
	}
	return out
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()

	if r.Count() != 0 {
		t.Errorf("expected count 0, got %d", r.Count())
	}
	if got := r.HandlersFor(KeyFor[*testEvent]()); got != nil {
		t.Errorf("expected no handlers, got %v", got)
	}
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()

	Subscribe[*testEvent](r, newTestListener(t, WithID("a")))
	Subscribe[*testEvent](r, newTestListener(t, WithID("b")))
	Subscribe[*otherEvent](r, newTestListener(t, WithID("c")))

	if r.Count() != 3 {
		t.Errorf("expected count 3, got %d", r.Count())
	}
	if got := ids(r.HandlersFor(KeyFor[*testEvent]())); len(got) != 2 {
		t.Errorf("expected 2 handlers for testEvent, got %v", got)
	}
	if got := ids(r.HandlersFor(KeyFor[*otherEvent]())); len(got) != 1 || got[0] != "c" {
		t.Errorf("expected [c] for otherEvent, got %v", got)
	}
}

func TestRegistry_Ordering(t *testing.T) {
	r := NewRegistry()

	Subscribe[*testEvent](r, newTestListener(t, WithID("monitor"), WithPriority(PriorityMonitor)))
	Subscribe[*testEvent](r, newTestListener(t, WithID("normal-1")))
	Subscribe[*testEvent](r, newTestListener(t, WithID("lowest"), WithPriority(PriorityLowest)))
	Subscribe[*testEvent](r, newTestListener(t, WithID("normal-2"), Concurrent()))
	Subscribe[*testEvent](r, newTestListener(t, WithID("high"), WithPriority(PriorityHigh)))
	Subscribe[*testEvent](r, newTestListener(t, WithID("normal-3")))

	got := ids(r.HandlersFor(KeyFor[*testEvent]()))
	want := []string{"lowest", "normal-1", "normal-2", "normal-3", "high", "monitor"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestRegistry_Unregister(t *testing.T) {
	r := NewRegistry()

	Subscribe[*testEvent](r, newTestListener(t, WithID("a")))
	Subscribe[*testEvent](r, newTestListener(t, WithID("b")))

	if !r.Unregister("a") {
		t.Error("Unregister(a) should succeed")
	}
	if r.Unregister("a") {
		t.Error("second Unregister(a) should report false")
	}
	if r.Unregister("missing") {
		t.Error("Unregister(missing) should report false")
	}

	got := ids(r.HandlersFor(KeyFor[*testEvent]()))
	if len(got) != 1 || got[0] != "b" {
		t.Errorf("remaining handlers = %v, want [b]", got)
	}

	r.Unregister("b")
	if r.HandlersFor(KeyFor[*testEvent]()) != nil {
		t.Error("empty list should be dropped")
	}
	if r.Count() != 0 {
		t.Errorf("Count() = %d, want 0", r.Count())
	}
}

func TestRegistry_UnregisterOwner(t *testing.T) {
	r := NewRegistry()

	Subscribe[*testEvent](r, newTestListener(t, WithID("a"), WithOwner("p1")))
	Subscribe[*testEvent](r, newTestListener(t, WithID("b"), WithOwner("p2")))
	Subscribe[*otherEvent](r, newTestListener(t, WithID("c"), WithOwner("p1")))

	if n := r.UnregisterOwner("p1"); n != 2 {
		t.Errorf("UnregisterOwner(p1) = %d, want 2", n)
	}
	if r.Count() != 1 {
		t.Errorf("Count() = %d, want 1", r.Count())
	}
	if r.HandlersFor(KeyFor[*otherEvent]()) != nil {
		t.Error("otherEvent should have no handlers left")
	}
	if r.Unregister("a") {
		t.Error("owner removal should also forget listener IDs")
	}
	if n := r.UnregisterOwner("nobody"); n != 0 {
		t.Errorf("UnregisterOwner(nobody) = %d, want 0", n)
	}
}

func TestRegistry_SnapshotIsStable(t *testing.T) {
	r := NewRegistry()
	Subscribe[*testEvent](r, newTestListener(t, WithID("a")))

	snapshot := r.HandlersFor(KeyFor[*testEvent]())
	Subscribe[*testEvent](r, newTestListener(t, WithID("b")))

	if len(snapshot) != 1 {
		t.Errorf("earlier snapshot changed: %v", ids(snapshot))
	}
	if got := r.HandlersFor(KeyFor[*testEvent]()); len(got) != 2 {
		t.Errorf("new snapshot = %v", ids(got))
	}
}

func TestRegistry_Clear(t *testing.T) {
	r := NewRegistry()
	Subscribe[*testEvent](r, newTestListener(t))
	Subscribe[*otherEvent](r, newTestListener(t))

	r.Clear()

	if r.Count() != 0 {
		t.Errorf("Count() = %d after Clear", r.Count())
	}
	if r.HandlersFor(KeyFor[*testEvent]()) != nil {
		t.Error("handlers should be gone after Clear")
	}
}

func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry()
	key := KeyFor[*testEvent]()

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			l, err := NewListener(SyncHandlerFunc(func(ctx context.Context, event any) error {
				return nil
			}))
			if err != nil {
				t.Error(err)
				return
			}
			r.Register(key, l)
			r.Unregister(l.ID())
		}()
		go func() {
			defer wg.Done()
			_ = r.HandlersFor(key)
			_ = r.Count()
		}()
	}
	wg.Wait()

	if r.Count() != 0 {
		t.Errorf("Count() = %d, want 0", r.Count())
	}
}
