package event

import (
	"errors"
	"sync"
	"testing"
)

func TestDepthGuard_EnterRelease(t *testing.T) {
	g := NewDepthGuard(3)
	key := KeyFor[*testEvent]()

	release, err := g.Enter(key, "test")
	if err != nil {
		t.Fatal(err)
	}
	if g.Depth(key) != 1 {
		t.Errorf("Depth() = %d, want 1", g.Depth(key))
	}

	release()
	release()
	if g.Depth(key) != 0 {
		t.Errorf("Depth() = %d after double release, want 0", g.Depth(key))
	}
}

func TestDepthGuard_Ceiling(t *testing.T) {
	g := NewDepthGuard(2)
	key := KeyFor[*testEvent]()

	r1, _ := g.Enter(key, "test")
	r2, _ := g.Enter(key, "test")

	release, err := g.Enter(key, "test")
	if release != nil {
		t.Error("refused Enter should not return a release func")
	}
	var re *RecursionError
	if !errors.As(err, &re) {
		t.Fatalf("error = %v, want *RecursionError", err)
	}
	if re.Event != "test" || re.MaxDepth != 2 {
		t.Errorf("RecursionError = %+v", re)
	}
	if g.Depth(key) != 2 {
		t.Errorf("refused Enter changed depth to %d", g.Depth(key))
	}

	// Other event types are counted separately.
	if _, err := g.Enter(KeyFor[*otherEvent](), "other"); err != nil {
		t.Errorf("other key should not be limited: %v", err)
	}

	r2()
	if _, err := g.Enter(key, "test"); err != nil {
		t.Errorf("Enter after release should succeed: %v", err)
	}
	r1()
}

func TestDepthGuard_Defaults(t *testing.T) {
	if NewDepthGuard(0).Max() != DefaultMaxDepth {
		t.Error("zero ceiling should use the default")
	}
	if GlobalDepth().Max() != DefaultMaxDepth {
		t.Errorf("GlobalDepth().Max() = %d", GlobalDepth().Max())
	}
}

func TestDepthGuard_SetMax(t *testing.T) {
	g := NewDepthGuard(5)
	g.SetMax(1)
	if g.Max() != 1 {
		t.Errorf("Max() = %d, want 1", g.Max())
	}
	g.SetMax(0)
	if g.Max() != 1 {
		t.Error("SetMax(0) should be ignored")
	}

	key := KeyFor[*testEvent]()
	release, err := g.Enter(key, "test")
	if err != nil {
		t.Fatal(err)
	}
	defer release()
	if _, err := g.Enter(key, "test"); !errors.Is(err, ErrRecursionLimit) {
		t.Errorf("error = %v, want ErrRecursionLimit", err)
	}
}

func TestDepthGuard_Concurrent(t *testing.T) {
	g := NewDepthGuard(1000)
	key := KeyFor[*testEvent]()

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := g.Enter(key, "test")
			if err != nil {
				t.Error(err)
				return
			}
			release()
		}()
	}
	wg.Wait()

	if g.Depth(key) != 0 {
		t.Errorf("Depth() = %d, want 0", g.Depth(key))
	}
}
