package event

import (
	"errors"
	"sync"
	"testing"
)

func TestKeyOf(t *testing.T) {
	if KeyOf(&testEvent{}) != KeyFor[*testEvent]() {
		t.Error("KeyOf and KeyFor should agree for the same type")
	}
	if KeyOf(&testEvent{}) == KeyOf(testEvent{}) {
		t.Error("pointer and value types should have different keys")
	}
	if KeyOf(&testEvent{}) == KeyOf(&otherEvent{}) {
		t.Error("different types should have different keys")
	}
}

func TestCancelState(t *testing.T) {
	ev := &testEvent{}

	var c Cancellable = ev
	if c.IsCancelled() {
		t.Error("new event should not be cancelled")
	}

	ev.Cancel()
	if !c.IsCancelled() {
		t.Error("Cancel() should mark the event cancelled")
	}

	c.SetCancelled(false)
	if ev.IsCancelled() {
		t.Error("SetCancelled(false) should clear the flag")
	}
}

func TestCancelState_Concurrent(t *testing.T) {
	ev := &testEvent{}

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ev.SetCancelled(i%2 == 0)
			_ = ev.IsCancelled()
		}()
	}
	wg.Wait()
}

func TestTypes_Register(t *testing.T) {
	types := NewTypes()

	if err := RegisterType[*testEvent](types, "test.event"); err != nil {
		t.Fatalf("RegisterType() error = %v", err)
	}

	key, ok := types.Lookup("test.event")
	if !ok || key != KeyFor[*testEvent]() {
		t.Errorf("Lookup() = %v, %v", key, ok)
	}
	if got := types.Name(KeyFor[*testEvent]()); got != "test.event" {
		t.Errorf("Name() = %q, want test.event", got)
	}
}

func TestTypes_Duplicate(t *testing.T) {
	types := NewTypes()
	if err := RegisterType[*testEvent](types, "test.event"); err != nil {
		t.Fatal(err)
	}

	err := RegisterType[*otherEvent](types, "test.event")
	if !errors.Is(err, ErrDuplicateEventType) {
		t.Errorf("duplicate name error = %v, want ErrDuplicateEventType", err)
	}

	err = RegisterType[*testEvent](types, "test.again")
	if !errors.Is(err, ErrDuplicateEventType) {
		t.Errorf("duplicate type error = %v, want ErrDuplicateEventType", err)
	}
}

func TestTypes_RegisterInvalid(t *testing.T) {
	types := NewTypes()
	if err := types.Register("", KeyFor[*testEvent](), nil); err == nil {
		t.Error("empty name should be rejected")
	}
	if err := types.Register("x", nil, nil); err == nil {
		t.Error("nil type should be rejected")
	}
}

func TestTypes_New(t *testing.T) {
	types := NewTypes()
	if err := RegisterType[*testEvent](types, "test.event"); err != nil {
		t.Fatal(err)
	}
	if err := RegisterType[otherEvent](types, "other.event"); err != nil {
		t.Fatal(err)
	}

	ev, err := types.New("test.event")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	te, ok := ev.(*testEvent)
	if !ok || te == nil {
		t.Fatalf("New() returned %T, want non-nil *testEvent", ev)
	}

	ev2, _ := types.New("test.event")
	if ev2.(*testEvent) == te {
		t.Error("New() should allocate a fresh event each call")
	}

	if _, ok := mustNew(t, types, "other.event").(otherEvent); !ok {
		t.Error("value type constructor should return a zero value")
	}

	if _, err := types.New("missing"); !errors.Is(err, ErrUnknownEventType) {
		t.Errorf("New(missing) error = %v, want ErrUnknownEventType", err)
	}
}

func mustNew(t *testing.T, types *Types, name string) any {
	t.Helper()
	ev, err := types.New(name)
	if err != nil {
		t.Fatalf("New(%q) error = %v", name, err)
	}
	return ev
}

func TestTypes_NameFallback(t *testing.T) {
	var nilTypes *Types
	if got := nilTypes.Name(KeyFor[*testEvent]()); got != "*event.testEvent" {
		t.Errorf("nil catalogue Name() = %q", got)
	}
	if got := NewTypes().Name(nil); got != "<nil>" {
		t.Errorf("Name(nil) = %q", got)
	}
}

func TestTypes_Names(t *testing.T) {
	types := NewTypes()
	_ = RegisterType[*testEvent](types, "b.event")
	_ = RegisterType[*otherEvent](types, "a.event")

	names := types.Names()
	if len(names) != 2 || names[0] != "a.event" || names[1] != "b.event" {
		t.Errorf("Names() = %v", names)
	}
}

func TestTypes_Match(t *testing.T) {
	types := NewTypes()
	_ = types.Register("player.join", KeyFor[*testEvent](), nil)
	_ = types.Register("player.data.delete", KeyFor[*otherEvent](), nil)
	_ = types.Register("inventory.open", KeyFor[testEvent](), nil)

	tests := []struct {
		pattern string
		want    []string
	}{
		{"player.join", []string{"player.join"}},
		{"player.*", []string{"player.join"}},
		{"player.**", []string{"player.data.delete", "player.join"}},
		{"**", []string{"inventory.open", "player.data.delete", "player.join"}},
		{"*.open", []string{"inventory.open"}},
		{"**.delete", []string{"player.data.delete"}},
		{"player", nil},
		{"chest.*", nil},
	}

	for _, tt := range tests {
		got := types.Match(tt.pattern)
		if len(got) != len(tt.want) {
			t.Errorf("Match(%q) = %v, want %v", tt.pattern, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("Match(%q) = %v, want %v", tt.pattern, got, tt.want)
				break
			}
		}
	}
}
