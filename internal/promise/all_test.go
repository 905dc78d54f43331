package promise

import (
	"errors"
	"testing"
)

func TestAll_Empty(t *testing.T) {
	p := All[int](nil)

	v, err, settled := p.Result()
	if !settled || err != nil || v != 0 {
		t.Errorf("Result() = (%d, %v, %v), want (0, nil, true)", v, err, settled)
	}
}

func TestAll_ResolvesWhenEveryInputResolves(t *testing.T) {
	resolvers := []*Resolver[struct{}]{
		NewResolver[struct{}](),
		NewResolver[struct{}](),
		NewResolver[struct{}](),
	}
	inputs := make([]*Promise[struct{}], len(resolvers))
	for i, r := range resolvers {
		inputs[i] = r.Promise()
	}

	all := All(inputs)

	// Resolve out of order.
	resolvers[2].Resolve(struct{}{})
	resolvers[0].Resolve(struct{}{})
	if all.IsSettled() {
		t.Fatal("All settled before every input resolved")
	}

	resolvers[1].Resolve(struct{}{})

	v, err, settled := all.Result()
	if !settled || err != nil {
		t.Fatalf("Result() = (%d, %v, %v), want resolved", v, err, settled)
	}
	if v != 3 {
		t.Errorf("count = %d, want 3", v)
	}
}

func TestAll_RejectsOnFirstFailure(t *testing.T) {
	a := NewResolver[int]()
	b := NewResolver[int]()
	c := NewResolver[int]()

	all := All([]*Promise[int]{a.Promise(), b.Promise(), c.Promise()})

	first := errors.New("first")
	second := errors.New("second")

	b.Reject(first)
	if all.State() != StateRejected {
		t.Fatalf("State() = %v, want rejected", all.State())
	}

	// Later outcomes are ignored and must not panic.
	c.Reject(second)
	a.Resolve(1)

	_, err, _ := all.Result()
	if !errors.Is(err, first) {
		t.Errorf("error = %v, want %v", err, first)
	}
}

func TestAll_AlreadySettledInputs(t *testing.T) {
	all := All([]*Promise[string]{Resolved("a"), Resolved("b")})
	if v, err, ok := all.Result(); !ok || err != nil || v != 2 {
		t.Errorf("Result() = (%d, %v, %v), want (2, nil, true)", v, err, ok)
	}

	boom := errors.New("boom")
	rejected := All([]*Promise[string]{Resolved("a"), Rejected[string](boom)})
	if _, err, _ := rejected.Result(); !errors.Is(err, boom) {
		t.Errorf("error = %v, want %v", err, boom)
	}
}

func TestVoid(t *testing.T) {
	r := NewResolver[string]()
	v := Void(r.Promise())

	if v.IsSettled() {
		t.Fatal("Void settled before its source")
	}
	r.Resolve("x")
	if v.State() != StateResolved {
		t.Errorf("State() = %v, want resolved", v.State())
	}

	boom := errors.New("boom")
	if _, err, _ := Void(Rejected[int](boom)).Result(); !errors.Is(err, boom) {
		t.Errorf("error = %v, want %v", err, boom)
	}
}
