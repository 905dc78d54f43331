package event

import (
	"errors"
	"fmt"
	"testing"
)

func TestHandlerError(t *testing.T) {
	underlyingErr := errors.New("something went wrong")
	err := &HandlerError{
		ListenerID: "l-123",
		Event:      "player.join",
		Priority:   PriorityHigh,
		Err:        underlyingErr,
	}

	if got, want := err.Error(), "handler error for listener l-123 on player.join: something went wrong"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	if err.Unwrap() != underlyingErr {
		t.Error("Unwrap() should return the underlying error")
	}
	if !errors.Is(err, underlyingErr) {
		t.Error("errors.Is should match the underlying error")
	}
}

func TestHandlerError_Owner(t *testing.T) {
	err := &HandlerError{
		ListenerID: "l-1",
		Owner:      "chestguard",
		Event:      "chest.pair",
		Err:        errors.New("boom"),
	}

	if got, want := err.Error(), "handler error for listener chestguard/l-1 on chest.pair: boom"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestPanicError(t *testing.T) {
	err := &PanicError{
		ListenerID: "l-456",
		Value:      "panic value",
		Stack:      "fake stack trace",
	}

	if got, want := err.Error(), "handler panic for listener l-456: panic value"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, ErrHandlerPanic) {
		t.Error("errors.Is should match ErrHandlerPanic")
	}
	if errors.Is(err, ErrRecursionLimit) {
		t.Error("errors.Is should not match unrelated errors")
	}
}

func TestRecursionError(t *testing.T) {
	err := &RecursionError{Event: "player.join", MaxDepth: 50}

	if got, want := err.Error(), "recursive event call detected for player.join (reached max depth of 50 calls)"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, ErrRecursionLimit) {
		t.Error("errors.Is should match ErrRecursionLimit")
	}

	wrapped := &HandlerError{ListenerID: "l", Event: "player.join", Err: err}
	var re *RecursionError
	if !errors.As(wrapped, &re) {
		t.Fatal("errors.As should find RecursionError through HandlerError")
	}
	if re.MaxDepth != 50 {
		t.Errorf("MaxDepth = %d, want 50", re.MaxDepth)
	}
}

func TestSentinelErrors(t *testing.T) {
	sentinelErrors := []error{
		ErrRecursionLimit,
		ErrHandlerPanic,
		ErrNilEvent,
		ErrNilHandler,
		ErrInvalidPriority,
		ErrUnknownEventType,
		ErrDuplicateEventType,
	}

	for i, err1 := range sentinelErrors {
		for j, err2 := range sentinelErrors {
			if i != j && errors.Is(err1, err2) {
				t.Errorf("sentinel errors should be distinct: %v matches %v", err1, err2)
			}
		}
	}

	wrapped := fmt.Errorf("context: %w", ErrNilEvent)
	if !errors.Is(wrapped, ErrNilEvent) {
		t.Error("wrapped sentinel should match")
	}
}
