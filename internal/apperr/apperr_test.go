package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	err := New(NotFound, "registry.Get", "unknown device %q", "dev-1")
	if KindOf(err) != NotFound {
		t.Errorf("expected NotFound, got %v", KindOf(err))
	}
	if KindOf(errors.New("plain")) != Unknown {
		t.Errorf("plain errors should be Unknown")
	}
	if KindOf(nil) != Unknown {
		t.Errorf("nil should be Unknown")
	}
}

func TestKindSurvivesWrapping(t *testing.T) {
	inner := New(Timeout, "transfer.Send", "no receiver connected")
	outer := fmt.Errorf("session failed: %w", inner)

	if !IsKind(outer, Timeout) {
		t.Error("kind should survive fmt.Errorf wrapping")
	}
	var ae *Error
	if !errors.As(outer, &ae) {
		t.Fatal("errors.As should find the application error")
	}
	if ae.Op != "transfer.Send" {
		t.Errorf("unexpected op %q", ae.Op)
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(Connectivity, "client.api", cause, "coordinator unreachable")

	if !errors.Is(err, cause) {
		t.Error("wrapped cause should be reachable via errors.Is")
	}
}

func TestKindStrings(t *testing.T) {
	cases := map[Kind]string{
		Validation:         "validation",
		NotFound:           "not_found",
		TargetUnreachable:  "target_unreachable",
		Timeout:            "timeout",
		TransferIncomplete: "transfer_incomplete",
		Connectivity:       "connectivity",
		Unknown:            "unknown",
	}
	for kind, want := range cases {
		if kind.String() != want {
			t.Errorf("Kind(%d).String() = %q, want %q", kind, kind.String(), want)
		}
	}
}
