package flow

import (
	"errors"
	"fmt"
	"testing"
)

var errTest = errors.New("test failure")

func TestIsPermanent(t *testing.T) {
	if IsPermanent(nil) {
		t.Fatal("nil is not permanent")
	}
	if IsPermanent(errTest) {
		t.Fatal("plain error is not permanent")
	}
	if !IsPermanent(Permanent(errTest)) {
		t.Fatal("wrapped error must be permanent")
	}
	if !IsPermanent(fmt.Errorf("outer: %w", Permanent(errTest))) {
		t.Fatal("permanence must survive wrapping")
	}
	if Permanent(nil) != nil {
		t.Fatal("Permanent(nil) must be nil")
	}

	t.Run("duck-typed marker", func(t *testing.T) {
		if !IsPermanent(&otherPermanent{}) {
			t.Fatal("foreign Permanent() marker not honored")
		}
	})
}

type otherPermanent struct{}

func (*otherPermanent) Error() string   { return "other" }
func (*otherPermanent) Permanent() bool { return true }

func TestEngineErrorUnwrap(t *testing.T) {
	inner := &EngineError{Message: "bad node", Code: "UNKNOWN_NODE", Err: ErrUnknownNode}
	if !errors.Is(inner, ErrUnknownNode) {
		t.Fatal("EngineError must unwrap to its sentinel")
	}
	if inner.Error() == "" {
		t.Fatal("empty error string")
	}

	ne := &NodeError{Node: "work", Unit: "work#2", Err: inner}
	if !errors.Is(ne, ErrUnknownNode) {
		t.Fatal("NodeError must unwrap through EngineError")
	}
	want := "node work unit work#2"
	if got := ne.Error(); len(got) < len(want) || got[:len(want)] != want {
		t.Fatalf("node error = %q", got)
	}
}
