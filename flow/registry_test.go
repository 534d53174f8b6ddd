package flow

import (
	"context"
	"testing"
	"time"
)

func okHandler(context.Context, tState, Invocation[tOverlay]) Result[tPatch] {
	return Ok(tPatch{})
}

func stopRoute(tState) Next[tOverlay] { return Stop[tOverlay]() }

func TestRegistryAdd(t *testing.T) {
	cases := []struct {
		name string
		spec NodeSpec[tState, tPatch, tOverlay]
	}{
		{"empty name", NodeSpec[tState, tPatch, tOverlay]{Handler: okHandler, Route: stopRoute}},
		{"nil handler", NodeSpec[tState, tPatch, tOverlay]{Name: "a", Route: stopRoute}},
		{"no route or terminal", NodeSpec[tState, tPatch, tOverlay]{Name: "a", Handler: okHandler}},
		{"non-terminal status", NodeSpec[tState, tPatch, tOverlay]{
			Name: "a", Handler: okHandler, TerminalStatus: StatusRunning,
		}},
		{"fan-in without predecessors", NodeSpec[tState, tPatch, tOverlay]{
			Name: "a", Kind: KindFanIn, Handler: okHandler, Route: stopRoute,
		}},
		{"predecessors on linear node", NodeSpec[tState, tPatch, tOverlay]{
			Name: "a", Handler: okHandler, Route: stopRoute, Predecessors: []string{"b"},
		}},
		{"bad retry policy", NodeSpec[tState, tPatch, tOverlay]{
			Name: "a", Handler: okHandler, Route: stopRoute,
			Retry: &RetryPolicy{MaxAttempts: 0},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reg := NewRegistry[tState, tPatch, tOverlay]()
			if err := reg.Add(tc.spec); err == nil {
				t.Fatal("expected error")
			}
		})
	}

	t.Run("duplicate name", func(t *testing.T) {
		reg := NewRegistry[tState, tPatch, tOverlay]()
		spec := NodeSpec[tState, tPatch, tOverlay]{Name: "a", Handler: okHandler, Route: stopRoute}
		if err := reg.Add(spec); err != nil {
			t.Fatalf("first add: %v", err)
		}
		if err := reg.Add(spec); err == nil {
			t.Fatal("expected duplicate error")
		}
	})
}

func TestRegistryValidate(t *testing.T) {
	reg := NewRegistry[tState, tPatch, tOverlay]()
	mustAdd(t, reg, NodeSpec[tState, tPatch, tOverlay]{Name: "start", Handler: okHandler, Route: stopRoute})
	mustAdd(t, reg, NodeSpec[tState, tPatch, tOverlay]{
		Name: "join", Kind: KindFanIn, Handler: okHandler, Route: stopRoute,
		Predecessors: []string{"missing"},
	})

	if err := reg.Validate("start"); err == nil {
		t.Fatal("expected error for unregistered predecessor")
	}
	if err := reg.Validate("ghost"); err == nil {
		t.Fatal("expected error for unknown start node")
	}
}

func TestRegistryNamesOrder(t *testing.T) {
	reg := NewRegistry[tState, tPatch, tOverlay]()
	for _, name := range []string{"c", "a", "b"} {
		mustAdd(t, reg, NodeSpec[tState, tPatch, tOverlay]{Name: name, Handler: okHandler, Route: stopRoute})
	}
	names := reg.Names()
	if len(names) != 3 || names[0] != "c" || names[1] != "a" || names[2] != "b" {
		t.Fatalf("names = %v, want registration order", names)
	}
}

func TestRetryPolicy(t *testing.T) {
	t.Run("validate", func(t *testing.T) {
		bad := []RetryPolicy{
			{MaxAttempts: 0},
			{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: time.Millisecond},
		}
		for _, rp := range bad {
			if err := rp.Validate(); err == nil {
				t.Fatalf("policy %+v should be invalid", rp)
			}
		}
		good := RetryPolicy{MaxAttempts: 1}
		if err := good.Validate(); err != nil {
			t.Fatalf("policy %+v: %v", good, err)
		}
	})

	t.Run("backoff bounded", func(t *testing.T) {
		base := 10 * time.Millisecond
		maxDelay := 40 * time.Millisecond
		for attempt := 0; attempt < 10; attempt++ {
			d := computeBackoff(attempt, base, maxDelay)
			if d < 0 || d > maxDelay+base {
				t.Fatalf("attempt %d: backoff %v out of bounds", attempt, d)
			}
		}
		if computeBackoff(3, 0, 0) != 0 {
			t.Fatal("zero base must yield zero delay")
		}
	})

	t.Run("permanent never retries", func(t *testing.T) {
		rp := RetryPolicy{MaxAttempts: 3}
		if rp.shouldRetry(Permanent(errTest)) {
			t.Fatal("permanent error retried")
		}
		if !rp.shouldRetry(errTest) {
			t.Fatal("transient error not retried")
		}
	})

	t.Run("retryable predicate restricts", func(t *testing.T) {
		rp := RetryPolicy{MaxAttempts: 3, Retryable: func(error) bool { return false }}
		if rp.shouldRetry(errTest) {
			t.Fatal("predicate must veto retry")
		}
	})
}

func TestMergeSchema(t *testing.T) {
	good := MergeSchema{
		{Name: "a", Kind: MergeScalar},
		{Name: "b", Kind: MergeAppend},
		{Name: "c", Kind: MergeAppend},
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	fields := good.AppendFields()
	if len(fields) != 2 || fields[0] != "b" || fields[1] != "c" {
		t.Fatalf("append fields = %v", fields)
	}

	dup := MergeSchema{{Name: "a"}, {Name: "a"}}
	if err := dup.Validate(); err == nil {
		t.Fatal("duplicate field accepted")
	}
	unnamed := MergeSchema{{Name: ""}}
	if err := unnamed.Validate(); err == nil {
		t.Fatal("empty field name accepted")
	}
}
