package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

type testState struct {
	Note  string   `json:"note,omitempty"`
	Items []string `json:"items,omitempty"`
}

func snap(thread string, seq int, status string, susp *Suspension) Snapshot[testState] {
	return Snapshot[testState]{
		ThreadID:   thread,
		Seq:        seq,
		Status:     status,
		State:      testState{Note: status, Items: []string{"a", "b"}},
		Completed:  []string{"first", "work#0"},
		Suspension: susp,
		CreatedAt:  time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC).Add(time.Duration(seq) * time.Second),
	}
}

// runStoreSuite exercises the Store contract against any implementation.
func runStoreSuite(t *testing.T, store Store[testState]) {
	ctx := context.Background()

	t.Run("latest on unknown thread", func(t *testing.T) {
		if _, err := store.Latest(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
		if _, err := store.History(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("history err = %v, want ErrNotFound", err)
		}
	})

	t.Run("write and read back", func(t *testing.T) {
		for seq := 0; seq < 3; seq++ {
			if err := store.Snapshot(ctx, snap("t1", seq, "running", nil)); err != nil {
				t.Fatalf("snapshot seq %d: %v", seq, err)
			}
		}

		latest, err := store.Latest(ctx, "t1")
		if err != nil {
			t.Fatalf("latest: %v", err)
		}
		if latest.Seq != 2 || latest.ThreadID != "t1" {
			t.Fatalf("latest = %+v", latest)
		}
		if len(latest.Completed) != 2 || latest.Completed[1] != "work#0" {
			t.Fatalf("completed = %v", latest.Completed)
		}
		if len(latest.State.Items) != 2 {
			t.Fatalf("state = %+v", latest.State)
		}
	})

	t.Run("upsert replaces same seq", func(t *testing.T) {
		replaced := snap("t1", 2, "failed", nil)
		replaced.Failure = "boom"
		if err := store.Snapshot(ctx, replaced); err != nil {
			t.Fatalf("upsert: %v", err)
		}

		latest, err := store.Latest(ctx, "t1")
		if err != nil {
			t.Fatalf("latest: %v", err)
		}
		if latest.Status != "failed" || latest.Failure != "boom" {
			t.Fatalf("latest = %+v, upsert did not replace", latest)
		}

		history, err := store.History(ctx, "t1")
		if err != nil {
			t.Fatalf("history: %v", err)
		}
		if len(history) != 3 {
			t.Fatalf("history has %d rows, upsert must not add one", len(history))
		}
		for i, s := range history {
			if s.Seq != i {
				t.Fatalf("history[%d].Seq = %d, want ascending", i, s.Seq)
			}
		}
	})

	t.Run("suspension round trip", func(t *testing.T) {
		deadline := time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC)
		susp := &Suspension{
			Node:     "gate",
			Payload:  json.RawMessage(`{"question":"approve?"}`),
			Deadline: deadline,
		}
		if err := store.Snapshot(ctx, snap("t2", 0, "awaiting_review", susp)); err != nil {
			t.Fatalf("snapshot: %v", err)
		}

		latest, err := store.Latest(ctx, "t2")
		if err != nil {
			t.Fatalf("latest: %v", err)
		}
		if latest.Suspension == nil || latest.Suspension.Node != "gate" {
			t.Fatalf("suspension = %+v", latest.Suspension)
		}
		if !latest.Suspension.Deadline.Equal(deadline) {
			t.Fatalf("deadline = %v, want %v", latest.Suspension.Deadline, deadline)
		}
		var payload map[string]string
		if err := json.Unmarshal(latest.Suspension.Payload, &payload); err != nil {
			t.Fatalf("payload: %v", err)
		}
		if payload["question"] != "approve?" {
			t.Fatalf("payload = %v", payload)
		}
	})

	t.Run("awaiting review lists only suspended threads", func(t *testing.T) {
		// t3 was suspended and then resumed past it.
		susp := &Suspension{Node: "gate", Payload: json.RawMessage(`{}`)}
		if err := store.Snapshot(ctx, snap("t3", 0, "awaiting_review", susp)); err != nil {
			t.Fatalf("snapshot: %v", err)
		}
		if err := store.Snapshot(ctx, snap("t3", 1, "completed", nil)); err != nil {
			t.Fatalf("snapshot: %v", err)
		}

		suspended, err := store.AwaitingReview(ctx)
		if err != nil {
			t.Fatalf("awaiting review: %v", err)
		}
		if len(suspended) != 1 || suspended[0].ThreadID != "t2" {
			t.Fatalf("suspended = %+v, want only t2", suspended)
		}
	})

	t.Run("closed store rejects writes", func(t *testing.T) {
		if err := store.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
		if err := store.Close(); err != nil {
			t.Fatalf("double close: %v", err)
		}
		if err := store.Snapshot(ctx, snap("t9", 0, "running", nil)); err == nil {
			t.Fatal("write on closed store succeeded")
		}
	})
}

func TestMemStore(t *testing.T) {
	runStoreSuite(t, NewMemStore[testState]())
}

func TestMemStoreIsolation(t *testing.T) {
	store := NewMemStore[testState]()
	ctx := context.Background()

	original := snap("iso", 0, "running", nil)
	if err := store.Snapshot(ctx, original); err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	read, err := store.Latest(ctx, "iso")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	read.State.Items[0] = "mutated"

	again, err := store.Latest(ctx, "iso")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if again.State.Items[0] != "a" {
		t.Fatal("caller mutation leaked into the store")
	}
}

func TestSQLiteStore(t *testing.T) {
	store, err := NewSQLiteStore[testState](":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	runStoreSuite(t, store)
}

func TestSQLiteStorePersistsAcrossHandles(t *testing.T) {
	path := t.TempDir() + "/snapshots.db"

	first, err := NewSQLiteStore[testState](path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := first.Snapshot(context.Background(), snap("t1", 0, "running", nil)); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second, err := NewSQLiteStore[testState](path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()

	latest, err := second.Latest(context.Background(), "t1")
	if err != nil {
		t.Fatalf("latest after reopen: %v", err)
	}
	if latest.Status != "running" || latest.State.Note != "running" {
		t.Fatalf("latest = %+v", latest)
	}
	if second.Path() != path {
		t.Fatalf("path = %q", second.Path())
	}
}
