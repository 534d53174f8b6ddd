package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fableforge/storyflow/flow/checkpoint"
)

// Reducer merges one committed patch into the previous state and
// returns the next state. It must treat scalar fields as
// last-writer-wins (unset patch fields leave the previous value) and
// reducer fields as append-only, so that merging any permutation of a
// set of patches yields the same state.
type Reducer[S, P any] func(prev S, patch P) S

// Engine executes one workflow version: a fixed node registry, a
// reducer, and a checkpoint store. Engines are safe for concurrent
// use across threads; each thread's merges are serialized internally.
type Engine[S, P, O any] struct {
	reg     *Registry[S, P, O]
	reducer Reducer[S, P]
	store   checkpoint.Store[S]
	start   string
	opts    Options
}

// New builds an engine. The registry is validated eagerly so
// misconfigured graphs fail at startup, not mid-thread.
func New[S, P, O any](reg *Registry[S, P, O], reducer Reducer[S, P], store checkpoint.Store[S], start string, opts ...Option) (*Engine[S, P, O], error) {
	if reg == nil {
		return nil, &EngineError{Message: "registry is required", Code: "INVALID_CONFIG"}
	}
	if reducer == nil {
		return nil, &EngineError{Message: "reducer is required", Code: "INVALID_CONFIG"}
	}
	if store == nil {
		return nil, &EngineError{Message: "checkpoint store is required", Code: "INVALID_CONFIG"}
	}
	if err := reg.Validate(start); err != nil {
		return nil, err
	}

	var options Options
	for _, opt := range opts {
		if err := opt(&options); err != nil {
			return nil, err
		}
	}

	return &Engine[S, P, O]{
		reg:     reg,
		reducer: reducer,
		store:   store,
		start:   start,
		opts:    options.withDefaults(),
	}, nil
}

// Outcome is the result of driving a thread as far as it can go.
type Outcome[S any] struct {
	ThreadID string
	Status   Status
	Seq      int
	State    S

	// Suspension is set when Status is StatusAwaitingReview.
	Suspension *checkpoint.Suspension

	// Failure is set when Status is StatusFailed.
	Failure error
}

// Run starts (or recovers) a thread. For a new thread id it snapshots
// the initial state, then drives nodes from the start node until the
// thread suspends, finishes, or fails. Calling Run again with the id
// of a finished thread returns the recorded outcome; calling it on a
// suspended thread returns the suspended outcome without executing
// anything; calling it on a thread interrupted mid-run (crash)
// replays routing from the latest snapshot and continues.
func (e *Engine[S, P, O]) Run(ctx context.Context, threadID string, initial S) (Outcome[S], error) {
	if threadID == "" {
		return Outcome[S]{}, &EngineError{Message: "thread id must not be empty", Code: "INVALID_THREAD"}
	}

	snap, err := e.store.Latest(ctx, threadID)
	switch {
	case err == checkpoint.ErrNotFound:
		snap = checkpoint.Snapshot[S]{
			ThreadID:  threadID,
			Seq:       0,
			Status:    string(StatusQueued),
			State:     initial,
			Completed: nil,
			CreatedAt: e.opts.Clock(),
		}
		if err := e.store.Snapshot(ctx, snap); err != nil {
			return Outcome[S]{}, &EngineError{Message: "failed to write initial snapshot", Code: "STORE_ERROR", Err: err}
		}
		e.opts.Metrics.snapshotCommitted()
		e.emit(threadID, 0, "", "thread_start", nil)
	case err != nil:
		return Outcome[S]{}, &EngineError{Message: "failed to load latest snapshot", Code: "STORE_ERROR", Err: err}
	default:
		if Status(snap.Status).Terminal() {
			return e.outcomeFrom(snap), nil
		}
		if snap.Suspension != nil {
			return e.outcomeFrom(snap), nil
		}
	}

	return e.drive(ctx, snap, "", nil)
}

// Resume delivers an external decision to a suspended thread. Only the
// suspended node re-enters; every node committed before the suspension
// stays committed. The snapshot is validated against the registry so a
// thread persisted under a different graph version is rejected rather
// than misrouted.
func (e *Engine[S, P, O]) Resume(ctx context.Context, threadID string, decision any) (Outcome[S], error) {
	snap, err := e.store.Latest(ctx, threadID)
	if err == checkpoint.ErrNotFound {
		return Outcome[S]{}, err
	}
	if err != nil {
		return Outcome[S]{}, &EngineError{Message: "failed to load latest snapshot", Code: "STORE_ERROR", Err: err}
	}
	if Status(snap.Status).Terminal() {
		return e.outcomeFrom(snap), ErrThreadTerminal
	}
	if snap.Suspension == nil {
		return Outcome[S]{}, ErrNotSuspended
	}
	if err := e.validateSnapshot(snap); err != nil {
		return Outcome[S]{}, err
	}

	raw, err := json.Marshal(decision)
	if err != nil {
		return Outcome[S]{}, &EngineError{Message: "failed to marshal resume decision", Code: "INVALID_DECISION", Err: err}
	}

	e.opts.Metrics.threadResumed()
	e.emit(threadID, snap.Seq, snap.Suspension.Node, "resumed", nil)

	return e.drive(ctx, snap, snap.Suspension.Node, raw)
}

// Latest exposes the thread's current snapshot for status queries.
func (e *Engine[S, P, O]) Latest(ctx context.Context, threadID string) (checkpoint.Snapshot[S], error) {
	return e.store.Latest(ctx, threadID)
}

// Store returns the engine's checkpoint store.
func (e *Engine[S, P, O]) Store() checkpoint.Store[S] { return e.store }

// validateSnapshot rejects snapshots that reference nodes this engine
// version does not know.
func (e *Engine[S, P, O]) validateSnapshot(snap checkpoint.Snapshot[S]) error {
	check := func(name string) error {
		if !e.reg.Has(name) {
			return &EngineError{
				Message: fmt.Sprintf("snapshot for thread %s references node %q", snap.ThreadID, name),
				Code:    "UNKNOWN_NODE",
				Err:     ErrUnknownNode,
			}
		}
		return nil
	}

	for _, entry := range snap.Completed {
		name := entry
		if i := strings.IndexByte(entry, '#'); i >= 0 {
			name = entry[:i]
		}
		if err := check(name); err != nil {
			return err
		}
	}
	if snap.Suspension != nil {
		if err := check(snap.Suspension.Node); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine[S, P, O]) outcomeFrom(snap checkpoint.Snapshot[S]) Outcome[S] {
	out := Outcome[S]{
		ThreadID:   snap.ThreadID,
		Status:     Status(snap.Status),
		Seq:        snap.Seq,
		State:      snap.State,
		Suspension: snap.Suspension,
	}
	if snap.Failure != "" {
		out.Failure = fmt.Errorf("%s", snap.Failure)
	}
	return out
}

func (e *Engine[S, P, O]) emit(threadID string, seq int, node, msg string, meta map[string]interface{}) {
	e.opts.Emitter.Emit(emitEvent(threadID, seq, node, msg, meta))
}

// deepCopy isolates handler state from concurrent merges via a JSON
// round trip. State must be JSON-serializable, which the checkpoint
// store requires anyway.
func deepCopy[S any](s S) (S, error) {
	var out S
	data, err := json.Marshal(s)
	if err != nil {
		return out, fmt.Errorf("failed to marshal state for copy: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("failed to unmarshal state copy: %w", err)
	}
	return out, nil
}
