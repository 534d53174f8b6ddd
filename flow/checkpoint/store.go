// Package checkpoint persists workflow thread snapshots.
//
// A snapshot is written after every committed state merge, keyed by
// (thread id, sequence number). The latest snapshot for a thread is
// sufficient to resume it: it carries the merged state, the set of
// committed nodes and dispatch units, and the pending suspension if
// the thread is parked for human review.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned by Latest and History when a thread has no
// snapshots.
var ErrNotFound = errors.New("checkpoint: thread not found")

// Suspension records a parked thread awaiting an external decision.
type Suspension struct {
	// Node is the registry name of the suspended node. Resume re-enters
	// this node and no other.
	Node string `json:"node"`

	// Payload is the serialized review payload the node surfaced.
	Payload json.RawMessage `json:"payload"`

	// Deadline is when the suspension expires and the sweeper may
	// resolve it. Zero means no deadline.
	Deadline time.Time `json:"deadline,omitempty"`
}

// Snapshot is one durable point in a thread's execution.
type Snapshot[S any] struct {
	ThreadID string `json:"thread_id"`

	// Seq increases by exactly one per committed merge within a thread.
	Seq int `json:"seq"`

	// Status is the job status at this point: "queued", "running",
	// "awaiting_review", "completed", "rejected", "auto_rejected",
	// "failed", "cancelled".
	Status string `json:"status"`

	State S `json:"state"`

	// Completed lists fully committed node names plus committed
	// fan-out dispatch unit keys ("node#index"). Replay skips entries
	// found here.
	Completed []string `json:"completed"`

	Suspension *Suspension `json:"suspension,omitempty"`

	// Failure holds the error detail when Status is "failed".
	Failure string `json:"failure,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Store persists snapshots. Implementations must make Snapshot writes
// atomic per (thread, seq) and must not acknowledge a write that is
// not durable.
type Store[S any] interface {
	// Snapshot upserts one snapshot. Writing the same (thread, seq)
	// twice replaces the earlier row; the engine relies on this for
	// crash-replay idempotence.
	Snapshot(ctx context.Context, snap Snapshot[S]) error

	// Latest returns the snapshot with the highest seq for the thread,
	// or ErrNotFound.
	Latest(ctx context.Context, threadID string) (Snapshot[S], error)

	// History returns all snapshots for the thread in ascending seq
	// order, or ErrNotFound when none exist.
	History(ctx context.Context, threadID string) ([]Snapshot[S], error)

	// AwaitingReview returns the latest snapshot of every thread whose
	// latest snapshot carries a suspension. Used by the review-deadline
	// sweeper.
	AwaitingReview(ctx context.Context) ([]Snapshot[S], error)

	// Close releases underlying resources.
	Close() error
}
