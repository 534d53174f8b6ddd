package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// MemStore is an in-memory Store for tests and single-process runs.
// Snapshots are deep-copied through JSON on both write and read so
// callers can never alias stored state.
type MemStore[S any] struct {
	mu      sync.RWMutex
	threads map[string][]Snapshot[S] // ascending seq
	closed  bool
}

// NewMemStore creates an empty in-memory store.
func NewMemStore[S any]() *MemStore[S] {
	return &MemStore[S]{threads: make(map[string][]Snapshot[S])}
}

// Snapshot upserts the snapshot under its (thread, seq) key.
func (m *MemStore[S]) Snapshot(ctx context.Context, snap Snapshot[S]) error {
	copied, err := copySnapshot(snap)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("store is closed")
	}

	snaps := m.threads[snap.ThreadID]
	for i := range snaps {
		if snaps[i].Seq == snap.Seq {
			snaps[i] = copied
			return nil
		}
	}
	snaps = append(snaps, copied)
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Seq < snaps[j].Seq })
	m.threads[snap.ThreadID] = snaps
	return nil
}

// Latest returns the highest-seq snapshot for the thread.
func (m *MemStore[S]) Latest(ctx context.Context, threadID string) (Snapshot[S], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var zero Snapshot[S]
	if m.closed {
		return zero, fmt.Errorf("store is closed")
	}

	snaps := m.threads[threadID]
	if len(snaps) == 0 {
		return zero, ErrNotFound
	}
	return copySnapshot(snaps[len(snaps)-1])
}

// History returns every snapshot for the thread in seq order.
func (m *MemStore[S]) History(ctx context.Context, threadID string) ([]Snapshot[S], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, fmt.Errorf("store is closed")
	}

	snaps := m.threads[threadID]
	if len(snaps) == 0 {
		return nil, ErrNotFound
	}

	out := make([]Snapshot[S], 0, len(snaps))
	for _, snap := range snaps {
		copied, err := copySnapshot(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, copied)
	}
	return out, nil
}

// AwaitingReview returns the latest snapshot of each suspended thread.
func (m *MemStore[S]) AwaitingReview(ctx context.Context) ([]Snapshot[S], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, fmt.Errorf("store is closed")
	}

	var out []Snapshot[S]
	for _, snaps := range m.threads {
		last := snaps[len(snaps)-1]
		if last.Suspension == nil {
			continue
		}
		copied, err := copySnapshot(last)
		if err != nil {
			return nil, err
		}
		out = append(out, copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ThreadID < out[j].ThreadID })
	return out, nil
}

// Close marks the store closed. Double-close is a no-op.
func (m *MemStore[S]) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// copySnapshot deep-copies via a JSON round trip. State types must be
// JSON-serializable, which the engine requires anyway for durability.
func copySnapshot[S any](snap Snapshot[S]) (Snapshot[S], error) {
	var zero Snapshot[S]
	data, err := json.Marshal(snap)
	if err != nil {
		return zero, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	var out Snapshot[S]
	if err := json.Unmarshal(data, &out); err != nil {
		return zero, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return out, nil
}
