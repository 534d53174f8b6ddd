package story

import (
	"context"
	"testing"
	"time"

	"github.com/fableforge/storyflow/flow"
)

func TestSweeperRejectsOverdueJobs(t *testing.T) {
	h := newHarness(t, DefaultConfig(), script{})
	ctx := context.Background()

	out, err := h.svc.Submit(ctx, imageRequest(1))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if out.Status != flow.StatusAwaitingReview {
		t.Fatalf("status = %s", out.Status)
	}

	// Within the deadline nothing is swept.
	sw := NewSweeper(h.svc)
	swept, err := sw.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept != 0 {
		t.Fatalf("swept %d jobs before their deadline", swept)
	}

	// Jump past the 72h review deadline.
	sw.clock = func() time.Time { return time.Now().Add(73 * time.Hour) }
	swept, err = sw.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept != 1 {
		t.Fatalf("swept = %d, want 1", swept)
	}

	snap, err := h.svc.Status(ctx, out.ThreadID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if snap.Status != string(flow.StatusRejected) {
		t.Fatalf("status = %s", snap.Status)
	}
	review := snap.State.Review
	if review == nil || review.ReviewerID != ReviewerTimeout || review.Comment != "timeout" {
		t.Fatalf("review = %+v", review)
	}

	// A second sweep finds nothing left.
	swept, err = sw.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept != 0 {
		t.Fatalf("swept = %d on an empty queue", swept)
	}
}

func TestSweeperSweepsAllOverdue(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ReviewDeadline = time.Hour
	h := newHarness(t, cfg, script{})
	ctx := context.Background()

	first, err := h.svc.Submit(ctx, imageRequest(1))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	second, err := h.svc.Submit(ctx, imageRequest(1))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	sw := NewSweeper(h.svc)
	sw.clock = func() time.Time { return time.Now().Add(30 * time.Minute) }
	if swept, err := sw.SweepOnce(ctx); err != nil || swept != 0 {
		t.Fatalf("swept = %d, err = %v", swept, err)
	}

	sw.clock = func() time.Time { return time.Now().Add(2 * time.Hour) }
	swept, err := sw.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept != 2 {
		t.Fatalf("swept = %d, want both overdue jobs", swept)
	}

	for _, id := range []string{first.ThreadID, second.ThreadID} {
		snap, err := h.svc.Status(ctx, id)
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		if snap.Status != string(flow.StatusRejected) {
			t.Fatalf("job %s status = %s", id, snap.Status)
		}
	}
}
