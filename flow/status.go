// Package flow is the core workflow engine: a checkpointed
// fan-out/fan-in executor over a fixed node registry with
// reducer-style state merging and human-review suspension.
package flow

// Status is the lifecycle state of a workflow thread.
type Status string

const (
	// StatusQueued means the thread is accepted but no node has run.
	StatusQueued Status = "queued"

	// StatusRunning means node handlers are executing.
	StatusRunning Status = "running"

	// StatusAwaitingReview means the thread is suspended on a review
	// gate and waits for Resume.
	StatusAwaitingReview Status = "awaiting_review"

	// StatusCompleted is the approved-and-published terminal state.
	StatusCompleted Status = "completed"

	// StatusRejected is the human-rejected terminal state.
	StatusRejected Status = "rejected"

	// StatusAutoRejected is the guardrail-rejected terminal state;
	// the review gate was bypassed.
	StatusAutoRejected Status = "auto_rejected"

	// StatusFailed means a permanent error stopped the thread.
	StatusFailed Status = "failed"

	// StatusCancelled means the caller's context was cancelled and the
	// thread parked cooperatively.
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusRejected, StatusAutoRejected, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// String returns the status label.
func (s Status) String() string { return string(s) }
