package flow

import (
	"math/rand"
	"time"
)

// RetryPolicy configures automatic retries for transient handler
// failures. Errors marked permanent (IsPermanent) never retry.
type RetryPolicy struct {
	// MaxAttempts is the total number of invocations including the
	// first. Must be >= 1; 1 means no retries.
	MaxAttempts int

	// BaseDelay seeds the exponential backoff:
	// min(BaseDelay * 2^attempt, MaxDelay) + jitter(0, BaseDelay).
	BaseDelay time.Duration

	// MaxDelay caps the exponential term. Zero means no cap.
	MaxDelay time.Duration

	// Retryable, when set, further restricts which transient errors
	// retry. Nil retries every non-permanent error.
	Retryable func(error) bool
}

// Validate checks the policy's constraints.
func (rp *RetryPolicy) Validate() error {
	if rp.MaxAttempts < 1 {
		return ErrInvalidRetryPolicy
	}
	if rp.MaxDelay > 0 && rp.BaseDelay > 0 && rp.MaxDelay < rp.BaseDelay {
		return ErrInvalidRetryPolicy
	}
	return nil
}

// shouldRetry reports whether err is retryable under this policy.
func (rp *RetryPolicy) shouldRetry(err error) bool {
	if IsPermanent(err) {
		return false
	}
	if rp.Retryable != nil {
		return rp.Retryable(err)
	}
	return true
}

// computeBackoff returns the delay before retry number attempt
// (zero-based): exponential growth capped at maxDelay plus jitter in
// [0, base) to spread synchronized retries.
func computeBackoff(attempt int, base, maxDelay time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}

	delay := base * (1 << attempt)
	if maxDelay > 0 && delay > maxDelay {
		delay = maxDelay
	}

	// Jitter timing only, not security sensitive.
	jitter := time.Duration(rand.Int63n(int64(base))) // #nosec G404
	return delay + jitter
}
