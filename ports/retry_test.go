package ports

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errFlaky = errors.New("rate limited")

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestRetryTransient(t *testing.T) {
	calls := 0
	out, err := Retry(context.Background(), fastPolicy(5), func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errFlaky
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if out != "ok" || calls != 3 {
		t.Fatalf("out = %q after %d calls", out, calls)
	}
}

func TestRetryExhaustion(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(3), func(context.Context) (int, error) {
		calls++
		return 0, errFlaky
	})
	if !errors.Is(err, errFlaky) {
		t.Fatalf("err = %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestRetryPermanentShortCircuits(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(5), func(context.Context) (int, error) {
		calls++
		return 0, MarkPermanent(errFlaky)
	})
	if !IsPermanent(err) {
		t.Fatalf("err = %v, want permanent", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, permanent error must not retry", calls)
	}
}

func TestRetryRespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	policy := RetryPolicy{MaxAttempts: 10, BaseDelay: 50 * time.Millisecond}
	_, err := Retry(ctx, policy, func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, errFlaky
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, cancellation must stop the loop", calls)
	}
}

func TestRetryRetryablePredicate(t *testing.T) {
	calls := 0
	policy := fastPolicy(5)
	policy.Retryable = func(error) bool { return false }
	_, err := Retry(context.Background(), policy, func(context.Context) (int, error) {
		calls++
		return 0, errFlaky
	})
	if !errors.Is(err, errFlaky) || calls != 1 {
		t.Fatalf("err = %v after %d calls", err, calls)
	}
}

func TestRetryingTextLLM(t *testing.T) {
	calls := 0
	inner := &MockTextLLM{
		CompleteFunc: func(context.Context, TextRequest) (string, error) {
			calls++
			if calls == 1 {
				return "", errFlaky
			}
			return "once upon a time", nil
		},
	}
	wrapped := &RetryingTextLLM{Inner: inner, Policy: fastPolicy(3)}

	out, err := wrapped.Complete(context.Background(), TextRequest{Prompt: "a story"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if out != "once upon a time" || calls != 2 {
		t.Fatalf("out = %q after %d calls", out, calls)
	}
}
