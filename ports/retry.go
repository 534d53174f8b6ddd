package ports

import (
	"context"
	"math/rand"
	"time"
)

// RetryPolicy configures provider-call retries with exponential
// backoff and jitter. Permanent errors never retry.
type RetryPolicy struct {
	// MaxAttempts is the total number of calls including the first.
	MaxAttempts int

	// BaseDelay seeds the backoff:
	// min(BaseDelay * 2^attempt, MaxDelay) + jitter(0, BaseDelay).
	BaseDelay time.Duration

	// MaxDelay caps the exponential term. Zero means uncapped.
	MaxDelay time.Duration

	// Retryable, when set, restricts which transient errors retry.
	Retryable func(error) bool
}

// DefaultRetryPolicy suits rate-limited HTTP providers: three
// attempts, 1s base, 10s cap.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second}
}

func (p RetryPolicy) shouldRetry(err error) bool {
	if IsPermanent(err) {
		return false
	}
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return true
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	delay := p.BaseDelay * (1 << attempt)
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	// Jitter spreads synchronized retries; not security sensitive.
	return delay + time.Duration(rand.Int63n(int64(p.BaseDelay))) // #nosec G404
}

// Retry invokes fn until it succeeds, exhausts the policy, or hits a
// permanent error.
func Retry[T any](ctx context.Context, policy RetryPolicy, fn func(context.Context) (T, error)) (T, error) {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var (
		out T
		err error
	)
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return out, ctx.Err()
			case <-time.After(policy.backoff(attempt - 1)):
			}
		}
		out, err = fn(ctx)
		if err == nil {
			return out, nil
		}
		if !policy.shouldRetry(err) {
			return out, err
		}
	}
	return out, err
}

// RetryingTextLLM wraps a TextLLM with a retry policy.
type RetryingTextLLM struct {
	Inner  TextLLM
	Policy RetryPolicy
}

func (r *RetryingTextLLM) Complete(ctx context.Context, req TextRequest) (string, error) {
	return Retry(ctx, r.Policy, func(ctx context.Context) (string, error) {
		return r.Inner.Complete(ctx, req)
	})
}

func (r *RetryingTextLLM) CompleteJSON(ctx context.Context, req TextRequest, schema Schema, out any) error {
	_, err := Retry(ctx, r.Policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.Inner.CompleteJSON(ctx, req, schema, out)
	})
	return err
}

// RetryingVisionLLM wraps a VisionLLM with a retry policy.
type RetryingVisionLLM struct {
	Inner  VisionLLM
	Policy RetryPolicy
}

func (r *RetryingVisionLLM) AnalyzeImage(ctx context.Context, imageURL, prompt string, schema Schema, out any) error {
	_, err := Retry(ctx, r.Policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.Inner.AnalyzeImage(ctx, imageURL, prompt, schema, out)
	})
	return err
}

// RetryingImageGen wraps an ImageGen with a retry policy.
type RetryingImageGen struct {
	Inner  ImageGen
	Policy RetryPolicy
}

func (r *RetryingImageGen) GenerateImage(ctx context.Context, prompt string) (string, error) {
	return Retry(ctx, r.Policy, func(ctx context.Context) (string, error) {
		return r.Inner.GenerateImage(ctx, prompt)
	})
}

// RetryingVideoGen wraps a VideoGen with a retry policy.
type RetryingVideoGen struct {
	Inner  VideoGen
	Policy RetryPolicy
}

func (r *RetryingVideoGen) GenerateVideo(ctx context.Context, prompt string) (string, error) {
	return Retry(ctx, r.Policy, func(ctx context.Context) (string, error) {
		return r.Inner.GenerateVideo(ctx, prompt)
	})
}

// RetryingModeration wraps a Moderation with a retry policy.
type RetryingModeration struct {
	Inner  Moderation
	Policy RetryPolicy
}

func (r *RetryingModeration) ModerateText(ctx context.Context, text string) (ModerationResult, error) {
	return Retry(ctx, r.Policy, func(ctx context.Context) (ModerationResult, error) {
		return r.Inner.ModerateText(ctx, text)
	})
}
