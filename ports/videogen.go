package ports

import (
	"context"
	"fmt"
	"time"
)

// Video generation providers run long operations: submit a job, then
// poll until the render finishes. These defaults match typical render
// times of a few minutes.
const (
	DefaultVideoPollInitial  = 3 * time.Second
	DefaultVideoPollMax      = 15 * time.Second
	DefaultVideoPollGrowth   = 1.5
	DefaultVideoPollAttempts = 60
)

// PollingVideoGen adapts a submit/poll provider pair into the
// synchronous VideoGen interface. Poll delay grows geometrically from
// Initial to Max; exceeding MaxAttempts is a permanent error.
type PollingVideoGen struct {
	// Submit starts a render and returns the provider operation id.
	Submit func(ctx context.Context, prompt string) (string, error)

	// Poll checks an operation. done is true when the render finished
	// and url is valid.
	Poll func(ctx context.Context, opID string) (url string, done bool, err error)

	Initial     time.Duration
	Max         time.Duration
	Growth      float64
	MaxAttempts int
}

// GenerateVideo submits the render and polls until completion.
func (g *PollingVideoGen) GenerateVideo(ctx context.Context, prompt string) (string, error) {
	initial := g.Initial
	if initial <= 0 {
		initial = DefaultVideoPollInitial
	}
	max := g.Max
	if max <= 0 {
		max = DefaultVideoPollMax
	}
	growth := g.Growth
	if growth <= 1 {
		growth = DefaultVideoPollGrowth
	}
	attempts := g.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultVideoPollAttempts
	}

	opID, err := g.Submit(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to submit video render: %w", err)
	}

	delay := initial
	for attempt := 0; attempt < attempts; attempt++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}

		url, done, err := g.Poll(ctx, opID)
		if err != nil {
			return "", fmt.Errorf("failed to poll video render %s: %w", opID, err)
		}
		if done {
			return url, nil
		}

		delay = time.Duration(float64(delay) * growth)
		if delay > max {
			delay = max
		}
	}

	return "", MarkPermanent(fmt.Errorf("video render %s did not finish within %d polls", opID, attempts))
}
