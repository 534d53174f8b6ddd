package story

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sweeper rejects suspended jobs whose review deadline has passed, so
// a reviewer who never shows up cannot park a thread forever. It runs
// out of band, typically on a timer next to the job queue workers.
type Sweeper struct {
	svc   *Service
	clock func() time.Time
}

// NewSweeper builds a sweeper over the service's checkpoint store.
func NewSweeper(svc *Service) *Sweeper {
	return &Sweeper{svc: svc, clock: time.Now}
}

// SweepOnce rejects every overdue suspended job and returns how many
// it resolved. Individual resume failures do not stop the sweep.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	snaps, err := s.svc.Store().AwaitingReview(ctx)
	if err != nil {
		return 0, fmt.Errorf("list suspended jobs: %w", err)
	}

	now := s.clock()
	swept := 0
	var errs []error
	for _, snap := range snaps {
		if snap.Suspension == nil || snap.Suspension.Deadline.After(now) {
			continue
		}
		_, err := s.svc.Resume(ctx, snap.ThreadID, Decision{
			Decision:   DecisionRejected,
			Comment:    "timeout",
			ReviewerID: ReviewerTimeout,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("job %s: %w", snap.ThreadID, err))
			continue
		}
		swept++
	}
	return swept, errors.Join(errs...)
}

// Run sweeps on the given interval until the context ends.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			// Sweep errors are transient; the next tick retries.
			_, _ = s.SweepOnce(ctx)
		}
	}
}
