package ports

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastVideoGen(submit func(context.Context, string) (string, error), poll func(context.Context, string) (string, bool, error)) *PollingVideoGen {
	return &PollingVideoGen{
		Submit:      submit,
		Poll:        poll,
		Initial:     time.Millisecond,
		Max:         2 * time.Millisecond,
		Growth:      1.5,
		MaxAttempts: 5,
	}
}

func TestPollingVideoGenSucceeds(t *testing.T) {
	polls := 0
	gen := fastVideoGen(
		func(_ context.Context, prompt string) (string, error) {
			if prompt != "a dancing robot" {
				t.Fatalf("prompt = %q", prompt)
			}
			return "op-42", nil
		},
		func(_ context.Context, opID string) (string, bool, error) {
			if opID != "op-42" {
				t.Fatalf("opID = %q", opID)
			}
			polls++
			if polls < 3 {
				return "", false, nil
			}
			return "https://media.test/robot.mp4", true, nil
		},
	)

	url, err := gen.GenerateVideo(context.Background(), "a dancing robot")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if url != "https://media.test/robot.mp4" || polls != 3 {
		t.Fatalf("url = %q after %d polls", url, polls)
	}
}

func TestPollingVideoGenExhaustionIsPermanent(t *testing.T) {
	gen := fastVideoGen(
		func(context.Context, string) (string, error) { return "op-1", nil },
		func(context.Context, string) (string, bool, error) { return "", false, nil },
	)

	_, err := gen.GenerateVideo(context.Background(), "p")
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsPermanent(err) {
		t.Fatalf("err %v must be permanent", err)
	}
}

func TestPollingVideoGenSubmitError(t *testing.T) {
	errSubmit := errors.New("quota")
	gen := fastVideoGen(
		func(context.Context, string) (string, error) { return "", errSubmit },
		func(context.Context, string) (string, bool, error) { return "", false, nil },
	)
	if _, err := gen.GenerateVideo(context.Background(), "p"); !errors.Is(err, errSubmit) {
		t.Fatalf("err = %v", err)
	}
}

func TestPollingVideoGenPollError(t *testing.T) {
	errPoll := errors.New("backend down")
	gen := fastVideoGen(
		func(context.Context, string) (string, error) { return "op-1", nil },
		func(context.Context, string) (string, bool, error) { return "", false, errPoll },
	)
	if _, err := gen.GenerateVideo(context.Background(), "p"); !errors.Is(err, errPoll) {
		t.Fatalf("err = %v", err)
	}
}

func TestPollingVideoGenCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gen := fastVideoGen(
		func(context.Context, string) (string, error) {
			cancel()
			return "op-1", nil
		},
		func(context.Context, string) (string, bool, error) { return "", false, nil },
	)
	if _, err := gen.GenerateVideo(ctx, "p"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
