package guardrail

import (
	"context"
	"errors"
	"testing"

	"github.com/fableforge/storyflow/ports"
)

func analysisVision(a ImageAnalysis) *ports.MockVisionLLM {
	return &ports.MockVisionLLM{
		AnalyzeImageFunc: func(_ context.Context, _, _ string, _ ports.Schema, out any) error {
			*out.(*ImageAnalysis) = a
			return nil
		},
	}
}

func TestCheckImageClean(t *testing.T) {
	c := newChecker(nil, nil, analysisVision(ImageAnalysis{NSFW: 0.1, Weapon: 0.2}))
	violations, err := c.CheckImage(context.Background(), "https://media.test/a.png", AgeGroup6to8, 0, 0)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(violations) != 0 {
		t.Fatalf("violations = %+v", violations)
	}
}

func TestCheckImageCategoryThresholds(t *testing.T) {
	c := newChecker(nil, nil, analysisVision(ImageAnalysis{
		Weapon:         0.9,
		HorrorElements: 0.55, // under the 0.6 horror cap
	}))

	violations, err := c.CheckImage(context.Background(), "https://media.test/a.png", AgeGroup6to8, 1, 0)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(violations) != 1 {
		t.Fatalf("violations = %+v", violations)
	}
	v := violations[0]
	if v.Code != "weapon" || !v.Hard() || v.Source != "vision" || v.Confidence != 0.9 {
		t.Fatalf("violation = %+v", v)
	}
	if v.MediaType != MediaImage || v.MediaIndex == nil || *v.MediaIndex != 1 {
		t.Fatalf("violation %+v lost its media tagging", v)
	}
}

func TestCheckImageMultipleCategories(t *testing.T) {
	c := newChecker(nil, nil, analysisVision(ImageAnalysis{
		NSFW:           0.5, // at the limit counts
		RealisticChild: 0.8,
		HorrorElements: 0.7,
	}))

	violations, err := c.CheckImage(context.Background(), "https://media.test/a.png", AgeGroup3to5, 0, 1)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(violations) != 3 {
		t.Fatalf("violations = %+v", violations)
	}
	codes := map[string]bool{}
	for _, v := range violations {
		codes[v.Code] = true
		if v.Pass != 1 {
			t.Fatalf("violation %+v lost its pass number", v)
		}
	}
	for _, code := range []string{"nsfw", "realistic_child", "horror_elements"} {
		if !codes[code] {
			t.Fatalf("missing %s in %+v", code, violations)
		}
	}
}

func TestCheckImageVisionError(t *testing.T) {
	errDown := errors.New("vision down")
	vision := &ports.MockVisionLLM{
		AnalyzeImageFunc: func(context.Context, string, string, ports.Schema, any) error {
			return errDown
		},
	}
	c := newChecker(nil, nil, vision)
	if _, err := c.CheckImage(context.Background(), "https://media.test/a.png", AgeGroup6to8, 0, 0); !errors.Is(err, errDown) {
		t.Fatalf("err = %v", err)
	}
}
