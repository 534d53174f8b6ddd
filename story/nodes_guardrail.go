package story

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/fableforge/storyflow/flow"
	"github.com/fableforge/storyflow/guardrail"
	"github.com/fableforge/storyflow/ports"
)

type evalScores struct {
	Moral       float64 `json:"moral_lesson"`
	Theme       float64 `json:"theme_consistency"`
	Emotional   float64 `json:"emotional_tone"`
	Age         float64 `json:"age_appropriateness"`
	Educational float64 `json:"educational_value"`
	Explanation string  `json:"explanation"`
}

var evalSchema = ports.Schema{
	Name: "story_evaluation",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"moral_lesson":        map[string]any{"type": "number", "minimum": 0, "maximum": 10},
			"theme_consistency":   map[string]any{"type": "number", "minimum": 0, "maximum": 10},
			"emotional_tone":      map[string]any{"type": "number", "minimum": 0, "maximum": 10},
			"age_appropriateness": map[string]any{"type": "number", "minimum": 0, "maximum": 10},
			"educational_value":   map[string]any{"type": "number", "minimum": 0, "maximum": 10},
			"explanation":         map[string]any{"type": "string"},
		},
		"required": []any{
			"moral_lesson", "theme_consistency", "emotional_tone",
			"age_appropriateness", "educational_value",
		},
	},
}

const evaluatorSystem = "You are a children's literature editor. Score the story from 0 to 10 " +
	"on moral_lesson, theme_consistency, emotional_tone, age_appropriateness for the given " +
	"age group, and educational_value. Add a short explanation."

// Overall score weights. Emotional tone and the moral carry the most.
const (
	weightMoral       = 0.25
	weightTheme       = 0.20
	weightEmotional   = 0.25
	weightAge         = 0.20
	weightEducational = 0.10
)

func (w *workflow) storyEvaluator(ctx context.Context, s State, _ flow.Invocation[Overlay]) flow.Result[Patch] {
	var scores evalScores
	err := w.text.CompleteJSON(ctx, ports.TextRequest{
		System: evaluatorSystem,
		Prompt: fmt.Sprintf("Age group: %s\n\nTitle: %s\n\n%s", s.AgeGroup, s.StoryTitle, s.StoryText),
	}, evalSchema, &scores)
	if err != nil {
		return flow.Fail[Patch](err)
	}

	eval := &Evaluation{
		Moral:       scores.Moral,
		Theme:       scores.Theme,
		Emotional:   scores.Emotional,
		Age:         scores.Age,
		Educational: scores.Educational,
		Explanation: scores.Explanation,
		Overall: scores.Moral*weightMoral +
			scores.Theme*weightTheme +
			scores.Emotional*weightEmotional +
			scores.Age*weightAge +
			scores.Educational*weightEducational,
	}
	return flow.Ok(Patch{Evaluation: eval})
}

// storyGuardrail runs the full text cascade over the finished story.
func (w *workflow) storyGuardrail(ctx context.Context, s State, _ flow.Invocation[Overlay]) flow.Result[Patch] {
	text := s.StoryTitle + "\n\n" + s.StoryText
	violations, err := w.checker.CheckText(ctx, text, s.AgeGroup, guardrail.MediaStory, nil, 0)
	if err != nil {
		return flow.Fail[Patch](err)
	}
	return flow.Ok(Patch{Violations: violations})
}

// imageGuardrail checks one generated image and regenerates it up to
// MediaRetryMax times on a hard violation. Every pass's findings are
// retained; the final binding carries whichever URL passed. If the
// last allowed pass still fails hard, the unit fails the thread with a
// permanent error.
func (w *workflow) imageGuardrail(ctx context.Context, s State, inv flow.Invocation[Overlay]) flow.Result[Patch] {
	idx := inv.Overlay.Index
	url := inv.Overlay.MediaURL

	patch := Patch{}
	for pass := 0; ; pass++ {
		violations, err := w.checker.CheckImage(ctx, url, s.AgeGroup, idx, pass)
		if err != nil {
			return flow.Fail[Patch](err)
		}
		patch.Violations = append(patch.Violations, violations...)

		if !guardrail.HasHard(violations) {
			patch.ImageFinal = []MediaBinding{{Index: idx, URL: url, Pass: pass}}
			return flow.Ok(patch)
		}

		if pass >= w.cfg.MediaRetryMax {
			return flow.Fail[Patch](ports.MarkPermanent(fmt.Errorf(
				"media_guardrail_exhausted: image %d failed %d check(s): %s",
				idx, pass+1, guardrail.Summarize(patch.Violations))))
		}

		regenerated, err := w.images.GenerateImage(ctx, inv.Overlay.Prompt)
		if err != nil {
			return flow.Fail[Patch](err)
		}
		url = regenerated
		patch.ImageURLs = append(patch.ImageURLs, url)
		patch.ImageMeta = append(patch.ImageMeta, MediaMeta{
			Index:       idx,
			Prompt:      inv.Overlay.Prompt,
			Description: inv.Overlay.Description,
			URL:         url,
			AssetID:     uuid.NewString(),
			Regenerated: true,
		})
	}
}

// videoGuardrail runs the text cascade over one video's generation
// prompt. There is no regeneration pass: the finding is about the
// prompt itself, so a new render from the same prompt cannot clear it.
// Hard findings flow to the aggregator and reject the job there.
func (w *workflow) videoGuardrail(ctx context.Context, s State, inv flow.Invocation[Overlay]) flow.Result[Patch] {
	idx := inv.Overlay.Index
	violations, err := w.checker.CheckText(ctx, inv.Overlay.Prompt, s.AgeGroup, guardrail.MediaVideoPrompt, &idx, 0)
	if err != nil {
		return flow.Fail[Patch](err)
	}

	return flow.Ok(Patch{
		Violations: violations,
		VideoFinal: []MediaBinding{{Index: idx, URL: inv.Overlay.MediaURL}},
	})
}

// guardrailAggregator folds the accumulated violations into the
// publication verdict. Every violation stays recorded for audit, but
// guardrail_passed counts only each media item's final pass: a
// first-pass finding cleared by regeneration does not block.
func (w *workflow) guardrailAggregator(_ context.Context, s State, _ flow.Invocation[Overlay]) flow.Result[Patch] {
	passed := !hasFinalPassHard(s.Violations, s.ImageFinal, s.VideoFinal)
	summary := guardrail.Summarize(s.Violations)

	finalImages := bindingURLs(sortedBindings(s.ImageFinal))
	finalVideos := bindingURLs(sortedBindings(s.VideoFinal))

	return flow.Ok(Patch{
		GuardrailPassed:  &passed,
		GuardrailSummary: &summary,
		FinalImageURLs:   &finalImages,
		FinalVideoURLs:   &finalVideos,
	})
}

// hasFinalPassHard reports whether a hard violation survives into its
// media item's final check pass. Findings from an earlier pass whose
// item was later cleared by regeneration (the binding's pass is newer)
// are audit history, not blockers.
func hasFinalPassHard(violations []guardrail.Violation, images, videos []MediaBinding) bool {
	type item struct {
		mediaType string
		index     int
	}
	finalPass := make(map[item]int)
	for _, b := range images {
		finalPass[item{guardrail.MediaImage, b.Index}] = b.Pass
	}
	for _, b := range videos {
		finalPass[item{guardrail.MediaVideoPrompt, b.Index}] = b.Pass
	}

	for _, v := range violations {
		if !v.Hard() {
			continue
		}
		idx := -1
		if v.MediaIndex != nil {
			idx = *v.MediaIndex
		}
		if fp, ok := finalPass[item{v.MediaType, idx}]; ok && v.Pass < fp {
			continue
		}
		return true
	}
	return false
}

func bindingURLs(bindings []MediaBinding) []string {
	out := make([]string, 0, len(bindings))
	for _, b := range bindings {
		out = append(out, b.URL)
	}
	return out
}
