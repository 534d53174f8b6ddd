package story

import (
	"context"
	"fmt"

	"github.com/fableforge/storyflow/flow"
	"github.com/fableforge/storyflow/guardrail"
	"github.com/fableforge/storyflow/ports"
)

// inputModerator screens the submitted prompt with the moderation
// layer only. A hard violation is not an error: the router sends the
// thread to mark_auto_rejected instead.
func (w *workflow) inputModerator(ctx context.Context, s State, _ flow.Invocation[Overlay]) flow.Result[Patch] {
	violations, err := w.checker.CheckInput(ctx, s.Prompt)
	if err != nil {
		return flow.Fail[Patch](err)
	}

	ok := !guardrail.HasHard(violations)
	return flow.Ok(Patch{InputOK: &ok, Violations: violations})
}

type storyDraft struct {
	Title string `json:"story_title"`
	Text  string `json:"story_text"`
}

var storyDraftSchema = ports.Schema{
	Name: "story_draft",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"story_title": map[string]any{"type": "string", "minLength": 1},
			"story_text":  map[string]any{"type": "string", "minLength": 1},
		},
		"required": []any{"story_title", "story_text"},
	},
}

const storyWriterSystem = "You are a children's story author. Write a complete, gentle, " +
	"age-appropriate story with a clear beginning, middle, and end, plus a short title. " +
	"Respond with story_title and story_text."

func (w *workflow) storyWriter(ctx context.Context, s State, _ flow.Invocation[Overlay]) flow.Result[Patch] {
	var draft storyDraft
	err := w.text.CompleteJSON(ctx, ports.TextRequest{
		System: storyWriterSystem,
		Prompt: fmt.Sprintf("Age group: %s\nStory idea: %s", s.AgeGroup, s.Prompt),
	}, storyDraftSchema, &draft)
	if err != nil {
		return flow.Fail[Patch](err)
	}

	return flow.Ok(Patch{StoryTitle: &draft.Title, StoryText: &draft.Text})
}

type promptList struct {
	Prompts      []string `json:"prompts"`
	Descriptions []string `json:"descriptions"`
}

// promptListSchema pins both lists to exactly n entries, so a model
// that returns the wrong count fails schema validation and surfaces as
// a permanent error.
func promptListSchema(name string, n int) ports.Schema {
	items := map[string]any{
		"type":     "array",
		"items":    map[string]any{"type": "string", "minLength": 1},
		"minItems": n,
		"maxItems": n,
	}
	return ports.Schema{
		Name: name,
		Definition: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"prompts":      items,
				"descriptions": items,
			},
			"required": []any{"prompts", "descriptions"},
		},
	}
}

const imagePrompterSystem = "You write illustration briefs for a children's story. " +
	"Produce one visual generation prompt per scene, plus a one-sentence scene " +
	"description for each. Keep the style consistent across scenes."

func (w *workflow) imagePrompter(ctx context.Context, s State, _ flow.Invocation[Overlay]) flow.Result[Patch] {
	if !s.GenerateImages {
		empty := []string{}
		return flow.Ok(Patch{ImagePrompts: &empty, ImageDescriptions: &empty})
	}

	var out promptList
	err := w.text.CompleteJSON(ctx, ports.TextRequest{
		System: imagePrompterSystem,
		Prompt: fmt.Sprintf("Age group: %s\nScenes needed: %d\n\nTitle: %s\n\n%s",
			s.AgeGroup, s.NumIllustrations, s.StoryTitle, s.StoryText),
	}, promptListSchema("image_prompts", s.NumIllustrations), &out)
	if err != nil {
		return flow.Fail[Patch](err)
	}

	return flow.Ok(Patch{ImagePrompts: &out.Prompts, ImageDescriptions: &out.Descriptions})
}

const videoPrompterSystem = "You write short animation briefs for a children's story. " +
	"Produce one video generation prompt per clip, plus a one-sentence clip " +
	"description for each. Clips should cover the story's key moments."

func (w *workflow) videoPrompter(ctx context.Context, s State, _ flow.Invocation[Overlay]) flow.Result[Patch] {
	if !s.GenerateVideos {
		empty := []string{}
		return flow.Ok(Patch{VideoPrompts: &empty, VideoDescriptions: &empty})
	}

	var out promptList
	err := w.text.CompleteJSON(ctx, ports.TextRequest{
		System: videoPrompterSystem,
		Prompt: fmt.Sprintf("Age group: %s\nClips needed: %d\n\nTitle: %s\n\n%s",
			s.AgeGroup, s.NumVideos, s.StoryTitle, s.StoryText),
	}, promptListSchema("video_prompts", s.NumVideos), &out)
	if err != nil {
		return flow.Fail[Patch](err)
	}

	return flow.Ok(Patch{VideoPrompts: &out.Prompts, VideoDescriptions: &out.Descriptions})
}
