// Package story defines the fixed children's-story workflow: the state
// and merge rules, every node handler, the graph wiring, the
// submit/resume facade, and the review-deadline sweeper.
package story

import (
	"sort"

	"github.com/fableforge/storyflow/flow"
	"github.com/fableforge/storyflow/guardrail"
)

// MediaMeta records one generated media asset. Index is the asset's
// position in its prompt list; downstream nodes sort by it because
// fan-out completion order is not guaranteed.
type MediaMeta struct {
	Index       int    `json:"index"`
	Prompt      string `json:"prompt"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url"`
	AssetID     string `json:"asset_id"`
	Regenerated bool   `json:"regenerated,omitempty"`
}

// MediaBinding maps a media index to the URL that survived guardrails.
// When an asset was regenerated, the binding carries the regenerated
// URL, not the original. Pass records which check pass produced the
// surviving URL; the aggregator discounts hard findings from earlier
// passes of the same item.
type MediaBinding struct {
	Index int    `json:"index"`
	URL   string `json:"url"`
	Pass  int    `json:"pass,omitempty"`
}

// Evaluation holds the story quality scores on a 0-10 scale and the
// weighted overall score.
type Evaluation struct {
	Moral       float64 `json:"moral"`
	Theme       float64 `json:"theme"`
	Emotional   float64 `json:"emotional"`
	Age         float64 `json:"age"`
	Educational float64 `json:"educational"`
	Overall     float64 `json:"overall"`
	Explanation string  `json:"explanation,omitempty"`
}

// Review is the human (or synthetic) decision that resolved the review
// gate.
type Review struct {
	Decision   string `json:"decision"`
	Comment    string `json:"comment,omitempty"`
	ReviewerID string `json:"reviewer_id,omitempty"`
}

// Review decisions.
const (
	DecisionApproved     = "approved"
	DecisionRejected     = "rejected"
	DecisionAutoRejected = "auto_rejected"
)

// Synthetic reviewer ids for decisions not made by a human.
const (
	ReviewerTimeout   = "system_timeout"
	ReviewerGuardrail = "system_guardrail"
)

// State is the canonical workflow state. Scalar fields are
// last-writer-wins; the fields below the reducer marker are append-only
// and receive contributions from parallel fan-out units.
type State struct {
	JobID            string `json:"job_id"`
	Prompt           string `json:"prompt"`
	AgeGroup         string `json:"age_group"`
	NumIllustrations int    `json:"num_illustrations"`
	NumVideos        int    `json:"num_videos"`
	GenerateImages   bool   `json:"generate_images"`
	GenerateVideos   bool   `json:"generate_videos"`

	InputOK           bool     `json:"input_ok"`
	StoryTitle        string   `json:"story_title,omitempty"`
	StoryText         string   `json:"story_text,omitempty"`
	ImagePrompts      []string `json:"image_prompts,omitempty"`
	ImageDescriptions []string `json:"image_descriptions,omitempty"`
	VideoPrompts      []string `json:"video_prompts,omitempty"`
	VideoDescriptions []string `json:"video_descriptions,omitempty"`
	ManifestRef       string   `json:"manifest_ref,omitempty"`

	Evaluation       *Evaluation `json:"evaluation,omitempty"`
	GuardrailPassed  bool        `json:"guardrail_passed"`
	GuardrailSummary string      `json:"guardrail_summary,omitempty"`
	FinalImageURLs   []string    `json:"final_image_urls,omitempty"`
	FinalVideoURLs   []string    `json:"final_video_urls,omitempty"`

	Review          *Review  `json:"review,omitempty"`
	PublicationID   string   `json:"publication_id,omitempty"`
	PublishedAssets []string `json:"published_assets,omitempty"`

	// Reducer fields: merged by concatenation, order not guaranteed.
	ImageURLs  []string              `json:"image_urls,omitempty"`
	VideoURLs  []string              `json:"video_urls,omitempty"`
	ImageMeta  []MediaMeta           `json:"image_meta,omitempty"`
	VideoMeta  []MediaMeta           `json:"video_meta,omitempty"`
	Violations []guardrail.Violation `json:"violations,omitempty"`
	ImageFinal []MediaBinding        `json:"image_final,omitempty"`
	VideoFinal []MediaBinding        `json:"video_final,omitempty"`
}

// Patch is one node's contribution to the state. Scalars use pointers
// so an unset field leaves the previous value; reducer slices append.
type Patch struct {
	InputOK           *bool
	StoryTitle        *string
	StoryText         *string
	ImagePrompts      *[]string
	ImageDescriptions *[]string
	VideoPrompts      *[]string
	VideoDescriptions *[]string
	ManifestRef       *string

	Evaluation       *Evaluation
	GuardrailPassed  *bool
	GuardrailSummary *string
	FinalImageURLs   *[]string
	FinalVideoURLs   *[]string

	Review          *Review
	PublicationID   *string
	PublishedAssets *[]string

	ImageURLs  []string
	VideoURLs  []string
	ImageMeta  []MediaMeta
	VideoMeta  []MediaMeta
	Violations []guardrail.Violation
	ImageFinal []MediaBinding
	VideoFinal []MediaBinding
}

// Overlay carries transient per-dispatch values into fan-out units.
// Overlays are never persisted.
type Overlay struct {
	Index       int    `json:"index"`
	Prompt      string `json:"prompt,omitempty"`
	Description string `json:"description,omitempty"`
	MediaURL    string `json:"media_url,omitempty"`
}

// Reduce is the workflow's reducer: scalars last-writer-wins, reducer
// fields concatenated. Merging any permutation of a patch set yields
// the same state, which is what lets parallel completions commit in
// arrival order.
func Reduce(prev State, p Patch) State {
	s := prev

	if p.InputOK != nil {
		s.InputOK = *p.InputOK
	}
	if p.StoryTitle != nil {
		s.StoryTitle = *p.StoryTitle
	}
	if p.StoryText != nil {
		s.StoryText = *p.StoryText
	}
	if p.ImagePrompts != nil {
		s.ImagePrompts = *p.ImagePrompts
	}
	if p.ImageDescriptions != nil {
		s.ImageDescriptions = *p.ImageDescriptions
	}
	if p.VideoPrompts != nil {
		s.VideoPrompts = *p.VideoPrompts
	}
	if p.VideoDescriptions != nil {
		s.VideoDescriptions = *p.VideoDescriptions
	}
	if p.ManifestRef != nil {
		s.ManifestRef = *p.ManifestRef
	}
	if p.Evaluation != nil {
		s.Evaluation = p.Evaluation
	}
	if p.GuardrailPassed != nil {
		s.GuardrailPassed = *p.GuardrailPassed
	}
	if p.GuardrailSummary != nil {
		s.GuardrailSummary = *p.GuardrailSummary
	}
	if p.FinalImageURLs != nil {
		s.FinalImageURLs = *p.FinalImageURLs
	}
	if p.FinalVideoURLs != nil {
		s.FinalVideoURLs = *p.FinalVideoURLs
	}
	if p.Review != nil {
		s.Review = p.Review
	}
	if p.PublicationID != nil {
		s.PublicationID = *p.PublicationID
	}
	if p.PublishedAssets != nil {
		s.PublishedAssets = *p.PublishedAssets
	}

	s.ImageURLs = appendCopy(prev.ImageURLs, p.ImageURLs)
	s.VideoURLs = appendCopy(prev.VideoURLs, p.VideoURLs)
	s.ImageMeta = appendCopy(prev.ImageMeta, p.ImageMeta)
	s.VideoMeta = appendCopy(prev.VideoMeta, p.VideoMeta)
	s.Violations = appendCopy(prev.Violations, p.Violations)
	s.ImageFinal = appendCopy(prev.ImageFinal, p.ImageFinal)
	s.VideoFinal = appendCopy(prev.VideoFinal, p.VideoFinal)

	return s
}

// appendCopy concatenates without aliasing prev's backing array, so a
// patch merge never mutates an earlier snapshot's slice.
func appendCopy[T any](prev, add []T) []T {
	if len(add) == 0 {
		return prev
	}
	out := make([]T, 0, len(prev)+len(add))
	out = append(out, prev...)
	return append(out, add...)
}

// MergeRules documents the state's merge contract. Tests verify that
// Reduce honors it for every append field.
func MergeRules() flow.MergeSchema {
	return flow.MergeSchema{
		{Name: "job_id", Kind: flow.MergeScalar},
		{Name: "prompt", Kind: flow.MergeScalar},
		{Name: "age_group", Kind: flow.MergeScalar},
		{Name: "story_title", Kind: flow.MergeScalar},
		{Name: "story_text", Kind: flow.MergeScalar},
		{Name: "image_prompts", Kind: flow.MergeScalar},
		{Name: "video_prompts", Kind: flow.MergeScalar},
		{Name: "evaluation", Kind: flow.MergeScalar},
		{Name: "guardrail_passed", Kind: flow.MergeScalar},
		{Name: "guardrail_summary", Kind: flow.MergeScalar},
		{Name: "final_image_urls", Kind: flow.MergeScalar},
		{Name: "final_video_urls", Kind: flow.MergeScalar},
		{Name: "review", Kind: flow.MergeScalar},
		{Name: "image_urls", Kind: flow.MergeAppend},
		{Name: "video_urls", Kind: flow.MergeAppend},
		{Name: "image_meta", Kind: flow.MergeAppend},
		{Name: "video_meta", Kind: flow.MergeAppend},
		{Name: "violations", Kind: flow.MergeAppend},
		{Name: "image_final", Kind: flow.MergeAppend},
		{Name: "video_final", Kind: flow.MergeAppend},
	}
}

// sortedBindings returns the bindings ordered by index. If the same
// index appears more than once, the highest pass (the regenerated
// asset) wins.
func sortedBindings(bindings []MediaBinding) []MediaBinding {
	byIndex := make(map[int]MediaBinding, len(bindings))
	for _, b := range bindings {
		if cur, ok := byIndex[b.Index]; !ok || b.Pass > cur.Pass {
			byIndex[b.Index] = b
		}
	}
	out := make([]MediaBinding, 0, len(byIndex))
	for _, b := range byIndex {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}
