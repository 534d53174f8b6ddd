// Package guardrail implements the layered safety checks for
// children's story content: provider moderation, PII detection, and
// LLM content analysis against age-dependent thresholds for text, plus
// a vision check for generated images.
package guardrail

import (
	"fmt"
	"sort"
	"strings"
)

// Severity classifies a violation's effect on publication.
type Severity string

const (
	// SeverityHard violations block publication (auto-reject when
	// configured).
	SeverityHard Severity = "hard"

	// SeveritySoft violations surface to the reviewer but do not block
	// on their own.
	SeveritySoft Severity = "soft"
)

// Media types a violation can attach to.
const (
	MediaInput       = "input_prompt"
	MediaStory       = "story"
	MediaImage       = "image"
	MediaVideoPrompt = "video_prompt"
)

// Violation is one recorded safety finding. All violations from every
// pass are retained for audit; publication decisions look only at the
// final pass per media item.
type Violation struct {
	// Code identifies the rule, e.g. "violence" (moderation category),
	// "pii_email", "fear_intensity", "weapon".
	Code string `json:"code"`

	Severity Severity `json:"severity"`

	// Confidence is the detector's score in [0,1].
	Confidence float64 `json:"confidence"`

	// MediaType is MediaStory, MediaImage, or MediaVideoPrompt.
	MediaType string `json:"media_type"`

	// MediaIndex is the per-media position for image and video
	// findings. Nil for story-level findings.
	MediaIndex *int `json:"media_index,omitempty"`

	// Pass is the zero-based check attempt for per-media findings: 0
	// for the original asset, 1 for the regenerated one.
	Pass int `json:"pass"`

	// Detail is a human-readable explanation.
	Detail string `json:"detail"`

	// Source names the detecting layer: "moderation", "pii", "llm",
	// "vision".
	Source string `json:"source"`
}

// Hard reports whether the violation blocks publication.
func (v Violation) Hard() bool { return v.Severity == SeverityHard }

// HasHard reports whether any violation in the list is hard.
func HasHard(violations []Violation) bool {
	for _, v := range violations {
		if v.Hard() {
			return true
		}
	}
	return false
}

// Summarize renders a stable one-line summary of a violation list,
// suitable for review payloads and rejection comments.
func Summarize(violations []Violation) string {
	if len(violations) == 0 {
		return "no violations"
	}

	counts := make(map[string]int)
	for _, v := range violations {
		counts[fmt.Sprintf("%s:%s", v.Severity, v.Code)]++
	}

	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if counts[k] > 1 {
			parts = append(parts, fmt.Sprintf("%s x%d", k, counts[k]))
		} else {
			parts = append(parts, k)
		}
	}
	return strings.Join(parts, ", ")
}
