package guardrail

import (
	"context"
	"fmt"
	"strings"

	"github.com/fableforge/storyflow/ports"
)

// Checker runs the safety cascade. Text goes through three layers in
// order: provider moderation, PII regexes, then LLM analysis against
// age thresholds. Images go through a single vision analysis. Each
// layer appends violations; none short-circuits, so the reviewer sees
// the full picture.
type Checker struct {
	Moderation ports.Moderation
	PII        ports.PiiDetector
	Text       ports.TextLLM
	Vision     ports.VisionLLM
	Thresholds Thresholds
}

// TextAnalysis is the LLM layer's structured verdict on a text.
type TextAnalysis struct {
	ViolenceSeverity  float64  `json:"violence_severity"`
	FearIntensity     float64  `json:"fear_intensity"`
	BrandMentions     []string `json:"brand_mentions"`
	PoliticalDetected bool     `json:"political_detected"`
	ReligiousDetected bool     `json:"religious_detected"`
	Explanation       string   `json:"explanation"`
}

var textAnalysisSchema = ports.Schema{
	Name: "text_safety_analysis",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"violence_severity":  map[string]any{"type": "number", "minimum": 0, "maximum": 1},
			"fear_intensity":     map[string]any{"type": "number", "minimum": 0, "maximum": 1},
			"brand_mentions":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"political_detected": map[string]any{"type": "boolean"},
			"religious_detected": map[string]any{"type": "boolean"},
			"explanation":        map[string]any{"type": "string"},
		},
		"required": []any{
			"violence_severity", "fear_intensity", "brand_mentions",
			"political_detected", "religious_detected",
		},
	},
}

const textAnalysisSystem = "You are a children's content safety analyst. " +
	"Rate the text for an audience of the given age group. " +
	"Score violence_severity and fear_intensity from 0.0 (none) to 1.0 (extreme), " +
	"list any commercial brand mentions, and flag political or religious content."

// CheckText runs the full text cascade and returns every violation
// found. mediaType tags the findings (story text or a video prompt);
// index attaches per-media findings to their position.
func (c *Checker) CheckText(ctx context.Context, text, ageGroup, mediaType string, index *int, pass int) ([]Violation, error) {
	// Layer 0: provider moderation.
	violations, err := c.moderationViolations(ctx, text, mediaType, index, pass)
	if err != nil {
		return nil, err
	}

	// Layer 1: PII regexes. Local and infallible.
	for _, match := range c.PII.DetectPII(text) {
		violations = append(violations, Violation{
			Code:       "pii_" + match.Kind,
			Severity:   SeverityHard,
			Confidence: 1.0,
			MediaType:  mediaType,
			MediaIndex: index,
			Pass:       pass,
			Detail:     fmt.Sprintf("found %d %s occurrence(s)", match.Count, match.Kind),
			Source:     "pii",
		})
	}

	// Layer 2: LLM analysis against age thresholds.
	var analysis TextAnalysis
	err = c.Text.CompleteJSON(ctx, ports.TextRequest{
		System: textAnalysisSystem,
		Prompt: fmt.Sprintf("Age group: %s\n\nText to analyze:\n%s", ageGroup, text),
	}, textAnalysisSchema, &analysis)
	if err != nil {
		return nil, fmt.Errorf("analysis layer: %w", err)
	}
	violations = append(violations, c.analysisViolations(analysis, ageGroup, mediaType, index, pass)...)

	return violations, nil
}

// CheckInput runs only the moderation layer against a submitted
// prompt. The deeper layers wait until there is a story to analyze.
func (c *Checker) CheckInput(ctx context.Context, text string) ([]Violation, error) {
	return c.moderationViolations(ctx, text, MediaInput, nil, 0)
}

func (c *Checker) moderationViolations(ctx context.Context, text, mediaType string, index *int, pass int) ([]Violation, error) {
	modResult, err := c.Moderation.ModerateText(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("moderation layer: %w", err)
	}
	if !modResult.Flagged {
		return nil, nil
	}

	var violations []Violation
	for _, flag := range modResult.Flags {
		// A category the provider itself flagged is a violation at any
		// score; the floor screens out unflagged score noise only.
		if !flag.Flagged && flag.Score < c.Thresholds.ModerationFloor {
			continue
		}
		violations = append(violations, Violation{
			Code:       flag.Category,
			Severity:   SeverityHard,
			Confidence: flag.Score,
			MediaType:  mediaType,
			MediaIndex: index,
			Pass:       pass,
			Detail:     fmt.Sprintf("moderation flagged %s at %.2f", flag.Category, flag.Score),
			Source:     "moderation",
		})
	}
	return violations, nil
}

// fearHardCeiling splits fear findings above the age limit: intensity
// beyond it is a hard stop, below it the reviewer decides.
const fearHardCeiling = 0.7

func (c *Checker) analysisViolations(a TextAnalysis, ageGroup, mediaType string, index *int, pass int) []Violation {
	var out []Violation

	// Any detected violence is recorded; the age limit decides whether
	// it blocks or just reaches the reviewer.
	if a.ViolenceSeverity > 0 {
		limit := c.Thresholds.violenceLimit(ageGroup)
		severity := SeveritySoft
		if a.ViolenceSeverity >= limit {
			severity = SeverityHard
		}
		out = append(out, Violation{
			Code:       "violence_severity",
			Severity:   severity,
			Confidence: a.ViolenceSeverity,
			MediaType:  mediaType,
			MediaIndex: index,
			Pass:       pass,
			Detail:     fmt.Sprintf("violence %.2f, hard limit %.2f for age %s", a.ViolenceSeverity, limit, ageGroup),
			Source:     "llm",
		})
	}
	if limit := c.Thresholds.fearLimit(ageGroup); a.FearIntensity >= limit {
		severity := SeveritySoft
		if a.FearIntensity > fearHardCeiling {
			severity = SeverityHard
		}
		out = append(out, Violation{
			Code:       "fear_intensity",
			Severity:   severity,
			Confidence: a.FearIntensity,
			MediaType:  mediaType,
			MediaIndex: index,
			Pass:       pass,
			Detail:     fmt.Sprintf("fear %.2f exceeds %.2f for age %s", a.FearIntensity, limit, ageGroup),
			Source:     "llm",
		})
	}

	if a.PoliticalDetected {
		out = append(out, Violation{
			Code:       "political_detected",
			Severity:   SeverityHard,
			Confidence: 1.0,
			MediaType:  mediaType,
			MediaIndex: index,
			Pass:       pass,
			Detail:     "political content detected",
			Source:     "llm",
		})
	}

	soft := []struct {
		flagged bool
		code    string
		detail  string
	}{
		{len(a.BrandMentions) > 0, "brand_mentions", "commercial brands: " + strings.Join(a.BrandMentions, ", ")},
		{a.ReligiousDetected, "religious_detected", "religious content detected"},
	}
	for _, s := range soft {
		if s.flagged {
			out = append(out, Violation{
				Code:       s.code,
				Severity:   SeveritySoft,
				Confidence: 0.9,
				MediaType:  mediaType,
				MediaIndex: index,
				Pass:       pass,
				Detail:     s.detail,
				Source:     "llm",
			})
		}
	}
	return out
}
