package guardrail

import (
	"context"
	"fmt"

	"github.com/fableforge/storyflow/ports"
)

// ImageAnalysis is the vision layer's structured verdict on one image.
// Each field is the detector's confidence in [0,1] that the category is
// present.
type ImageAnalysis struct {
	NSFW           float64 `json:"nsfw"`
	Weapon         float64 `json:"weapon"`
	RealisticChild float64 `json:"realistic_child"`
	HorrorElements float64 `json:"horror_elements"`
	Explanation    string  `json:"explanation"`
}

var imageAnalysisSchema = ports.Schema{
	Name: "image_safety_analysis",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"nsfw":            map[string]any{"type": "number", "minimum": 0, "maximum": 1},
			"weapon":          map[string]any{"type": "number", "minimum": 0, "maximum": 1},
			"realistic_child": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
			"horror_elements": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
			"explanation":     map[string]any{"type": "string"},
		},
		"required": []any{"nsfw", "weapon", "realistic_child", "horror_elements"},
	},
}

const imageAnalysisPrompt = "You are a children's content safety analyst reviewing an " +
	"illustration for an audience aged %s. Report your confidence from 0.0 to 1.0 that " +
	"the image contains: nsfw content, a weapon, a photorealistic depiction of a child, " +
	"or horror elements."

// CheckImage analyzes one generated image against the image category
// thresholds. Any category at or above its threshold is a hard
// violation. pass distinguishes the original asset (0) from a
// regenerated replacement (1); the caller owns the regeneration loop.
func (c *Checker) CheckImage(ctx context.Context, imageURL, ageGroup string, index, pass int) ([]Violation, error) {
	var analysis ImageAnalysis
	prompt := fmt.Sprintf(imageAnalysisPrompt, ageGroup)
	if err := c.Vision.AnalyzeImage(ctx, imageURL, prompt, imageAnalysisSchema, &analysis); err != nil {
		return nil, fmt.Errorf("vision layer: %w", err)
	}

	categories := []struct {
		code  string
		score float64
	}{
		{"nsfw", analysis.NSFW},
		{"weapon", analysis.Weapon},
		{"realistic_child", analysis.RealisticChild},
		{"horror_elements", analysis.HorrorElements},
	}

	idx := index
	var violations []Violation
	for _, cat := range categories {
		limit := c.Thresholds.imageLimit(cat.code)
		if cat.score < limit {
			continue
		}
		violations = append(violations, Violation{
			Code:       cat.code,
			Severity:   SeverityHard,
			Confidence: cat.score,
			MediaType:  MediaImage,
			MediaIndex: &idx,
			Pass:       pass,
			Detail:     fmt.Sprintf("%s confidence %.2f at or above %.2f", cat.code, cat.score, limit),
			Source:     "vision",
		})
	}
	return violations, nil
}
