package guardrail

// Supported audience age groups.
const (
	AgeGroup3to5  = "3-5"
	AgeGroup6to8  = "6-8"
	AgeGroup9to12 = "9-12"
)

// Thresholds hold the age-dependent limits applied by the LLM analysis
// layer and the floor for provider moderation scores. Scores at or
// above a limit produce a hard violation.
type Thresholds struct {
	// FearByAge caps fear intensity per age group.
	FearByAge map[string]float64

	// ViolenceByAge caps violence severity per age group.
	ViolenceByAge map[string]float64

	// ImageByCategory caps vision confidence per image category.
	ImageByCategory map[string]float64

	// ModerationFloor is the minimum category score at which a
	// provider-flagged result becomes a hard violation.
	ModerationFloor float64
}

// DefaultThresholds returns the production limits: younger audiences
// get stricter caps.
func DefaultThresholds() Thresholds {
	return Thresholds{
		FearByAge: map[string]float64{
			AgeGroup3to5:  0.3,
			AgeGroup6to8:  0.4,
			AgeGroup9to12: 0.5,
		},
		ViolenceByAge: map[string]float64{
			AgeGroup3to5:  0.4,
			AgeGroup6to8:  0.6,
			AgeGroup9to12: 0.7,
		},
		ImageByCategory: map[string]float64{
			"nsfw":            0.5,
			"weapon":          0.5,
			"realistic_child": 0.5,
			"horror_elements": 0.6,
		},
		ModerationFloor: 0.5,
	}
}

// fearLimit returns the cap for the age group, defaulting to the
// strictest cap for unknown groups.
func (t Thresholds) fearLimit(ageGroup string) float64 {
	return limitFor(t.FearByAge, ageGroup, 0.3)
}

func (t Thresholds) violenceLimit(ageGroup string) float64 {
	return limitFor(t.ViolenceByAge, ageGroup, 0.4)
}

// imageLimit returns the confidence threshold for a vision category,
// defaulting to 0.5 for unknown categories.
func (t Thresholds) imageLimit(category string) float64 {
	return limitFor(t.ImageByCategory, category, 0.5)
}

func limitFor(m map[string]float64, key string, fallback float64) float64 {
	if v, ok := m[key]; ok {
		return v
	}
	return fallback
}
