// Package ports defines the provider-facing interfaces the workflow
// depends on: text and vision models, media generators, moderation,
// PII detection, and blob storage. Adapters in the subpackages bind
// them to real SDKs; in-package mocks serve tests.
//
// Adapters translate transport failures into transient errors and
// contract failures (invalid structured output, rejected input) into
// permanent ones via Permanent.
package ports

import "context"

// TextRequest is one completion request.
type TextRequest struct {
	// System primes the model's role. Optional.
	System string

	// Prompt is the user-turn content.
	Prompt string
}

// Schema names a JSON schema for structured output validation.
type Schema struct {
	// Name labels the schema for providers that accept one.
	Name string

	// Definition is the JSON-schema document as a generic map.
	Definition map[string]any
}

// TextLLM produces text or schema-validated structured output.
type TextLLM interface {
	// Complete returns the raw text completion.
	Complete(ctx context.Context, req TextRequest) (string, error)

	// CompleteJSON requests JSON output, validates it against schema,
	// and unmarshals into out. Output that fails validation is a
	// permanent error: retrying the same malformed contract is
	// pointless.
	CompleteJSON(ctx context.Context, req TextRequest, schema Schema, out any) error
}

// VisionLLM analyzes an image and returns schema-validated structured
// output.
type VisionLLM interface {
	AnalyzeImage(ctx context.Context, imageURL, prompt string, schema Schema, out any) error
}

// ImageGen turns a prompt into a hosted image and returns its URL.
type ImageGen interface {
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

// VideoGen turns a prompt into a hosted video and returns its URL.
// Implementations hide provider-side polling; see PollingVideoGen.
type VideoGen interface {
	GenerateVideo(ctx context.Context, prompt string) (string, error)
}

// ModerationFlag is one category verdict from a moderation provider.
// Flagged carries the provider's own per-category decision; Score is
// its confidence for that category.
type ModerationFlag struct {
	Category string
	Score    float64
	Flagged  bool
}

// ModerationResult is the provider's verdict on a piece of text.
type ModerationResult struct {
	Flagged bool
	Flags   []ModerationFlag
}

// Moderation screens text against a provider's safety categories.
type Moderation interface {
	ModerateText(ctx context.Context, text string) (ModerationResult, error)
}

// PIIMatch reports occurrences of one kind of personal data.
type PIIMatch struct {
	Kind  string
	Count int
}

// PiiDetector finds personally identifiable information in text. It
// is deterministic and local, so it takes no context.
type PiiDetector interface {
	DetectPII(text string) []PIIMatch
}

// BlobStore persists generated media.
type BlobStore interface {
	// Put stores data under key and returns a stable reference.
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)

	// Get fetches a blob by reference, returning data and content type.
	Get(ctx context.Context, ref string) ([]byte, string, error)
}
