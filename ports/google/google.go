// Package google binds the generative-ai-go (Gemini) SDK to the
// ports.VisionLLM interface for multimodal image analysis.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/fableforge/storyflow/ports"
)

// Fetcher resolves an image reference into raw bytes and a content
// type. The default fetches over HTTP; deployments storing media in a
// BlobStore plug in BlobFetcher instead.
type Fetcher func(ctx context.Context, ref string) ([]byte, string, error)

// Vision analyzes images with a Gemini multimodal model.
type Vision struct {
	apiKey    string
	modelName string
	fetch     Fetcher
}

// Option configures a Vision client.
type Option func(*Vision)

// WithFetcher overrides how image references resolve to bytes.
func WithFetcher(f Fetcher) Option {
	return func(v *Vision) { v.fetch = f }
}

// NewVision creates a Vision client. Empty modelName selects a current
// multimodal Gemini model.
func NewVision(apiKey, modelName string, opts ...Option) (*Vision, error) {
	if apiKey == "" {
		return nil, errors.New("google API key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	v := &Vision{apiKey: apiKey, modelName: modelName, fetch: httpFetch}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// AnalyzeImage sends the image and prompt to Gemini with a JSON
// response MIME type, then validates the reply against the schema and
// decodes into out.
func (v *Vision) AnalyzeImage(ctx context.Context, imageURL, prompt string, schema ports.Schema, out any) error {
	data, contentType, err := v.fetch(ctx, imageURL)
	if err != nil {
		return fmt.Errorf("failed to fetch image %s: %w", imageURL, err)
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(v.apiKey))
	if err != nil {
		return fmt.Errorf("failed to create Google client: %w", err)
	}
	defer func() { _ = client.Close() }()

	genModel := client.GenerativeModel(v.modelName)
	genModel.ResponseMIMEType = "application/json"

	fullPrompt, err := schemaPrompt(prompt, schema)
	if err != nil {
		return err
	}

	resp, err := genModel.GenerateContent(ctx,
		genai.ImageData(imageFormat(contentType), data),
		genai.Text(fullPrompt),
	)
	if err != nil {
		return classify(err)
	}

	return ports.ValidateAndDecode(schema, responseText(resp), out)
}

func schemaPrompt(prompt string, schema ports.Schema) (string, error) {
	def, err := json.Marshal(schema.Definition)
	if err != nil {
		return "", fmt.Errorf("failed to marshal schema %s: %w", schema.Name, err)
	}

	var sb strings.Builder
	sb.WriteString(prompt)
	sb.WriteString("\n\nAnswer with a JSON object matching this JSON schema:\n")
	sb.Write(def)
	return sb.String(), nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String()
}

// imageFormat maps a content type to the format token genai expects
// ("png", "jpeg", ...).
func imageFormat(contentType string) string {
	switch {
	case strings.Contains(contentType, "png"):
		return "png"
	case strings.Contains(contentType, "webp"):
		return "webp"
	case strings.Contains(contentType, "gif"):
		return "gif"
	default:
		return "jpeg"
	}
}

func httpFetch(ctx context.Context, ref string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("unexpected status %d fetching image", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// BlobFetcher resolves references through a BlobStore instead of HTTP.
func BlobFetcher(blobs ports.BlobStore) Fetcher {
	return func(ctx context.Context, ref string) ([]byte, string, error) {
		return blobs.Get(ctx, ref)
	}
}

// classify separates permanent API failures from transient ones.
// Safety blocks are permanent: regenerating with the same input will
// be blocked again.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "api key"),
		strings.Contains(lower, "401"),
		strings.Contains(lower, "permission"):
		return ports.MarkPermanent(fmt.Errorf("Google authentication failed: %w", err))
	case strings.Contains(lower, "safety"),
		strings.Contains(lower, "blocked"):
		return ports.MarkPermanent(fmt.Errorf("Google safety filter blocked the request: %w", err))
	}
	return fmt.Errorf("Google API error: %w", err)
}
