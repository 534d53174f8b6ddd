// Package anthropic binds the anthropic-sdk-go SDK to the ports
// interfaces: text completion and image analysis via Claude messages.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/fableforge/storyflow/ports"
)

const defaultMaxTokens = 4096

// Client wraps one Anthropic API client. Safe for concurrent use.
type Client struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
}

// Option configures a Client.
type Option func(*Client)

// WithMaxTokens overrides the completion token budget.
func WithMaxTokens(n int64) Option {
	return func(c *Client) { c.maxTokens = n }
}

// New creates a Client for the given model, e.g.
// "claude-3-5-sonnet-20241022".
func New(apiKey, model string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("API key cannot be empty")
	}
	if model == "" {
		return nil, errors.New("model cannot be empty")
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	c := &Client{client: &client, model: model, maxTokens: defaultMaxTokens}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Complete returns a plain text completion.
func (c *Client) Complete(ctx context.Context, req ports.TextRequest) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", classify(err)
	}
	return textContent(message), nil
}

// CompleteJSON instructs the model to answer with JSON matching the
// schema, then validates and decodes the reply. Claude has no native
// JSON mode, so the schema is embedded in the prompt and enforced by
// validation.
func (c *Client) CompleteJSON(ctx context.Context, req ports.TextRequest, schema ports.Schema, out any) error {
	prompt, err := jsonPrompt(req.Prompt, schema)
	if err != nil {
		return err
	}

	text, err := c.Complete(ctx, ports.TextRequest{System: req.System, Prompt: prompt})
	if err != nil {
		return err
	}
	return ports.ValidateAndDecode(schema, text, out)
}

// AnalyzeImage sends the image URL alongside the prompt and decodes
// the schema-validated JSON verdict.
func (c *Client) AnalyzeImage(ctx context.Context, imageURL, prompt string, schema ports.Schema, out any) error {
	fullPrompt, err := jsonPrompt(prompt, schema)
	if err != nil {
		return err
	}

	imageBlock := anthropic.ContentBlockParamUnion{
		OfImage: &anthropic.ImageBlockParam{
			Source: anthropic.ImageBlockParamSourceUnion{
				OfURL: &anthropic.URLImageSourceParam{URL: imageURL},
			},
		},
	}

	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(imageBlock, anthropic.NewTextBlock(fullPrompt)),
		},
	})
	if err != nil {
		return classify(err)
	}
	return ports.ValidateAndDecode(schema, textContent(message), out)
}

func textContent(message *anthropic.Message) string {
	var sb strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}

func jsonPrompt(prompt string, schema ports.Schema) (string, error) {
	def, err := json.Marshal(schema.Definition)
	if err != nil {
		return "", fmt.Errorf("failed to marshal schema %s: %w", schema.Name, err)
	}

	var sb strings.Builder
	sb.WriteString(prompt)
	sb.WriteString("\n\nRespond ONLY with a JSON object matching this JSON schema. ")
	sb.WriteString("No markdown, no explanation, just the JSON object.\n")
	sb.Write(def)
	return sb.String(), nil
}

// classify separates permanent API failures from transient ones.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "401"),
		strings.Contains(lower, "403"),
		strings.Contains(lower, "authentication"),
		strings.Contains(lower, "api_key"):
		return ports.MarkPermanent(fmt.Errorf("Anthropic authentication failed: %w", err))
	case strings.Contains(lower, "insufficient_quota"),
		strings.Contains(lower, "billing"):
		return ports.MarkPermanent(fmt.Errorf("Anthropic quota exceeded: %w", err))
	}
	return fmt.Errorf("Anthropic API error: %w", err)
}
