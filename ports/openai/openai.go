// Package openai binds the openai-go SDK to the ports interfaces:
// text completion with JSON output, content moderation, and image
// generation.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/fableforge/storyflow/ports"
)

// Client wraps one OpenAI API client. Safe for concurrent use.
type Client struct {
	client     *openai.Client
	chatModel  string
	imageModel openai.ImageModel
}

// Option configures a Client.
type Option func(*Client)

// WithImageModel overrides the image generation model.
func WithImageModel(model openai.ImageModel) Option {
	return func(c *Client) { c.imageModel = model }
}

// New creates a Client. chatModel is used for Complete/CompleteJSON,
// e.g. "gpt-4o".
func New(apiKey, chatModel string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("API key cannot be empty")
	}
	if chatModel == "" {
		return nil, errors.New("chat model cannot be empty")
	}

	client := openai.NewClient(option.WithAPIKey(apiKey))

	c := &Client{
		client:     &client,
		chatModel:  chatModel,
		imageModel: openai.ImageModelDallE3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Complete returns a plain text completion.
func (c *Client) Complete(ctx context.Context, req ports.TextRequest) (string, error) {
	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.chatModel),
		Messages: buildMessages(req),
	})
	if err != nil {
		return "", classify(err)
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("no response from OpenAI API")
	}
	return completion.Choices[0].Message.Content, nil
}

// CompleteJSON requests JSON-object output and validates it against
// the schema before decoding into out.
func (c *Client) CompleteJSON(ctx context.Context, req ports.TextRequest, schema ports.Schema, out any) error {
	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.chatModel),
		Messages: buildMessages(req),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: openai.Ptr(shared.NewResponseFormatJSONObjectParam()),
		},
	})
	if err != nil {
		return classify(err)
	}
	if len(completion.Choices) == 0 {
		return errors.New("no response from OpenAI API")
	}
	return ports.ValidateAndDecode(schema, completion.Choices[0].Message.Content, out)
}

// GenerateImage renders one image for the prompt and returns its URL.
func (c *Client) GenerateImage(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt: prompt,
		Model:  c.imageModel,
		Size:   openai.ImageGenerateParamsSize1024x1024,
		N:      openai.Int(1),
	})
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", errors.New("no image in OpenAI response")
	}
	return resp.Data[0].URL, nil
}

// ModerateText screens text through the moderation endpoint and maps
// every category score, plus the provider's per-category flag, into
// flags.
func (c *Client) ModerateText(ctx context.Context, text string) (ports.ModerationResult, error) {
	resp, err := c.client.Moderations.New(ctx, openai.ModerationNewParams{
		Input: openai.ModerationNewParamsInputUnion{
			OfString: openai.String(text),
		},
	})
	if err != nil {
		return ports.ModerationResult{}, classify(err)
	}
	if len(resp.Results) == 0 {
		return ports.ModerationResult{}, errors.New("no moderation result from OpenAI API")
	}

	r := resp.Results[0]
	scores := r.CategoryScores
	cats := r.Categories
	out := ports.ModerationResult{Flagged: r.Flagged}
	for _, flag := range []ports.ModerationFlag{
		{Category: "harassment", Score: scores.Harassment, Flagged: cats.Harassment},
		{Category: "harassment/threatening", Score: scores.HarassmentThreatening, Flagged: cats.HarassmentThreatening},
		{Category: "hate", Score: scores.Hate, Flagged: cats.Hate},
		{Category: "hate/threatening", Score: scores.HateThreatening, Flagged: cats.HateThreatening},
		{Category: "illicit", Score: scores.Illicit, Flagged: cats.Illicit},
		{Category: "illicit/violent", Score: scores.IllicitViolent, Flagged: cats.IllicitViolent},
		{Category: "self-harm", Score: scores.SelfHarm, Flagged: cats.SelfHarm},
		{Category: "self-harm/instructions", Score: scores.SelfHarmInstructions, Flagged: cats.SelfHarmInstructions},
		{Category: "self-harm/intent", Score: scores.SelfHarmIntent, Flagged: cats.SelfHarmIntent},
		{Category: "sexual", Score: scores.Sexual, Flagged: cats.Sexual},
		{Category: "sexual/minors", Score: scores.SexualMinors, Flagged: cats.SexualMinors},
		{Category: "violence", Score: scores.Violence, Flagged: cats.Violence},
		{Category: "violence/graphic", Score: scores.ViolenceGraphic, Flagged: cats.ViolenceGraphic},
	} {
		out.Flags = append(out.Flags, flag)
	}
	return out, nil
}

func buildMessages(req ports.TextRequest) []openai.ChatCompletionMessageParamUnion {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessageParamUnion{
			OfSystem: &openai.ChatCompletionSystemMessageParam{
				Content: openai.ChatCompletionSystemMessageParamContentUnion{
					OfString: openai.String(req.System),
				},
			},
		})
	}
	messages = append(messages, openai.ChatCompletionMessageParamUnion{
		OfUser: &openai.ChatCompletionUserMessageParam{
			Content: openai.ChatCompletionUserMessageParamContentUnion{
				OfString: openai.String(req.Prompt),
			},
		},
	})
	return messages
}

// classify separates permanent API failures (auth, quota, rejected
// input) from transient ones (rate limits, server errors, network).
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "invalid api key"),
		strings.Contains(lower, "incorrect api key"),
		strings.Contains(lower, "401"),
		strings.Contains(lower, "unauthorized"):
		return ports.MarkPermanent(fmt.Errorf("OpenAI authentication failed: %w", err))
	case strings.Contains(lower, "insufficient_quota"),
		strings.Contains(lower, "billing"):
		return ports.MarkPermanent(fmt.Errorf("OpenAI quota exceeded: %w", err))
	case strings.Contains(lower, "content_policy"),
		strings.Contains(lower, "content policy"),
		strings.Contains(lower, "safety system"):
		return ports.MarkPermanent(fmt.Errorf("OpenAI rejected the request: %w", err))
	}
	return fmt.Errorf("OpenAI API error: %w", err)
}
