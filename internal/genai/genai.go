// Package genai provides LLM-backed text generation using the OpenAI API.
//
// It exposes a small client interface so every consumer (intent classifier,
// response generator, judge scorer) can be swapped for a deterministic stub
// in tests.
package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Request describes one completion call.
type Request struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int64
}

// ClientInterface is the completion-service contract used across CareLine.
type ClientInterface interface {
	// Generate returns the completion text for the request.
	Generate(ctx context.Context, req Request) (string, error)

	// GenerateStructured runs a schema-constrained prompt and unmarshals the
	// JSON object in the completion into out.
	GenerateStructured(ctx context.Context, prompt, system string, out any) error
}

// Opts holds client configuration.
type Opts struct {
	APIKey string
	Model  string
}

// Option configures the client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key explicitly.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel overrides the completion model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// Client wraps the OpenAI chat completion service.
type Client struct {
	client openai.Client
	model  string
}

// NewClient initializes a GenAI client. The API key falls back to the
// OPENAI_API_KEY environment variable.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	if cfg.Model == "" {
		cfg.Model = openai.ChatModelGPT4oMini
	}
	slog.Debug("genai.NewClient: creating client", "model", cfg.Model)
	return &Client{
		client: openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:  cfg.Model,
	}, nil
}

// Generate returns the completion text for the request.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	messages := []openai.ChatCompletionMessageParamUnion{}
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: messages,
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(req.MaxTokens)
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		slog.Warn("genai.Generate: completion failed", "error", err)
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return completion.Choices[0].Message.Content, nil
}

// GenerateStructured runs a JSON-only prompt and unmarshals the result.
// The completion is trimmed of markdown code fences before decoding, since
// models occasionally wrap JSON despite instructions.
func (c *Client) GenerateStructured(ctx context.Context, prompt, system string, out any) error {
	content, err := c.Generate(ctx, Request{
		System:      system,
		Prompt:      prompt,
		Temperature: 0.0,
	})
	if err != nil {
		return err
	}
	raw := ExtractJSON(content)
	if raw == "" {
		return fmt.Errorf("no JSON object in completion output")
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		slog.Warn("genai.GenerateStructured: malformed JSON in completion", "error", err)
		return fmt.Errorf("failed to decode structured output: %w", err)
	}
	return nil
}

// ExtractJSON strips code fences and surrounding prose, returning the first
// top-level JSON object in the text, or "" when none is present.
func ExtractJSON(text string) string {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
		trimmed = strings.TrimSpace(trimmed)
	}
	start := strings.Index(trimmed, "{")
	if start < 0 {
		return ""
	}
	depth := 0
	for i := start; i < len(trimmed); i++ {
		switch trimmed[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return trimmed[start : i+1]
			}
		}
	}
	return ""
}
