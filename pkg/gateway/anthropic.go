package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicMaxTokens = 4096

// AnthropicConfig configures the Anthropic adapter.
type AnthropicConfig struct {
	Logger  *slog.Logger
	APIKey  string
	BaseURL string
}

// AnthropicClient sends requests to the Anthropic Messages API.
type AnthropicClient struct {
	log    *slog.Logger
	client anthropic.Client
}

// NewAnthropicClient creates an Anthropic adapter. The SDK's own retries are disabled; the router
// owns retry policy.
func NewAnthropicClient(cfg AnthropicConfig) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, &Error{Kind: ConfigurationError, Err: errors.New("anthropic API key is required")}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &AnthropicClient{log: cfg.Logger, client: anthropic.NewClient(opts...)}, nil
}

// Generate sends req to Claude and returns the first text block of the reply.
func (c *AnthropicClient) Generate(ctx context.Context, req Request) (Response, error) {
	model := req.Preferences.Model
	maxTokens := req.Preferences.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Preferences.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Preferences.Temperature)
	}

	start := time.Now()
	c.log.Debug("anthropic: request starting", "model", model, "maxTokens", maxTokens, "promptLen", len(req.Prompt), "task", req.TaskType)
	msg, err := c.client.Messages.New(ctx, params)
	duration := time.Since(start)
	if err != nil {
		c.log.Debug("anthropic: request failed", "model", model, "duration", duration, "error", err)
		return Response{}, &Error{Kind: anthropicErrorKind(err), Model: model, Err: fmt.Errorf("anthropic API error: %w", err)}
	}
	c.log.Debug("anthropic: request completed", "model", model, "duration", duration, "stopReason", msg.StopReason)

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return Response{}, &Error{Kind: ModelUnavailable, Model: model, Err: errors.New("no text content in response")}
	}

	in, out := int(msg.Usage.InputTokens), int(msg.Usage.OutputTokens)
	respModel := string(msg.Model)
	if respModel == "" {
		respModel = model
	}
	return Response{
		Content: text,
		Model:   respModel,
		Usage:   Usage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out},
		Metadata: Metadata{
			Provider:  providerAnthropic,
			LatencyMs: duration.Milliseconds(),
		},
	}, nil
}

func anthropicErrorKind(err error) ErrorKind {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return kindForStatus(apiErr.StatusCode, apiErr.Error())
	}
	return kindForTransport(err)
}
