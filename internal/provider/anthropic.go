package provider

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/petasbytes/memchat/memory"
)

const DefaultAnthropicModel = anthropic.ModelClaude3_7SonnetLatest

// AnthropicGenerator calls the Anthropic Messages API. The "model" role maps
// to "assistant".
type AnthropicGenerator struct {
	client    *anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewAnthropic returns a generator; an empty APIKey falls back to the SDK's
// environment lookup.
func NewAnthropic(cfg Config) *AnthropicGenerator {
	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	c := anthropic.NewClient(opts...)
	return &AnthropicGenerator{
		client:    &c,
		model:     anthropic.Model(cfg.Model),
		maxTokens: int64(cfg.MaxTokens),
	}
}

func (g *AnthropicGenerator) Name() string { return Anthropic + "/" + string(g.model) }

func (g *AnthropicGenerator) Generate(ctx context.Context, msgs memory.ModelContext) (string, error) {
	if err := checkPrompt(msgs); err != nil {
		return "", err
	}
	params := anthropic.MessageNewParams{
		Model:     g.model,
		MaxTokens: g.maxTokens,
		Messages:  make([]anthropic.MessageParam, 0, len(msgs)),
	}
	for _, m := range msgs {
		block := anthropic.NewTextBlock(m.Text)
		if m.Role == memory.ContextModel {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(block))
		} else {
			params.Messages = append(params.Messages, anthropic.NewUserMessage(block))
		}
	}

	msg, err := g.client.Messages.New(ctx, params)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, block := range msg.Content {
		if v, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(v.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", ErrEmptyReply
	}
	return text, nil
}
