package provider

import (
	"context"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/petasbytes/memchat/memory"
)

const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAIGenerator calls any OpenAI-compatible chat completions endpoint.
type OpenAIGenerator struct {
	client    openai.Client
	model     string
	maxTokens int64
}

func NewOpenAI(cfg Config) *OpenAIGenerator {
	var opts []option.RequestOption
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	return &OpenAIGenerator{
		client:    openai.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: int64(cfg.MaxTokens),
	}
}

func (g *OpenAIGenerator) Name() string { return OpenAI + "/" + g.model }

func (g *OpenAIGenerator) Generate(ctx context.Context, msgs memory.ModelContext) (string, error) {
	if err := checkPrompt(msgs); err != nil {
		return "", err
	}
	params := openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(g.model),
		MaxCompletionTokens: openai.Int(g.maxTokens),
	}
	for _, m := range msgs {
		if m.Role == memory.ContextModel {
			params.Messages = append(params.Messages, openai.AssistantMessage(m.Text))
		} else {
			params.Messages = append(params.Messages, openai.UserMessage(m.Text))
		}
	}

	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyReply
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyReply
	}
	return text, nil
}
