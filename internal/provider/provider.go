// Package provider adapts conversational model SDKs to a single Generator
// call and keeps the per-session model context in a Conversation.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/petasbytes/memchat/memory"
)

// Generator is the stateless model call: msgs holds the prior turns followed
// by the prompt to answer.
type Generator interface {
	Generate(ctx context.Context, msgs memory.ModelContext) (string, error)
	// Name identifies the backend and model, e.g. "gemini/gemini-1.5-flash".
	Name() string
}

const (
	Gemini    = "gemini"
	Anthropic = "anthropic"
	OpenAI    = "openai"
)

// Providers lists the accepted Config.Provider values.
var Providers = []string{Gemini, Anthropic, OpenAI}

// ErrEmptyReply is returned when a model answers with no text at all.
var ErrEmptyReply = errors.New("model returned no text")

// Config selects and parameterizes a backend.
type Config struct {
	Provider  string
	Model     string // empty means the provider default
	APIKey    string
	BaseURL   string
	MaxTokens int
	// HTTPClient overrides the SDK transport; tests use it.
	HTTPClient *http.Client
}

// DefaultModel returns the model used when Config.Model is empty.
func DefaultModel(provider string) string {
	switch provider {
	case Gemini:
		return DefaultGeminiModel
	case Anthropic:
		return string(DefaultAnthropicModel)
	case OpenAI:
		return DefaultOpenAIModel
	}
	return ""
}

// New builds the Generator named by cfg.Provider.
func New(ctx context.Context, cfg Config) (Generator, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel(cfg.Provider)
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	switch strings.ToLower(cfg.Provider) {
	case Gemini, "":
		return NewGemini(ctx, cfg)
	case Anthropic:
		return NewAnthropic(cfg), nil
	case OpenAI:
		return NewOpenAI(cfg), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q (want one of %s)", cfg.Provider, strings.Join(Providers, ", "))
	}
}

// checkPrompt rejects a context that does not end with the user prompt.
func checkPrompt(msgs memory.ModelContext) error {
	if len(msgs) == 0 || msgs[len(msgs)-1].Role != memory.ContextUser {
		return errors.New("model context must end with a user message")
	}
	return nil
}
