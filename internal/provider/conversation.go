package provider

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/petasbytes/memchat/internal/telemetry"
	"github.com/petasbytes/memchat/internal/windowing"
	"github.com/petasbytes/memchat/memory"
)

// Conversation is the stateful side of a model session. It is seeded with
// the loaded history and grows by one user/model pair per successful Send.
type Conversation struct {
	gen     Generator
	budget  int
	counter windowing.TokenCounter
	logger  zerolog.Logger
	events  *telemetry.Emitter

	mu      sync.Mutex
	history memory.ModelContext
}

// ConversationOptions tunes a Conversation. The zero value sends the whole
// history.
type ConversationOptions struct {
	// Budget caps the estimated input tokens per call; 0 means unlimited.
	Budget  int
	Counter windowing.TokenCounter
	Logger  zerolog.Logger
	Events  *telemetry.Emitter
}

func NewConversation(gen Generator, seed memory.ModelContext, opts ConversationOptions) *Conversation {
	if opts.Counter == nil {
		opts.Counter = windowing.HeuristicCounter{}
	}
	return &Conversation{
		gen:     gen,
		budget:  opts.Budget,
		counter: opts.Counter,
		logger:  opts.Logger.With().Str("component", "conversation").Str("model", gen.Name()).Logger(),
		events:  opts.Events,
		history: seed.Clone(),
	}
}

// Send asks the model to answer text in the context of the conversation so
// far. The exchange joins the history only when a reply comes back.
func (c *Conversation) Send(ctx context.Context, text string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	msgs := append(c.history.Clone(), memory.ContextMessage{Role: memory.ContextUser, Text: text})
	window, stats, err := windowing.Fit(msgs, c.budget, c.counter)
	if err != nil {
		c.emit(ctx, stats, 0, err)
		return "", err
	}
	if stats.SkippedGroups > 0 {
		c.logger.Debug().Int("budget", stats.Budget).Int("total", stats.Total).
			Int("included", stats.IncludedGroups).Int("skipped", stats.SkippedGroups).
			Msg("context trimmed to budget")
	}

	start := time.Now()
	reply, err := c.gen.Generate(ctx, window)
	c.emit(ctx, stats, time.Since(start), err)
	if err != nil {
		return "", err
	}

	c.history = append(c.history,
		memory.ContextMessage{Role: memory.ContextUser, Text: text},
		memory.ContextMessage{Role: memory.ContextModel, Text: reply},
	)
	return reply, nil
}

func (c *Conversation) emit(ctx context.Context, stats windowing.Stats, d time.Duration, err error) {
	fields := map[string]any{
		"model":              c.gen.Name(),
		"duration_ms":        d.Milliseconds(),
		"budget":             stats.Budget,
		"total_estimated":    stats.Total,
		"included_groups":    stats.IncludedGroups,
		"skipped_groups":     stats.SkippedGroups,
		"over_budget_newest": stats.OverBudgetNewest,
		"ok":                 err == nil,
	}
	c.events.EmitTurn(ctx, "model_call", fields)
}

// Prepend places earlier turns in front of the conversation history. It is
// used when turns that predate this session are recovered after startup.
func (c *Conversation) Prepend(earlier memory.ModelContext) {
	if len(earlier) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(earlier.Clone(), c.history...)
}

// History returns a copy of the context the next Send builds on.
func (c *Conversation) History() memory.ModelContext {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.Clone()
}
