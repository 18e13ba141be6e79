package runner

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/petasbytes/memchat/internal/history"
	"github.com/petasbytes/memchat/internal/telemetry"
	"github.com/petasbytes/memchat/memory"
)

// Sender is the stateful model collaborator, usually *provider.Conversation.
type Sender interface {
	Send(ctx context.Context, text string) (string, error)
}

// Recorder persists answered turns, usually *history.Reconciler.
type Recorder interface {
	RecordTurn(ctx context.Context, userText, assistantText string) (history.Outcome, error)
}

// ModelError wraps a failed model call. Nothing was recorded for the turn.
type ModelError struct {
	Err error
}

func (e *ModelError) Error() string { return fmt.Sprintf("model call failed: %v", e.Err) }
func (e *ModelError) Unwrap() error { return e.Err }

// Result is one completed turn.
type Result struct {
	TurnID     string
	Reply      string
	Outcome    history.Outcome
	PersistErr error // non-nil when the turn is held in memory only
}

// Recovery is implemented by recorders that can merge in history after Load
// (*history.Reconciler) and by senders that can accept it
// (*provider.Conversation). New connects the two when both sides support it.
type (
	recoveryNotifier interface {
		OnRecovered(func(memory.ModelContext))
	}
	prepender interface {
		Prepend(memory.ModelContext)
	}
)

type Runner struct {
	conv   Sender
	rec    Recorder
	logger zerolog.Logger
	events *telemetry.Emitter
}

// New wires a Runner. events may be nil.
func New(conv Sender, rec Recorder, logger zerolog.Logger, events *telemetry.Emitter) *Runner {
	r := &Runner{
		conv:   conv,
		rec:    rec,
		logger: logger.With().Str("component", "runner").Logger(),
		events: events,
	}
	n, ok1 := rec.(recoveryNotifier)
	p, ok2 := conv.(prepender)
	if ok1 && ok2 {
		n.OnRecovered(func(earlier memory.ModelContext) {
			p.Prepend(earlier)
			r.logger.Info().Int("messages", len(earlier)).Msg("recovered history added to model context")
		})
	}
	return r
}

// RunTurn sends userText and records the answered exchange.
func (r *Runner) RunTurn(ctx context.Context, userText string) (Result, error) {
	ctx, turnID := telemetry.EnsureTurnID(ctx)
	res := Result{TurnID: turnID}

	r.events.LocalFeatures(ctx, userText)

	reply, err := r.conv.Send(ctx, userText)
	if err != nil {
		r.logger.Error().Err(err).Str("turn_id", turnID).Msg("model call failed")
		return res, &ModelError{Err: err}
	}
	res.Reply = reply

	res.Outcome, res.PersistErr = r.rec.RecordTurn(ctx, userText, reply)
	if res.PersistErr != nil {
		r.logger.Warn().Err(res.PersistErr).Str("turn_id", turnID).Msg("turn not persisted")
	} else {
		r.logger.Debug().Str("turn_id", turnID).Stringer("outcome", res.Outcome).Msg("turn recorded")
	}
	return res, nil
}
