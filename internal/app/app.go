// Package app wires configuration into a running chat session: credentials,
// the document store, the model backend, history and the turn runner.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/petasbytes/memchat/internal/auth"
	"github.com/petasbytes/memchat/internal/config"
	"github.com/petasbytes/memchat/internal/docstore"
	"github.com/petasbytes/memchat/internal/history"
	"github.com/petasbytes/memchat/internal/provider"
	"github.com/petasbytes/memchat/internal/runner"
	"github.com/petasbytes/memchat/internal/telemetry"
	"github.com/petasbytes/memchat/memory"
)

// Session is one loaded conversation ready to take turns.
type Session struct {
	History      *history.Reconciler
	Runner       *runner.Runner
	Conversation *provider.Conversation
	Generator    provider.Generator
	// Transcript is the history as loaded at startup.
	Transcript memory.Transcript

	events  *telemetry.Emitter
	closers []io.Closer
}

// Close releases the store and the events file.
func (s *Session) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.events.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Build creates the store backend and the model generator concurrently, then
// loads the history document and seeds the conversation with it. prompter is
// only consulted by the local_oauth credential source and may be nil.
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger, prompter auth.Prompter) (*Session, error) {
	var (
		backend docstore.Backend
		closer  io.Closer
		gen     provider.Generator
	)

	p := pool.New().WithErrors().WithContext(ctx).WithCancelOnError()
	p.Go(func(context.Context) error {
		// Token sources keep the context they are built with, so the
		// pool's short-lived context is not used here.
		b, c, err := OpenBackend(ctx, cfg.Store, prompter, logger)
		if err != nil {
			return fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
		}
		backend, closer = b, c
		return nil
	})
	p.Go(func(ctx context.Context) error {
		g, err := provider.New(ctx, provider.Config{
			Provider:  cfg.Model.Provider,
			Model:     cfg.Model.Name,
			APIKey:    cfg.Model.APIKey,
			BaseURL:   cfg.Model.BaseURL,
			MaxTokens: cfg.Model.MaxTokens,
		})
		if err != nil {
			return fmt.Errorf("create model client: %w", err)
		}
		gen = g
		return nil
	})
	err := p.Wait()

	s := &Session{Generator: gen}
	if closer != nil {
		s.closers = append(s.closers, closer)
	}
	if err != nil {
		s.Close()
		return nil, err
	}

	s.events, err = telemetry.Open(telemetry.Config{
		Observe:       cfg.Telemetry.Observe,
		Dir:           cfg.Telemetry.Dir,
		LocalFeatures: cfg.Telemetry.LocalFeatures,
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("open telemetry: %w", err)
	}

	client := docstore.NewClient(backend, docstore.Options{
		Timeout:    cfg.Store.Timeout,
		Retries:    cfg.Store.Retries,
		RetryDelay: cfg.Store.RetryDelay,
		RateLimit:  cfg.Store.RateLimit,
	}, logger)

	s.History = history.New(client, cfg.Document.Name, logger, s.events)
	transcript, seed, err := s.History.Load(ctx)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("load history: %w", err)
	}
	s.Transcript = transcript

	s.Conversation = provider.NewConversation(gen, seed, provider.ConversationOptions{
		Budget: cfg.Model.ContextBudget,
		Logger: logger,
		Events: s.events,
	})
	s.Runner = runner.New(s.Conversation, s.History, logger, s.events)

	logger.Info().
		Str("document", cfg.Document.Name).
		Str("store", cfg.Store.Backend).
		Str("model", gen.Name()).
		Int("pairs", len(transcript.Pairs())).
		Msg("session ready")
	return s, nil
}

// OpenBackend opens the store named by cfg.Backend. The returned closer is
// nil for backends that hold no resources.
func OpenBackend(ctx context.Context, cfg config.StoreConfig, prompter auth.Prompter, logger zerolog.Logger) (docstore.Backend, io.Closer, error) {
	switch cfg.Backend {
	case "drive":
		f := auth.Factory{Prompter: prompter, Logger: logger.With().Str("component", "auth").Logger()}
		opts, err := f.ClientOptions(ctx, cfg.Drive)
		if err != nil {
			return nil, nil, err
		}
		d, err := docstore.NewDrive(ctx, opts...)
		return d, nil, err
	case "local":
		l, err := docstore.NewLocal(cfg.Local.Root)
		return l, nil, err
	case "sqlite":
		s, err := docstore.OpenSQLite(cfg.SQLite.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case "memory":
		return docstore.NewMemory(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
