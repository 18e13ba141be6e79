package history

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/petasbytes/memchat/internal/docstore"
	"github.com/petasbytes/memchat/internal/metrics"
	"github.com/petasbytes/memchat/internal/telemetry"
	"github.com/petasbytes/memchat/memory"
)

// Store is the document contract the Reconciler relies on. *docstore.Client
// implements it.
type Store interface {
	FindByName(ctx context.Context, name string) (docstore.Lookup, error)
	Fetch(ctx context.Context, id docstore.DocumentID) docstore.FetchResult
	Replace(ctx context.Context, id docstore.DocumentID, content []byte) error
	Create(ctx context.Context, name string, content []byte) (docstore.DocumentID, error)
}

// State is the Reconciler lifecycle position. It never moves backwards.
type State int

const (
	Uninitialized State = iota
	Loaded
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Loaded:
		return "loaded"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Outcome says how RecordTurn persisted the document.
type Outcome int

const (
	NotPersisted Outcome = iota
	Replaced              // existing handle overwritten
	Created               // first document of this name
	Recreated             // handle vanished; a new document was created and adopted
)

func (o Outcome) String() string {
	switch o {
	case NotPersisted:
		return "not_persisted"
	case Replaced:
		return "replaced"
	case Created:
		return "created"
	case Recreated:
		return "recreated"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Reconciler owns the transcript of one conversation and its durable copy.
// It is safe for concurrent use; writes are serialized.
type Reconciler struct {
	store  Store
	name   string
	logger zerolog.Logger
	events *telemetry.Emitter

	mu         sync.Mutex
	state      State
	handle     docstore.DocumentID
	transcript memory.Transcript
	doc        []byte // accumulated document, always holds every recorded turn
	unverified bool   // remote exists but its content was never read
	recovered  func(memory.ModelContext)
}

// New binds a Reconciler to the document called name. events may be nil.
func New(store Store, name string, logger zerolog.Logger, events *telemetry.Emitter) *Reconciler {
	return &Reconciler{
		store:  store,
		name:   name,
		logger: logger.With().Str("component", "history").Str("document", name).Logger(),
		events: events,
	}
}

// Load resolves the document by name and decodes it. A missing document
// yields an empty transcript. Load succeeds at most once.
func (r *Reconciler) Load(ctx context.Context) (memory.Transcript, memory.ModelContext, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != Uninitialized {
		return nil, nil, ErrAlreadyLoaded
	}

	lookup, err := r.store.FindByName(ctx, r.name)
	if err != nil {
		return nil, nil, fmt.Errorf("look up %q: %w", r.name, err)
	}

	var content []byte
	if lookup.Found {
		r.handle = lookup.ID
		res := r.store.Fetch(ctx, lookup.ID)
		switch {
		case errors.Is(res.Failure, docstore.ErrNotFound):
			r.handle = ""
			r.logger.Info().Str("id", string(lookup.ID)).Msg("history document vanished before it was read; starting empty")
		case !res.OK():
			r.unverified = true
			r.logger.Warn().Err(res.Failure).Str("id", string(lookup.ID)).
				Msg("history could not be read; starting empty and holding writes until it can")
		}
		content = res.Content
	}

	t, stats := memory.DecodeWithStats(content)
	if stats.Skipped > 0 {
		r.logger.Debug().Int("skipped", stats.Skipped).Int("blocks", stats.Blocks).Msg("dropped malformed blocks")
	}
	r.transcript = t
	r.doc = memory.Seal(content)
	r.state = Loaded

	summary := metrics.Summarize(t)
	r.logger.Info().Bool("found", lookup.Found).Int("pairs", summary.Pairs).Msg("history loaded")
	r.events.Emit("history_loaded", map[string]any{
		"found":          lookup.Found,
		"readable":       !r.unverified,
		"pairs":          summary.Pairs,
		"bytes":          len(content),
		"skipped_blocks": stats.Skipped,
	})

	return t.Clone(), t.ModelContext(), nil
}

// RecordTurn appends one exchange and persists the accumulated document. On a
// *PersistError the exchange is still kept in memory and in the accumulator.
func (r *Reconciler) RecordTurn(ctx context.Context, userText, assistantText string) (Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != Loaded {
		return NotPersisted, ErrNotLoaded
	}

	pair := memory.Pair{
		User:      memory.Canonicalize(userText),
		Assistant: memory.Canonicalize(assistantText),
	}
	if r.unverified {
		r.reverify(ctx)
	}
	r.transcript = r.transcript.Append(pair)
	r.doc = memory.EncodeAppend(r.doc, pair)

	outcome, err := r.persist(ctx)
	r.events.EmitTurn(ctx, "turn_recorded", map[string]any{
		"outcome": outcome.String(),
		"bytes":   len(r.doc),
		"pairs":   len(r.transcript.Pairs()),
		"ok":      err == nil,
	})
	if err != nil {
		r.logger.Warn().Err(err).Msg("turn kept in memory but not persisted")
		return outcome, &PersistError{Err: err}
	}
	return outcome, nil
}

// OnRecovered registers fn to receive the remote turns merged in after a
// failed initial read, so a model context seeded at Load can catch up.
func (r *Reconciler) OnRecovered(fn func(memory.ModelContext)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recovered = fn
}

// reverify retries reading a document that failed to fetch at Load. On
// success the remote content becomes the accumulator base and the turns
// recorded since Load are replayed on top of it. A document that has since
// disappeared leaves nothing to protect; the next write creates a new one.
func (r *Reconciler) reverify(ctx context.Context) {
	res := r.store.Fetch(ctx, r.handle)
	if errors.Is(res.Failure, docstore.ErrNotFound) {
		r.logger.Info().Str("id", string(r.handle)).Msg("unreadable history document vanished; a new one will be created")
		r.handle = ""
		r.unverified = false
		return
	}
	if !res.OK() {
		return
	}
	remote := memory.Decode(res.Content)
	session := r.transcript
	doc := memory.Seal(res.Content)
	for _, p := range session.Pairs() {
		doc = memory.EncodeAppend(doc, p)
	}
	r.transcript = append(remote, session...)
	r.doc = doc
	r.unverified = false
	r.logger.Info().Int("remote_pairs", len(remote.Pairs())).Msg("history re-read; merged remote turns")
	if r.recovered != nil && len(remote) > 0 {
		r.recovered(remote.ModelContext())
	}
}

func (r *Reconciler) persist(ctx context.Context) (Outcome, error) {
	if r.unverified {
		return NotPersisted, ErrUnverified
	}
	if r.handle.IsZero() {
		id, err := r.store.Create(ctx, r.name, r.doc)
		if err != nil {
			return NotPersisted, err
		}
		r.handle = id
		r.logger.Info().Str("id", string(id)).Msg("history document created")
		return Created, nil
	}

	err := r.store.Replace(ctx, r.handle, r.doc)
	if err == nil {
		return Replaced, nil
	}
	if !errors.Is(err, docstore.ErrNotFound) {
		return NotPersisted, err
	}

	r.logger.Info().Str("id", string(r.handle)).Msg("history document vanished; creating a new one")
	id, err := r.store.Create(ctx, r.name, r.doc)
	if err != nil {
		return NotPersisted, err
	}
	r.handle = id
	return Recreated, nil
}

// State reports the lifecycle position.
func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Transcript returns a copy of every turn known to this session.
func (r *Reconciler) Transcript() memory.Transcript {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transcript.Clone()
}

// Handle returns the adopted document handle; zero before one exists.
func (r *Reconciler) Handle() docstore.DocumentID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handle
}
