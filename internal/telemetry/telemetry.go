package telemetry

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Emitter appends one JSON object per event to events.jsonl. A nil *Emitter
// is valid and drops every event, so callers never need to check.
type Emitter struct {
	cfg  Config
	file *os.File
	out  zerolog.Logger
	now  func() time.Time
}

// Open prepares the events file. It returns a nil Emitter when observation is
// off.
func Open(cfg Config) (*Emitter, error) {
	if !cfg.Observe {
		return nil, nil
	}
	if err := os.MkdirAll(cfg.dir(), 0o755); err != nil {
		return nil, fmt.Errorf("telemetry: mkdir %s: %w", cfg.dir(), err)
	}
	path := cfg.Path()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("telemetry: open %s: %w", path, err)
	}
	return &Emitter{
		cfg:  cfg,
		file: f,
		out:  zerolog.New(zerolog.SyncWriter(f)),
		now:  time.Now,
	}, nil
}

// Close releases the events file.
func (e *Emitter) Close() error {
	if e == nil {
		return nil
	}
	return e.file.Close()
}

// Emit writes a single line carrying fields, the event name and an
// RFC3339Nano UTC time. The caller's map is not modified.
func (e *Emitter) Emit(name string, fields map[string]any) {
	if e == nil {
		return
	}
	m := make(map[string]any, len(fields))
	for k, v := range fields {
		if k == "time" || k == "event" {
			continue
		}
		m[k] = v
	}
	e.out.Log().
		Str("time", e.now().UTC().Format(time.RFC3339Nano)).
		Str("event", name).
		Fields(m).
		Send()
}

// EmitTurn is Emit with the turn ID from ctx attached as turn_id.
func (e *Emitter) EmitTurn(ctx context.Context, name string, fields map[string]any) {
	if e == nil {
		return
	}
	m := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		m[k] = v
	}
	if id, ok := TurnIDFromContext(ctx); ok {
		m["turn_id"] = id
	}
	e.Emit(name, m)
}
