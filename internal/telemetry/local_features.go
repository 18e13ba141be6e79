package telemetry

import (
	"context"

	"github.com/petasbytes/memchat/internal/metrics"
)

// LocalFeatures records size counts of a user prompt. The text itself is
// never written.
func (e *Emitter) LocalFeatures(ctx context.Context, user string) {
	if e == nil || !e.cfg.LocalFeatures {
		return
	}
	f := metrics.CountFeatures(user)
	e.EmitTurn(ctx, "local_features", map[string]any{
		"features_version": "1",
		"user":             f.Map(),
	})
}
