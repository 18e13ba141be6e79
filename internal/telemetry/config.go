package telemetry

import "path/filepath"

// DefaultDir holds events.jsonl when Config.Dir is empty.
const DefaultDir = ".agent"

// Config selects what the Emitter records. The zero value records nothing.
type Config struct {
	Observe       bool   // write events.jsonl at all
	Dir           string // directory for events.jsonl
	LocalFeatures bool   // emit local_features for every user prompt
}

func (c Config) dir() string {
	if c.Dir == "" {
		return DefaultDir
	}
	return c.Dir
}

// Path returns the events file the Emitter appends to.
func (c Config) Path() string {
	return filepath.Join(c.dir(), "events.jsonl")
}
