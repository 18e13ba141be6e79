// Package metrics derives size features from chat text without retaining it.
package metrics

import (
	"strings"
	"unicode/utf8"

	"github.com/petasbytes/memchat/memory"
)

// Features holds basic local text features derived from an input string.
type Features struct {
	Bytes int
	Runes int
	Words int
	Lines int
}

// CountFeatures computes and returns byte, rune, word, and line counts for the input string.
func CountFeatures(s string) Features {
	return Features{
		Bytes: len(s),
		Runes: utf8.RuneCountInString(s),
		Words: len(strings.Fields(s)),
		Lines: countLines(s),
	}
}

// countLines returns 0 for empty strings; otherwise 1 plus the number of '\n' runes.
func countLines(s string) int {
	if s == "" {
		return 0
	}
	return 1 + strings.Count(s, "\n")
}

// Add returns the field-wise sum of f and g.
func (f Features) Add(g Features) Features {
	return Features{
		Bytes: f.Bytes + g.Bytes,
		Runes: f.Runes + g.Runes,
		Words: f.Words + g.Words,
		Lines: f.Lines + g.Lines,
	}
}

// Map renders f for event payloads.
func (f Features) Map() map[string]any {
	return map[string]any{
		"bytes": f.Bytes,
		"runes": f.Runes,
		"words": f.Words,
		"lines": f.Lines,
	}
}

// Summary aggregates a transcript's answered exchanges.
type Summary struct {
	Pairs     int
	User      Features
	Assistant Features
}

// Summarize totals the features of every answered pair in t.
func Summarize(t memory.Transcript) Summary {
	var s Summary
	for _, p := range t.Pairs() {
		s.Pairs++
		s.User = s.User.Add(CountFeatures(p.User))
		s.Assistant = s.Assistant.Add(CountFeatures(p.Assistant))
	}
	return s
}

// Bytes is the encoded text size of both speakers, excluding labels.
func (s Summary) Bytes() int { return s.User.Bytes + s.Assistant.Bytes }
