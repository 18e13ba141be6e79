package memory

import (
	"regexp"
	"strings"
)

// Fixed markers of the persisted format. Changing them breaks every
// previously stored transcript.
const (
	UserLabel       = "Ty:"
	AssistantLabel  = "Gemini:"
	BlockTerminator = "\n\n\n"

	labelGap = "\n\n"
)

// DecodeStats describes what Decode saw.
type DecodeStats struct {
	Blocks  int // non-blank candidate blocks
	Skipped int // candidate blocks dropped for missing markers
}

// Encode renders every answered exchange of t as a block, oldest first.
func Encode(t Transcript) []byte {
	var out []byte
	for _, p := range t.Pairs() {
		out = appendBlock(out, p)
	}
	return out
}

// EncodeAppend returns existing followed by the block for p. existing is not
// modified.
func EncodeAppend(existing []byte, p Pair) []byte {
	out := make([]byte, len(existing), len(existing)+blockSize(p))
	copy(out, existing)
	return appendBlock(out, p)
}

// Seal returns a copy of doc that ends with the block terminator, so a block
// appended after it starts cleanly. A blank document seals to nil.
func Seal(doc []byte) []byte {
	trimmed := strings.TrimRight(string(doc), " \t\r\n")
	if trimmed == "" {
		return nil
	}
	if strings.HasSuffix(string(doc), BlockTerminator) {
		return append([]byte(nil), doc...)
	}
	return []byte(trimmed + BlockTerminator)
}

// Decode parses doc into a transcript, dropping malformed blocks.
func Decode(doc []byte) Transcript {
	t, _ := DecodeWithStats(doc)
	return t
}

// DecodeWithStats is Decode that also reports how many blocks were dropped.
func DecodeWithStats(doc []byte) (Transcript, DecodeStats) {
	var stats DecodeStats
	t := Transcript{}
	text := strings.TrimSpace(strings.ReplaceAll(string(doc), "\r\n", "\n"))
	if text == "" {
		return t, stats
	}
	for _, block := range strings.Split(text, BlockTerminator) {
		if strings.TrimSpace(block) == "" {
			continue
		}
		stats.Blocks++
		p, ok := parseBlock(block)
		if !ok {
			stats.Skipped++
			continue
		}
		t = t.Append(p)
	}
	return t, stats
}

// assistantMarker is the assistant label as Encode writes it, on its own
// paragraph after the prompt.
const assistantMarker = labelGap + AssistantLabel

// parseBlock locates the user marker and then the assistant marker after it.
// Text between the markers is the prompt; everything after the assistant
// marker is the reply. The paragraph-leading marker wins so a prompt that
// mentions the label inline stays intact; a bare label is accepted for
// hand-edited documents.
func parseBlock(block string) (Pair, bool) {
	u := strings.Index(block, UserLabel)
	if u < 0 {
		return Pair{}, false
	}
	rest := block[u+len(UserLabel):]
	a := strings.Index(rest, assistantMarker)
	if a >= 0 {
		a += len(labelGap)
	} else if a = strings.Index(rest, AssistantLabel); a < 0 {
		return Pair{}, false
	}
	return Pair{
		User:      strings.TrimSpace(rest[:a]),
		Assistant: strings.TrimSpace(rest[a+len(AssistantLabel):]),
	}, true
}

func appendBlock(b []byte, p Pair) []byte {
	b = append(b, UserLabel...)
	b = append(b, ' ')
	b = append(b, p.User...)
	b = append(b, labelGap...)
	b = append(b, AssistantLabel...)
	b = append(b, ' ')
	b = append(b, p.Assistant...)
	return append(b, BlockTerminator...)
}

func blockSize(p Pair) int {
	return len(UserLabel) + 1 + len(p.User) + len(labelGap) + len(AssistantLabel) + 1 + len(p.Assistant) + len(BlockTerminator)
}

var blankRun = regexp.MustCompile(`\n{3,}`)

// Canonicalize normalizes text so it survives a round trip through the
// document format: CRLF becomes LF, runs of blank lines collapse to one, and
// surrounding whitespace is trimmed.
func Canonicalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = blankRun.ReplaceAllString(s, labelGap)
	return strings.TrimSpace(s)
}
