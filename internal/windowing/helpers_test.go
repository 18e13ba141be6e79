package windowing_test

import (
	"github.com/petasbytes/memchat/internal/windowing"
	"github.com/petasbytes/memchat/memory"
)

// U is a user message constructor.
func U(text string) memory.ContextMessage {
	return memory.ContextMessage{Role: memory.ContextUser, Text: text}
}

// M is a model message constructor.
func M(text string) memory.ContextMessage {
	return memory.ContextMessage{Role: memory.ContextModel, Text: text}
}

func ctxOf(msgs ...memory.ContextMessage) memory.ModelContext {
	return memory.ModelContext(msgs)
}

// groupsEqual is a small utility used by grouping tests.
func groupsEqual(got, want []windowing.Group) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
