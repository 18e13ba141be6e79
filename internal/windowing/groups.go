// Package windowing trims a model context to an input budget without
// splitting an exchange.
package windowing

import "github.com/petasbytes/memchat/memory"

// GroupKind denotes the atomic unit type when preparing a send window.
type GroupKind int

const (
	GroupSingleton GroupKind = iota
	GroupPair
)

// Group describes a contiguous span of messages [Start, End) in the original slice.
// Kind indicates whether it is a singleton or a user/model pair.
type Group struct {
	Kind  GroupKind
	Start int // inclusive index into msgs
	End   int // exclusive index into msgs
}

// GroupMessages splits msgs into atomic units. A user message immediately
// followed by a model message forms a pair; anything else (a pending prompt,
// a stray model message, consecutive user messages) stands alone.
func GroupMessages(msgs memory.ModelContext) []Group {
	groups := make([]Group, 0, len(msgs)/2+1)
	for i := 0; i < len(msgs); {
		if msgs[i].Role == memory.ContextUser && i+1 < len(msgs) && msgs[i+1].Role == memory.ContextModel {
			groups = append(groups, Group{Kind: GroupPair, Start: i, End: i + 2})
			i += 2
			continue
		}
		groups = append(groups, Group{Kind: GroupSingleton, Start: i, End: i + 1})
		i++
	}
	return groups
}
