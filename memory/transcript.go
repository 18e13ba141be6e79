package memory

// Role identifies the speaker of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one speaker's utterance. Turns are never mutated once appended.
type Turn struct {
	Speaker Role
	Text    string
}

// Pair is one answered exchange: a user prompt and the reply it produced.
type Pair struct {
	User      string
	Assistant string
}

// Transcript is the ordered turn history of one conversation.
type Transcript []Turn

// Append returns t extended by the two turns of p.
func (t Transcript) Append(p Pair) Transcript {
	return append(t,
		Turn{Speaker: RoleUser, Text: p.User},
		Turn{Speaker: RoleAssistant, Text: p.Assistant},
	)
}

// Pairs returns the answered exchanges of t in order. A user turn is paired
// with the next assistant turn; a user turn that never got a reply is skipped.
func (t Transcript) Pairs() []Pair {
	var (
		out     []Pair
		pending *string
	)
	for i := range t {
		switch t[i].Speaker {
		case RoleUser:
			pending = &t[i].Text
		case RoleAssistant:
			if pending == nil {
				continue
			}
			out = append(out, Pair{User: *pending, Assistant: t[i].Text})
			pending = nil
		}
	}
	return out
}

// Clone returns a copy that shares no backing array with t.
func (t Transcript) Clone() Transcript {
	if t == nil {
		return nil
	}
	out := make(Transcript, len(t))
	copy(out, t)
	return out
}

// ContextRole is the role name a conversational model expects.
type ContextRole string

const (
	ContextUser  ContextRole = "user"
	ContextModel ContextRole = "model"
)

// ContextMessage is one prior turn as fed to a model.
type ContextMessage struct {
	Role ContextRole
	Text string
}

// ModelContext is the ordered prior-turn history a model resumes from.
type ModelContext []ContextMessage

// ModelContext maps t onto model roles: user turns become ContextUser and
// assistant turns become ContextModel.
func (t Transcript) ModelContext() ModelContext {
	out := make(ModelContext, 0, len(t))
	for _, turn := range t {
		role := ContextUser
		if turn.Speaker == RoleAssistant {
			role = ContextModel
		}
		out = append(out, ContextMessage{Role: role, Text: turn.Text})
	}
	return out
}

// Clone returns a copy that shares no backing array with c.
func (c ModelContext) Clone() ModelContext {
	if c == nil {
		return nil
	}
	out := make(ModelContext, len(c))
	copy(out, c)
	return out
}
