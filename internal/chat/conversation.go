package chat

import (
	"slices"

	"github.com/ashureev/aria/internal/domain"
)

// State is the per-turn state of a conversation.
type State int

const (
	// StateIdle means no response is outstanding.
	StateIdle State = iota
	// StateAwaitingResponse means at least one turn is waiting for ARIA.
	StateAwaitingResponse
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingResponse:
		return "awaiting_response"
	default:
		return "unknown"
	}
}

// Conversation is the append-only message log plus the set of open turns.
// Messages are never mutated or removed.
type Conversation struct {
	messages []domain.Message
	open     map[string]struct{}
}

// NewConversation creates an empty conversation.
func NewConversation() *Conversation {
	return &Conversation{open: make(map[string]struct{})}
}

// Append adds a message to the end of the log.
func (c *Conversation) Append(m domain.Message) {
	c.messages = append(c.messages, m)
}

// Begin opens a turn awaiting a response.
func (c *Conversation) Begin(turnID string) {
	c.open[turnID] = struct{}{}
}

// Complete closes a turn. Unknown turn ids are ignored.
func (c *Conversation) Complete(turnID string) {
	delete(c.open, turnID)
}

// State reports whether any turn is still waiting.
func (c *Conversation) State() State {
	if len(c.open) > 0 {
		return StateAwaitingResponse
	}
	return StateIdle
}

// Messages returns a copy of the log in insertion order.
func (c *Conversation) Messages() []domain.Message {
	return slices.Clone(c.messages)
}
