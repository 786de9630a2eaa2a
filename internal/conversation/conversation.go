// ABOUTME: Immutable insertion-ordered conversation transcript and its entry variants
// ABOUTME: Copy-on-write updates keep first-seen ordering and enable identity change checks

package conversation

import (
	"reflect"
	"time"

	"github.com/2389/streamchat/internal/protocol"
)

// Entry is one transcript item: *UserMessage, *BotMessage or *ErrorMessage.
// Entries are shared between conversation snapshots and must not be mutated.
type Entry interface {
	ID() string
	entry()
}

// UserMessage is a message typed by the local user.
type UserMessage struct {
	MessageID string
	Text      string
	Time      time.Time
}

// BotMessage is a bot turn, possibly still streaming.
type BotMessage struct {
	MessageID  string
	EventType  protocol.EventType // last event applied
	IsTyping   bool
	TypingText *string // accumulated delta text while typing, nil once complete
	Message    protocol.Message
	Time       time.Time
	// Interrupted is set when the stream ended before MESSAGE_COMPLETE.
	// Message.Text then holds the partial text.
	Interrupted bool
}

// ErrorMessage records a send that failed after retries.
type ErrorMessage struct {
	MessageID        string
	RequestMessageID string
	RequestText      string
	Err              string
	Time             time.Time
}

func (m *UserMessage) ID() string  { return m.MessageID }
func (m *BotMessage) ID() string   { return m.MessageID }
func (m *ErrorMessage) ID() string { return m.MessageID }

func (*UserMessage) entry()  {}
func (*BotMessage) entry()   {}
func (*ErrorMessage) entry() {}

// DisplayText returns the text to show: the typing text while streaming,
// the authoritative message text once complete.
func (m *BotMessage) DisplayText() string {
	if m.IsTyping && m.TypingText != nil {
		return *m.TypingText
	}
	return m.Message.Text
}

// Conversation is an insertion-ordered map from message id to Entry.
// The zero value and nil are both valid empty conversations.
type Conversation struct {
	keys    []string
	entries map[string]Entry
}

// Empty returns a fresh empty conversation.
func Empty() *Conversation {
	return &Conversation{entries: make(map[string]Entry)}
}

// Len returns the number of entries.
func (c *Conversation) Len() int {
	if c == nil {
		return 0
	}
	return len(c.keys)
}

// Get returns the entry for id.
func (c *Conversation) Get(id string) (Entry, bool) {
	if c == nil {
		return nil, false
	}
	e, ok := c.entries[id]
	return e, ok
}

// Keys returns the message ids in first-seen order.
func (c *Conversation) Keys() []string {
	if c == nil {
		return nil
	}
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

// Entries returns the entries in first-seen order.
func (c *Conversation) Entries() []Entry {
	if c == nil {
		return nil
	}
	out := make([]Entry, 0, len(c.keys))
	for _, k := range c.keys {
		out = append(out, c.entries[k])
	}
	return out
}

// Equal reports whether both conversations hold equal entries in the same order.
func (c *Conversation) Equal(other *Conversation) bool {
	if c.Len() != other.Len() {
		return false
	}
	for i, k := range c.keysOrNil() {
		if other.keys[i] != k {
			return false
		}
		if !reflect.DeepEqual(c.entries[k], other.entries[k]) {
			return false
		}
	}
	return true
}

func (c *Conversation) keysOrNil() []string {
	if c == nil {
		return nil
	}
	return c.keys
}

// with returns a copy of c where id maps to e. A new id is appended; an
// existing id keeps its position.
func (c *Conversation) with(id string, e Entry) *Conversation {
	n := c.Len()
	next := &Conversation{
		keys:    make([]string, 0, n+1),
		entries: make(map[string]Entry, n+1),
	}
	if c != nil {
		next.keys = append(next.keys, c.keys...)
		for k, v := range c.entries {
			next.entries[k] = v
		}
	}
	if _, exists := next.entries[id]; !exists {
		next.keys = append(next.keys, id)
	}
	next.entries[id] = e
	return next
}

// Seed builds a conversation from entries, keeping the first entry for a
// repeated id.
func Seed(entries ...Entry) *Conversation {
	conv := Empty()
	for _, e := range entries {
		if e == nil {
			continue
		}
		if _, exists := conv.entries[e.ID()]; exists {
			continue
		}
		conv.keys = append(conv.keys, e.ID())
		conv.entries[e.ID()] = e
	}
	return conv
}
