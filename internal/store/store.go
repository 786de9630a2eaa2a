// ABOUTME: Archive data types and errors for transcript persistence
// ABOUTME: Maps conversation entries to flat records and back

package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/2389/streamchat/internal/conversation"
	"github.com/2389/streamchat/internal/protocol"
)

// ErrNotFound is returned when a requested channel has no entries.
var ErrNotFound = errors.New("not found")

// ErrTypingEntry is returned when saving a bot message that is still streaming.
var ErrTypingEntry = errors.New("bot message is still typing")

// Kind constants for archived entries
const (
	KindUser  = "user"
	KindBot   = "bot"
	KindError = "error"
)

// Record is one archived transcript entry.
type Record struct {
	ChannelID        string
	MessageID        string
	Kind             string
	Text             string
	Payload          []byte // JSON of the protocol.Message for bot entries
	RequestMessageID string // error entries only
	CreatedAt        time.Time
}

// ChannelSummary describes an archived channel.
type ChannelSummary struct {
	ChannelID string
	Entries   int
	LastAt    time.Time
}

func recordFromEntry(channelID string, e conversation.Entry) (*Record, error) {
	switch e := e.(type) {
	case *conversation.UserMessage:
		return &Record{
			ChannelID: channelID,
			MessageID: e.MessageID,
			Kind:      KindUser,
			Text:      e.Text,
			CreatedAt: e.Time,
		}, nil

	case *conversation.BotMessage:
		if e.IsTyping {
			return nil, ErrTypingEntry
		}
		payload, err := json.Marshal(e.Message)
		if err != nil {
			return nil, fmt.Errorf("marshaling bot message: %w", err)
		}
		return &Record{
			ChannelID: channelID,
			MessageID: e.MessageID,
			Kind:      KindBot,
			Text:      e.Message.Text,
			Payload:   payload,
			CreatedAt: e.Time,
		}, nil

	case *conversation.ErrorMessage:
		return &Record{
			ChannelID:        channelID,
			MessageID:        e.MessageID,
			Kind:             KindError,
			Text:             e.Err,
			RequestMessageID: e.RequestMessageID,
			Payload:          []byte(e.RequestText),
			CreatedAt:        e.Time,
		}, nil
	}
	return nil, fmt.Errorf("unsupported entry type %T", e)
}

// Entry converts the record back to a conversation entry.
func (r *Record) Entry() (conversation.Entry, error) {
	switch r.Kind {
	case KindUser:
		return &conversation.UserMessage{MessageID: r.MessageID, Text: r.Text, Time: r.CreatedAt}, nil

	case KindBot:
		var msg protocol.Message
		if err := json.Unmarshal(r.Payload, &msg); err != nil {
			return nil, fmt.Errorf("decoding bot message %s: %w", r.MessageID, err)
		}
		return &conversation.BotMessage{
			MessageID: r.MessageID,
			EventType: protocol.EventMessageComplete,
			Message:   msg,
			Time:      r.CreatedAt,
		}, nil

	case KindError:
		return &conversation.ErrorMessage{
			MessageID:        r.MessageID,
			RequestMessageID: r.RequestMessageID,
			RequestText:      string(r.Payload),
			Err:              r.Text,
			Time:             r.CreatedAt,
		}, nil
	}
	return nil, fmt.Errorf("unknown record kind %q", r.Kind)
}
