// ABOUTME: Pure transition functions folding SSE envelopes into a conversation
// ABOUTME: Enforces per-message lifecycle, debug suppression, and user-message protection

package conversation

import (
	"time"

	"github.com/2389/streamchat/internal/protocol"
)

// Options controls how envelopes are folded.
type Options struct {
	// ShowDebugMessage keeps messages flagged IsDebug.
	ShowDebugMessage bool

	// Now timestamps new bot entries. Defaults to time.Now; pass a fixed
	// clock for reproducible folds.
	Now func() time.Time
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o Options) suppressed(msg *protocol.Message) bool {
	return msg.IsDebug && !o.ShowDebugMessage
}

// Apply folds one envelope into conv. It returns conv itself when the
// envelope causes no change. Event types other than the message lifecycle
// are ignored.
func Apply(conv *Conversation, env protocol.Envelope, opts Options) *Conversation {
	msg := env.Message()
	if msg == nil || msg.MessageID == "" {
		return conv
	}

	switch env.EventType {
	case protocol.EventMessageStart:
		return applyStart(conv, msg, opts)
	case protocol.EventMessageDelta:
		return applyDelta(conv, msg, opts)
	case protocol.EventMessageComplete:
		return applyComplete(conv, msg, opts)
	default:
		return conv
	}
}

// Fold applies envs in order.
func Fold(conv *Conversation, envs []protocol.Envelope, opts Options) *Conversation {
	for _, env := range envs {
		conv = Apply(conv, env, opts)
	}
	return conv
}

func applyStart(conv *Conversation, msg *protocol.Message, opts Options) *Conversation {
	if _, exists := conv.Get(msg.MessageID); exists {
		return conv
	}
	if opts.suppressed(msg) {
		return conv
	}

	empty := ""
	return conv.with(msg.MessageID, &BotMessage{
		MessageID:  msg.MessageID,
		EventType:  protocol.EventMessageStart,
		IsTyping:   true,
		TypingText: &empty,
		Message:    *msg,
		Time:       opts.now(),
	})
}

func applyDelta(conv *Conversation, msg *protocol.Message, opts Options) *Conversation {
	if opts.suppressed(msg) {
		return conv
	}

	existing, exists := conv.Get(msg.MessageID)
	if !exists {
		// START was missed; begin typing from this delta
		text := msg.Text
		return conv.with(msg.MessageID, &BotMessage{
			MessageID:  msg.MessageID,
			EventType:  protocol.EventMessageDelta,
			IsTyping:   true,
			TypingText: &text,
			Message:    *msg,
			Time:       opts.now(),
		})
	}

	bot, ok := existing.(*BotMessage)
	if !ok || !bot.IsTyping {
		return conv
	}

	text := msg.Text
	if bot.TypingText != nil {
		text = *bot.TypingText + msg.Text
	}
	return conv.with(msg.MessageID, &BotMessage{
		MessageID:  msg.MessageID,
		EventType:  protocol.EventMessageDelta,
		IsTyping:   true,
		TypingText: &text,
		Message:    *msg,
		Time:       bot.Time,
	})
}

func applyComplete(conv *Conversation, msg *protocol.Message, opts Options) *Conversation {
	if opts.suppressed(msg) {
		return conv
	}

	var at time.Time
	existing, exists := conv.Get(msg.MessageID)
	if exists {
		bot, ok := existing.(*BotMessage)
		if !ok || !bot.IsTyping {
			return conv
		}
		at = bot.Time
	} else {
		at = opts.now()
	}

	return conv.with(msg.MessageID, &BotMessage{
		MessageID:  msg.MessageID,
		EventType:  protocol.EventMessageComplete,
		IsTyping:   false,
		TypingText: nil,
		Message:    *msg,
		Time:       at,
	})
}

// RestartTyping clears the accumulated text of a typing bot message, for a
// request that is about to be retried and will stream it again. Other
// entries are left unchanged.
func RestartTyping(conv *Conversation, id string) *Conversation {
	bot := typingBot(conv, id)
	if bot == nil || bot.TypingText == nil || *bot.TypingText == "" {
		return conv
	}
	next := *bot
	empty := ""
	next.TypingText = &empty
	return conv.with(id, &next)
}

// InterruptTyping ends a typing bot message whose stream ended without
// MESSAGE_COMPLETE. The partial text becomes the message text. Other entries
// are left unchanged.
func InterruptTyping(conv *Conversation, id string) *Conversation {
	bot := typingBot(conv, id)
	if bot == nil {
		return conv
	}
	next := *bot
	next.Message.Text = bot.DisplayText()
	next.IsTyping = false
	next.TypingText = nil
	next.Interrupted = true
	return conv.with(id, &next)
}

func typingBot(conv *Conversation, id string) *BotMessage {
	e, ok := conv.Get(id)
	if !ok {
		return nil
	}
	bot, ok := e.(*BotMessage)
	if !ok || !bot.IsTyping {
		return nil
	}
	return bot
}

// PushMessage inserts a user message. It is a no-op when id is already
// present.
func PushMessage(conv *Conversation, id, text string, at time.Time) *Conversation {
	if _, exists := conv.Get(id); exists {
		return conv
	}
	return conv.with(id, &UserMessage{MessageID: id, Text: text, Time: at})
}

// AppendError inserts an error entry. It is a no-op when its id is already
// present.
func AppendError(conv *Conversation, e ErrorMessage) *Conversation {
	if _, exists := conv.Get(e.MessageID); exists {
		return conv
	}
	return conv.with(e.MessageID, &e)
}
