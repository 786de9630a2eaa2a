// Package conversation implements the pure conversation state reducer.
//
// # Overview
//
// A Conversation is an insertion-ordered, immutable mapping from message id
// to Entry. Transitions never mutate their input: they return a new
// *Conversation, or the input itself when nothing changed, so callers can
// detect changes by identity.
//
// # Entries
//
//   - *UserMessage: created locally at send time (optimistic echo), never mutated
//   - *BotMessage: folded from MESSAGE_START / MESSAGE_DELTA / MESSAGE_COMPLETE
//   - *ErrorMessage: appended when a send fails after retries
//
// # Bot Message Lifecycle
//
// Each message id moves independently through:
//
//	absent -> typing (START) -> typing (DELTA)* -> complete (COMPLETE)
//
// complete is terminal. Deltas append to TypingText in arrival order; the
// COMPLETE payload replaces the accumulated text. Debug messages are skipped
// unless Options.ShowDebugMessage is set, re-checked on every transition.
//
// # Usage
//
//	conv := conversation.Empty()
//	conv = conversation.PushMessage(conv, "u1", "hello", time.Now())
//	for _, env := range envelopes {
//	    conv = conversation.Apply(conv, env, conversation.Options{})
//	}
package conversation
