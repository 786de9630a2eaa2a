// Package channel drives one conversation: it owns a service client,
// folds streamed envelopes into the conversation and publishes a State
// on every change.
//
// Open resets the server-side channel and blocks until the reset is done.
// SendMessage echoes the user message into the conversation before the
// network call, so observers see it immediately. Close cancels all calls
// and makes the Channel inert.
package channel
