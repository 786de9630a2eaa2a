// ABOUTME: Error types returned by the service client
// ABOUTME: ChannelError marks a call that failed for good after its retries

package client

import (
	"errors"
	"fmt"

	"github.com/2389/streamchat/internal/protocol"
)

var (
	// ErrChannel is the sentinel wrapped by every ChannelError.
	ErrChannel = errors.New("channel error")

	// ErrClosed is returned by calls made after Close.
	ErrClosed = errors.New("client closed")

	// ErrNoMetadata is returned by FetchMetadata when no bot provider
	// endpoint is configured.
	ErrNoMetadata = errors.New("no bot provider endpoint configured")
)

// ChannelError reports a call whose attempts were exhausted or that failed
// with a non-retryable error. It is terminal for that call.
type ChannelError struct {
	ChannelID string
	Action    protocol.RequestAction
	Attempts  int
	Err       error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("channel %s: %s failed after %d attempt(s): %v", e.ChannelID, actionName(e.Action), e.Attempts, e.Err)
}

func (e *ChannelError) Unwrap() []error {
	return []error{ErrChannel, e.Err}
}

func actionName(a protocol.RequestAction) string {
	if a == protocol.ActionNone {
		return "send"
	}
	return string(a)
}
