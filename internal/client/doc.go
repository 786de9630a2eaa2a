// Package client is the service client for an SSE conversational backend.
//
// # Overview
//
// A Client turns the two backend operations into blocking calls:
//
//   - SetChannel resets the server-side context of a channel (RESET_CHANNEL)
//   - SendMessage posts a user message (NONE) and streams the bot reply
//
// Each call opens one SSE stream per attempt through internal/sse and
// retries transport failures with exponential backoff. Envelopes of a
// SendMessage reply are paced so typing renders smoothly.
//
// # Lifecycle
//
// Every call derives its context from a client-wide context that Close
// cancels, so Close terminates outstanding streams and backoffs:
//
//	c, err := client.New(cfg.Client, client.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//
//	err = c.SendMessage(ctx, "channel-1", "hi", "", client.Callbacks{
//		OnEnvelope: func(env protocol.Envelope) { ... },
//	})
//
// # Events
//
// Subscribe delivers every envelope and every change of IsConnecting to
// observers, in order, on the goroutine running the call.
package client
