// Package sse implements the single-shot SSE transport to the conversational
// backend.
//
// A Transport POSTs a protocol.Request and parses the server-sent-event
// response into protocol.Envelopes, invoking a handler for each one in
// arrival order. Stream returns nil when the server closes the stream, a
// *TransportError on connection or parse failures, and ctx.Err() when the
// caller cancels. Retries are the caller's responsibility.
//
//	t := sse.NewTransport("https://bot.example.com/message/sse", sse.WithAPIKey(key))
//	err := t.Stream(ctx, req, func(env protocol.Envelope) error {
//	    fmt.Println(env.EventType)
//	    return nil
//	})
package sse
