// Package protocol defines the wire model of the conversational SSE backend.
//
// # Overview
//
// Every server-sent event carries one JSON Envelope:
//
//	{
//	  "eventType": "MESSAGE_DELTA",
//	  "requestId": "req-1",
//	  "namespace": "default",
//	  "botProviderName": "demo",
//	  "customChannelId": "channel-1",
//	  "fact": {"messageDelta": {"message": {"messageId": "m1", "text": "hi"}}}
//	}
//
// The fact is a tagged union: exactly one sub-field is populated and it must
// agree with eventType. Decode rejects envelopes where they disagree with a
// *ProtocolError.
//
// # Requests
//
// Requests are POSTed as JSON:
//
//	{"action": "NONE", "customChannelId": "channel-1", "customMessageId": "u1", "text": "hello"}
//
// Action RESET_CHANNEL empties the server-side context for the channel.
package protocol
