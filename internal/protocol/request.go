// ABOUTME: Outbound request body POSTed to the SSE endpoint
// ABOUTME: Distinguishes channel resets from ordinary user messages

package protocol

// RequestAction selects what the backend does with a request.
type RequestAction string

const (
	ActionResetChannel RequestAction = "RESET_CHANNEL"
	ActionNone         RequestAction = "NONE"
)

// Request is the JSON body of every streaming call.
type Request struct {
	Action    RequestAction `json:"action"`
	ChannelID string        `json:"customChannelId"`
	MessageID string        `json:"customMessageId,omitempty"`
	Text      string        `json:"text"`
}
