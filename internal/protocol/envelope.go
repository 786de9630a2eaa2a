// ABOUTME: Envelope and fact types received from the SSE conversational backend
// ABOUTME: Decodes raw frame data and validates the fact discriminant on ingress

package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrProtocol is the sentinel wrapped by every ProtocolError.
var ErrProtocol = errors.New("protocol error")

// ProtocolError reports an envelope that failed to parse or validate.
type ProtocolError struct {
	EventType EventType
	Reason    string
	Err       error
}

func (e *ProtocolError) Error() string {
	if e.EventType != "" {
		return fmt.Sprintf("protocol error: %s: %s", e.EventType, e.Reason)
	}
	return fmt.Sprintf("protocol error: %s", e.Reason)
}

func (e *ProtocolError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrProtocol, e.Err}
	}
	return []error{ErrProtocol}
}

// EventType is the envelope discriminant.
type EventType string

const (
	EventInit             EventType = "INIT"
	EventMessageStart     EventType = "MESSAGE_START"
	EventMessageDelta     EventType = "MESSAGE_DELTA"
	EventMessageComplete  EventType = "MESSAGE_COMPLETE"
	EventDone             EventType = "DONE"
	EventError            EventType = "ERROR"
	EventProcessStart     EventType = "PROCESS_START"
	EventProcessComplete  EventType = "PROCESS_COMPLETE"
	EventToolCallStart    EventType = "TOOL_CALL_START"
	EventToolCallComplete EventType = "TOOL_CALL_COMPLETE"
)

// IsMessageEvent reports whether t is one of the message lifecycle events.
func (t EventType) IsMessageEvent() bool {
	switch t {
	case EventMessageStart, EventMessageDelta, EventMessageComplete:
		return true
	}
	return false
}

// Envelope is one discrete event from the backend.
type Envelope struct {
	EventType       EventType `json:"eventType"`
	RequestID       string    `json:"requestId"`
	Namespace       string    `json:"namespace,omitempty"`
	BotProviderName string    `json:"botProviderName,omitempty"`
	ChannelID       string    `json:"customChannelId,omitempty"`
	Fact            Fact      `json:"fact"`
}

// Message returns the message carried by a message lifecycle envelope, or nil.
func (e Envelope) Message() *Message {
	switch e.EventType {
	case EventMessageStart:
		if e.Fact.MessageStart != nil {
			return &e.Fact.MessageStart.Message
		}
	case EventMessageDelta:
		if e.Fact.MessageDelta != nil {
			return &e.Fact.MessageDelta.Message
		}
	case EventMessageComplete:
		if e.Fact.MessageComplete != nil {
			return &e.Fact.MessageComplete.Message
		}
	}
	return nil
}

// Fact holds the event-specific payload. Only the field matching the
// envelope's EventType is populated.
type Fact struct {
	Init             *InitFact     `json:"init,omitempty"`
	MessageStart     *MessageFact  `json:"messageStart,omitempty"`
	MessageDelta     *MessageFact  `json:"messageDelta,omitempty"`
	MessageComplete  *MessageFact  `json:"messageComplete,omitempty"`
	Done             *DoneFact     `json:"done,omitempty"`
	Error            *ErrorFact    `json:"error,omitempty"`
	ProcessStart     *ProcessFact  `json:"processStart,omitempty"`
	ProcessComplete  *ProcessFact  `json:"processComplete,omitempty"`
	ToolCallStart    *ToolCallFact `json:"toolCallStart,omitempty"`
	ToolCallComplete *ToolCallFact `json:"toolCallComplete,omitempty"`
}

// InitFact acknowledges a request.
type InitFact struct {
	ChannelID string `json:"customChannelId,omitempty"`
}

// MessageFact wraps the message of a MESSAGE_* event.
type MessageFact struct {
	Message Message `json:"message"`
}

// DoneFact marks the end of a request.
type DoneFact struct {
	Reason string `json:"reason,omitempty"`
}

// ErrorFact carries a backend-reported failure.
type ErrorFact struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// ProcessFact describes a backend processing step.
type ProcessFact struct {
	ProcessID string `json:"processId"`
	Name      string `json:"name,omitempty"`
}

// ToolCallFact describes a tool invocation made by the bot.
type ToolCallFact struct {
	ToolCallID string          `json:"toolCallId"`
	Name       string          `json:"name"`
	Arguments  json.RawMessage `json:"arguments,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
}

// populated returns the event types whose fact variant is set.
func (f Fact) populated() []EventType {
	var set []EventType
	add := func(ok bool, t EventType) {
		if ok {
			set = append(set, t)
		}
	}
	add(f.Init != nil, EventInit)
	add(f.MessageStart != nil, EventMessageStart)
	add(f.MessageDelta != nil, EventMessageDelta)
	add(f.MessageComplete != nil, EventMessageComplete)
	add(f.Done != nil, EventDone)
	add(f.Error != nil, EventError)
	add(f.ProcessStart != nil, EventProcessStart)
	add(f.ProcessComplete != nil, EventProcessComplete)
	add(f.ToolCallStart != nil, EventToolCallStart)
	add(f.ToolCallComplete != nil, EventToolCallComplete)
	return set
}

// Decode parses one frame's data into a validated Envelope.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, &ProtocolError{Reason: "invalid JSON", Err: err}
	}
	if err := env.Validate(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// Validate checks that the fact variant agrees with the discriminant.
// Unknown event types are accepted as long as no known variant conflicts.
// Template contents are not checked here; see Template.Validate.
func (e Envelope) Validate() error {
	if e.EventType == "" {
		return &ProtocolError{Reason: "missing eventType"}
	}

	set := e.Fact.populated()
	if len(set) > 1 {
		return &ProtocolError{EventType: e.EventType, Reason: fmt.Sprintf("multiple fact variants populated: %v", set)}
	}
	if len(set) == 1 && set[0] != e.EventType {
		return &ProtocolError{EventType: e.EventType, Reason: fmt.Sprintf("fact variant %s does not match", set[0])}
	}

	if e.EventType.IsMessageEvent() {
		msg := e.Message()
		if msg == nil {
			return &ProtocolError{EventType: e.EventType, Reason: "missing message fact"}
		}
		if msg.MessageID == "" {
			return &ProtocolError{EventType: e.EventType, Reason: "missing messageId"}
		}
	}
	return nil
}
