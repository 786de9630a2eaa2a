// ABOUTME: Server-side SSE writer that encodes protocol envelopes as event frames
// ABOUTME: Used by the fake backend and test servers to emit the wire format

package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/2389/streamchat/internal/protocol"
)

// ErrStreamingUnsupported is returned when the ResponseWriter cannot flush.
var ErrStreamingUnsupported = errors.New("streaming not supported")

// Writer emits envelopes on an HTTP response as server-sent events.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewWriter sets the SSE headers and returns a Writer. Headers are written
// with the first frame.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	return &Writer{w: w, flusher: flusher}, nil
}

// WriteEnvelope writes one envelope frame and flushes it.
func (sw *Writer) WriteEnvelope(env protocol.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshaling envelope: %w", err)
	}
	return sw.WriteRaw(string(env.EventType), string(data))
}

// WriteRaw writes a frame with the given event name and data and flushes it.
func (sw *Writer) WriteRaw(event, data string) error {
	if _, err := fmt.Fprint(sw.w, FormatFrame(event, data)); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	sw.flusher.Flush()
	return nil
}

// Flush sends the headers without a frame.
func (sw *Writer) Flush() {
	sw.flusher.Flush()
}

// FormatFrame formats an SSE frame with the standard format:
// event: <event>\ndata: <data>\n\n
func FormatFrame(event, data string) string {
	if event == "" {
		return fmt.Sprintf("data: %s\n\n", data)
	}
	return fmt.Sprintf("event: %s\ndata: %s\n\n", event, data)
}
