// ABOUTME: Server-sent-event frame reader following the event-stream grammar
// ABOUTME: Joins multi-line data fields and dispatches a frame on each blank line

package sse

import (
	"bufio"
	"io"
	"strings"
)

const (
	scannerBufferSize  = 64 * 1024
	maxScannerLineSize = 2 * 1024 * 1024
)

// Frame is one dispatched server-sent event.
type Frame struct {
	Event string
	ID    string
	Data  string
}

// Reader reads Frames from an event stream.
type Reader struct {
	scanner *bufio.Scanner
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, scannerBufferSize), maxScannerLineSize)
	return &Reader{scanner: scanner}
}

// Next returns the next frame that carries data. It returns io.EOF when the
// stream ends cleanly; a trailing frame without a terminating blank line is
// still dispatched.
func (r *Reader) Next() (Frame, error) {
	var (
		frame     Frame
		dataLines []string
		hasData   bool
	)

	for r.scanner.Scan() {
		line := r.scanner.Text()

		// Empty line dispatches the event
		if line == "" {
			if hasData {
				frame.Data = strings.Join(dataLines, "\n")
				return frame, nil
			}
			frame = Frame{}
			continue
		}

		// Comment line
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "event":
			frame.Event = value
		case "data":
			dataLines = append(dataLines, value)
			hasData = true
		case "id":
			frame.ID = value
		default:
			// retry and unknown fields are ignored
		}
	}

	if err := r.scanner.Err(); err != nil {
		return Frame{}, err
	}
	if hasData {
		frame.Data = strings.Join(dataLines, "\n")
		return frame, nil
	}
	return Frame{}, io.EOF
}
