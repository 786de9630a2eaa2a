// ABOUTME: Tests for the server-sent-event frame reader
// ABOUTME: Covers multi-line data, comments, CRLF line endings, and trailing frames

package sse

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReader_SingleFrame(t *testing.T) {
	r := NewReader(strings.NewReader("event: message\nid: 7\ndata: {\"a\":1}\n\n"))

	frame, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "message", frame.Event)
	assert.Equal(t, "7", frame.ID)
	assert.Equal(t, `{"a":1}`, frame.Data)

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReader_MultiLineData(t *testing.T) {
	r := NewReader(strings.NewReader("data: line one\ndata: line two\n\n"))

	frame, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", frame.Data)
}

func TestReader_SkipsCommentsAndEmptyFrames(t *testing.T) {
	r := NewReader(strings.NewReader(": keep-alive\n\nevent: ping\n\ndata: x\n\n"))

	frame, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "x", frame.Data)
	assert.Empty(t, frame.Event, "event field from a dataless frame must not leak")
}

func TestReader_CRLF(t *testing.T) {
	r := NewReader(strings.NewReader("data: crlf\r\n\r\n"))

	frame, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "crlf", frame.Data)
}

func TestReader_TrailingFrameWithoutBlankLine(t *testing.T) {
	r := NewReader(strings.NewReader("data: first\n\ndata: last"))

	frame, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "first", frame.Data)

	frame, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, "last", frame.Data)

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReader_NoSpaceAfterColon(t *testing.T) {
	r := NewReader(strings.NewReader("data:tight\n\n"))

	frame, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "tight", frame.Data)
}
