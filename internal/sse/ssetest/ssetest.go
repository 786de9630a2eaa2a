// ABOUTME: Scripted httptest SSE backend and envelope builders for tests
// ABOUTME: Records every request and lets each test script the streamed response

// Package ssetest provides a scripted SSE backend for tests.
package ssetest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/2389/streamchat/internal/protocol"
	"github.com/2389/streamchat/internal/sse"
)

// Recorded is one request received by the Server.
type Recorded struct {
	Request protocol.Request
	Header  http.Header
}

// Script answers one request. Attempt counts requests received so far,
// starting at 1. Returning completes the stream.
type Script func(attempt int, req protocol.Request, s *Stream)

// Stream is the response side of one scripted request.
type Stream struct {
	*sse.Writer
	rw http.ResponseWriter
	r  *http.Request
}

// Context is cancelled when the client disconnects.
func (s *Stream) Context() context.Context {
	return s.r.Context()
}

// Fail rejects the request with status before any frame is written.
func (s *Stream) Fail(status int) {
	s.rw.WriteHeader(status)
}

// Server is a scripted SSE backend.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	requests []Recorded
	script   Script
}

// NewServer starts a Server that is closed when the test ends.
func NewServer(t testing.TB, script Script) *Server {
	t.Helper()
	s := &Server{script: script}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req protocol.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.requests = append(s.requests, Recorded{Request: req, Header: r.Header.Clone()})
	attempt := len(s.requests)
	s.mu.Unlock()

	sw, err := sse.NewWriter(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.script(attempt, req, &Stream{Writer: sw, rw: w, r: r})
}

// Requests returns a copy of the requests received so far.
func (s *Server) Requests() []Recorded {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Recorded, len(s.requests))
	copy(out, s.requests)
	return out
}

// Fail returns a Script that rejects every request with status.
func Fail(status int) Script {
	return func(_ int, _ protocol.Request, s *Stream) {
		s.Fail(status)
	}
}

// Envelopes returns a Script that writes envs in order and then closes.
func Envelopes(envs ...protocol.Envelope) Script {
	return func(_ int, _ protocol.Request, s *Stream) {
		for _, env := range envs {
			if err := s.WriteEnvelope(env); err != nil {
				return
			}
		}
	}
}

// Start builds a MESSAGE_START envelope.
func Start(requestID, messageID string) protocol.Envelope {
	return protocol.Envelope{
		EventType: protocol.EventMessageStart,
		RequestID: requestID,
		Fact: protocol.Fact{MessageStart: &protocol.MessageFact{
			Message: protocol.Message{MessageID: messageID},
		}},
	}
}

// Delta builds a MESSAGE_DELTA envelope.
func Delta(requestID, messageID, text string) protocol.Envelope {
	return protocol.Envelope{
		EventType: protocol.EventMessageDelta,
		RequestID: requestID,
		Fact: protocol.Fact{MessageDelta: &protocol.MessageFact{
			Message: protocol.Message{MessageID: messageID, Text: text},
		}},
	}
}

// Complete builds a MESSAGE_COMPLETE envelope.
func Complete(requestID string, msg protocol.Message) protocol.Envelope {
	return protocol.Envelope{
		EventType: protocol.EventMessageComplete,
		RequestID: requestID,
		Fact:      protocol.Fact{MessageComplete: &protocol.MessageFact{Message: msg}},
	}
}

// Done builds a DONE envelope.
func Done(requestID string) protocol.Envelope {
	return protocol.Envelope{
		EventType: protocol.EventDone,
		RequestID: requestID,
		Fact:      protocol.Fact{Done: &protocol.DoneFact{}},
	}
}

// Init builds an INIT envelope.
func Init(requestID, channelID string) protocol.Envelope {
	return protocol.Envelope{
		EventType: protocol.EventInit,
		RequestID: requestID,
		ChannelID: channelID,
		Fact:      protocol.Fact{Init: &protocol.InitFact{ChannelID: channelID}},
	}
}
