// ABOUTME: Streaming HTTP POST transport that yields parsed protocol envelopes
// ABOUTME: Surfaces open/stream failures as TransportError and honors cancellation

package sse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/2389/streamchat/internal/protocol"
)

// ErrTransport is the sentinel wrapped by every TransportError.
var ErrTransport = errors.New("transport error")

// TransportError reports a failed connection open, a network drop or a
// malformed frame. Callers treat it as retryable.
type TransportError struct {
	StatusCode int // non-zero when the server rejected the request
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport error: server returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrTransport, e.Err}
	}
	return []error{ErrTransport}
}

// Handler receives each envelope in arrival order. Returning an error aborts
// the stream and Stream returns that error unchanged.
type Handler func(protocol.Envelope) error

// Transport opens one SSE stream per Stream call.
type Transport struct {
	endpoint   string
	apiKey     string
	headers    http.Header
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Transport.
type Option func(*Transport)

// WithAPIKey sets the X-API-KEY header.
func WithAPIKey(key string) Option {
	return func(t *Transport) { t.apiKey = key }
}

// WithHeader adds an extra request header.
func WithHeader(key, value string) Option {
	return func(t *Transport) { t.headers.Add(key, value) }
}

// WithHTTPClient overrides the HTTP client. The client must not set a
// Timeout shorter than the longest expected stream.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Transport) { t.httpClient = c }
}

// WithLogger sets the logger. Pass nil for the default.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// NewTransport creates a Transport for the given SSE endpoint.
func NewTransport(endpoint string, opts ...Option) *Transport {
	t := &Transport{
		endpoint:   endpoint,
		headers:    make(http.Header),
		httpClient: &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With("component", "sse")
	return t
}

// Endpoint returns the SSE endpoint URL.
func (t *Transport) Endpoint() string {
	return t.endpoint
}

// CloseIdleConnections releases pooled connections.
func (t *Transport) CloseIdleConnections() {
	t.httpClient.CloseIdleConnections()
}

// Stream issues the request and delivers envelopes to handle until the
// server closes the stream (nil), the stream fails (*TransportError), handle
// returns an error, or ctx is cancelled (ctx.Err()). handle is never called
// once ctx is done.
func (t *Transport) Stream(ctx context.Context, req protocol.Request, handle Handler) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")
	if t.apiKey != "" {
		httpReq.Header.Set("X-API-KEY", t.apiKey)
	}
	for key, values := range t.headers {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &TransportError{Err: err}
	}
	defer resp.Body.Close()

	// Reject before touching the body
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		t.logger.Debug("stream rejected",
			"endpoint", t.endpoint,
			"status", resp.StatusCode,
			"action", req.Action)
		return &TransportError{StatusCode: resp.StatusCode}
	}

	t.logger.Debug("stream opened",
		"endpoint", t.endpoint,
		"action", req.Action,
		"channel_id", req.ChannelID)

	reader := NewReader(resp.Body)
	for {
		frame, err := reader.Next()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, io.EOF) {
			t.logger.Debug("stream closed by server", "channel_id", req.ChannelID)
			return nil
		}
		if err != nil {
			return &TransportError{Err: err}
		}

		// Keep-alive frames carry no payload
		if strings.TrimSpace(frame.Data) == "" {
			continue
		}

		env, err := protocol.Decode([]byte(frame.Data))
		if err != nil {
			t.logger.Warn("dropping stream on malformed frame",
				"error", err,
				"event", frame.Event)
			return &TransportError{Err: err}
		}

		if env.EventType == protocol.EventMessageComplete {
			msg := env.Message()
			if err := msg.Template.Validate(); err != nil {
				t.logger.Warn("invalid template, rendering as text",
					"error", err,
					"message_id", msg.MessageID)
				msg.Template = msg.Template.AsText()
			}
		}

		if err := handle(env); err != nil {
			return err
		}
	}
}
