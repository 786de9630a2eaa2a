// ABOUTME: Service client issuing reset and send calls over single-shot SSE streams
// ABOUTME: Adds retry with backoff, envelope pacing, shared cancellation, and connecting state

package client

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/2389/streamchat/internal/broadcast"
	"github.com/2389/streamchat/internal/config"
	"github.com/2389/streamchat/internal/protocol"
	"github.com/2389/streamchat/internal/sse"
)

// maxBackoff caps the wait between attempts.
const maxBackoff = 2 * time.Second

// Callbacks report the lifecycle of one call. Any field may be nil.
type Callbacks struct {
	// OnEnvelope receives each envelope in arrival order.
	OnEnvelope func(protocol.Envelope)
	// OnError receives the terminal *ChannelError.
	OnError func(error)
	// OnComplete is called once the stream ended normally.
	OnComplete func()
	// OnRetry is called before each attempt after the first, with its
	// 1-based number.
	OnRetry func(attempt int)
}

// EventKind distinguishes the events published to subscribers.
type EventKind int

const (
	EventEnvelope EventKind = iota
	EventConnecting
)

// Event is published to subscribers for every envelope and for every
// change of the connecting state.
type Event struct {
	Kind         EventKind
	Envelope     protocol.Envelope // set for EventEnvelope
	IsConnecting bool              // set for EventConnecting
}

// Client talks to one SSE backend. It is safe for concurrent use.
type Client struct {
	cfg        config.ClientConfig
	transport  *sse.Transport
	httpClient *http.Client
	headers    http.Header
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	events *broadcast.Broadcaster[Event]

	mu       sync.Mutex
	inFlight int
	closed   bool
}

// Option configures a Client.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	httpClient *http.Client
	headers    http.Header
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithHTTPClient overrides the HTTP client used for streams and metadata.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) Option {
	return func(o *options) { o.headers.Add(key, value) }
}

// New creates a Client. It returns a *config.ConfigurationError when no
// SSE endpoint can be resolved from cfg.
func New(cfg config.ClientConfig, opts ...Option) (*Client, error) {
	o := options{logger: slog.Default(), headers: make(http.Header)}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	logger := o.logger.With("component", "client")

	cfg.ApplyDefaults()
	endpoint, err := cfg.ResolveEndpoint(logger)
	if err != nil {
		return nil, err
	}

	topts := []sse.Option{sse.WithAPIKey(cfg.APIKey), sse.WithLogger(o.logger)}
	for key, values := range o.headers {
		for _, v := range values {
			topts = append(topts, sse.WithHeader(key, v))
		}
	}
	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()}
	}
	topts = append(topts, sse.WithHTTPClient(httpClient))

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		cfg:        cfg,
		transport:  sse.NewTransport(endpoint, topts...),
		httpClient: httpClient,
		headers:    o.headers,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		events:     broadcast.New[Event](o.logger),
	}, nil
}

// Endpoint returns the resolved SSE endpoint.
func (c *Client) Endpoint() string {
	return c.transport.Endpoint()
}

// SetChannel resets the server-side context of channelID. It blocks until
// the stream ends.
func (c *Client) SetChannel(ctx context.Context, channelID, initialMessageID string, cb Callbacks) error {
	req := protocol.Request{
		Action:    protocol.ActionResetChannel,
		ChannelID: channelID,
		MessageID: initialMessageID,
	}
	return c.call(ctx, req, false, cb)
}

// SendMessage posts text to channelID and streams the reply through cb. An
// empty messageID lets the server assign one. It blocks until the stream
// ends.
func (c *Client) SendMessage(ctx context.Context, channelID, text, messageID string, cb Callbacks) error {
	req := protocol.Request{
		Action:    protocol.ActionNone,
		ChannelID: channelID,
		MessageID: messageID,
		Text:      text,
	}
	return c.call(ctx, req, true, cb)
}

// IsConnecting reports whether any call is in flight.
func (c *Client) IsConnecting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight > 0
}

// Subscribe registers fn for every subsequent Event.
func (c *Client) Subscribe(fn func(Event)) *broadcast.Subscription {
	return c.events.Subscribe(fn)
}

// Close cancels every outstanding call and releases idle connections.
// Calls after Close return ErrClosed, and so does a second Close.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.events.Close()
	c.transport.CloseIdleConnections()
	c.logger.Debug("client closed")
	return nil
}

func (c *Client) call(ctx context.Context, req protocol.Request, paced bool, cb Callbacks) error {
	if !c.begin() {
		return ErrClosed
	}
	defer c.end()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.ctx, cancel)
	defer stop()

	var limiter *rate.Limiter
	if paced && c.cfg.EnvelopeDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(c.cfg.EnvelopeDelay), 1)
	}

	handle := func(env protocol.Envelope) error {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		c.events.Publish(Event{Kind: EventEnvelope, Envelope: env})
		if cb.OnEnvelope != nil {
			cb.OnEnvelope(env)
		}
		return nil
	}

	var lastErr error
	attempts := 0
	for attempts < c.cfg.MaxAttempts {
		attempts++
		err := c.transport.Stream(ctx, req, handle)
		if err == nil {
			if cb.OnComplete != nil {
				cb.OnComplete()
			}
			return nil
		}
		if ctx.Err() != nil {
			return c.cancelled(ctx)
		}

		lastErr = err
		if !errors.Is(err, sse.ErrTransport) {
			break
		}

		c.logger.Warn("stream attempt failed",
			"channel_id", req.ChannelID,
			"action", actionName(req.Action),
			"attempt", attempts,
			"max_attempts", c.cfg.MaxAttempts,
			"error", err)

		if attempts < c.cfg.MaxAttempts {
			if err := sleep(ctx, c.backoff(attempts)); err != nil {
				return c.cancelled(ctx)
			}
			if cb.OnRetry != nil {
				cb.OnRetry(attempts + 1)
			}
		}
	}

	chErr := &ChannelError{
		ChannelID: req.ChannelID,
		Action:    req.Action,
		Attempts:  attempts,
		Err:       lastErr,
	}
	c.logger.Error("call failed", "channel_id", req.ChannelID, "error", chErr)
	if cb.OnError != nil {
		cb.OnError(chErr)
	}
	return chErr
}

// cancelled maps a done call context to the error returned to the caller.
func (c *Client) cancelled(ctx context.Context) error {
	if c.ctx.Err() != nil {
		return ErrClosed
	}
	return ctx.Err()
}

// backoff returns the wait after the given failed attempt.
func (c *Client) backoff(attempt int) time.Duration {
	d := c.cfg.RetryBackoff << (attempt - 1)
	if d <= 0 || d > maxBackoff {
		return maxBackoff
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Client) begin() bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.inFlight++
	changed := c.inFlight == 1
	c.mu.Unlock()

	if changed {
		c.events.Publish(Event{Kind: EventConnecting, IsConnecting: true})
	}
	return true
}

func (c *Client) end() {
	c.mu.Lock()
	c.inFlight--
	changed := c.inFlight == 0
	c.mu.Unlock()

	if changed {
		c.events.Publish(Event{Kind: EventConnecting, IsConnecting: false})
	}
}
