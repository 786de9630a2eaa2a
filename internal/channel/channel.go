// ABOUTME: Channel orchestrator owning a client and the live conversation state
// ABOUTME: Serializes reducer transitions, publishes State, archives entries, and guards resets

package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/2389/streamchat/internal/broadcast"
	"github.com/2389/streamchat/internal/client"
	"github.com/2389/streamchat/internal/config"
	"github.com/2389/streamchat/internal/conversation"
	"github.com/2389/streamchat/internal/dedupe"
	"github.com/2389/streamchat/internal/protocol"
)

var (
	// ErrEmptyMessage is returned when the trimmed message text is empty.
	ErrEmptyMessage = errors.New("message text is empty")

	// ErrClosed is returned by every call after Close.
	ErrClosed = errors.New("channel closed")
)

// archiveTimeout bounds one archive write.
const archiveTimeout = 5 * time.Second

// State is published to observers on every accepted change.
type State struct {
	IsConnecting bool
	Conversation *conversation.Conversation
}

// Archive persists transcript entries. *store.SQLiteStore implements it.
type Archive interface {
	SaveEntry(ctx context.Context, channelID string, e conversation.Entry) error
}

// Option configures Open.
type Option func(*options)

type options struct {
	observers  []func(State)
	seed       *conversation.Conversation
	archive    Archive
	logger     *slog.Logger
	httpClient *http.Client
	now        func() time.Time
}

// WithObserver subscribes fn before the initial reset, so it sees every
// State from the start.
func WithObserver(fn func(State)) Option {
	return func(o *options) { o.observers = append(o.observers, fn) }
}

// WithConversation pre-seeds the local conversation.
func WithConversation(conv *conversation.Conversation) Option {
	return func(o *options) { o.seed = conv }
}

// WithArchive persists user messages, completed bot messages and error
// entries.
func WithArchive(a Archive) Option {
	return func(o *options) { o.archive = a }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithHTTPClient overrides the HTTP client of the underlying service client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithClock replaces time.Now for entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Channel is a handle to one open conversation. It is safe for concurrent
// use. Observers run synchronously on the goroutine that caused the change
// and must not call SendMessage or Reset from inside the callback.
type Channel struct {
	id      string
	client  *client.Client
	logger  *slog.Logger
	reduce  conversation.Options
	now     func() time.Time
	sent    *dedupe.Sent
	archive Archive

	resets    singleflight.Group
	states    *broadcast.Broadcaster[State]
	clientSub *broadcast.Subscription

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// restarts holds replies of a retried call whose typing text is cleared
	// when the next attempt streams them again.
	restartMu sync.Mutex
	restarts  map[string]bool

	// pubMu orders transitions with their publication; mu guards the fields below.
	pubMu    sync.Mutex
	mu       sync.Mutex
	state    State
	closed   bool
	metadata *client.Metadata
}

// Open builds a Channel for cfg, issues the channel reset and blocks until
// it completes. If the reset fails the Channel is closed and the error is
// returned.
func Open(ctx context.Context, cfg config.Config, opts ...Option) (*Channel, error) {
	o := options{logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	copts := []client.Option{client.WithLogger(o.logger)}
	if o.httpClient != nil {
		copts = append(copts, client.WithHTTPClient(o.httpClient))
	}
	cl, err := client.New(cfg.Client, copts...)
	if err != nil {
		return nil, err
	}

	conv := o.seed
	if conv == nil {
		conv = conversation.Empty()
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	c := &Channel{
		id:     cfg.Channel.ID,
		client: cl,
		logger: o.logger.With("component", "channel", "channel_id", cfg.Channel.ID),
		reduce: conversation.Options{
			ShowDebugMessage: cfg.Channel.ShowDebugMessage,
			Now:              o.now,
		},
		now:      o.now,
		sent:     dedupe.New(dedupe.DefaultTTL, dedupe.DefaultMaxSize),
		archive:  o.archive,
		restarts: make(map[string]bool),
		states:   broadcast.New[State](o.logger),
		ctx:      loopCtx,
		cancel:   cancel,
		state:    State{Conversation: conv},
	}
	for _, fn := range o.observers {
		c.states.Subscribe(fn)
	}
	c.clientSub = cl.Subscribe(c.onClientEvent)

	if cfg.Client.MetadataURL() != "" {
		c.wg.Add(1)
		go c.loadMetadata()
	}

	if err := c.reset(ctx, false); err != nil {
		c.logger.Error("initial reset failed, closing channel", "error", err)
		_ = c.Close()
		return nil, fmt.Errorf("opening channel %s: %w", cfg.Channel.ID, err)
	}

	c.logger.Info("channel opened", "endpoint", cl.Endpoint())
	return c, nil
}

// ID returns the channel id.
func (c *Channel) ID() string {
	return c.id
}

// State returns the current state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registers fn for every subsequent State.
func (c *Channel) Subscribe(fn func(State)) *broadcast.Subscription {
	return c.states.Subscribe(fn)
}

// Metadata returns the bot provider metadata, or nil while it is loading
// or when it could not be fetched.
func (c *Channel) Metadata() *client.Metadata {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metadata
}

// SendMessage sends text under a new message id.
func (c *Channel) SendMessage(ctx context.Context, text string) error {
	return c.SendMessageWithID(ctx, text, "")
}

// SendMessageWithID sends text under messageID, generating one when empty.
// The user message is added to the conversation before the network call
// and stays there if the call fails; a failure after exhausted retries
// also appends an error entry. Repeating a recently sent id is a no-op.
//
// A retried call streams its replies again from the start, so their typing
// text is cleared when they reappear. Replies still typing when the call succeeds or
// fails are marked Interrupted; a cancelled call leaves them as they are.
func (c *Channel) SendMessageWithID(ctx context.Context, text, messageID string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	if c.isClosed() {
		return ErrClosed
	}
	if messageID == "" {
		messageID = uuid.NewString()
	}

	if !c.sent.Claim(c.id, messageID) {
		c.logger.Debug("duplicate send ignored", "message_id", messageID)
		return nil
	}

	at := c.now()
	var user conversation.Entry
	c.update(func(s State) State {
		s.Conversation = conversation.PushMessage(s.Conversation, messageID, text, at)
		user, _ = s.Conversation.Get(messageID)
		return s
	})
	c.save(user)

	// Bot messages streamed by this call, in first-seen order.
	var replies []string
	seen := make(map[string]bool)
	err := c.client.SendMessage(ctx, c.id, text, messageID, client.Callbacks{
		OnEnvelope: func(env protocol.Envelope) {
			if msg := env.Message(); msg != nil && !seen[msg.MessageID] {
				seen[msg.MessageID] = true
				replies = append(replies, msg.MessageID)
			}
		},
		OnRetry: func(int) {
			c.restartMu.Lock()
			for _, id := range replies {
				c.restarts[id] = true
			}
			c.restartMu.Unlock()
		},
	})
	if err == nil {
		c.interrupt(replies)
		return nil
	}

	c.sent.Release(c.id, messageID)
	if errors.Is(err, client.ErrClosed) {
		return ErrClosed
	}
	if !errors.Is(err, client.ErrChannel) {
		return err
	}
	c.interrupt(replies)

	failure := conversation.ErrorMessage{
		MessageID:        "error:" + messageID,
		RequestMessageID: messageID,
		RequestText:      text,
		Err:              err.Error(),
		Time:             c.now(),
	}
	var entry conversation.Entry
	c.update(func(s State) State {
		s.Conversation = conversation.AppendError(s.Conversation, failure)
		entry, _ = s.Conversation.Get(failure.MessageID)
		return s
	})
	c.save(entry)
	return err
}

// interrupt ends the replies that are still typing once their call is over.
func (c *Channel) interrupt(replies []string) {
	c.restartMu.Lock()
	for _, id := range replies {
		delete(c.restarts, id)
	}
	c.restartMu.Unlock()

	c.update(func(s State) State {
		for _, id := range replies {
			next := conversation.InterruptTyping(s.Conversation, id)
			if next != s.Conversation {
				c.logger.Warn("reply ended without completion", "message_id", id)
			}
			s.Conversation = next
		}
		return s
	})
}

// Reset resets the server-side channel and, on success, replaces the local
// conversation with an empty one. Concurrent calls share one reset. A reset
// that fails after retries closes the channel.
func (c *Channel) Reset(ctx context.Context) error {
	err := c.reset(ctx, true)
	if errors.Is(err, client.ErrChannel) {
		c.logger.Error("reset failed, closing channel", "error", err)
		_ = c.Close()
	}
	return err
}

func (c *Channel) reset(ctx context.Context, clearLocal bool) error {
	if c.isClosed() {
		return ErrClosed
	}

	_, err, shared := c.resets.Do("reset", func() (any, error) {
		if err := c.client.SetChannel(ctx, c.id, uuid.NewString(), client.Callbacks{}); err != nil {
			return nil, err
		}
		if clearLocal {
			c.update(func(s State) State {
				s.Conversation = conversation.Empty()
				return s
			})
		}
		return nil, nil
	})
	if shared {
		c.logger.Debug("joined in-flight reset")
	}
	if errors.Is(err, client.ErrClosed) {
		return ErrClosed
	}
	return err
}

// Close cancels every in-flight call and stops publishing. Later calls,
// including Close, return ErrClosed.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.clientSub.Unsubscribe()
	_ = c.client.Close()
	c.states.Close()
	c.sent.Close()
	c.wg.Wait()

	c.logger.Info("channel closed")
	return nil
}

func (c *Channel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// update applies fn to the state and publishes the result if it changed.
// It does nothing once the channel is closed.
func (c *Channel) update(fn func(State) State) {
	c.pubMu.Lock()
	defer c.pubMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	prev := c.state
	next := fn(prev)
	c.state = next
	c.mu.Unlock()

	if next.Conversation != prev.Conversation || next.IsConnecting != prev.IsConnecting {
		c.states.Publish(next)
	}
}

func (c *Channel) onClientEvent(e client.Event) {
	switch e.Kind {
	case client.EventConnecting:
		c.update(func(s State) State {
			s.IsConnecting = e.IsConnecting
			return s
		})

	case client.EventEnvelope:
		if e.Envelope.EventType == protocol.EventError && e.Envelope.Fact.Error != nil {
			c.logger.Warn("backend reported error",
				"code", e.Envelope.Fact.Error.Code,
				"message", e.Envelope.Fact.Error.Message)
		}

		restart := c.takeRestart(e.Envelope)

		var completed conversation.Entry
		c.update(func(s State) State {
			conv := s.Conversation
			if restart != "" {
				conv = conversation.RestartTyping(conv, restart)
			}
			next := conversation.Apply(conv, e.Envelope, c.reduce)
			if next != conv && e.Envelope.EventType == protocol.EventMessageComplete {
				completed, _ = next.Get(e.Envelope.Message().MessageID)
			}
			s.Conversation = next
			return s
		})
		c.save(completed)
	}
}

// takeRestart returns the id of the message env carries if that message
// must restart typing, and clears the mark.
func (c *Channel) takeRestart(env protocol.Envelope) string {
	msg := env.Message()
	if msg == nil {
		return ""
	}
	c.restartMu.Lock()
	defer c.restartMu.Unlock()
	if !c.restarts[msg.MessageID] {
		return ""
	}
	delete(c.restarts, msg.MessageID)
	return msg.MessageID
}

// save archives e if an archive is configured.
func (c *Channel) save(e conversation.Entry) {
	if c.archive == nil || e == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()
	if err := c.archive.SaveEntry(ctx, c.id, e); err != nil {
		c.logger.Warn("failed to archive entry", "message_id", e.ID(), "error", err)
	}
}

func (c *Channel) loadMetadata() {
	defer c.wg.Done()

	md, err := c.client.FetchMetadata(c.ctx)
	if err != nil {
		if c.ctx.Err() == nil {
			c.logger.Warn("failed to fetch bot metadata, using defaults", "error", err)
		}
		return
	}

	c.mu.Lock()
	c.metadata = md
	c.mu.Unlock()
	c.logger.Debug("bot metadata loaded", "name", md.Name)
}
