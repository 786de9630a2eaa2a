// ABOUTME: Tests for the service client against scripted SSE backends
// ABOUTME: Covers retries, pacing, cancellation, Close, and connecting events

package client

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/2389/streamchat/internal/config"
	"github.com/2389/streamchat/internal/protocol"
	"github.com/2389/streamchat/internal/sse"
	"github.com/2389/streamchat/internal/sse/ssetest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}

func testConfig(url string) config.ClientConfig {
	return config.ClientConfig{
		APIKey:              "key-1",
		BotProviderEndpoint: url,
		RetryBackoff:        time.Millisecond,
		EnvelopeDelay:       -1, // no pacing
	}
}

func newTestClient(t *testing.T, cfg config.ClientConfig) *Client {
	t.Helper()
	c, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func replyScript() ssetest.Script {
	return ssetest.Envelopes(
		ssetest.Start("r1", "m1"),
		ssetest.Delta("r1", "m1", "死侍"),
		ssetest.Delta("r1", "m1", "已上映"),
		ssetest.Complete("r1", protocol.Message{MessageID: "m1", Text: "死侍已上映"}),
		ssetest.Done("r1"),
	)
}

func TestNew_RequiresEndpoint(t *testing.T) {
	_, err := New(config.ClientConfig{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrConfiguration))

	var cfgErr *config.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "client.bot_provider_endpoint", cfgErr.Field)
}

func TestNew_ResolvesEndpoint(t *testing.T) {
	c := newTestClient(t, config.ClientConfig{BotProviderEndpoint: "https://bots.example.com/"})
	assert.Equal(t, "https://bots.example.com/message/sse", c.Endpoint())

	explicit := newTestClient(t, config.ClientConfig{
		Endpoint:            "https://legacy.example.com/sse",
		BotProviderEndpoint: "https://bots.example.com",
	})
	assert.Equal(t, "https://legacy.example.com/sse", explicit.Endpoint())
}

func TestSendMessage_DeliversEnvelopesInOrder(t *testing.T) {
	srv := ssetest.NewServer(t, replyScript())
	c := newTestClient(t, testConfig(srv.URL))

	var got []protocol.EventType
	completed := 0
	err := c.SendMessage(t.Context(), "channel-1", "死侍有上映嗎?", "u1", Callbacks{
		OnEnvelope: func(env protocol.Envelope) { got = append(got, env.EventType) },
		OnError:    func(err error) { t.Errorf("unexpected OnError: %v", err) },
		OnComplete: func() { completed++ },
	})
	require.NoError(t, err)

	assert.Equal(t, []protocol.EventType{
		protocol.EventMessageStart,
		protocol.EventMessageDelta,
		protocol.EventMessageDelta,
		protocol.EventMessageComplete,
		protocol.EventDone,
	}, got)
	assert.Equal(t, 1, completed)

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, protocol.Request{
		Action:    protocol.ActionNone,
		ChannelID: "channel-1",
		MessageID: "u1",
		Text:      "死侍有上映嗎?",
	}, reqs[0].Request)
	assert.Equal(t, "key-1", reqs[0].Header.Get("X-API-KEY"))
}

func TestSetChannel_IssuesReset(t *testing.T) {
	srv := ssetest.NewServer(t, ssetest.Envelopes(ssetest.Init("r0", "channel-1"), ssetest.Done("r0")))
	c := newTestClient(t, testConfig(srv.URL))

	require.NoError(t, c.SetChannel(t.Context(), "channel-1", "init-1", Callbacks{}))

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, protocol.ActionResetChannel, reqs[0].Request.Action)
	assert.Equal(t, "channel-1", reqs[0].Request.ChannelID)
	assert.Equal(t, "init-1", reqs[0].Request.MessageID)
	assert.Empty(t, reqs[0].Request.Text)
}

func TestCall_RetriesTransportErrors(t *testing.T) {
	reply := replyScript()
	srv := ssetest.NewServer(t, func(attempt int, req protocol.Request, s *ssetest.Stream) {
		if attempt < 3 {
			s.Fail(http.StatusBadGateway)
			return
		}
		reply(attempt, req, s)
	})
	c := newTestClient(t, testConfig(srv.URL))

	var errs []error
	var retries []int
	err := c.SendMessage(t.Context(), "channel-1", "hi", "u1", Callbacks{
		OnError: func(err error) { errs = append(errs, err) },
		OnRetry: func(attempt int) { retries = append(retries, attempt) },
	})
	require.NoError(t, err)
	assert.Empty(t, errs)
	assert.Equal(t, []int{2, 3}, retries)
	assert.Len(t, srv.Requests(), 3)
}

func TestCall_ExhaustedRetriesReturnChannelError(t *testing.T) {
	srv := ssetest.NewServer(t, ssetest.Fail(http.StatusBadGateway))
	c := newTestClient(t, testConfig(srv.URL))

	var errs []error
	completed := false
	err := c.SendMessage(t.Context(), "channel-1", "hi", "u1", Callbacks{
		OnError:    func(err error) { errs = append(errs, err) },
		OnComplete: func() { completed = true },
	})
	require.Error(t, err)

	assert.True(t, errors.Is(err, ErrChannel))
	assert.True(t, errors.Is(err, sse.ErrTransport))

	var chErr *ChannelError
	require.True(t, errors.As(err, &chErr))
	assert.Equal(t, 3, chErr.Attempts)
	assert.Equal(t, "channel-1", chErr.ChannelID)

	var trErr *sse.TransportError
	require.True(t, errors.As(err, &trErr))
	assert.Equal(t, http.StatusBadGateway, trErr.StatusCode)

	require.Len(t, errs, 1)
	assert.Same(t, chErr, errs[0])
	assert.False(t, completed)
	assert.Len(t, srv.Requests(), config.DefaultMaxAttempts)
}

func TestCall_MaxAttemptsConfigurable(t *testing.T) {
	srv := ssetest.NewServer(t, ssetest.Fail(http.StatusServiceUnavailable))
	cfg := testConfig(srv.URL)
	cfg.MaxAttempts = 1
	c := newTestClient(t, cfg)

	err := c.SetChannel(t.Context(), "channel-1", "", Callbacks{})
	require.Error(t, err)
	assert.Len(t, srv.Requests(), 1)
}

func TestCall_MalformedFrameIsRetriedThenFails(t *testing.T) {
	srv := ssetest.NewServer(t, func(_ int, _ protocol.Request, s *ssetest.Stream) {
		_ = s.WriteRaw("MESSAGE_START", `{"eventType":"MESSAGE_START","fact":{}}`)
	})
	c := newTestClient(t, testConfig(srv.URL))

	err := c.SendMessage(t.Context(), "channel-1", "hi", "", Callbacks{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrChannel))
	assert.True(t, errors.Is(err, protocol.ErrProtocol))
	assert.Len(t, srv.Requests(), 3)
}

func TestCall_CancellationIsNotRetried(t *testing.T) {
	srv := ssetest.NewServer(t, func(_ int, _ protocol.Request, s *ssetest.Stream) {
		_ = s.WriteEnvelope(ssetest.Start("r1", "m1"))
		<-s.Context().Done()
	})
	c := newTestClient(t, testConfig(srv.URL))

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	var errs []error
	err := c.SendMessage(ctx, "channel-1", "hi", "u1", Callbacks{
		OnEnvelope: func(protocol.Envelope) { cancel() },
		OnError:    func(err error) { errs = append(errs, err) },
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, errs)
	assert.Len(t, srv.Requests(), 1)
}

func TestClose_CancelsInFlightCalls(t *testing.T) {
	srv := ssetest.NewServer(t, func(_ int, _ protocol.Request, s *ssetest.Stream) {
		_ = s.WriteEnvelope(ssetest.Start("r1", "m1"))
		<-s.Context().Done()
	})
	c, err := New(testConfig(srv.URL))
	require.NoError(t, err)

	started := make(chan struct{})
	var once sync.Once
	result := make(chan error, 1)
	go func() {
		result <- c.SendMessage(context.Background(), "channel-1", "hi", "u1", Callbacks{
			OnEnvelope: func(protocol.Envelope) { once.Do(func() { close(started) }) },
		})
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("stream never started")
	}

	require.NoError(t, c.Close())

	select {
	case err := <-result:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("in-flight call not cancelled by Close")
	}

	assert.ErrorIs(t, c.Close(), ErrClosed)
	assert.ErrorIs(t, c.SendMessage(context.Background(), "channel-1", "again", "", Callbacks{}), ErrClosed)
	assert.False(t, c.IsConnecting())
}

func TestClose_CancelsBackoff(t *testing.T) {
	srv := ssetest.NewServer(t, ssetest.Fail(http.StatusBadGateway))
	cfg := testConfig(srv.URL)
	cfg.RetryBackoff = time.Minute
	c, err := New(cfg)
	require.NoError(t, err)

	result := make(chan error, 1)
	go func() {
		result <- c.SendMessage(context.Background(), "channel-1", "hi", "", Callbacks{})
	}()

	require.Eventually(t, func() bool { return len(srv.Requests()) == 1 }, 5*time.Second, 5*time.Millisecond)
	require.NoError(t, c.Close())

	select {
	case err := <-result:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("backoff not cancelled by Close")
	}
	assert.Len(t, srv.Requests(), 1)
}

func TestSendMessage_PacesEnvelopes(t *testing.T) {
	srv := ssetest.NewServer(t, replyScript())
	cfg := testConfig(srv.URL)
	cfg.EnvelopeDelay = 40 * time.Millisecond
	c := newTestClient(t, cfg)

	var got []protocol.EventType
	start := time.Now()
	err := c.SendMessage(t.Context(), "channel-1", "hi", "u1", Callbacks{
		OnEnvelope: func(env protocol.Envelope) { got = append(got, env.EventType) },
	})
	require.NoError(t, err)

	// Five envelopes, the first released immediately
	assert.GreaterOrEqual(t, time.Since(start), 4*40*time.Millisecond-10*time.Millisecond)
	assert.Equal(t, protocol.EventMessageStart, got[0])
	assert.Equal(t, protocol.EventDone, got[len(got)-1])
}

func TestSubscribe_PublishesEnvelopesAndConnectingState(t *testing.T) {
	srv := ssetest.NewServer(t, replyScript())
	c := newTestClient(t, testConfig(srv.URL))

	var events []Event
	c.Subscribe(func(e Event) { events = append(events, e) })

	err := c.SendMessage(t.Context(), "channel-1", "hi", "u1", Callbacks{
		OnEnvelope: func(protocol.Envelope) {
			assert.True(t, c.IsConnecting())
		},
	})
	require.NoError(t, err)
	assert.False(t, c.IsConnecting())

	require.Len(t, events, 7)
	assert.Equal(t, Event{Kind: EventConnecting, IsConnecting: true}, events[0])
	for _, e := range events[1:6] {
		assert.Equal(t, EventEnvelope, e.Kind)
	}
	assert.Equal(t, protocol.EventMessageStart, events[1].Envelope.EventType)
	assert.Equal(t, Event{Kind: EventConnecting, IsConnecting: false}, events[6])
}

func TestSubscribe_ConnectingFalseAfterFailure(t *testing.T) {
	srv := ssetest.NewServer(t, ssetest.Fail(http.StatusInternalServerError))
	c := newTestClient(t, testConfig(srv.URL))

	var states []bool
	c.Subscribe(func(e Event) {
		if e.Kind == EventConnecting {
			states = append(states, e.IsConnecting)
		}
	})

	require.Error(t, c.SendMessage(t.Context(), "channel-1", "hi", "", Callbacks{}))
	assert.Equal(t, []bool{true, false}, states)
}

func TestBackoff(t *testing.T) {
	c := &Client{cfg: config.ClientConfig{RetryBackoff: 200 * time.Millisecond}}

	assert.Equal(t, 200*time.Millisecond, c.backoff(1))
	assert.Equal(t, 400*time.Millisecond, c.backoff(2))
	assert.Equal(t, 800*time.Millisecond, c.backoff(3))
	assert.Equal(t, 1600*time.Millisecond, c.backoff(4))
	assert.Equal(t, maxBackoff, c.backoff(5))
	assert.Equal(t, maxBackoff, c.backoff(80))
}

func TestChannelError_Message(t *testing.T) {
	err := &ChannelError{ChannelID: "c1", Action: protocol.ActionResetChannel, Attempts: 3, Err: errors.New("boom")}
	assert.Equal(t, "channel c1: RESET_CHANNEL failed after 3 attempt(s): boom", err.Error())

	send := &ChannelError{ChannelID: "c1", Action: protocol.ActionNone, Attempts: 1, Err: errors.New("boom")}
	assert.Contains(t, send.Error(), "send failed")
}
