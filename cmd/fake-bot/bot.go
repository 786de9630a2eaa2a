// ABOUTME: HTTP handlers of the fake SSE backend
// ABOUTME: Streams echo replies as MESSAGE_START, word deltas, COMPLETE and DONE

package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/2389/streamchat/internal/client"
	"github.com/2389/streamchat/internal/protocol"
	"github.com/2389/streamchat/internal/sse"
)

type botConfig struct {
	Name  string
	Delay time.Duration
	// FailFirst rejects that many streaming requests with 503 before serving.
	FailFirst int
}

type bot struct {
	cfg    botConfig
	logger *slog.Logger
	calls  atomic.Int64
}

func newBot(cfg botConfig, logger *slog.Logger) *bot {
	if cfg.Name == "" {
		cfg.Name = "fake-bot"
	}
	return &bot{cfg: cfg, logger: logger.With("component", "fake-bot")}
}

func (b *bot) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /message/sse", b.handleSSE)
	mux.HandleFunc("GET /metadata", b.handleMetadata)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func (b *bot) handleMetadata(w http.ResponseWriter, _ *http.Request) {
	widget, _ := json.Marshal(map[string]any{
		"title":       b.cfg.Name,
		"placeholder": "Ask me anything",
		"theme":       map[string]string{"primaryColor": "#3b82f6"},
	})
	md := client.Metadata{
		Name: b.cfg.Name,
		Annotations: map[string]string{
			client.WidgetConfigAnnotation: string(widget),
			"description":                 "Echoes messages back with markdown",
		},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(md)
}

func (b *bot) handleSSE(w http.ResponseWriter, r *http.Request) {
	n := b.calls.Add(1)
	if n <= int64(b.cfg.FailFirst) {
		b.logger.Info("rejecting request", "call", n)
		http.Error(w, "warming up", http.StatusServiceUnavailable)
		return
	}

	var req protocol.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ChannelID == "" {
		http.Error(w, "customChannelId is required", http.StatusBadRequest)
		return
	}

	sw, err := sse.NewWriter(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s := &stream{
		w:         sw,
		r:         r,
		delay:     b.cfg.Delay,
		requestID: uuid.NewString(),
		channelID: req.ChannelID,
	}

	b.logger.Info("request", "action", req.Action, "channel_id", req.ChannelID, "message_id", req.MessageID)

	switch req.Action {
	case protocol.ActionResetChannel:
		err = s.reset()
	case protocol.ActionNone, "":
		err = s.reply(req.Text)
	default:
		err = s.fail("UNSUPPORTED_ACTION", fmt.Sprintf("unsupported action %q", req.Action))
	}
	if err != nil {
		b.logger.Debug("stream ended early", "error", err)
	}
}

// stream writes the envelopes of one request.
type stream struct {
	w         *sse.Writer
	r         *http.Request
	delay     time.Duration
	requestID string
	channelID string
}

func (s *stream) send(eventType protocol.EventType, fact protocol.Fact) error {
	return s.w.WriteEnvelope(protocol.Envelope{
		EventType:       eventType,
		RequestID:       s.requestID,
		BotProviderName: "fake-bot",
		ChannelID:       s.channelID,
		Fact:            fact,
	})
}

func (s *stream) pause() error {
	if s.delay <= 0 {
		return s.r.Context().Err()
	}
	t := time.NewTimer(s.delay)
	defer t.Stop()
	select {
	case <-s.r.Context().Done():
		return s.r.Context().Err()
	case <-t.C:
		return nil
	}
}

func (s *stream) reset() error {
	if err := s.send(protocol.EventInit, protocol.Fact{Init: &protocol.InitFact{ChannelID: s.channelID}}); err != nil {
		return err
	}
	return s.done("reset")
}

func (s *stream) done(reason string) error {
	return s.send(protocol.EventDone, protocol.Fact{Done: &protocol.DoneFact{Reason: reason}})
}

func (s *stream) fail(code, message string) error {
	if err := s.send(protocol.EventError, protocol.Fact{Error: &protocol.ErrorFact{Code: code, Message: message}}); err != nil {
		return err
	}
	return s.done("error")
}

func (s *stream) reply(text string) error {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "error") {
		return s.fail("FAKE_ERROR", "you asked for an error")
	}

	if strings.Contains(lower, "debug") {
		debug := protocol.Message{MessageID: uuid.NewString(), Text: "debug: matched intent echo", IsDebug: true}
		if err := s.send(protocol.EventMessageComplete, protocol.Fact{MessageComplete: &protocol.MessageFact{Message: debug}}); err != nil {
			return err
		}
	}

	msg := protocol.Message{MessageID: uuid.NewString(), Text: echoReply(text)}
	if strings.Contains(lower, "button") {
		msg.Template = protocol.Template{
			Type:  protocol.TemplateButton,
			Title: "What next?",
			Buttons: []protocol.Button{
				{Label: "Docs", Action: protocol.Action{Type: "uri", URI: "https://example.com/docs"}},
				{Label: "Again", Action: protocol.Action{Type: "message", Text: text}},
			},
		}
	}
	msg.Template.QuickReplies = []protocol.QuickReply{
		{Label: "Show markdown", Text: "markdown please"},
		{Label: "Buttons", Text: "buttons please"},
	}

	if err := s.send(protocol.EventMessageStart, protocol.Fact{MessageStart: &protocol.MessageFact{
		Message: protocol.Message{MessageID: msg.MessageID},
	}}); err != nil {
		return err
	}

	for i, chunk := range chunks(msg.Text) {
		if err := s.pause(); err != nil {
			return err
		}
		delta := protocol.Message{MessageID: msg.MessageID, Text: chunk, Idx: i}
		if err := s.send(protocol.EventMessageDelta, protocol.Fact{MessageDelta: &protocol.MessageFact{Message: delta}}); err != nil {
			return err
		}
	}

	if err := s.send(protocol.EventMessageComplete, protocol.Fact{MessageComplete: &protocol.MessageFact{Message: msg}}); err != nil {
		return err
	}
	return s.done("")
}

// chunks splits text after each run of spaces or newlines, so the pieces
// concatenate back to text.
func chunks(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] != ' ' && text[i] != '\n' {
			continue
		}
		j := i
		for j+1 < len(text) && (text[j+1] == ' ' || text[j+1] == '\n') {
			j++
		}
		out = append(out, text[start:j+1])
		start = j + 1
		i = j
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

func echoReply(input string) string {
	lower := strings.ToLower(input)
	if strings.Contains(lower, "markdown") || strings.Contains(lower, "table") || strings.Contains(lower, "list") {
		return "Here is a **markdown** response:\n\n" +
			"- First item\n- Second item with `code`\n- Third item\n\n" +
			"| Feature | Status |\n| --- | --- |\n| Streaming | done |\n| Tables | done |\n\n" +
			"```go\nfmt.Println(\"hello\")\n```\n\n" +
			"$$\nE = mc^2\n$$\n\n" +
			"> This is a blockquote.\n"
	}
	return fmt.Sprintf("Echo: **%s**\n\nI received your message and am responding with some *formatted* text.", input)
}
