// ABOUTME: Prints channel state changes to the terminal as a scrolling transcript
// ABOUTME: Streams bot markdown block by block as the segmenter finalizes it

package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"

	"github.com/2389/streamchat/internal/channel"
	"github.com/2389/streamchat/internal/conversation"
	"github.com/2389/streamchat/internal/markdown"
	"github.com/2389/streamchat/internal/protocol"
)

// renderFunc turns one markdown block into terminal output.
type renderFunc func(raw string) string

// glamourRenderer renders blocks with glamour, falling back to the raw text.
func glamourRenderer(width int, logger *slog.Logger) (renderFunc, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, fmt.Errorf("creating markdown renderer: %w", err)
	}
	return func(raw string) string {
		out, err := r.Render(raw)
		if err != nil {
			logger.Debug("terminal render failed", "error", err)
			return raw + "\n"
		}
		return out
	}, nil
}

func plainRenderer(raw string) string {
	return strings.TrimRight(raw, "\n") + "\n"
}

// printer writes every new transcript entry exactly once. Bot messages are
// written incrementally: a block appears once the segmenter settles it.
type printer struct {
	out    io.Writer
	render renderFunc
	seg    markdown.Options
	delay  time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	printed map[string]bool
	streams map[string]*botStream
}

type botStream struct {
	seg    *markdown.Segmenter
	deb    *markdown.Debouncer
	blocks int
	raw    string
	header bool
	done   bool
}

func newPrinter(out io.Writer, render renderFunc, seg markdown.Options, delay time.Duration, logger *slog.Logger) *printer {
	if logger == nil {
		logger = slog.Default()
	}
	return &printer{
		out:     out,
		render:  render,
		seg:     seg,
		delay:   delay,
		logger:  logger,
		printed: make(map[string]bool),
		streams: make(map[string]*botStream),
	}
}

// observe is registered as a channel observer.
func (p *printer) observe(s channel.State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, e := range s.Conversation.Entries() {
		id := e.ID()
		if p.printed[id] {
			continue
		}
		switch e := e.(type) {
		case *conversation.UserMessage:
			// Typed locally, already on screen.
			p.printed[id] = true

		case *conversation.ErrorMessage:
			fmt.Fprintf(p.out, "%s %s\n", color.RedString("[error]"), e.Err)
			p.printed[id] = true

		case *conversation.BotMessage:
			if e.IsTyping {
				st, err := p.stream(id)
				if err != nil {
					p.logger.Warn("cannot stream bot message", "message_id", id, "error", err)
					continue
				}
				st.deb.Update(e.DisplayText())
				continue
			}
			p.complete(id, e.Message)
			if e.Interrupted {
				fmt.Fprintln(p.out, color.HiBlackString("(interrupted)"))
			}
			p.printed[id] = true
		}
	}
}

func (p *printer) stream(id string) (*botStream, error) {
	if st, ok := p.streams[id]; ok {
		return st, nil
	}
	seg, err := markdown.NewSegmenter(p.seg)
	if err != nil {
		return nil, err
	}
	st := &botStream{seg: seg}
	st.deb = markdown.NewDebouncer(seg, p.delay, func(r markdown.Result) {
		p.mu.Lock()
		defer p.mu.Unlock()
		if !st.done {
			p.emit(st, r.Blocks[:r.Settled])
		}
	})
	p.streams[id] = st
	return st, nil
}

// complete prints whatever of msg has not been streamed yet, plus its
// template extras. Text that diverged from what was streamed is reprinted.
func (p *printer) complete(id string, msg protocol.Message) {
	st, ok := p.streams[id]
	if ok {
		st.deb.Stop()
		delete(p.streams, id)
	} else {
		seg, err := markdown.NewSegmenter(p.seg)
		if err != nil {
			p.logger.Warn("cannot render bot message", "message_id", id, "error", err)
			return
		}
		st = &botStream{seg: seg}
	}
	st.done = true

	text := msg.Text
	if text == "" {
		text = msg.Template.Text
	}
	p.emit(st, st.seg.Finalize(text).Blocks)

	extras := describeTemplate(msg.Template)
	if len(extras) > 0 && !st.header {
		p.header(st)
	}
	for _, line := range extras {
		fmt.Fprintln(p.out, color.HiBlackString("  "+line))
	}
	if st.header {
		fmt.Fprintln(p.out)
	}
}

func (p *printer) emit(st *botStream, blocks []*markdown.Block) {
	if len(blocks) < st.blocks || joinRaw(blocks[:st.blocks]) != st.raw {
		fmt.Fprintln(p.out, color.HiBlackString("(revised)"))
		st.blocks, st.raw = 0, ""
	}
	for _, b := range blocks[st.blocks:] {
		if !st.header {
			p.header(st)
		}
		fmt.Fprint(p.out, p.render(b.Raw))
		st.raw += b.Raw
	}
	st.blocks = len(blocks)
}

func (p *printer) header(st *botStream) {
	fmt.Fprintln(p.out, color.New(color.FgCyan, color.Bold).Sprint("bot:"))
	st.header = true
}

// skip marks entries as already on screen.
func (p *printer) skip(entries []conversation.Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range entries {
		p.printed[e.ID()] = true
	}
}

// stop cancels all pending renders.
func (p *printer) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, st := range p.streams {
		st.deb.Stop()
		delete(p.streams, id)
	}
}

func joinRaw(blocks []*markdown.Block) string {
	var b strings.Builder
	for _, blk := range blocks {
		b.WriteString(blk.Raw)
	}
	return b.String()
}

// describeTemplate summarizes the non-text parts of a template.
func describeTemplate(t protocol.Template) []string {
	var lines []string
	switch t.Kind() {
	case protocol.TemplateButton:
		if t.Title != "" {
			lines = append(lines, t.Title)
		}
		for _, b := range t.Buttons {
			lines = append(lines, "["+buttonLabel(b)+"]")
		}
	case protocol.TemplateImage, protocol.TemplateVideo, protocol.TemplateAudio:
		lines = append(lines, fmt.Sprintf("%s %s", strings.ToLower(string(t.Kind())), t.OriginalURL))
	case protocol.TemplateLocation:
		if t.Location != nil {
			lines = append(lines, fmt.Sprintf("location %s (%.5f, %.5f)",
				t.Location.Title, t.Location.Latitude, t.Location.Longitude))
		}
	case protocol.TemplateCarousel:
		for i, col := range t.Columns {
			lines = append(lines, fmt.Sprintf("%d. %s %s", i+1, col.Title, truncate(col.Text, 60)))
			for _, b := range col.Buttons {
				lines = append(lines, "   ["+buttonLabel(b)+"]")
			}
		}
	case protocol.TemplateChart:
		if t.Chart != nil {
			lines = append(lines, "chart "+t.Chart.ChartType)
		}
	}
	for _, q := range t.QuickReplies {
		lines = append(lines, "> "+q.Label)
	}
	return lines
}

func buttonLabel(b protocol.Button) string {
	if b.Action.Type == "uri" && b.Action.URI != "" {
		return b.Label + " " + b.Action.URI
	}
	return b.Label
}

// truncate shortens a string to maxLen runes, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
