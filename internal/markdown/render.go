// ABOUTME: Block renderer turning raw markdown tokens into sanitized HTML
// ABOUTME: Uses goldmark with GFM for markdown and an escaped div for display math

package markdown

import (
	"bytes"
	"fmt"
	"html"
	"log/slog"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var classPattern = regexp.MustCompile(`^(math( math-(display|inline))?|language-[\w+#-]+)$`)

// newPolicy returns the UGC policy extended with the classes the renderer
// emits for math and highlighted code. List items are rendered one per
// block, so an ordered item keeps its number through "start".
func newPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").Matching(classPattern).OnElements("div", "span", "code", "pre")
	p.AllowAttrs("start").Matching(bluemonday.Integer).OnElements("ol")
	return p
}

type renderer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
	logger *slog.Logger
}

func newRenderer(logger *slog.Logger) *renderer {
	return &renderer{
		md:     goldmark.New(goldmark.WithExtensions(extension.GFM)),
		policy: newPolicy(),
		logger: logger,
	}
}

// render converts one token to sanitized HTML. It never panics; a failure
// degrades to the escaped raw text.
func (r *renderer) render(t token) (out string) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Warn("markdown render panicked, falling back to raw text",
				"kind", t.kind.String(), "panic", fmt.Sprint(p))
			out = fallbackHTML(t.raw)
		}
	}()

	if t.kind == KindMath {
		return r.policy.Sanitize(mathHTML(t.raw))
	}

	var buf bytes.Buffer
	if err := r.md.Convert([]byte(t.raw), &buf); err != nil {
		r.logger.Warn("markdown render failed, falling back to raw text",
			"kind", t.kind.String(), "error", err)
		return fallbackHTML(t.raw)
	}
	return r.policy.Sanitize(buf.String())
}

// mathHTML wraps the TeX source of a display math block for client-side
// typesetting.
func mathHTML(raw string) string {
	tex := strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(tex, "$$"):
		tex = strings.TrimSuffix(strings.TrimPrefix(tex, "$$"), "$$")
	case strings.HasPrefix(tex, `\[`):
		tex = strings.TrimSuffix(strings.TrimPrefix(tex, `\[`), `\]`)
	}
	return `<div class="math math-display">` + html.EscapeString(strings.TrimSpace(tex)) + "</div>"
}

func fallbackHTML(raw string) string {
	return "<p>" + html.EscapeString(strings.TrimSpace(raw)) + "</p>"
}
