// ABOUTME: Tests for the streaming markdown block lexer
// ABOUTME: Covers token kinds, raw text preservation, and finalization rules

package markdown

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kinds(toks []token) []Kind {
	out := make([]Kind, len(toks))
	for i, t := range toks {
		out[i] = t.kind
	}
	return out
}

func TestLex_Kinds(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []Kind
	}{
		{"paragraph", "hello\nworld\n", []Kind{KindParagraph}},
		{"heading then paragraph", "# Title\nbody", []Kind{KindHeading, KindParagraph}},
		{"blank lines collapse", "a\n\n\n\nb", []Kind{KindParagraph, KindBlank, KindParagraph}},
		{"list items", "- one\n- two\n  more\n3. three\n", []Kind{KindListItem, KindListItem, KindListItem}},
		{"rule", "above\n\n---\nbelow", []Kind{KindParagraph, KindBlank, KindRule, KindParagraph}},
		{"spaced rule", "- - -\n", []Kind{KindRule}},
		{"quote", "> quoted\n> more\nafter", []Kind{KindQuote, KindParagraph}},
		{"fenced code", "```go\nx := 1\n\n```\ntext", []Kind{KindCode, KindParagraph}},
		{"tilde fence", "~~~\ncode\n~~~\n", []Kind{KindCode}},
		{"table", "| a | b |\n|---|---|\n| 1 | 2 |\n", []Kind{KindTable}},
		{"math block", "$$\nx^2\n$$\n", []Kind{KindMath}},
		{"single line math", "$$x$$\nafter", []Kind{KindMath, KindParagraph}},
		{"bracket math", "\\[\na+b\n\\]\n", []Kind{KindMath}},
		{"paragraph interrupted by fence", "intro\n```\ncode", []Kind{KindParagraph, KindCode}},
		{"hashtag is not heading", "#tag here", []Kind{KindParagraph}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			toks := lex(tt.text)
			assert.Equal(t, tt.want, kinds(toks))

			var joined strings.Builder
			for _, tok := range toks {
				joined.WriteString(tok.raw)
			}
			assert.Equal(t, tt.text, joined.String(), "tokens must cover the input exactly")
		})
	}
}

func TestLex_CodeFenceClosure(t *testing.T) {
	open := lex("```\nline\n")
	require.Len(t, open, 1)
	assert.False(t, open[0].closed)

	closed := lex("```\nline\n```")
	require.Len(t, closed, 1)
	assert.True(t, closed[0].closed)

	// A shorter fence does not close a longer one
	longer := lex("````\nline\n```\n")
	require.Len(t, longer, 1)
	assert.False(t, longer[0].closed)
}

func TestFinal(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool // finality of the first token
	}{
		{"sentence punctuation", "Complete sentence.", true},
		{"cjk full stop", "你好。", true},
		{"fullwidth exclamation", "太好了！", true},
		{"fullwidth question", "真的？", true},
		{"question mark", "Really?", true},
		{"trailing whitespace after punctuation", "Done.  \n", true},
		{"no punctuation", "still typing", false},
		{"punctuation mid text", "Hi. still typing", false},
		{"unbalanced dollar", `Incomplete math: $x = \frac{1}{2`, false},
		{"balanced dollars", "Math $x$ inline.", true},
		{"unbalanced backtick", "Use `fmt.", false},
		{"unbalanced paren math", `See \(x + 1.`, false},
		{"escaped dollar ignored", `Costs \$5.`, true},
		{"paragraph followed by blank", "no punctuation\n\n", true},
		{"unbalanced paragraph followed by blank", "open $x\n\n", false},
		{"terminated heading", "# Title\n", true},
		{"unterminated heading", "# Tit", false},
		{"terminated list item", "- item\n", true},
		{"unterminated list item", "- ite", false},
		{"terminated rule", "---\n", true},
		{"open code", "```\ncode\n", false},
		{"closed code", "```\ncode\n```\n", true},
		{"open math", "$$\nx\n", false},
		{"closed math", "$$\nx\n$$", true},
		{"table at end", "| a |\n|---|\n| 1 |\n", false},
		{"table followed by blank", "| a |\n|---|\n| 1 |\n\n", true},
		{"table without rows", "| a |\n|---|\n\n", false},
		{"quote with punctuation", "> wise words.", true},
		{"quote without punctuation", "> wise", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			toks := lex(tt.text)
			require.NotEmpty(t, toks)
			assert.Equal(t, tt.want, final(toks, 0))
		})
	}
}

func TestSettled(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool // settledness of the first token
	}{
		{"trailing sentence", "Complete sentence.", false},
		{"trailing terminated sentence", "Complete sentence.\n", false},
		{"paragraph before blank line", "Done.\n\n", true},
		{"paragraph before partial blank line", "Done.\n ", false},
		{"paragraph before partial heading", "Intro\n#", false},
		{"paragraph before complete heading", "Intro\n# Part\n", true},
		{"terminated heading", "# Title\n", true},
		{"list item at end", "- item\n", false},
		{"list item before next item", "- one\n- two\n", true},
		{"closed code", "```\ncode\n```\n", true},
		{"closing fence without newline", "```\ncode\n```", false},
		{"terminated blank", "\n\n", true},
		{"pending paragraph", "still typing", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			toks := lex(tt.text)
			require.NotEmpty(t, toks)
			assert.Equal(t, tt.want, settled(toks, 0))
		})
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "paragraph", KindParagraph.String())
	assert.Equal(t, "math", KindMath.String())
	assert.Equal(t, "unknown", Kind(99).String())
}
