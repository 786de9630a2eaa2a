// ABOUTME: Line-oriented block lexer for streaming markdown text
// ABOUTME: Produces raw structural tokens and decides which ones are final

package markdown

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Kind identifies the structural type of a block.
type Kind int

const (
	KindParagraph Kind = iota
	KindHeading
	KindListItem
	KindCode
	KindQuote
	KindTable
	KindMath
	KindRule
	KindBlank
)

var kindNames = [...]string{
	KindParagraph: "paragraph",
	KindHeading:   "heading",
	KindListItem:  "list_item",
	KindCode:      "code",
	KindQuote:     "quote",
	KindTable:     "table",
	KindMath:      "math",
	KindRule:      "rule",
	KindBlank:     "blank",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// token is one lexed block. raw includes its trailing newline, if any.
type token struct {
	kind   Kind
	raw    string
	closed bool // code fence or math delimiter was closed
}

func (t token) terminated() bool {
	return strings.HasSuffix(t.raw, "\n")
}

// splitLines splits s into lines that keep their "\n". The last line may
// lack one.
func splitLines(s string) []string {
	var lines []string
	for len(s) > 0 {
		i := strings.IndexByte(s, '\n')
		if i < 0 {
			lines = append(lines, s)
			break
		}
		lines = append(lines, s[:i+1])
		s = s[i+1:]
	}
	return lines
}

func isBlank(line string) bool {
	return strings.TrimSpace(line) == ""
}

func fenceMarker(line string) string {
	t := strings.TrimLeft(line, " ")
	if len(line)-len(t) > 3 {
		return ""
	}
	for _, ch := range []byte{'`', '~'} {
		n := 0
		for n < len(t) && t[n] == ch {
			n++
		}
		if n >= 3 {
			return t[:n]
		}
	}
	return ""
}

func closesFence(line, marker string) bool {
	t := strings.TrimSpace(line)
	if !strings.HasPrefix(t, marker) {
		return false
	}
	return strings.Trim(t, marker[:1]) == ""
}

func isHeading(line string) bool {
	t := strings.TrimLeft(line, " ")
	n := 0
	for n < len(t) && t[n] == '#' {
		n++
	}
	if n == 0 || n > 6 {
		return false
	}
	return n == len(t) || t[n] == ' ' || t[n] == '\t' || t[n] == '\n' || t[n] == '\r'
}

func isRule(line string) bool {
	t := strings.TrimSpace(line)
	if len(t) < 3 {
		return false
	}
	ch := t[0]
	if ch != '-' && ch != '*' && ch != '_' {
		return false
	}
	count := 0
	for i := 0; i < len(t); i++ {
		switch t[i] {
		case ch:
			count++
		case ' ', '\t':
		default:
			return false
		}
	}
	return count >= 3
}

func isListItem(line string) bool {
	t := strings.TrimLeft(line, " ")
	if len(t) >= 2 && (t[0] == '-' || t[0] == '*' || t[0] == '+') && (t[1] == ' ' || t[1] == '\t') {
		return true
	}
	n := 0
	for n < len(t) && n < 9 && t[n] >= '0' && t[n] <= '9' {
		n++
	}
	return n > 0 && n+1 < len(t) && (t[n] == '.' || t[n] == ')') && (t[n+1] == ' ' || t[n+1] == '\t')
}

func isQuote(line string) bool {
	return strings.HasPrefix(strings.TrimLeft(line, " "), ">")
}

func isTableRow(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "|")
}

func isTableSeparator(line string) bool {
	t := strings.TrimSpace(line)
	if !strings.Contains(t, "-") {
		return false
	}
	return strings.Trim(t, "|-: \t") == ""
}

// mathOpen reports the closing delimiter for a display math opener.
func mathOpen(line string) (closer string, ok bool) {
	t := strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(t, "$$"):
		return "$$", true
	case strings.HasPrefix(t, `\[`):
		return `\]`, true
	}
	return "", false
}

// startsBlock reports whether line begins a non-paragraph construct and so
// ends a running paragraph.
func startsBlock(line string) bool {
	if fenceMarker(line) != "" || isHeading(line) || isRule(line) ||
		isListItem(line) || isQuote(line) || isTableRow(line) {
		return true
	}
	_, ok := mathOpen(line)
	return ok
}

// lex splits text into block tokens. Concatenating the raw text of the
// returned tokens yields text.
func lex(text string) []token {
	lines := splitLines(text)
	var toks []token

	for i := 0; i < len(lines); {
		line := lines[i]
		switch {
		case isBlank(line):
			j := i + 1
			for j < len(lines) && isBlank(lines[j]) {
				j++
			}
			toks = append(toks, token{kind: KindBlank, raw: strings.Join(lines[i:j], "")})
			i = j

		case fenceMarker(line) != "":
			marker := fenceMarker(line)
			j, closed := i+1, false
			for j < len(lines) {
				if closesFence(lines[j], marker) {
					closed = true
					j++
					break
				}
				j++
			}
			toks = append(toks, token{kind: KindCode, raw: strings.Join(lines[i:j], ""), closed: closed})
			i = j

		case startsMath(line):
			closer, _ := mathOpen(line)
			if rest := strings.TrimSpace(line)[2:]; strings.HasSuffix(rest, closer) {
				toks = append(toks, token{kind: KindMath, raw: line, closed: true})
				i++
				continue
			}
			j, closed := i+1, false
			for j < len(lines) {
				if strings.Contains(lines[j], closer) {
					closed = true
					j++
					break
				}
				j++
			}
			toks = append(toks, token{kind: KindMath, raw: strings.Join(lines[i:j], ""), closed: closed})
			i = j

		case isHeading(line):
			toks = append(toks, token{kind: KindHeading, raw: line})
			i++

		case isRule(line):
			// checked before list items so "- - -" is a rule
			toks = append(toks, token{kind: KindRule, raw: line})
			i++

		case isListItem(line):
			j := i + 1
			for j < len(lines) && !isBlank(lines[j]) && indented(lines[j]) && !isListItem(lines[j]) {
				j++
			}
			toks = append(toks, token{kind: KindListItem, raw: strings.Join(lines[i:j], "")})
			i = j

		case isQuote(line):
			j := i + 1
			for j < len(lines) && isQuote(lines[j]) {
				j++
			}
			toks = append(toks, token{kind: KindQuote, raw: strings.Join(lines[i:j], "")})
			i = j

		case isTableRow(line):
			j := i + 1
			for j < len(lines) && isTableRow(lines[j]) {
				j++
			}
			toks = append(toks, token{kind: KindTable, raw: strings.Join(lines[i:j], "")})
			i = j

		default:
			j := i + 1
			for j < len(lines) && !isBlank(lines[j]) && !startsBlock(lines[j]) {
				j++
			}
			toks = append(toks, token{kind: KindParagraph, raw: strings.Join(lines[i:j], "")})
			i = j
		}
	}
	return toks
}

func startsMath(line string) bool {
	_, ok := mathOpen(line)
	return ok
}

func indented(line string) bool {
	return strings.HasPrefix(line, "  ") || strings.HasPrefix(line, "\t")
}

// final reports whether toks[i] is structurally complete given what
// follows it.
func final(toks []token, i int) bool {
	t := toks[i]
	followed := i+1 < len(toks)

	switch t.kind {
	case KindBlank:
		return true
	case KindCode, KindMath:
		return t.closed
	case KindHeading, KindRule:
		return t.terminated() || followed
	case KindListItem:
		return balanced(t.raw) && (t.terminated() || followed)
	case KindTable:
		return completeTable(t.raw) && followed && balanced(t.raw)
	case KindParagraph, KindQuote:
		if !balanced(t.raw) {
			return false
		}
		return followed || endsSentence(t.raw)
	}
	return false
}

// settled reports whether toks[i] is final and stays final, with the same
// raw text, however the text is extended. Only settled tokens are kept as
// the stable prefix between renders.
func settled(toks []token, i int) bool {
	if !final(toks, i) {
		return false
	}
	t := toks[i]
	switch t.kind {
	case KindBlank, KindCode, KindMath, KindHeading, KindRule:
		return t.terminated()
	}
	// Paragraphs, quotes, list items and tables absorb following lines until
	// a complete line starts something else.
	return i+1 < len(toks) && strings.Contains(toks[i+1].raw, "\n")
}

func completeTable(raw string) bool {
	lines := splitLines(raw)
	return len(lines) >= 3 && isTableSeparator(lines[1])
}

var terminalPunctuation = map[rune]bool{
	'.': true, '。': true,
	'!': true, '！': true,
	'?': true, '？': true,
}

// endsSentence reports whether the last visible rune is terminal
// punctuation.
func endsSentence(raw string) bool {
	s := strings.TrimRightFunc(raw, unicode.IsSpace)
	r, _ := utf8.DecodeLastRuneInString(s)
	return terminalPunctuation[r]
}

// balanced reports whether inline math and code delimiters are paired.
func balanced(raw string) bool {
	dollars, ticks, opens, closes := 0, 0, 0, 0
	for i := 0; i < len(raw); i++ {
		switch raw[i] {
		case '\\':
			if i+1 < len(raw) {
				switch raw[i+1] {
				case '(':
					opens++
				case ')':
					closes++
				}
				i++
			}
		case '$':
			dollars++
		case '`':
			ticks++
		}
	}
	return dollars%2 == 0 && ticks%2 == 0 && opens == closes
}
