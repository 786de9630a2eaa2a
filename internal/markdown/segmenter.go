// ABOUTME: Incremental segmenter splitting accumulating text into stable rendered blocks
// ABOUTME: Memoizes finalized blocks in a bounded LRU keyed by their exact raw text

package markdown

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds the number of memoized blocks.
const DefaultCacheSize = 256

// Block is a finalized, sanitized segment. Blocks are shared through the
// cache and must not be modified.
type Block struct {
	Kind Kind
	Raw  string
	HTML string
}

// Result is the output of one Render call.
type Result struct {
	Blocks []*Block
	// Settled is the number of leading Blocks that later text can not
	// change. Blocks after them are final for this text but may be
	// re-segmented once more text arrives, e.g. a paragraph that ends in
	// "3." before "14" is appended.
	Settled     int
	PendingTail string
}

// Options configures a Segmenter.
type Options struct {
	CacheSize int
	Logger    *slog.Logger
}

// Segmenter turns the accumulating text of one message into finalized
// blocks and a pending tail. It is safe for concurrent use.
type Segmenter struct {
	mu       sync.Mutex
	cache    *lru.Cache[string, *Block]
	renderer *renderer
	logger   *slog.Logger

	// prefix is the raw text covered by blocks.
	prefix string
	blocks []*Block

	renders int
}

// NewSegmenter creates a Segmenter.
func NewSegmenter(opts Options) (*Segmenter, error) {
	size := opts.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "markdown")

	cache, err := lru.New[string, *Block](size)
	if err != nil {
		return nil, fmt.Errorf("creating block cache: %w", err)
	}
	return &Segmenter{
		cache:    cache,
		renderer: newRenderer(logger),
		logger:   logger,
	}, nil
}

// Render segments text. When text extends the text that produced the
// previously finalized blocks, those blocks are kept as is and only the
// remainder is lexed. An empty text clears the cache and all state.
func (s *Segmenter) Render(text string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	if text == "" {
		s.reset()
		return Result{}
	}
	return s.segment(text, false)
}

// Finalize renders all of text as blocks, including anything that would
// otherwise stay pending. Use it once the message is complete.
func (s *Segmenter) Finalize(text string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	if text == "" {
		s.reset()
		return Result{}
	}
	return s.segment(text, true)
}

// CacheLen returns the number of memoized blocks.
func (s *Segmenter) CacheLen() int {
	return s.cache.Len()
}

func (s *Segmenter) reset() {
	s.cache.Purge()
	s.prefix = ""
	s.blocks = nil
}

func (s *Segmenter) segment(text string, all bool) Result {
	if s.prefix == "" || !strings.HasPrefix(text, s.prefix) {
		s.prefix = ""
		s.blocks = nil
	}

	rest := text[len(s.prefix):]
	toks := lex(rest)

	blocks := s.blocks[:len(s.blocks):len(s.blocks)]
	committed, consumed := 0, 0
	stable := true
	pending := len(toks)
	for i, t := range toks {
		if !all && !final(toks, i) {
			pending = i
			break
		}
		stable = stable && (all || settled(toks, i))
		consumed += len(t.raw)
		if stable {
			committed = consumed
		}
		if t.kind == KindBlank {
			continue
		}
		blocks = append(blocks, s.block(t))
		if stable {
			s.blocks = blocks
		}
	}

	s.prefix += rest[:committed]

	res := Result{Blocks: blocks, Settled: len(s.blocks)}
	if pending < len(toks) {
		res.PendingTail = rest[consumed:]
	}
	return res
}

func (s *Segmenter) block(t token) *Block {
	if b, ok := s.cache.Get(t.raw); ok {
		return b
	}
	s.renders++
	b := &Block{Kind: t.kind, Raw: t.raw, HTML: s.renderer.render(t)}
	s.cache.Add(t.raw, b)
	return b
}
