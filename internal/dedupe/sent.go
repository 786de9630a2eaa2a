// ABOUTME: TTL and size bounded record of recently sent message ids
// ABOUTME: Lets the channel drop repeated sends of one id and re-allow ids whose send failed

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

const (
	// DefaultTTL is how long a sent id is remembered.
	DefaultTTL = 5 * time.Minute
	// DefaultMaxSize bounds the number of remembered ids.
	DefaultMaxSize = 1024
)

type sentEntry struct {
	at      time.Time
	element *list.Element
}

// Sent records message ids per channel. It is safe for concurrent use.
type Sent struct {
	mu      sync.Mutex
	entries map[string]*sentEntry
	order   *list.List // keys, oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time

	done   chan struct{}
	closed bool
}

// Option configures a Sent.
type Option func(*Sent)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Sent) { s.now = now }
}

// New creates a Sent that forgets ids after ttl and keeps at most maxSize
// of them. Non-positive values use the defaults. A background goroutine
// sweeps expired ids until Close.
func New(ttl time.Duration, maxSize int, opts ...Option) *Sent {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	s := &Sent{
		entries: make(map[string]*sentEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.sweepLoop(sweepInterval(ttl))
	return s
}

func key(channelID, messageID string) string {
	return channelID + "\x00" + messageID
}

func sweepInterval(ttl time.Duration) time.Duration {
	if ttl < time.Minute {
		return ttl
	}
	return time.Minute
}

// Claim records messageID as sent on channelID. It returns false when the
// id was already claimed within the TTL, meaning the send is a duplicate.
func (s *Sent) Claim(channelID, messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(channelID, messageID)
	if e, ok := s.entries[k]; ok {
		if s.now().Sub(e.at) < s.ttl {
			return false
		}
		s.order.Remove(e.element)
		delete(s.entries, k)
	}

	if len(s.entries) >= s.maxSize {
		s.evictOldest()
	}
	s.entries[k] = &sentEntry{at: s.now(), element: s.order.PushBack(k)}
	return true
}

// Seen reports whether messageID is currently claimed on channelID.
func (s *Sent) Seen(channelID, messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key(channelID, messageID)]
	return ok && s.now().Sub(e.at) < s.ttl
}

// Release forgets a claim so the id may be sent again, e.g. after the send
// failed.
func (s *Sent) Release(channelID, messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(channelID, messageID)
	if e, ok := s.entries[k]; ok {
		s.order.Remove(e.element)
		delete(s.entries, k)
	}
}

// Len returns the number of remembered ids, expired ones included until
// the next sweep.
func (s *Sent) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Must be called with mu held.
func (s *Sent) evictOldest() {
	front := s.order.Front()
	if front == nil {
		return
	}
	k, _ := front.Value.(string)
	s.order.Remove(front)
	delete(s.entries, k)
}

func (s *Sent) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.done:
			return
		}
	}
}

// sweep drops expired ids. Ids are ordered by claim time so it stops at the
// first live one.
func (s *Sent) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for front := s.order.Front(); front != nil; front = s.order.Front() {
		k, _ := front.Value.(string)
		if now.Sub(s.entries[k].at) < s.ttl {
			return
		}
		s.order.Remove(front)
		delete(s.entries, k)
	}
}

// Close stops the sweeper. It is safe to call multiple times.
func (s *Sent) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		close(s.done)
		s.closed = true
	}
}
