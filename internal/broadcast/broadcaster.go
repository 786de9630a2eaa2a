// ABOUTME: Generic synchronous fan-out broadcaster for state and event notifications
// ABOUTME: Delivers each published value to all current subscribers in subscription order

package broadcast

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Subscription is a handle returned by Subscribe.
type Subscription struct {
	id     string
	active atomic.Bool
	owner  interface{ remove(id string) }
}

// ID returns the subscription identifier.
func (s *Subscription) ID() string {
	return s.id
}

// Unsubscribe stops delivery to this subscriber. Safe to call multiple
// times and from within the subscriber's own callback.
func (s *Subscription) Unsubscribe() {
	if s.active.CompareAndSwap(true, false) {
		s.owner.remove(s.id)
	}
}

type subscriber[T any] struct {
	sub *Subscription
	fn  func(T)
}

// Broadcaster fans published values out to subscribers.
type Broadcaster[T any] struct {
	mu          sync.RWMutex
	subscribers []subscriber[T]
	closed      bool
	logger      *slog.Logger
}

// New creates a broadcaster. Pass nil logger for default.
func New[T any](logger *slog.Logger) *Broadcaster[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster[T]{
		logger: logger.With("component", "broadcaster"),
	}
}

// Subscribe registers fn for every subsequent Publish. Subscribing to a
// closed broadcaster returns an inactive subscription.
func (b *Broadcaster[T]) Subscribe(fn func(T)) *Subscription {
	sub := &Subscription{id: uuid.New().String(), owner: b}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return sub
	}

	sub.active.Store(true)
	b.subscribers = append(b.subscribers, subscriber[T]{sub: sub, fn: fn})

	b.logger.Debug("subscriber added", "sub_id", sub.id)
	return sub
}

// Publish delivers v to all current subscribers synchronously.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.RLock()
	if b.closed || len(b.subscribers) == 0 {
		b.mu.RUnlock()
		return
	}

	// Copy subscribers under read lock to avoid holding lock during callbacks
	targets := make([]subscriber[T], len(b.subscribers))
	copy(targets, b.subscribers)
	b.mu.RUnlock()

	for _, s := range targets {
		if !s.sub.active.Load() {
			continue
		}
		s.fn(v)
	}
}

// Len returns the number of active subscribers.
func (b *Broadcaster[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

func (b *Broadcaster[T]) remove(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subscribers {
		if s.sub.id == id {
			b.subscribers = append(b.subscribers[:i:i], b.subscribers[i+1:]...)
			b.logger.Debug("subscriber removed", "sub_id", id)
			return
		}
	}
}

// Close drops all subscribers. Later publishes are ignored.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, s := range b.subscribers {
		s.sub.active.Store(false)
	}
	b.subscribers = nil

	b.logger.Debug("broadcaster closed")
}
