// ABOUTME: Tests for the sent message id record
// ABOUTME: Validates duplicate detection, TTL expiry, release, eviction, and concurrency

package dedupe

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)}
}

func TestSent_ClaimOnce(t *testing.T) {
	s := New(time.Minute, 10)
	defer s.Close()

	assert.True(t, s.Claim("c1", "m1"))
	assert.False(t, s.Claim("c1", "m1"), "second claim is a duplicate")
	assert.True(t, s.Seen("c1", "m1"))
}

func TestSent_ChannelsAreIndependent(t *testing.T) {
	s := New(time.Minute, 10)
	defer s.Close()

	assert.True(t, s.Claim("c1", "m1"))
	assert.True(t, s.Claim("c2", "m1"))
	assert.False(t, s.Seen("c3", "m1"))
}

func TestSent_Expiry(t *testing.T) {
	clock := newClock()
	s := New(time.Minute, 10, WithClock(clock.Now))
	defer s.Close()

	assert.True(t, s.Claim("c1", "m1"))
	clock.Advance(59 * time.Second)
	assert.False(t, s.Claim("c1", "m1"))

	clock.Advance(2 * time.Second)
	assert.False(t, s.Seen("c1", "m1"))
	assert.True(t, s.Claim("c1", "m1"), "expired id may be sent again")
	assert.Equal(t, 1, s.Len())
}

func TestSent_Release(t *testing.T) {
	s := New(time.Minute, 10)
	defer s.Close()

	assert.True(t, s.Claim("c1", "m1"))
	s.Release("c1", "m1")
	assert.False(t, s.Seen("c1", "m1"))
	assert.True(t, s.Claim("c1", "m1"))

	// Releasing an unknown id is a no-op
	s.Release("c1", "unknown")
	assert.Equal(t, 1, s.Len())
}

func TestSent_EvictsOldest(t *testing.T) {
	s := New(time.Hour, 3)
	defer s.Close()

	for i := range 4 {
		assert.True(t, s.Claim("c1", fmt.Sprintf("m%d", i)))
	}

	assert.Equal(t, 3, s.Len())
	assert.False(t, s.Seen("c1", "m0"))
	assert.True(t, s.Seen("c1", "m3"))
}

func TestSent_Sweep(t *testing.T) {
	clock := newClock()
	s := New(time.Minute, 10, WithClock(clock.Now))
	defer s.Close()

	s.Claim("c1", "old")
	clock.Advance(30 * time.Second)
	s.Claim("c1", "new")
	clock.Advance(45 * time.Second)

	s.sweep()

	assert.Equal(t, 1, s.Len())
	assert.True(t, s.Seen("c1", "new"))
}

func TestSent_Defaults(t *testing.T) {
	s := New(0, 0)
	defer s.Close()

	assert.Equal(t, DefaultTTL, s.ttl)
	assert.Equal(t, DefaultMaxSize, s.maxSize)
}

func TestSent_ConcurrentClaimsHaveOneWinner(t *testing.T) {
	s := New(time.Minute, 100)
	defer s.Close()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Claim("c1", "same") {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestSent_CloseIdempotent(t *testing.T) {
	s := New(time.Minute, 10)
	s.Close()
	s.Close()
}
