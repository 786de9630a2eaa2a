// ABOUTME: Tests for debounced re-segmentation
// ABOUTME: Verifies bursts coalesce, Flush renders immediately, and Stop cancels

package markdown

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type resultRecorder struct {
	mu      sync.Mutex
	results []Result
}

func (r *resultRecorder) record(res Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

func (r *resultRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results)
}

func (r *resultRecorder) last() Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.results[len(r.results)-1]
}

func TestDebouncer_CoalescesBurst(t *testing.T) {
	rec := &resultRecorder{}
	d := NewDebouncer(newTestSegmenter(t, 0), 20*time.Millisecond, rec.record)
	defer d.Stop()

	for _, text := range []string{"H", "He", "Hello", "Hello."} {
		d.Update(text)
	}

	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, rec.count())

	res := rec.last()
	require.Len(t, res.Blocks, 1)
	assert.Equal(t, "Hello.", res.Blocks[0].Raw)
}

func TestDebouncer_FlushRendersNow(t *testing.T) {
	rec := &resultRecorder{}
	d := NewDebouncer(newTestSegmenter(t, 0), 50*time.Millisecond, rec.record)
	defer d.Stop()

	d.Update("Typing")
	d.Flush()

	require.Equal(t, 1, rec.count())
	assert.Equal(t, "Typing", rec.last().PendingTail)

	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, 1, rec.count(), "flushed timer must not fire again")
}

func TestDebouncer_FlushWaitsForRunningRender(t *testing.T) {
	rec := &resultRecorder{}
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	d := NewDebouncer(newTestSegmenter(t, 0), time.Millisecond, func(res Result) {
		once.Do(func() {
			close(started)
			<-release
		})
		rec.record(res)
	})
	defer d.Stop()

	d.Update("One.\n\n")
	<-started

	d.Update("One.\n\nTwo.\n\n")
	flushed := make(chan struct{})
	go func() {
		d.Flush()
		close(flushed)
	}()

	select {
	case <-flushed:
		t.Fatal("Flush delivered while the timer render was still running")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	<-flushed

	// The timer armed by the second Update may also have rendered.
	require.GreaterOrEqual(t, rec.count(), 2)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Len(t, rec.results[0].Blocks, 1)
	for _, res := range rec.results[1:] {
		assert.Len(t, res.Blocks, 2)
	}
}

func TestDebouncer_StopCancelsPending(t *testing.T) {
	rec := &resultRecorder{}
	d := NewDebouncer(newTestSegmenter(t, 0), 20*time.Millisecond, rec.record)

	d.Update("Never rendered.")
	d.Stop()
	d.Update("Ignored after stop.")
	d.Flush()

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 0, rec.count())
}

func TestNewDebouncer_DefaultDelay(t *testing.T) {
	d := NewDebouncer(newTestSegmenter(t, 0), 0, func(Result) {})
	assert.Equal(t, DefaultSettleDelay, d.delay)
}
