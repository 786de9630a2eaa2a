// ABOUTME: Debounced re-segmentation of rapidly changing message text
// ABOUTME: Each update restarts a settle timer; the latest text renders once it fires

package markdown

import (
	"sync"
	"time"
)

// DefaultSettleDelay is how long text must stay unchanged before it is
// re-segmented.
const DefaultSettleDelay = 100 * time.Millisecond

// Debouncer coalesces bursts of Update calls into one Render.
type Debouncer struct {
	seg   *Segmenter
	delay time.Duration
	fn    func(Result)

	// renderMu serializes Render and fn so results arrive in update order.
	renderMu sync.Mutex

	mu      sync.Mutex
	timer   *time.Timer
	text    string
	gen     uint64
	stopped bool
}

// NewDebouncer creates a Debouncer that renders with seg and hands each
// result to fn. A non-positive delay uses DefaultSettleDelay.
func NewDebouncer(seg *Segmenter, delay time.Duration, fn func(Result)) *Debouncer {
	if delay <= 0 {
		delay = DefaultSettleDelay
	}
	return &Debouncer{seg: seg, delay: delay, fn: fn}
}

// Update records text and restarts the settle timer.
func (d *Debouncer) Update(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.text = text
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
	}
	gen := d.gen
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
}

func (d *Debouncer) fire(gen uint64) {
	d.renderMu.Lock()
	defer d.renderMu.Unlock()

	d.mu.Lock()
	if d.stopped || gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	text := d.text
	d.mu.Unlock()

	d.fn(d.seg.Render(text))
}

// Flush cancels the pending timer and renders the latest text now. It must
// not be called from the callback.
func (d *Debouncer) Flush() {
	d.renderMu.Lock()
	defer d.renderMu.Unlock()

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	text := d.text
	d.mu.Unlock()

	d.fn(d.seg.Render(text))
}

// Stop cancels any pending render. Later calls are no-ops.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
