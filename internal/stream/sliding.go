package stream

import (
	"context"
	"io"
	"sync"
	"time"

	"streamgate/internal/domain/ports"
	"streamgate/internal/scheduler"
)

const (
	minSlidingStep      = 1 << 20
	targetBufferSeconds = 30.0
	seekBoostDuration   = 10 * time.Second
)

// slidingReader keeps the piece-priority window ahead of the consumer. Window
// size adapts to the observed read rate (EMA smoothed) so the buffer covers
// roughly targetBufferSeconds of playback; a seek temporarily doubles it to
// cut down post-seek stalls.
type slidingReader struct {
	reader ports.StreamReader
	handle ports.Handle
	layout scheduler.Layout

	minWindow int64
	maxWindow int64
	backtrack int64
	step      int64

	mu             sync.Mutex
	window         int64
	pos            int64
	lastOff        int64
	bytesSince     int64
	lastUpdate     time.Time
	rate           float64
	seekBoostUntil time.Time
}

func newSlidingReader(reader ports.StreamReader, handle ports.Handle, layout scheduler.Layout, readahead, window int64) *slidingReader {
	backtrack := readahead
	if backtrack < 0 {
		backtrack = 0
	}
	if backtrack > window/2 {
		backtrack = window / 2
	}
	step := window / 4
	if step < minSlidingStep {
		step = minSlidingStep
	}
	return &slidingReader{
		reader:     reader,
		handle:     handle,
		layout:     layout,
		minWindow:  minPriorityWindowBytes,
		maxWindow:  maxPriorityWindowBytes,
		backtrack:  backtrack,
		step:       step,
		window:     window,
		lastUpdate: time.Now(),
	}
}

func (r *slidingReader) SetContext(ctx context.Context) { r.reader.SetContext(ctx) }
func (r *slidingReader) SetReadahead(n int64)           { r.reader.SetReadahead(n) }
func (r *slidingReader) Close() error                   { return r.reader.Close() }

func (r *slidingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if n > 0 {
		r.mu.Lock()
		r.pos += int64(n)
		r.bytesSince += int64(n)
		r.adjustWindowLocked()
		r.applyWindowLocked(false)
		r.mu.Unlock()
	}
	return n, err
}

func (r *slidingReader) Seek(offset int64, whence int) (int64, error) {
	pos, err := r.reader.Seek(offset, whence)
	if err != nil {
		return pos, err
	}
	r.mu.Lock()
	r.pos = pos
	boosted := r.window * 2
	if boosted > r.maxWindow {
		boosted = r.maxWindow
	}
	r.window = boosted
	r.seekBoostUntil = time.Now().Add(seekBoostDuration)
	r.applyWindowLocked(true)
	r.mu.Unlock()
	return pos, nil
}

// adjustWindowLocked recalculates the window from observed throughput. Called
// on every Read; the actual recalculation runs at most twice a second.
func (r *slidingReader) adjustWindowLocked() {
	now := time.Now()
	elapsed := now.Sub(r.lastUpdate).Seconds()
	if elapsed < 0.5 {
		return
	}

	instant := float64(r.bytesSince) / elapsed
	if r.rate <= 0 {
		r.rate = instant
	} else {
		r.rate = 0.7*r.rate + 0.3*instant
	}
	r.bytesSince = 0
	r.lastUpdate = now

	if now.Before(r.seekBoostUntil) {
		return
	}

	dynamic := int64(r.rate * targetBufferSeconds)
	if dynamic < r.minWindow {
		dynamic = r.minWindow
	}
	if dynamic > r.maxWindow {
		dynamic = r.maxWindow
	}
	r.window = dynamic
}

// applyWindowLocked reapplies the graduated plan around the current position.
// Unless forced (seek), the plan only moves once the position has advanced a
// full step, keeping the per-Read cost down.
func (r *slidingReader) applyWindowLocked(force bool) {
	off := r.pos - r.backtrack
	if off < 0 {
		off = 0
	}
	if !force {
		delta := off - r.lastOff
		if delta < 0 {
			delta = -delta
		}
		if delta < r.step {
			return
		}
	}
	for _, band := range scheduler.Plan(r.layout, off, r.window) {
		r.handle.SetPiecePriority(band.Span.Start, band.Span.End, band.Prio)
	}
	r.lastOff = off
}

var _ ports.StreamReader = (*slidingReader)(nil)
var _ io.ReadSeekCloser = (*slidingReader)(nil)
