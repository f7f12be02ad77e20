// Package audio provides the per-channel sample buffers and level
// statistics for the monitor: bounded rolling rings written by real-time
// capture callbacks, RMS/peak/noise-floor tracking, and dead-mic detection.
package audio

import (
	"math"
	"sync"
)

// Ring is a fixed-capacity FIFO of float32 samples. When full, a push
// evicts the oldest sample. It is written by a single audio callback and
// read by a single render loop; the critical section is bounded to a
// copy of at most the ring capacity and never allocates after construction.
type Ring struct {
	mu   sync.Mutex
	buf  []float32
	head int // next write index
	size int // number of valid samples
}

// NewRing returns a Ring holding up to capacity samples.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring{buf: make([]float32, capacity)}
}

// Capacity returns the fixed capacity of the ring.
func (r *Ring) Capacity() int {
	return len(r.buf)
}

// Len returns the number of samples currently stored.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Push appends one sample, evicting the oldest if the ring is full.
// Non-finite values are stored as 0.
func (r *Ring) Push(v float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pushLocked(Sanitize(v))
}

// PushSlice appends a block of samples in order, evicting oldest-first.
// Non-finite values are stored as 0. If the block is larger than the
// capacity only its most recent samples survive, matching the eviction
// order of sample-by-sample pushes.
func (r *Ring) PushSlice(vs []float32) {
	if len(vs) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range vs {
		r.pushLocked(Sanitize(v))
	}
}

// pushLocked appends one already-sanitized sample. Caller holds mu.
func (r *Ring) pushLocked(v float32) {
	r.buf[r.head] = v
	r.head++
	if r.head == len(r.buf) {
		r.head = 0
	}
	if r.size < len(r.buf) {
		r.size++
	}
}

// Snapshot returns exactly n samples: the most recent min(n, len) values
// in arrival order, zero-padded at the front when fewer are available.
// The result is a fresh slice safe to retain.
func (r *Ring) Snapshot(n int) []float32 {
	if n <= 0 {
		return nil
	}
	out := make([]float32, n)

	r.mu.Lock()
	defer r.mu.Unlock()

	take := min(n, r.size)
	// Oldest of the taken window sits take positions behind the head.
	start := r.head - take
	if start < 0 {
		start += len(r.buf)
	}
	for i := range take {
		idx := start + i
		if idx >= len(r.buf) {
			idx -= len(r.buf)
		}
		out[n-take+i] = r.buf[idx]
	}
	return out
}

// Reset discards all stored samples.
func (r *Ring) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.head = 0
	r.size = 0
}

// Sanitize replaces a non-finite sample with 0.
func Sanitize(v float32) float32 {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return v
}

// IsFinite reports whether v is neither NaN nor infinite.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
