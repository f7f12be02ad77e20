package audio

import (
	"sync"
)

// TimeRing stores a bounded scrolling time series as two parallel
// fixed-capacity rings, one for synthetic timestamps and one for sample
// values. It maintains its own running clock: each appended block receives
// timestamps t_i = offset + i*step and advances the offset by len*step,
// so timestamps are strictly increasing within the ring. A fresh ring
// starts its clock at zero.
//
// Like Ring it is single-writer (audio callback) / single-reader (render
// loop) and never allocates after construction.
type TimeRing struct {
	mu    sync.Mutex
	times []float64
	vals  []float32
	head  int
	size  int
	clock float64 // timestamp for the next appended sample
	seq   uint64  // incremented on every append, for change detection
}

// NewTimeRing returns a TimeRing holding up to capacity points.
func NewTimeRing(capacity int) *TimeRing {
	if capacity <= 0 {
		capacity = 1
	}
	return &TimeRing{
		times: make([]float64, capacity),
		vals:  make([]float32, capacity),
	}
}

// Capacity returns the fixed capacity of the ring.
func (t *TimeRing) Capacity() int {
	return len(t.vals)
}

// Len returns the number of points currently stored.
func (t *TimeRing) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.size
}

// AppendBlock appends a block of already-sanitized samples with synthetic
// timestamps spaced step seconds apart, evicting the oldest points once
// the capacity is reached.
func (t *TimeRing) AppendBlock(step float64, vs []float32) {
	if len(vs) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, v := range vs {
		t.times[t.head] = t.clock
		t.vals[t.head] = v
		t.clock += step
		t.head++
		if t.head == len(t.vals) {
			t.head = 0
		}
		if t.size < len(t.vals) {
			t.size++
		}
	}
	t.seq++
}

// Snapshot returns copies of the stored timestamps and values in arrival
// order together with the current write sequence number.
func (t *TimeRing) Snapshot() (times []float64, vals []float32, seq uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	times = make([]float64, t.size)
	vals = make([]float32, t.size)

	start := t.head - t.size
	if start < 0 {
		start += len(t.vals)
	}
	for i := range t.size {
		idx := start + i
		if idx >= len(t.vals) {
			idx -= len(t.vals)
		}
		times[i] = t.times[idx]
		vals[i] = t.vals[idx]
	}
	return times, vals, t.seq
}

// Seq returns the current write sequence number without copying data.
func (t *TimeRing) Seq() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.seq
}

// Reset discards all points and restarts the clock at zero.
func (t *TimeRing) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.head = 0
	t.size = 0
	t.clock = 0
	t.seq++
}
