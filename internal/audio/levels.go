package audio

import (
	"math"
	"slices"
	"sync"
)

// Level tracking parameters.
const (
	// RMSHistoryCapacity is the size of the per-channel RMS history ring.
	RMSHistoryCapacity = 100
	// NoiseFloorCapacity is the size of the noise-floor sample ring.
	NoiseFloorCapacity = 200
	// NoiseFloorMinSamples is the ring fill required before the noise
	// floor is estimated; below it the default floor is reported.
	NoiseFloorMinSamples = 20
	// NoiseFloorPercentile is the percentile used as the floor estimate.
	NoiseFloorPercentile = 10.0
	// NoiseFloorMin is the smallest reportable noise floor.
	NoiseFloorMin = 0.001
	// AverageWindow is the number of recent RMS values averaged.
	AverageWindow = 50
	// PeakDecay is the multiplicative peak decay applied per update in
	// which the peak is not exceeded. The decay is deliberately coupled
	// to the callback rate, not to wall-clock time.
	PeakDecay = 0.999
	// MinDB is the clamp applied to non-finite dB conversions.
	MinDB = -100.0
)

// dbEpsilon keeps the dB conversion defined for a zero level.
const dbEpsilon = 1e-10

// LevelSnapshot is a point-in-time copy of a channel's level statistics.
type LevelSnapshot struct {
	Level      float64 // latest RMS, linear
	Peak       float64 // decaying peak, linear
	NoiseFloor float64 // rolling low-percentile estimate
	Average    float64 // mean of recent RMS values
}

// LevelTracker computes per-channel RMS, decaying peak, moving average and
// a rolling noise-floor estimate from the stream of callback blocks.
// Update runs on the channel's audio thread; Snapshot on the render loop.
type LevelTracker struct {
	mu         sync.Mutex
	level      float64
	peak       float64
	noiseFloor float64
	average    float64

	history statRing
	floor   statRing
	scratch []float64 // reused for the percentile sort
}

// NewLevelTracker returns a LevelTracker with empty history.
func NewLevelTracker() *LevelTracker {
	return &LevelTracker{
		noiseFloor: NoiseFloorMin,
		history:    newStatRing(RMSHistoryCapacity),
		floor:      newStatRing(NoiseFloorCapacity),
		scratch:    make([]float64, NoiseFloorCapacity),
	}
}

// Update ingests one callback block. It computes the block RMS (non-finite
// results clamp to 0), applies instant-attack/slow-decay peak tracking,
// and refreshes the moving average and noise-floor estimate.
func (l *LevelTracker) Update(block []float32) {
	rms := BlockRMS(block)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.level = rms
	if rms > l.peak {
		l.peak = rms
	} else {
		l.peak *= PeakDecay
	}

	l.history.push(rms)
	l.floor.push(rms)

	l.average = l.history.tailMean(AverageWindow)

	if l.floor.size > NoiseFloorMinSamples {
		n := l.floor.copyTo(l.scratch)
		pct := percentile(l.scratch[:n], NoiseFloorPercentile)
		l.noiseFloor = math.Max(pct, NoiseFloorMin)
	} else {
		l.noiseFloor = NoiseFloorMin
	}
}

// Snapshot returns the current level statistics.
func (l *LevelTracker) Snapshot() LevelSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return LevelSnapshot{
		Level:      l.level,
		Peak:       l.peak,
		NoiseFloor: l.noiseFloor,
		Average:    l.average,
	}
}

// Reset clears all level state and history.
func (l *LevelTracker) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = 0
	l.peak = 0
	l.noiseFloor = NoiseFloorMin
	l.average = 0
	l.history.reset()
	l.floor.reset()
}

// BlockRMS returns sqrt(mean(x^2)) over the block. An empty block or a
// non-finite result yields 0.
func BlockRMS(block []float32) float64 {
	if len(block) == 0 {
		return 0
	}
	var sum float64
	for _, v := range block {
		f := float64(v)
		sum += f * f
	}
	rms := math.Sqrt(sum / float64(len(block)))
	if !IsFinite(rms) {
		return 0
	}
	return rms
}

// LevelDB converts a linear level to dBFS, clamped to MinDB when the
// result is non-finite.
func LevelDB(level float64) float64 {
	db := 20 * math.Log10(level+dbEpsilon)
	if !IsFinite(db) {
		return MinDB
	}
	return db
}

// percentile returns the p-th percentile of values using linear
// interpolation between closest ranks. values is sorted in place.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	slices.Sort(values)
	rank := p / 100 * float64(len(values)-1)
	lo := int(rank)
	if lo >= len(values)-1 {
		return values[len(values)-1]
	}
	frac := rank - float64(lo)
	return values[lo] + frac*(values[lo+1]-values[lo])
}

// statRing is a fixed-capacity ring of float64 statistics values.
type statRing struct {
	buf  []float64
	head int
	size int
}

func newStatRing(capacity int) statRing {
	return statRing{buf: make([]float64, capacity)}
}

func (s *statRing) push(v float64) {
	s.buf[s.head] = v
	s.head++
	if s.head == len(s.buf) {
		s.head = 0
	}
	if s.size < len(s.buf) {
		s.size++
	}
}

// tailMean returns the arithmetic mean of the most recent min(n, size)
// values, or 0 when the ring is empty.
func (s *statRing) tailMean(n int) float64 {
	take := min(n, s.size)
	if take == 0 {
		return 0
	}
	start := s.head - take
	if start < 0 {
		start += len(s.buf)
	}
	var sum float64
	for i := range take {
		idx := start + i
		if idx >= len(s.buf) {
			idx -= len(s.buf)
		}
		sum += s.buf[idx]
	}
	return sum / float64(take)
}

// copyTo copies all stored values into dst and returns the count copied.
func (s *statRing) copyTo(dst []float64) int {
	start := s.head - s.size
	if start < 0 {
		start += len(s.buf)
	}
	for i := range s.size {
		idx := start + i
		if idx >= len(s.buf) {
			idx -= len(s.buf)
		}
		dst[i] = s.buf[idx]
	}
	return s.size
}

func (s *statRing) reset() {
	s.head = 0
	s.size = 0
}
