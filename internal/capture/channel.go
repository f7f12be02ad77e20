package capture

import (
	"math"
	"sync/atomic"

	"github.com/oszuidwest/zwfm-micmonitor/internal/audio"
	"github.com/oszuidwest/zwfm-micmonitor/internal/types"
)

// Channel owns the buffers and statistics for one microphone input. Its
// ingest method is the stream data callback; everything else is read by
// the render loop. The audio thread and the render loop meet only inside
// the individual buffer types, which each manage their own locking.
type Channel struct {
	index     int
	device    int
	rate      int
	scratch   []float32
	ring      *audio.Ring
	levels    *audio.LevelTracker
	series    atomic.Pointer[audio.TimeRing]
	step      atomic.Uint64 // float64 bits of the synthetic per-sample time step
	faults    atomic.Uint64
	sanitized atomic.Uint64
	sink      func(channel int, samples []float32)
}

func newChannel(index, device, frameSize int, sink func(channel int, samples []float32)) *Channel {
	return &Channel{
		index:   index,
		device:  device,
		scratch: make([]float32, frameSize),
		ring:    audio.NewRing(types.RingCapacity),
		levels:  audio.NewLevelTracker(),
		sink:    sink,
	}
}

// activate assigns the negotiated sample rate and allocates the
// time-series buffer when time-plot mode is on. Called after the
// channel's stream opened but before it starts delivering data.
func (c *Channel) activate(rate int, timePlot bool, windowSeconds, adjustment float64) {
	c.rate = rate
	c.setAdjustment(adjustment)
	if timePlot {
		c.series.Store(audio.NewTimeRing(seriesCapacity(windowSeconds, rate)))
	}
}

// ingest is the stream data callback. It normalizes the block to the
// configured frame size, replaces non-finite samples with zero, and
// feeds the level tracker and buffers. It must never panic or block:
// a fault is swallowed and counted, and the block contributes nothing.
func (c *Channel) ingest(block []float32) {
	defer func() {
		if r := recover(); r != nil {
			c.faults.Add(1)
		}
	}()

	n := copy(c.scratch, block)
	for i := n; i < len(c.scratch); i++ {
		c.scratch[i] = 0
	}

	var bad uint64
	for i := range n {
		if !audio.IsFinite(float64(c.scratch[i])) {
			c.scratch[i] = 0
			bad++
		}
	}
	if bad > 0 {
		c.sanitized.Add(bad)
	}

	c.levels.Update(c.scratch)
	c.ring.PushSlice(c.scratch)
	if tr := c.series.Load(); tr != nil {
		tr.AppendBlock(math.Float64frombits(c.step.Load()), c.scratch)
	}
	if c.sink != nil {
		c.sink(c.index, c.scratch)
	}
}

// setAdjustment rebakes the synthetic time step from the time-axis
// compression factor. Samples appended afterwards carry the new step.
func (c *Channel) setAdjustment(adjustment float64) {
	if c.rate <= 0 {
		return
	}
	c.step.Store(math.Float64bits(adjustment / float64(c.rate)))
}

// setTimePlot installs a fresh time-series buffer when entering
// time-plot mode and discards it when leaving. Re-entering while
// already active keeps the existing buffer.
func (c *Channel) setTimePlot(enabled bool, windowSeconds float64) {
	if !enabled {
		c.series.Store(nil)
		return
	}
	if c.series.Load() != nil {
		return
	}
	c.series.Store(audio.NewTimeRing(seriesCapacity(windowSeconds, c.rate)))
}

// Index returns the channel's position in the session.
func (c *Channel) Index() int {
	return c.index
}

// Device returns the backend device index the channel captures from.
func (c *Channel) Device() int {
	return c.device
}

// Rate returns the negotiated sample rate in Hz.
func (c *Channel) Rate() int {
	return c.rate
}

// RingSnapshot returns the n most recent raw samples in arrival order,
// zero-padded at the front to exactly n entries.
func (c *Channel) RingSnapshot(n int) []float32 {
	return c.ring.Snapshot(n)
}

// SeriesSnapshot copies the time-series buffer contents. Outside
// time-plot mode it returns empty slices and sequence 0.
func (c *Channel) SeriesSnapshot() ([]float64, []float32, uint64) {
	tr := c.series.Load()
	if tr == nil {
		return nil, nil, 0
	}
	return tr.Snapshot()
}

// SeriesSeq returns the time-series write sequence without copying,
// for cheap cache-dirtiness checks.
func (c *Channel) SeriesSeq() uint64 {
	tr := c.series.Load()
	if tr == nil {
		return 0
	}
	return tr.Seq()
}

// Levels returns the channel's current level statistics.
func (c *Channel) Levels() audio.LevelSnapshot {
	return c.levels.Snapshot()
}

// Faults returns the number of recovered callback faults.
func (c *Channel) Faults() uint64 {
	return c.faults.Load()
}

// Sanitized returns the number of non-finite samples replaced at ingest.
func (c *Channel) Sanitized() uint64 {
	return c.sanitized.Load()
}

func seriesCapacity(windowSeconds float64, rate int) int {
	n := int(windowSeconds * float64(rate))
	if n < 1 {
		n = 1
	}
	return n
}
