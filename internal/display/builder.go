// Package display turns raw channel buffers into render-ready frames.
package display

import (
	"math"

	"github.com/oszuidwest/zwfm-micmonitor/internal/audio"
	"github.com/oszuidwest/zwfm-micmonitor/internal/types"
)

// Source is one channel's view of the capture pipeline as the frame
// builder needs it.
type Source interface {
	// RingSnapshot returns the n most recent raw samples, zero-padded
	// at the front to exactly n entries.
	RingSnapshot(n int) []float32
	// SeriesSnapshot copies the time-series buffer, empty outside
	// time-plot mode.
	SeriesSnapshot() ([]float64, []float32, uint64)
	// SeriesSeq returns the series write sequence without copying.
	SeriesSeq() uint64
	// Levels returns the channel's current level statistics.
	Levels() audio.LevelSnapshot
}

// yRangeSmoothing blends the previous tick's Y range with the new
// target to keep the axis from jittering.
const yRangeSmoothing = 0.9

// yRangeHeadroom scales the largest observed amplitude into the target
// Y range.
const yRangeHeadroom = 1.2

// yRangeFloor is the smallest half-height of the Y range.
const yRangeFloor = 0.1

// Builder produces one render-ready frame per tick from a set of
// channel sources. It runs on the render loop only; sources handle
// their own synchronization against the audio threads.
type Builder struct {
	frameSize     int
	windowSeconds float64

	seq    uint64
	yMin   float64
	yMax   float64
	haveY  bool
	caches []seriesCache
}

// seriesCache keeps one channel's normalized time-plot arrays between
// ticks. It is reused until new samples arrive or the time-axis
// compression changes.
type seriesCache struct {
	valid      bool
	seq        uint64
	adjustment float64
	x          []float64
	y          []float64
	maxAbs     float64
}

// tick accumulates the per-tick maxima across channels that feed the
// shared Y range.
type tick struct {
	maxAbs float64
}

func (t *tick) observe(v float64) {
	if a := math.Abs(v); a > t.maxAbs {
		t.maxAbs = a
	}
}

// NewBuilder returns a Builder for the given fixed-mode snapshot length
// and time-plot window.
func NewBuilder(frameSize int, windowSeconds float64) *Builder {
	if frameSize <= 0 {
		frameSize = types.DefaultFrameSize
	}
	if windowSeconds <= 0 {
		windowSeconds = types.DefaultWindowSeconds
	}
	return &Builder{
		frameSize:     frameSize,
		windowSeconds: windowSeconds,
	}
}

// Build produces the next frame. Any fault during assembly yields a
// zero frame marked Skipped instead of propagating to the render loop.
func (b *Builder) Build(sources []Source, settings types.DisplaySettings) (frame types.Frame) {
	b.seq++

	defer func() {
		if r := recover(); r != nil {
			frame = b.zeroFrame(len(sources), settings)
		}
	}()

	if len(b.caches) != len(sources) {
		b.caches = make([]seriesCache, len(sources))
	}

	acc := &tick{}
	haveData := !settings.TimePlot // fixed snapshots are always full length
	channels := make([]types.ChannelSeries, 0, len(sources))
	for i, src := range sources {
		var series types.ChannelSeries
		if settings.TimePlot {
			series = b.buildTimeSeries(i, src, settings, acc)
		} else {
			series = b.buildFixed(i, src, settings, acc)
		}
		if len(series.X) > 0 {
			haveData = true
		}
		channels = append(channels, series)
	}

	yMin, yMax := b.advanceYRange(acc.maxAbs)

	return types.Frame{
		Seq:      b.seq,
		TimePlot: settings.TimePlot,
		XAxis:    b.xAxis(settings, haveData),
		YMin:     yMin,
		YMax:     yMax,
		Channels: channels,
	}
}

// buildFixed renders the most recent ring snapshot against sample
// indexes. The snapshot is always exactly frameSize long, so the x
// axis stays pinned regardless of how much audio has arrived.
func (b *Builder) buildFixed(index int, src Source, settings types.DisplaySettings, acc *tick) types.ChannelSeries {
	samples := src.RingSnapshot(b.frameSize)

	x := make([]float64, len(samples))
	y := make([]float64, len(samples))
	for i, v := range samples {
		x[i] = float64(i)
		scaled := float64(v) * settings.Gain
		if !audio.IsFinite(scaled) {
			scaled = 0
		}
		y[i] = scaled
		acc.observe(scaled)
	}

	return b.withLevels(index, src, x, y)
}

// buildTimeSeries renders the scrolling time plot. Normalized arrays
// are cached and reused until new samples arrive or the time-axis
// compression changes.
func (b *Builder) buildTimeSeries(index int, src Source, settings types.DisplaySettings, acc *tick) types.ChannelSeries {
	c := &b.caches[index]
	if !c.valid || c.seq != src.SeriesSeq() || c.adjustment != settings.RateAdjustment {
		b.rebuildSeries(c, src, settings)
	}
	acc.observe(c.maxAbs)
	return b.withLevels(index, src, c.x, c.y)
}

// rebuildSeries recomputes one channel's normalized arrays: the oldest
// retained sample maps to x=0 and x is clipped to the compressed
// window.
func (b *Builder) rebuildSeries(c *seriesCache, src Source, settings types.DisplaySettings) {
	times, vals, seq := src.SeriesSnapshot()

	limit := b.windowSeconds * settings.RateAdjustment
	var offset float64
	if len(times) > 0 {
		offset = times[0]
	}

	x := make([]float64, 0, len(times))
	y := make([]float64, 0, len(times))
	maxAbs := 0.0
	for i := range times {
		t := times[i] - offset
		if t < 0 {
			t = 0
		}
		if t > limit {
			t = limit
		}
		v := float64(vals[i]) * settings.Gain
		if !audio.IsFinite(v) {
			v = 0
		}
		x = append(x, t)
		y = append(y, v)
		if a := math.Abs(v); a > maxAbs {
			maxAbs = a
		}
	}

	if len(x) > types.MaxDisplayPoints {
		x, y = Downsample(x, y, types.MaxDisplayPoints)
	}

	c.valid = true
	c.seq = seq
	c.adjustment = settings.RateAdjustment
	c.x = x
	c.y = y
	c.maxAbs = maxAbs
}

// withLevels attaches the channel's text readouts to the series.
func (b *Builder) withLevels(index int, src Source, x, y []float64) types.ChannelSeries {
	lv := src.Levels()
	return types.ChannelSeries{
		Channel:    index,
		X:          x,
		Y:          y,
		Level:      lv.Level,
		LevelDB:    audio.LevelDB(lv.Level),
		Peak:       lv.Peak,
		NoiseFloor: lv.NoiseFloor,
		Average:    lv.Average,
	}
}

// advanceYRange derives the shared Y range from the tick's largest
// amplitude. The first frame adopts the target directly; later frames
// blend toward it. Non-finite results reset to the default range.
func (b *Builder) advanceYRange(maxAbs float64) (float64, float64) {
	target := math.Max(yRangeHeadroom*maxAbs, yRangeFloor)

	switch {
	case !audio.IsFinite(target):
		b.yMin, b.yMax = -yRangeFloor, yRangeFloor
	case !b.haveY:
		b.yMin, b.yMax = -target, target
	default:
		yMax := yRangeSmoothing*b.yMax + (1-yRangeSmoothing)*target
		if !audio.IsFinite(yMax) {
			yMax = yRangeFloor
		}
		b.yMin, b.yMax = -yMax, yMax
	}
	b.haveY = true
	return b.yMin, b.yMax
}

// xAxis reports the x bounds for the current mode. A time plot with no
// points yet leaves the axis free so the client keeps autoscaling until
// the first block lands.
func (b *Builder) xAxis(settings types.DisplaySettings, haveData bool) types.Axis {
	if settings.TimePlot {
		if !haveData {
			return types.Axis{Policy: types.AxisFreeAutoscale}
		}
		return types.Axis{
			Policy: types.AxisLockedFixed,
			Min:    0,
			Max:    b.windowSeconds * settings.RateAdjustment,
		}
	}
	return types.Axis{
		Policy: types.AxisLockedFixed,
		Min:    0,
		Max:    float64(b.frameSize - 1),
	}
}

// zeroFrame is the fallback emitted when frame assembly faults. The
// render loop always receives a well-formed frame.
func (b *Builder) zeroFrame(channels int, settings types.DisplaySettings) types.Frame {
	yMin, yMax := -yRangeFloor, yRangeFloor
	if b.haveY {
		yMin, yMax = b.yMin, b.yMax
	}

	series := make([]types.ChannelSeries, channels)
	for i := range series {
		series[i] = types.ChannelSeries{
			Channel: i,
			X:       []float64{},
			Y:       []float64{},
			LevelDB: audio.MinDB,
		}
	}

	return types.Frame{
		Seq:      b.seq,
		TimePlot: settings.TimePlot,
		XAxis:    b.xAxis(settings, !settings.TimePlot),
		YMin:     yMin,
		YMax:     yMax,
		Channels: series,
		Skipped:  true,
	}
}
