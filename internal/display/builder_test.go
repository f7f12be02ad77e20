package display

import (
	"math"
	"slices"
	"testing"

	"github.com/oszuidwest/zwfm-micmonitor/internal/audio"
	"github.com/oszuidwest/zwfm-micmonitor/internal/types"
)

// fakeSource is a scriptable Source for builder tests.
type fakeSource struct {
	samples []float32
	times   []float64
	vals    []float32
	seq     uint64
	levels  audio.LevelSnapshot
}

func (f *fakeSource) RingSnapshot(n int) []float32 {
	out := make([]float32, n)
	take := min(n, len(f.samples))
	copy(out[n-take:], f.samples[len(f.samples)-take:])
	return out
}

func (f *fakeSource) SeriesSnapshot() ([]float64, []float32, uint64) {
	return slices.Clone(f.times), slices.Clone(f.vals), f.seq
}

func (f *fakeSource) SeriesSeq() uint64 {
	return f.seq
}

func (f *fakeSource) Levels() audio.LevelSnapshot {
	return f.levels
}

func fixedSettings() types.DisplaySettings {
	return types.DisplaySettings{
		Gain:            1.0,
		RateAdjustment:  1.0,
		FrameIntervalMs: types.DefaultFrameIntervalMs,
	}
}

func timePlotSettings() types.DisplaySettings {
	s := fixedSettings()
	s.TimePlot = true
	return s
}

func TestBuilder_FixedModePadsToFrameSize(t *testing.T) {
	t.Parallel()

	src := &fakeSource{samples: []float32{0.5, 0.5, 0.5}}
	b := NewBuilder(512, 0.3)

	settings := fixedSettings()
	settings.Gain = 2.0
	frame := b.Build([]Source{src}, settings)

	if frame.Skipped {
		t.Fatal("frame marked Skipped")
	}
	series := frame.Channels[0]
	if len(series.X) != 512 || len(series.Y) != 512 {
		t.Fatalf("series lengths = %d, %d, want 512, 512", len(series.X), len(series.Y))
	}
	if series.X[0] != 0 || series.X[511] != 511 {
		t.Errorf("x bounds = %v..%v, want 0..511", series.X[0], series.X[511])
	}
	if series.Y[0] != 0 {
		t.Errorf("Y[0] = %v, want zero padding", series.Y[0])
	}
	if math.Abs(series.Y[511]-1.0) > 1e-6 {
		t.Errorf("Y[511] = %v, want gain-scaled 1.0", series.Y[511])
	}

	if frame.XAxis.Policy != types.AxisLockedFixed || frame.XAxis.Min != 0 || frame.XAxis.Max != 511 {
		t.Errorf("XAxis = %+v, want locked 0..511", frame.XAxis)
	}
}

func TestBuilder_YRangeTargetThenSmoothing(t *testing.T) {
	t.Parallel()

	loud := &fakeSource{samples: []float32{0.5}}
	quiet := &fakeSource{samples: []float32{0.2}}
	b := NewBuilder(8, 0.3)

	// First tick adopts the unsmoothed target: 1.2 x 0.5 = 0.6.
	frame := b.Build([]Source{loud, quiet}, fixedSettings())
	if math.Abs(frame.YMax-0.6) > 1e-9 || math.Abs(frame.YMin+0.6) > 1e-9 {
		t.Fatalf("first YRange = (%v, %v), want (-0.6, 0.6)", frame.YMin, frame.YMax)
	}

	// Silence drops the target to the floor; the range blends 9:1.
	loud.samples = nil
	quiet.samples = nil
	frame = b.Build([]Source{loud, quiet}, fixedSettings())
	want := 0.9*0.6 + 0.1*0.1
	if math.Abs(frame.YMax-want) > 1e-9 {
		t.Errorf("smoothed YMax = %v, want %v", frame.YMax, want)
	}
}

func TestBuilder_YRangeFloor(t *testing.T) {
	t.Parallel()

	b := NewBuilder(8, 0.3)
	frame := b.Build([]Source{&fakeSource{}}, fixedSettings())

	if frame.YMax != 0.1 || frame.YMin != -0.1 {
		t.Errorf("YRange for silence = (%v, %v), want (-0.1, 0.1)", frame.YMin, frame.YMax)
	}
}

func TestBuilder_TimePlotNormalizesOldestToZero(t *testing.T) {
	t.Parallel()

	src := &fakeSource{
		times: []float64{5.00, 5.01, 5.02},
		vals:  []float32{0.1, 0.2, 0.3},
		seq:   1,
	}
	b := NewBuilder(512, 0.3)

	frame := b.Build([]Source{src}, timePlotSettings())
	series := frame.Channels[0]

	wantX := []float64{0, 0.01, 0.02}
	for i := range wantX {
		if math.Abs(series.X[i]-wantX[i]) > 1e-9 {
			t.Errorf("X[%d] = %v, want %v", i, series.X[i], wantX[i])
		}
	}
	if math.Abs(series.Y[2]-float64(float32(0.3))) > 1e-6 {
		t.Errorf("Y[2] = %v, want 0.3", series.Y[2])
	}
	if !frame.TimePlot {
		t.Error("frame.TimePlot = false")
	}
}

func TestBuilder_TimePlotClipsToCompressedWindow(t *testing.T) {
	t.Parallel()

	src := &fakeSource{
		times: []float64{0, 0.1, 0.5},
		vals:  []float32{0.1, 0.1, 0.1},
		seq:   1,
	}
	b := NewBuilder(512, 0.3)

	frame := b.Build([]Source{src}, timePlotSettings())
	series := frame.Channels[0]
	if math.Abs(series.X[2]-0.3) > 1e-9 {
		t.Errorf("X[2] = %v, want clipped to 0.3", series.X[2])
	}
	if frame.XAxis.Max != 0.3 {
		t.Errorf("XAxis.Max = %v, want 0.3", frame.XAxis.Max)
	}

	// Doubling the compression doubles the visible window.
	settings := timePlotSettings()
	settings.RateAdjustment = 2.0
	frame = b.Build([]Source{src}, settings)
	series = frame.Channels[0]
	if math.Abs(series.X[2]-0.5) > 1e-9 {
		t.Errorf("X[2] at adjustment 2.0 = %v, want 0.5", series.X[2])
	}
	if frame.XAxis.Max != 0.6 {
		t.Errorf("XAxis.Max at adjustment 2.0 = %v, want 0.6", frame.XAxis.Max)
	}
}

func TestBuilder_TimePlotStartsFreeAutoscale(t *testing.T) {
	t.Parallel()

	b := NewBuilder(512, 0.3)

	frame := b.Build([]Source{&fakeSource{}}, timePlotSettings())
	if frame.XAxis.Policy != types.AxisFreeAutoscale {
		t.Fatalf("XAxis.Policy before data = %q, want free autoscale", frame.XAxis.Policy)
	}

	src := &fakeSource{times: []float64{0}, vals: []float32{0.1}, seq: 1}
	frame = b.Build([]Source{src}, timePlotSettings())
	if frame.XAxis.Policy != types.AxisLockedFixed {
		t.Errorf("XAxis.Policy with data = %q, want locked", frame.XAxis.Policy)
	}
}

func TestBuilder_TimePlotCacheReusedUntilDirty(t *testing.T) {
	t.Parallel()

	src := &fakeSource{
		times: []float64{0, 0.01},
		vals:  []float32{0.1, 0.2},
		seq:   1,
	}
	b := NewBuilder(512, 0.3)

	frame := b.Build([]Source{src}, timePlotSettings())
	firstY := frame.Channels[0].Y[1]

	// Mutating the data without bumping the sequence must not be
	// visible: the cache is still considered clean.
	src.vals = []float32{0.1, 0.9}
	frame = b.Build([]Source{src}, timePlotSettings())
	if got := frame.Channels[0].Y[1]; got != firstY {
		t.Fatalf("Y[1] = %v, want cached %v", got, firstY)
	}

	// A sequence bump invalidates the cache.
	src.seq = 2
	frame = b.Build([]Source{src}, timePlotSettings())
	if got := frame.Channels[0].Y[1]; math.Abs(got-float64(float32(0.9))) > 1e-6 {
		t.Fatalf("Y[1] after new samples = %v, want 0.9", got)
	}

	// So does an adjustment change, even with no new samples.
	settings := timePlotSettings()
	settings.RateAdjustment = 0.5
	frame = b.Build([]Source{src}, settings)
	if got := frame.XAxis.Max; math.Abs(got-0.15) > 1e-9 {
		t.Fatalf("XAxis.Max = %v, want 0.15", got)
	}
}

func TestBuilder_FaultYieldsZeroFrame(t *testing.T) {
	t.Parallel()

	// Mismatched series lengths make assembly fault; the builder must
	// fall back to a well-formed zero frame.
	src := &fakeSource{
		times: []float64{0, 0.01, 0.02},
		vals:  []float32{0.1, 0.2},
		seq:   1,
	}
	b := NewBuilder(512, 0.3)

	frame := b.Build([]Source{src}, timePlotSettings())
	if !frame.Skipped {
		t.Fatal("frame not marked Skipped")
	}
	if len(frame.Channels) != 1 {
		t.Fatalf("len(Channels) = %d, want 1", len(frame.Channels))
	}
	if len(frame.Channels[0].X) != 0 || len(frame.Channels[0].Y) != 0 {
		t.Errorf("zero frame series = (%v, %v), want empty", frame.Channels[0].X, frame.Channels[0].Y)
	}
	if frame.YMin != -0.1 || frame.YMax != 0.1 {
		t.Errorf("zero frame YRange = (%v, %v), want (-0.1, 0.1)", frame.YMin, frame.YMax)
	}

	// The next healthy build keeps the sequence moving.
	src.vals = []float32{0.1, 0.2, 0.3}
	src.seq = 2
	next := b.Build([]Source{src}, timePlotSettings())
	if next.Skipped {
		t.Fatal("healthy frame marked Skipped")
	}
	if next.Seq != frame.Seq+1 {
		t.Errorf("Seq = %d, want %d", next.Seq, frame.Seq+1)
	}
}

func TestBuilder_LevelReadouts(t *testing.T) {
	t.Parallel()

	src := &fakeSource{
		levels: audio.LevelSnapshot{
			Level:      0.5,
			Peak:       0.8,
			NoiseFloor: 0.01,
			Average:    0.4,
		},
	}
	b := NewBuilder(8, 0.3)

	frame := b.Build([]Source{src}, fixedSettings())
	series := frame.Channels[0]

	if series.Level != 0.5 || series.Peak != 0.8 || series.NoiseFloor != 0.01 || series.Average != 0.4 {
		t.Errorf("readouts = %+v, want levels passed through", series)
	}
	if math.Abs(series.LevelDB-20*math.Log10(0.5+1e-10)) > 1e-9 {
		t.Errorf("LevelDB = %v, want about -6.02", series.LevelDB)
	}
}

func TestBuilder_NoSources(t *testing.T) {
	t.Parallel()

	b := NewBuilder(8, 0.3)
	frame := b.Build(nil, fixedSettings())

	if len(frame.Channels) != 0 {
		t.Errorf("len(Channels) = %d, want 0", len(frame.Channels))
	}
	if frame.YMax != 0.1 {
		t.Errorf("YMax = %v, want floor 0.1", frame.YMax)
	}
}
