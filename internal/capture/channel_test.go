package capture

import (
	"math"
	"slices"
	"testing"

	"github.com/oszuidwest/zwfm-micmonitor/internal/types"
)

func TestFallbackRates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		target int
		want   []int
	}{
		{"default target", 44100, []int{44100, 48000, 96000, 192000}},
		{"unlisted target", 22050, []int{22050, 44100, 48000, 96000, 192000}},
		{"standard target", 48000, []int{48000, 44100, 96000, 192000}},
		{"high target", 192000, []int{192000, 44100, 48000, 96000}},
	}

	for _, tt := range tests {
		if got := fallbackRates(tt.target); !slices.Equal(got, tt.want) {
			t.Errorf("fallbackRates(%s) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestResolveDevices(t *testing.T) {
	t.Parallel()

	two := 2
	five := 5

	tests := []struct {
		name      string
		selection []*int
		channels  int
		want      []int
	}{
		{"nil selection", nil, 3, []int{-1, -1, -1}},
		{"all defaults", []*int{nil, nil}, 2, []int{-1, -1}},
		{"mixed", []*int{nil, &two}, 3, []int{-1, 2, -1}},
		{"surplus dropped", []*int{&two, &five, &two}, 2, []int{2, 5}},
	}

	for _, tt := range tests {
		if got := ResolveDevices(tt.selection, tt.channels); !slices.Equal(got, tt.want) {
			t.Errorf("ResolveDevices(%s) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestSelection(t *testing.T) {
	t.Parallel()

	got := Selection([]int{types.DefaultDevice, 3})
	if len(got) != 2 {
		t.Fatalf("Selection() len = %d, want 2", len(got))
	}
	if got[0] != nil {
		t.Errorf("Selection()[0] = %v, want nil", *got[0])
	}
	if got[1] == nil || *got[1] != 3 {
		t.Errorf("Selection()[1] = %v, want 3", got[1])
	}
}

func TestChannelIngest_PadsShortBlocks(t *testing.T) {
	t.Parallel()

	ch := newChannel(0, types.DefaultDevice, 8, nil)
	ch.activate(1000, false, 0.3, 1.0)

	ch.ingest([]float32{1, 2, 3})

	got := ch.RingSnapshot(8)
	want := []float32{1, 2, 3, 0, 0, 0, 0, 0}
	if !slices.Equal(got, want) {
		t.Errorf("RingSnapshot(8) = %v, want %v", got, want)
	}
}

func TestChannelIngest_TruncatesLongBlocks(t *testing.T) {
	t.Parallel()

	ch := newChannel(0, types.DefaultDevice, 4, nil)
	ch.activate(1000, false, 0.3, 1.0)

	ch.ingest([]float32{1, 2, 3, 4, 5, 6, 7, 8})

	got := ch.RingSnapshot(4)
	want := []float32{1, 2, 3, 4}
	if !slices.Equal(got, want) {
		t.Errorf("RingSnapshot(4) = %v, want %v", got, want)
	}
}

func TestChannelIngest_CountsSanitizedSamples(t *testing.T) {
	t.Parallel()

	ch := newChannel(0, types.DefaultDevice, 4, nil)
	ch.activate(1000, false, 0.3, 1.0)

	ch.ingest([]float32{float32(math.NaN()), 1, float32(math.Inf(1)), 2})

	got := ch.RingSnapshot(4)
	want := []float32{0, 1, 0, 2}
	if !slices.Equal(got, want) {
		t.Errorf("RingSnapshot(4) = %v, want %v", got, want)
	}
	if ch.Sanitized() != 2 {
		t.Errorf("Sanitized() = %d, want 2", ch.Sanitized())
	}
}

func TestChannelIngest_FeedsSink(t *testing.T) {
	t.Parallel()

	var gotChannel int
	var gotSamples []float32
	sink := func(channel int, samples []float32) {
		gotChannel = channel
		gotSamples = slices.Clone(samples)
	}

	ch := newChannel(3, types.DefaultDevice, 4, sink)
	ch.activate(1000, false, 0.3, 1.0)

	ch.ingest([]float32{float32(math.NaN()), 1, 2})

	if gotChannel != 3 {
		t.Errorf("sink channel = %d, want 3", gotChannel)
	}
	// The sink sees the sanitized, zero-padded block.
	want := []float32{0, 1, 2, 0}
	if !slices.Equal(gotSamples, want) {
		t.Errorf("sink samples = %v, want %v", gotSamples, want)
	}
}

func TestChannelIngest_RecoversFaults(t *testing.T) {
	t.Parallel()

	// A channel with no level tracker makes the pipeline panic; ingest
	// must swallow it and count the fault.
	ch := &Channel{scratch: make([]float32, 4)}

	ch.ingest([]float32{1, 2, 3, 4})
	ch.ingest([]float32{1, 2, 3, 4})

	if ch.Faults() != 2 {
		t.Errorf("Faults() = %d, want 2", ch.Faults())
	}
}

func TestChannel_AdjustmentRebakesStep(t *testing.T) {
	t.Parallel()

	ch := newChannel(0, types.DefaultDevice, 2, nil)
	ch.activate(1000, true, 1.0, 1.0)

	ch.ingest([]float32{1, 2})
	ch.setAdjustment(2.0)
	ch.ingest([]float32{3, 4})

	times, _, _ := ch.SeriesSnapshot()
	want := []float64{0, 0.001, 0.002, 0.004}
	for i := range want {
		if math.Abs(times[i]-want[i]) > 1e-12 {
			t.Errorf("times[%d] = %v, want %v", i, times[i], want[i])
		}
	}
}

func TestChannel_TimePlotToggle(t *testing.T) {
	t.Parallel()

	ch := newChannel(0, types.DefaultDevice, 2, nil)
	ch.activate(1000, true, 0.5, 1.0)

	ch.ingest([]float32{1, 2})
	seq := ch.SeriesSeq()
	if seq == 0 {
		t.Fatal("SeriesSeq() = 0 after ingest")
	}

	// Re-enabling while active keeps the buffer.
	ch.setTimePlot(true, 0.5)
	if got := ch.SeriesSeq(); got != seq {
		t.Errorf("SeriesSeq() after redundant enable = %d, want %d", got, seq)
	}

	// Disabling discards it.
	ch.setTimePlot(false, 0.5)
	if ts, vs, _ := ch.SeriesSnapshot(); ts != nil || vs != nil {
		t.Error("SeriesSnapshot() not empty after disable")
	}

	// Re-enabling starts a fresh buffer with the clock at zero.
	ch.setTimePlot(true, 0.5)
	ch.ingest([]float32{5, 6})
	times, vals, _ := ch.SeriesSnapshot()
	if len(vals) != 2 || times[0] != 0 {
		t.Errorf("fresh series = (%v, %v), want clock restart at 0", times, vals)
	}
}
