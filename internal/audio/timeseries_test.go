package audio

import (
	"math"
	"testing"
)

func TestTimeRing_AppendBlockTimestamps(t *testing.T) {
	t.Parallel()

	r := NewTimeRing(16)
	step := 1.0 / 48000

	r.AppendBlock(step, []float32{0.1, 0.2, 0.3})

	times, vals, _ := r.Snapshot()
	if len(times) != 3 || len(vals) != 3 {
		t.Fatalf("Snapshot() lengths = %d, %d, want 3, 3", len(times), len(vals))
	}

	for i := range times {
		want := float64(i) * step
		if math.Abs(times[i]-want) > 1e-12 {
			t.Errorf("times[%d] = %v, want %v", i, times[i], want)
		}
	}
}

func TestTimeRing_ClockAdvancesAcrossBlocks(t *testing.T) {
	t.Parallel()

	r := NewTimeRing(16)
	step := 0.5

	r.AppendBlock(step, []float32{1, 2})
	r.AppendBlock(step, []float32{3, 4})

	times, vals, _ := r.Snapshot()
	wantTimes := []float64{0, 0.5, 1.0, 1.5}
	wantVals := []float32{1, 2, 3, 4}
	for i := range wantTimes {
		if math.Abs(times[i]-wantTimes[i]) > 1e-12 {
			t.Errorf("times[%d] = %v, want %v", i, times[i], wantTimes[i])
		}
		if vals[i] != wantVals[i] {
			t.Errorf("vals[%d] = %v, want %v", i, vals[i], wantVals[i])
		}
	}
}

func TestTimeRing_WrapKeepsRecent(t *testing.T) {
	t.Parallel()

	r := NewTimeRing(4)
	r.AppendBlock(1.0, []float32{1, 2, 3, 4, 5, 6})

	times, vals, _ := r.Snapshot()
	if len(vals) != 4 {
		t.Fatalf("Snapshot() len = %d, want 4", len(vals))
	}

	// Oldest two samples dropped; timestamps keep their absolute offsets.
	wantTimes := []float64{2, 3, 4, 5}
	wantVals := []float32{3, 4, 5, 6}
	for i := range wantVals {
		if math.Abs(times[i]-wantTimes[i]) > 1e-12 {
			t.Errorf("times[%d] = %v, want %v", i, times[i], wantTimes[i])
		}
		if vals[i] != wantVals[i] {
			t.Errorf("vals[%d] = %v, want %v", i, vals[i], wantVals[i])
		}
	}
}

func TestTimeRing_SeqAdvances(t *testing.T) {
	t.Parallel()

	r := NewTimeRing(8)
	_, _, seq0 := r.Snapshot()

	r.AppendBlock(1.0, []float32{1})
	_, _, seq1 := r.Snapshot()
	if seq1 == seq0 {
		t.Error("Seq unchanged after AppendBlock")
	}

	r.AppendBlock(1.0, []float32{2, 3})
	if got := r.Seq(); got == seq1 {
		t.Error("Seq unchanged after second AppendBlock")
	}

	before := r.Seq()
	r.Reset()
	if got := r.Seq(); got == before {
		t.Error("Seq unchanged after Reset")
	}
}

func TestTimeRing_SnapshotCopies(t *testing.T) {
	t.Parallel()

	r := NewTimeRing(8)
	r.AppendBlock(1.0, []float32{1, 2})

	times, vals, _ := r.Snapshot()
	times[0] = 99
	vals[0] = 99

	times2, vals2, _ := r.Snapshot()
	if times2[0] != 0 || vals2[0] != 1 {
		t.Errorf("Snapshot() shares storage: got times[0]=%v vals[0]=%v", times2[0], vals2[0])
	}
}

func TestTimeRing_ResetClearsClock(t *testing.T) {
	t.Parallel()

	r := NewTimeRing(8)
	r.AppendBlock(1.0, []float32{1, 2, 3})
	r.Reset()

	if r.Len() != 0 {
		t.Errorf("Len() after Reset = %d, want 0", r.Len())
	}

	r.AppendBlock(1.0, []float32{7})
	times, _, _ := r.Snapshot()
	if times[0] != 0 {
		t.Errorf("first timestamp after Reset = %v, want 0", times[0])
	}
}

// BenchmarkTimeRing_AppendBlockZeroAllocs verifies the audio path does
// not allocate after construction.
func BenchmarkTimeRing_AppendBlockZeroAllocs(b *testing.B) {
	r := NewTimeRing(14400)
	block := make([]float32, 512)

	r.AppendBlock(1.0/48000, block)

	allocs := testing.AllocsPerRun(100, func() {
		r.AppendBlock(1.0/48000, block)
	})
	if allocs > 0 {
		b.Errorf("AppendBlock() allocated %v times, want 0", allocs)
	}
}
