package audio

import (
	"math"
	"testing"
)

func TestRing_SnapshotExactLength(t *testing.T) {
	t.Parallel()

	r := NewRing(8)
	r.PushSlice([]float32{1, 2, 3})

	for _, n := range []int{0, 1, 3, 5, 8, 20} {
		got := r.Snapshot(n)
		if len(got) != n {
			t.Errorf("Snapshot(%d) len = %d, want %d", n, len(got), n)
		}
	}
}

func TestRing_SnapshotZeroPadsFront(t *testing.T) {
	t.Parallel()

	r := NewRing(8)
	r.PushSlice([]float32{1, 2, 3})

	got := r.Snapshot(5)
	want := []float32{0, 0, 1, 2, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Snapshot(5) = %v, want %v", got, want)
		}
	}
}

func TestRing_SnapshotReturnsMostRecent(t *testing.T) {
	t.Parallel()

	r := NewRing(8)
	r.PushSlice([]float32{1, 2, 3, 4, 5})

	got := r.Snapshot(2)
	want := []float32{4, 5}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Snapshot(2) = %v, want %v", got, want)
		}
	}
}

func TestRing_WrapDropsOldest(t *testing.T) {
	t.Parallel()

	r := NewRing(4)
	r.PushSlice([]float32{1, 2, 3, 4, 5, 6})

	if r.Len() != 4 {
		t.Errorf("Len() = %d, want 4", r.Len())
	}

	got := r.Snapshot(4)
	want := []float32{3, 4, 5, 6}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Snapshot(4) = %v, want %v", got, want)
		}
	}
}

func TestRing_PushSliceSanitizesNonFinite(t *testing.T) {
	t.Parallel()

	nan := float32(math.NaN())
	posInf := float32(math.Inf(1))
	negInf := float32(math.Inf(-1))

	r := NewRing(8)
	r.PushSlice([]float32{0.5, nan, posInf, negInf, -0.5})

	got := r.Snapshot(5)
	want := []float32{0.5, 0, 0, 0, -0.5}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Snapshot(5) = %v, want %v", got, want)
		}
	}
}

func TestRing_Reset(t *testing.T) {
	t.Parallel()

	r := NewRing(8)
	r.PushSlice([]float32{1, 2, 3})
	r.Reset()

	if r.Len() != 0 {
		t.Errorf("Len() after Reset = %d, want 0", r.Len())
	}

	got := r.Snapshot(3)
	for i, v := range got {
		if v != 0 {
			t.Errorf("Snapshot(3)[%d] after Reset = %v, want 0", i, v)
		}
	}
}

func TestRing_CapacityGuard(t *testing.T) {
	t.Parallel()

	r := NewRing(0)
	if r.Capacity() < 1 {
		t.Errorf("Capacity() = %d, want >= 1", r.Capacity())
	}
}

func TestSanitize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   float32
		want float32
	}{
		{"finite", 0.25, 0.25},
		{"negative", -1.5, -1.5},
		{"zero", 0, 0},
		{"nan", float32(math.NaN()), 0},
		{"positive infinity", float32(math.Inf(1)), 0},
		{"negative infinity", float32(math.Inf(-1)), 0},
	}

	for _, tt := range tests {
		if got := Sanitize(tt.in); got != tt.want {
			t.Errorf("Sanitize(%s) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

// BenchmarkRing_PushSliceZeroAllocs verifies the audio path does not
// allocate after construction.
func BenchmarkRing_PushSliceZeroAllocs(b *testing.B) {
	r := NewRing(2048)
	block := make([]float32, 512)
	for i := range block {
		block[i] = float32(i) / 512
	}

	// Warm up
	r.PushSlice(block)

	allocs := testing.AllocsPerRun(100, func() {
		r.PushSlice(block)
	})
	if allocs > 0 {
		b.Errorf("PushSlice() allocated %v times, want 0", allocs)
	}
}

func BenchmarkRing_Snapshot(b *testing.B) {
	r := NewRing(2048)
	block := make([]float32, 512)
	for range 4 {
		r.PushSlice(block)
	}

	b.ResetTimer()
	b.ReportAllocs()

	for b.Loop() {
		_ = r.Snapshot(512)
	}
}
