package micdump

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/oszuidwest/zwfm-micmonitor/internal/audio"
)

// testRate keeps buffers tiny: one second is 100 samples.
const testRate = 100

func block(value float32, n int) []float32 {
	b := make([]float32, n)
	for i := range b {
		b[i] = value
	}
	return b
}

func waitForDump(t *testing.T, results <-chan *DumpResult) *DumpResult {
	t.Helper()
	select {
	case res := <-results:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("no dump result within timeout")
		return nil
	}
}

func decodeDump(t *testing.T, path string) ([]int, int) {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open dump: %v", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode dump: %v", err)
	}
	if dec.NumChans != 1 || dec.BitDepth != 16 {
		t.Errorf("dump format = %d ch / %d bit, want 1 ch / 16 bit", dec.NumChans, dec.BitDepth)
	}
	return buf.Data, int(dec.SampleRate)
}

func TestCapturer_EpisodeFlow(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	results := make(chan *DumpResult, 1)
	c := NewCapturer(0, testRate, dir, func(res *DumpResult) { results <- res })

	// Two seconds of audio, then the mic goes dead.
	c.WriteSamples(block(0.5, 200))
	c.OnSilenceStart()

	// Three seconds of dead air; the detector confirms recovery one
	// second after audio actually returned.
	c.WriteSamples(block(0, 300))
	c.OnSilenceRecover(3*time.Second, 1*time.Second)

	// Feed audio until the post-recovery tail is complete.
	for range 14 {
		c.WriteSamples(block(0.5, testRate))
	}

	res := waitForDump(t, results)
	if res.Err != nil {
		t.Fatalf("dump error = %v", res.Err)
	}
	if res.Channel != 0 {
		t.Errorf("Channel = %d, want 0", res.Channel)
	}
	if res.Duration != 2*time.Second {
		t.Errorf("Duration = %v, want 2s", res.Duration)
	}
	if !strings.HasSuffix(res.Filename, "_ch1.wav") {
		t.Errorf("Filename = %q, want _ch1.wav suffix", res.Filename)
	}
	if _, ok := extractDateFromFilename(res.Filename); !ok {
		t.Errorf("Filename = %q, want leading date", res.Filename)
	}

	data, rate := decodeDump(t, res.FilePath)
	if rate != testRate {
		t.Errorf("sample rate = %d, want %d", rate, testRate)
	}
	// 2s lead-in, 2s backdated silence, 15s tail.
	if len(data) != 1900 {
		t.Fatalf("decoded samples = %d, want 1900", len(data))
	}
	if data[150] != 16383 {
		t.Errorf("lead-in sample = %d, want 16383", data[150])
	}
	if data[250] != 0 {
		t.Errorf("silence sample = %d, want 0", data[250])
	}
	if data[1899] != 16383 {
		t.Errorf("tail sample = %d, want 16383", data[1899])
	}
}

func TestCapturer_RecoveryClampAndEmptySilence(t *testing.T) {
	t.Parallel()

	results := make(chan *DumpResult, 1)
	c := NewCapturer(2, testRate, t.TempDir(), func(res *DumpResult) { results <- res })

	c.WriteSamples(block(0.25, 100))
	c.OnSilenceStart()
	// Recovery hysteresis longer than the whole stream so far. The end
	// position must clamp to the start instead of going negative.
	c.OnSilenceRecover(time.Second, 5*time.Second)

	if c.episodeEndPos != c.episodeStartPos {
		t.Fatalf("episodeEndPos = %d, want clamped to %d", c.episodeEndPos, c.episodeStartPos)
	}

	c.WriteSamples(block(0.25, 15*testRate))

	res := waitForDump(t, results)
	if res.Err != nil {
		t.Fatalf("dump error = %v", res.Err)
	}
	if !strings.HasSuffix(res.Filename, "_ch3.wav") {
		t.Errorf("Filename = %q, want _ch3.wav suffix", res.Filename)
	}

	// 1s lead-in, no silence slice, 15s tail.
	data, _ := decodeDump(t, res.FilePath)
	if len(data) != 1600 {
		t.Errorf("decoded samples = %d, want 1600", len(data))
	}
}

func TestCapturer_BackToBackEpisodesFlushShortTail(t *testing.T) {
	t.Parallel()

	results := make(chan *DumpResult, 2)
	c := NewCapturer(0, testRate, t.TempDir(), func(res *DumpResult) { results <- res })

	c.WriteSamples(block(0.5, 100))
	c.OnSilenceStart()
	c.WriteSamples(block(0, 100))
	c.OnSilenceRecover(time.Second, 0)

	// Only three seconds of tail arrive before the mic dies again. The
	// first episode must flush with the short tail, not stale ring data.
	c.WriteSamples(block(0.5, 300))
	c.OnSilenceStart()

	res := waitForDump(t, results)
	if res.Err != nil {
		t.Fatalf("dump error = %v", res.Err)
	}
	if res.Duration != time.Second {
		t.Errorf("Duration = %v, want 1s", res.Duration)
	}

	// 1s lead-in, 1s silence, 3s tail.
	data, _ := decodeDump(t, res.FilePath)
	if len(data) != 500 {
		t.Fatalf("decoded samples = %d, want 500", len(data))
	}
	if data[50] != 16383 {
		t.Errorf("lead-in sample = %d, want 16383", data[50])
	}
	if data[150] != 0 {
		t.Errorf("silence sample = %d, want 0", data[150])
	}
	if data[499] != 16383 {
		t.Errorf("tail sample = %d, want 16383", data[499])
	}

	if !c.capturing {
		t.Error("capturing = false, want second episode in progress")
	}
}

func TestCapturer_DisabledIgnoresEvents(t *testing.T) {
	t.Parallel()

	c := NewCapturer(0, testRate, t.TempDir(), nil)
	c.SetEnabled(false)

	c.WriteSamples(block(0.5, 100))
	c.OnSilenceStart()

	if c.capturing {
		t.Error("capturing = true after OnSilenceStart while disabled")
	}
	if c.totalWritten != 0 {
		t.Errorf("totalWritten = %d, want 0 while disabled", c.totalWritten)
	}
}

func TestCapturer_Reset(t *testing.T) {
	t.Parallel()

	c := NewCapturer(0, testRate, t.TempDir(), nil)
	c.WriteSamples(block(0.5, 100))
	c.OnSilenceStart()

	c.Reset()

	if c.capturing || c.totalWritten != 0 || c.savedBefore != nil {
		t.Errorf("state after Reset = capturing %v, totalWritten %d, savedBefore %v",
			c.capturing, c.totalWritten, c.savedBefore)
	}
}

func TestCapturer_RingWrap(t *testing.T) {
	t.Parallel()

	c := NewCapturer(0, 2, t.TempDir(), nil) // 70-sample ring

	samples := make([]float32, 100)
	for i := range samples {
		samples[i] = float32(i)
	}
	c.WriteSamples(samples)

	dst := make([]float32, 10)
	c.copyFromRing(dst, 90)
	for i, v := range dst {
		if v != float32(90+i) {
			t.Fatalf("copyFromRing()[%d] = %v, want %v", i, v, 90+i)
		}
	}
}

func TestManager_RoutesEventsAndSamples(t *testing.T) {
	t.Parallel()

	m := NewManager(t.TempDir(), nil)
	m.SetEnabled(true)
	m.Configure([]int{testRate, testRate})

	m.WriteSamples(0, block(0.5, 50))
	if got := m.capturers[0].totalWritten; got != 50 {
		t.Errorf("capturer 0 totalWritten = %d, want 50", got)
	}
	if got := m.capturers[1].totalWritten; got != 0 {
		t.Errorf("capturer 1 totalWritten = %d, want 0", got)
	}

	// Out-of-range channels are dropped.
	m.WriteSamples(5, block(0.5, 50))
	m.HandleSilenceEvent(audio.SilenceEvent{Channel: 5, JustSilenced: true}, time.Second)

	m.HandleSilenceEvent(audio.SilenceEvent{Channel: 1, JustSilenced: true}, time.Second)
	if !m.capturers[1].capturing {
		t.Error("capturer 1 not capturing after JustSilenced event")
	}
	if m.capturers[0].capturing {
		t.Error("capturer 0 capturing without an event")
	}

	m.HandleSilenceEvent(audio.SilenceEvent{Channel: 1, JustRecovered: true, TotalDurationMs: 1000}, time.Second)
	if m.capturers[1].episodeEndPos != m.capturers[1].episodeStartPos {
		t.Errorf("episodeEndPos = %d, want clamped to %d",
			m.capturers[1].episodeEndPos, m.capturers[1].episodeStartPos)
	}
}

func TestManager_EnableRebuildsCapturers(t *testing.T) {
	t.Parallel()

	m := NewManager(t.TempDir(), nil)

	// Disabled managers carry no capturers even when configured.
	m.Configure([]int{testRate})
	if m.capturers != nil {
		t.Fatalf("capturers = %v, want nil while disabled", m.capturers)
	}

	m.SetEnabled(true)
	if len(m.capturers) != 1 {
		t.Fatalf("capturers after enable = %d, want 1 from stored rates", len(m.capturers))
	}

	m.SetEnabled(false)
	if m.capturers != nil {
		t.Errorf("capturers after disable = %v, want nil", m.capturers)
	}
}

func TestManager_CleanupRetention(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	m := NewManager(dir, nil)
	m.SetRetentionDays(7)

	old := filepath.Join(dir, "2020-01-01_00-00-00_ch1.wav")
	recent := filepath.Join(dir, time.Now().Format("2006-01-02")+"_12-00-00_ch1.wav")
	undated := filepath.Join(dir, "notes.wav")
	otherExt := filepath.Join(dir, "2020-01-01_00-00-00_ch1.txt")
	for _, p := range []string{old, recent, undated, otherExt} {
		if err := os.WriteFile(p, []byte("x"), 0o600); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}

	m.runCleanup()

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("old dump survived cleanup")
	}
	for _, p := range []string{recent, undated, otherExt} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("cleanup removed %s: %v", filepath.Base(p), err)
		}
	}

	// Retention 0 keeps everything.
	if err := os.WriteFile(old, []byte("x"), 0o600); err != nil {
		t.Fatalf("rewrite old file: %v", err)
	}
	m.SetRetentionDays(0)
	m.runCleanup()
	if _, err := os.Stat(old); err != nil {
		t.Error("cleanup ran despite zero retention")
	}
}

func TestExtractDateFromFilename(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		filename string
		want     string
		ok       bool
	}{
		{"dump name", "2025-01-15_14-32-05_ch1.wav", "2025-01-15", true},
		{"date only", "2024-12-31.wav", "2024-12-31", true},
		{"no date", "notes.wav", "", false},
		{"impossible date", "2025-13-99_ch1.wav", "", false},
	}

	for _, tt := range tests {
		got, ok := extractDateFromFilename(tt.filename)
		if ok != tt.ok {
			t.Errorf("extractDateFromFilename(%s) ok = %v, want %v", tt.name, ok, tt.ok)
			continue
		}
		if ok && got.Format("2006-01-02") != tt.want {
			t.Errorf("extractDateFromFilename(%s) = %s, want %s", tt.name, got.Format("2006-01-02"), tt.want)
		}
	}
}

func TestOutputDirForPort(t *testing.T) {
	t.Parallel()

	got := OutputDirForPort(9090)
	if !strings.HasSuffix(got, "micmonitor-dumps-9090") {
		t.Errorf("OutputDirForPort(9090) = %q, want micmonitor-dumps-9090 suffix", got)
	}
}
