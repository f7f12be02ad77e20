// Package micdump captures the audio surrounding dead-mic episodes and
// writes it to WAV files for later review. A rolling per-channel buffer
// keeps the last half minute of samples so an alert can be checked by
// ear: was the microphone really dead, or just very quiet?
package micdump

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	// Episode timing. The file contains up to beforeSeconds of lead-in,
	// a capped slice of the silence itself, and afterSeconds of recovery.
	beforeSeconds     = 15
	maxSilenceSeconds = 5
	afterSeconds      = 15
	bufferSeconds     = beforeSeconds + maxSilenceSeconds + afterSeconds

	// Output subdirectory name prefix (inside the system temp dir).
	outputDirPrefix = "micmonitor-dumps"
)

// OutputDirForPort returns the dump directory, unique per web port so
// two instances on one machine never mix files.
func OutputDirForPort(port int) string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("%s-%d", outputDirPrefix, port))
}

// DumpResult describes one finished episode capture.
type DumpResult struct {
	// Channel is the channel index the episode was captured from.
	Channel int
	// FilePath is the full path to the WAV file.
	FilePath string
	// Filename is the base name of the WAV file.
	Filename string
	// FileSize is the WAV size in bytes.
	FileSize int64
	// Duration is the length of the silence inside the episode.
	Duration time.Duration
	// EpisodeStart is when the silence started.
	EpisodeStart time.Time
	// Err is non-nil if writing the file failed.
	Err error
}

// DumpCallback is called when a dump file is ready or failed.
type DumpCallback func(result *DumpResult)

// Capturer keeps a rolling sample buffer for one channel and assembles
// an episode file from the audio before, during and after a dead-mic
// alert. WriteSamples runs on the audio callback path; file writing
// happens on a background goroutine.
type Capturer struct {
	mu sync.Mutex

	channel    int
	sampleRate int

	// Ring buffer for continuous capture.
	buffer       []float32
	writePos     int
	totalWritten int64 // total samples written, for position tracking

	// Episode tracking (positions into the sample stream, not copies).
	episodeStartPos int64
	episodeEndPos   int64
	episodeStart    time.Time
	capturing       bool

	// Pre-silence snapshot, taken immediately on silence start so a
	// silence longer than the ring cannot overwrite the lead-in.
	savedBefore []float32

	outputDir   string
	enabled     bool
	onDumpReady DumpCallback
}

// NewCapturer creates a capturer for one channel at its negotiated rate.
func NewCapturer(channel, sampleRate int, outputDir string, onDumpReady DumpCallback) *Capturer {
	return &Capturer{
		channel:     channel,
		sampleRate:  sampleRate,
		buffer:      make([]float32, bufferSeconds*sampleRate),
		outputDir:   outputDir,
		enabled:     true,
		onDumpReady: onDumpReady,
	}
}

// SetEnabled sets whether capture is active.
func (c *Capturer) SetEnabled(enabled bool) {
	c.mu.Lock()
	c.enabled = enabled
	c.mu.Unlock()
}

// WriteSamples buffers a block of samples for potential episode capture.
func (c *Capturer) WriteSamples(samples []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled || len(samples) == 0 {
		return
	}

	for _, s := range samples {
		c.buffer[c.writePos] = s
		c.writePos = (c.writePos + 1) % len(c.buffer)
	}
	c.totalWritten += int64(len(samples))

	c.checkAndFinalize()
}

// OnSilenceStart begins capturing an episode.
func (c *Capturer) OnSilenceStart() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled {
		return
	}

	// A new silence can start before the post-recovery tail of the
	// previous one is complete. Flush what we have first.
	if c.capturing && c.episodeEndPos > 0 {
		c.extractAndWrite()
	}

	beforeSamples := min(c.totalWritten, int64(beforeSeconds*c.sampleRate))
	if beforeSamples > 0 {
		c.savedBefore = make([]float32, beforeSamples)
		c.copyFromRing(c.savedBefore, c.totalWritten-beforeSamples)
	} else {
		c.savedBefore = nil
	}

	c.episodeStartPos = c.totalWritten
	c.episodeStart = time.Now()
	c.episodeEndPos = 0
	c.capturing = true

	slog.Debug("episode capture started", "channel", c.channel, "position", c.episodeStartPos, "saved_before", len(c.savedBefore))
}

// OnSilenceRecover signals that the channel recovered. The detector
// confirms recovery only after recoveryDuration of good audio, so the
// end position is backdated by that amount to the moment audio actually
// returned.
func (c *Capturer) OnSilenceRecover(totalDuration, recoveryDuration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled || !c.capturing {
		return
	}

	recoverySamples := int64(recoveryDuration.Seconds() * float64(c.sampleRate))
	c.episodeEndPos = c.totalWritten - recoverySamples
	if c.episodeEndPos < c.episodeStartPos {
		c.episodeEndPos = c.episodeStartPos
	}

	slog.Debug("episode recovery detected",
		"channel", c.channel,
		"start_pos", c.episodeStartPos,
		"end_pos", c.episodeEndPos,
		"duration", totalDuration,
	)
}

// checkAndFinalize completes a capture once enough post-recovery audio
// has arrived. Caller must hold c.mu.
func (c *Capturer) checkAndFinalize() {
	if !c.capturing || c.episodeEndPos == 0 {
		return
	}

	required := c.episodeEndPos + int64(afterSeconds*c.sampleRate)
	if c.totalWritten < required {
		return
	}

	c.extractAndWrite()

	c.capturing = false
	c.episodeStartPos = 0
	c.episodeEndPos = 0
	c.episodeStart = time.Time{}
}

// extractAndWrite assembles the episode PCM and writes it in the
// background. Caller must hold c.mu.
func (c *Capturer) extractAndWrite() {
	silenceSamples := min(max(0, c.episodeEndPos-c.episodeStartPos), int64(maxSilenceSeconds*c.sampleRate))
	afterSamples := int64(0)
	if c.episodeEndPos > 0 {
		// The tail can be short when a new silence starts before the
		// full post-recovery window has streamed in.
		afterSamples = min(int64(afterSeconds*c.sampleRate), c.totalWritten-c.episodeEndPos)
	}

	beforeLen := int64(len(c.savedBefore))
	pcm := make([]float32, beforeLen+silenceSamples+afterSamples)
	copy(pcm, c.savedBefore)
	c.copyFromRing(pcm[beforeLen:beforeLen+silenceSamples], c.episodeStartPos)
	c.copyFromRing(pcm[beforeLen+silenceSamples:], c.episodeEndPos)

	channel := c.channel
	sampleRate := c.sampleRate
	episodeStart := c.episodeStart
	duration := time.Duration(c.episodeEndPos-c.episodeStartPos) * time.Second / time.Duration(c.sampleRate)
	outputDir := c.outputDir
	callback := c.onDumpReady

	c.savedBefore = nil

	// Write in the background. Everything the goroutine needs is
	// captured above; it never touches Capturer fields.
	go func() {
		result := writeWAV(outputDir, channel, sampleRate, pcm, episodeStart, duration)
		if callback != nil {
			callback(result)
		}
	}()
}

// copyFromRing copies buffered samples starting at an absolute stream
// position into dst. Caller must hold c.mu.
func (c *Capturer) copyFromRing(dst []float32, startPos int64) {
	capacity := int64(len(c.buffer))
	bufferStart := startPos % capacity

	for i := range dst {
		pos := (bufferStart + int64(i)) % capacity
		dst[i] = c.buffer[pos]
	}
}

// Reset clears all capture state. The ring stays allocated.
func (c *Capturer) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.writePos = 0
	c.totalWritten = 0
	c.episodeStartPos = 0
	c.episodeEndPos = 0
	c.episodeStart = time.Time{}
	c.capturing = false
	c.savedBefore = nil
}

// writeWAV writes the episode as a mono 16-bit PCM WAV file.
func writeWAV(outputDir string, channel, sampleRate int, pcm []float32, episodeStart time.Time, duration time.Duration) *DumpResult {
	result := &DumpResult{
		Channel:      channel,
		Duration:     duration,
		EpisodeStart: episodeStart,
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		result.Err = fmt.Errorf("create output dir: %w", err)
		return result
	}

	// Filename: 2024-01-15_14-32-05_ch1.wav (local time)
	result.Filename = fmt.Sprintf("%s_ch%d.wav", episodeStart.Local().Format("2006-01-02_15-04-05"), channel+1)
	result.FilePath = filepath.Join(outputDir, result.Filename)

	f, err := os.Create(result.FilePath)
	if err != nil {
		result.Err = fmt.Errorf("create output file: %w", err)
		return result
	}

	data := make([]int, len(pcm))
	for i, s := range pcm {
		v := max(-1, min(1, s))
		data[i] = int(v * 32767)
	}

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	if err := enc.Write(&gaudio.IntBuffer{
		Format:         &gaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		SourceBitDepth: 16,
		Data:           data,
	}); err != nil {
		_ = enc.Close()
		_ = f.Close()
		result.Err = fmt.Errorf("write wav data: %w", err)
		return result
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		result.Err = fmt.Errorf("finalize wav: %w", err)
		return result
	}
	if err := f.Close(); err != nil {
		result.Err = fmt.Errorf("close output file: %w", err)
		return result
	}

	info, err := os.Stat(result.FilePath)
	if err != nil {
		result.Err = fmt.Errorf("stat output file: %w", err)
		return result
	}
	result.FileSize = info.Size()

	slog.Info("episode dump written",
		"channel", channel,
		"file", result.Filename,
		"size", result.FileSize,
		"duration", duration,
	)

	return result
}
