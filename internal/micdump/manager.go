package micdump

import (
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-micmonitor/internal/audio"
)

// datePattern matches the date in a dump filename: 2025-01-15_14-32-05_ch1.wav
var datePattern = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})`)

// Manager fans sample blocks and silence events out to one Capturer per
// channel and prunes old dump files on a daily schedule.
type Manager struct {
	mu sync.RWMutex

	capturers []*Capturer
	rates     []int

	outputDir     string
	enabled       bool
	retentionDays int
	onDumpReady   DumpCallback

	cleanupStopCh chan struct{}
	running       bool
}

// NewManager creates a manager writing into outputDir. Capture stays
// off until SetEnabled(true); the retention default is a week.
func NewManager(outputDir string, onDumpReady DumpCallback) *Manager {
	return &Manager{
		outputDir:     outputDir,
		retentionDays: 7,
		onDumpReady:   onDumpReady,
	}
}

// OutputDir returns where dump files are written.
func (m *Manager) OutputDir() string {
	return m.outputDir
}

// Configure rebuilds the per-channel capturers for a session's
// negotiated sample rates. Existing capture state is discarded.
func (m *Manager) Configure(sampleRates []int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rates = slices.Clone(sampleRates)
	m.rebuildLocked()
}

// rebuildLocked recreates the capturers to match rates and the enabled
// flag. Caller must hold m.mu.
func (m *Manager) rebuildLocked() {
	if !m.enabled || len(m.rates) == 0 {
		m.capturers = nil
		return
	}
	m.capturers = make([]*Capturer, len(m.rates))
	for i, rate := range m.rates {
		m.capturers[i] = NewCapturer(i, rate, m.outputDir, m.onDumpReady)
	}
}

// Start begins the cleanup scheduler.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	m.running = true
	m.cleanupStopCh = make(chan struct{})
	m.startCleanupScheduler()
}

// Stop stops the cleanup scheduler and drops all capture state.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false

	if m.cleanupStopCh != nil {
		close(m.cleanupStopCh)
		m.cleanupStopCh = nil
	}
	capturers := m.capturers
	m.mu.Unlock()

	for _, c := range capturers {
		c.Reset()
	}
}

// WriteSamples feeds one channel's callback block to its capturer.
func (m *Manager) WriteSamples(channel int, samples []float32) {
	m.mu.RLock()
	var c *Capturer
	if channel >= 0 && channel < len(m.capturers) {
		c = m.capturers[channel]
	}
	m.mu.RUnlock()

	if c != nil {
		c.WriteSamples(samples)
	}
}

// HandleSilenceEvent routes a detector event to the channel's capturer.
// The recovery duration is needed to backdate the episode end.
func (m *Manager) HandleSilenceEvent(event audio.SilenceEvent, recovery time.Duration) {
	m.mu.RLock()
	var c *Capturer
	if event.Channel >= 0 && event.Channel < len(m.capturers) {
		c = m.capturers[event.Channel]
	}
	m.mu.RUnlock()

	if c == nil {
		return
	}

	if event.JustSilenced {
		c.OnSilenceStart()
	}
	if event.JustRecovered {
		c.OnSilenceRecover(time.Duration(event.TotalDurationMs)*time.Millisecond, recovery)
	}
}

// SetEnabled controls whether episode capture is active. Enabling after
// a session configured the rates builds the capturers on the spot.
func (m *Manager) SetEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.enabled == enabled {
		return
	}
	m.enabled = enabled
	m.rebuildLocked()
}

// SetRetentionDays sets how long dump files are kept.
func (m *Manager) SetRetentionDays(days int) {
	m.mu.Lock()
	m.retentionDays = days
	m.mu.Unlock()
}

// startCleanupScheduler runs cleanup every night at 03:00. Caller must
// hold m.mu.
func (m *Manager) startCleanupScheduler() {
	stopCh := m.cleanupStopCh
	go func() {
		for {
			now := time.Now()
			next := time.Date(now.Year(), now.Month(), now.Day(), 3, 0, 0, 0, now.Location())
			if now.After(next) {
				next = next.Add(24 * time.Hour)
			}

			select {
			case <-time.After(next.Sub(now)):
				m.runCleanup()
			case <-stopCh:
				return
			}
		}
	}()
}

// runCleanup removes dump files older than the retention period.
func (m *Manager) runCleanup() {
	m.mu.RLock()
	retentionDays := m.retentionDays
	m.mu.RUnlock()

	if retentionDays <= 0 {
		return
	}

	entries, err := os.ReadDir(m.outputDir)
	if err != nil {
		// The directory does not exist until the first dump is written.
		if !os.IsNotExist(err) {
			slog.Warn("dump cleanup: failed to read directory", "path", m.outputDir, "error", err)
		}
		return
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	var deleted int

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if filepath.Ext(name) != ".wav" {
			continue
		}

		fileDate, ok := extractDateFromFilename(name)
		if !ok {
			continue
		}

		if fileDate.Before(cutoff) {
			filePath := filepath.Join(m.outputDir, name)
			if err := os.Remove(filePath); err != nil {
				slog.Warn("dump cleanup: failed to delete file", "path", filePath, "error", err)
			} else {
				deleted++
			}
		}
	}

	if deleted > 0 {
		slog.Info("dump cleanup: deleted old files", "count", deleted)
	}
}

// extractDateFromFilename extracts the date from a filename like
// "2025-01-15_14-32-05_ch1.wav".
func extractDateFromFilename(filename string) (time.Time, bool) {
	matches := datePattern.FindStringSubmatch(filename)
	if len(matches) < 2 {
		return time.Time{}, false
	}

	date, err := time.Parse("2006-01-02", matches[1])
	if err != nil {
		return time.Time{}, false
	}

	return date, true
}
