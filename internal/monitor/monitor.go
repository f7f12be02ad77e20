// Package monitor provides the microphone monitoring engine. It owns
// the capture session, drives the display frame builder on a render
// ticker, and routes channel levels through dead-mic detection and
// notifications.
package monitor

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oszuidwest/zwfm-micmonitor/internal/audio"
	"github.com/oszuidwest/zwfm-micmonitor/internal/capture"
	"github.com/oszuidwest/zwfm-micmonitor/internal/config"
	"github.com/oszuidwest/zwfm-micmonitor/internal/display"
	"github.com/oszuidwest/zwfm-micmonitor/internal/micdump"
	"github.com/oszuidwest/zwfm-micmonitor/internal/notify"
	"github.com/oszuidwest/zwfm-micmonitor/internal/types"
	"github.com/oszuidwest/zwfm-micmonitor/internal/util"
)

// Monitor manages the capture session and render loop.
type Monitor struct {
	config      *config.Config
	backend     capture.Backend
	backendName string

	mu       sync.RWMutex
	session  *capture.Session
	builder  *display.Builder
	settings types.DisplaySettings
	silence  audio.SilenceConfig
	silent   []bool
	running  bool

	latestFrame   types.Frame
	framesBuilt   uint64
	framesSkipped uint64
	fps           float64

	lastKnown atomic.Pointer[types.Frame] // Cache for TryRLock fallback

	applyCh  chan func()
	stopCh   chan struct{}
	loopDone chan struct{}

	silenceDetect *audio.SilenceDetector
	notifier      *notify.MicNotifier
	dumps         *micdump.Manager
}

// New creates a new Monitor with the given configuration and capture backend.
func New(cfg *config.Config, backend capture.Backend, backendName string) *Monitor {
	snap := cfg.Snapshot()

	dumps := micdump.NewManager(micdump.OutputDirForPort(snap.WebPort), onDumpReady)
	dumps.SetEnabled(snap.SilenceDumpEnabled)
	dumps.SetRetentionDays(snap.SilenceDumpRetentionDays)
	dumps.Start()

	return &Monitor{
		config:      cfg,
		backend:     backend,
		backendName: backendName,
		settings:    cfg.DisplaySettings(),
		silence: audio.SilenceConfig{
			ThresholdDB: snap.SilenceThreshold,
			DurationMs:  int(snap.SilenceDurationMs),
			RecoveryMs:  int(snap.SilenceRecoveryMs),
		},
		applyCh:       make(chan func(), 64),
		silenceDetect: audio.NewSilenceDetector(types.MaxChannels),
		notifier:      notify.NewMicNotifier(cfg),
		dumps:         dumps,
	}
}

// onDumpReady reports failed episode dumps. Successful writes are
// logged by the dump package itself.
func onDumpReady(result *micdump.DumpResult) {
	if result.Err != nil {
		slog.Error("episode dump failed", "channel", result.Channel, "error", result.Err)
	}
}

// BackendName returns the name of the active capture backend.
func (m *Monitor) BackendName() string {
	return m.backendName
}

// Start opens the configured channels and begins rendering frames.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil {
		if st := m.session.State(); st == types.StateStarting || st == types.StateRunning {
			return capture.ErrAlreadyRunning
		}
	}

	if err := m.backend.Init(); err != nil {
		return util.WrapError("initialize capture backend", err)
	}

	snap := m.config.Snapshot()
	session := capture.NewSession(m.backend, capture.SessionConfig{
		Devices:        capture.ResolveDevices(snap.Devices, snap.NumChannels),
		FrameSize:      snap.FrameSize,
		TimePlot:       m.settings.TimePlot,
		WindowSeconds:  snap.WindowSeconds,
		RateAdjustment: m.settings.RateAdjustment,
		BlockSink:      m.dumps.WriteSamples,
	})
	m.session = session

	if err := session.Start(); err != nil {
		return err
	}

	m.dumps.Configure(session.SampleRates())

	m.builder = display.NewBuilder(snap.FrameSize, snap.WindowSeconds)
	m.silenceDetect.Reset()
	m.notifier.Reset()
	m.silent = make([]bool, snap.NumChannels)
	m.framesBuilt = 0
	m.framesSkipped = 0
	m.fps = 0

	if !m.running {
		m.stopCh = make(chan struct{})
		m.loopDone = make(chan struct{})
		m.running = true
		go m.run(m.stopCh, m.loopDone)
	}

	return nil
}

// Stop halts the render loop and closes all input streams. It is safe
// to call regardless of the current state.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	stopCh, loopDone := m.stopCh, m.loopDone
	m.stopCh, m.loopDone = nil, nil
	running := m.running
	m.running = false
	sess := m.session
	m.mu.Unlock()

	// The loop must be gone before the session tears down so no tick
	// builds from closing channels.
	if running && stopCh != nil {
		close(stopCh)
		<-loopDone
	}

	if sess == nil {
		return nil
	}
	return sess.Stop()
}

// Restart stops and starts the monitor with a settling delay in between.
func (m *Monitor) Restart() error {
	if err := m.Stop(); err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	time.Sleep(types.RestartDelay)
	return m.Start()
}

// Close stops the monitor and releases the capture backend.
func (m *Monitor) Close() error {
	if err := m.Stop(); err != nil {
		return err
	}
	m.dumps.Stop()
	return m.backend.Close()
}

// run is the render loop. It drains queued settings changes between
// ticks and rebuilds the display frame at the configured interval.
func (m *Monitor) run(stopCh, done chan struct{}) {
	defer close(done)

	m.mu.RLock()
	interval := m.settings.FrameIntervalMs
	m.mu.RUnlock()

	ticker := time.NewTicker(time.Duration(interval) * time.Millisecond)
	defer ticker.Stop()

	fpsCount := 0
	fpsStart := time.Now()

	for {
		select {
		case <-stopCh:
			return
		case now := <-ticker.C:
			m.drainApplies()

			m.mu.RLock()
			current := m.settings.FrameIntervalMs
			m.mu.RUnlock()
			if current != interval && current > 0 {
				interval = current
				ticker.Reset(time.Duration(interval) * time.Millisecond)
			}

			if m.tick(now) {
				fpsCount++
			}
			if elapsed := time.Since(fpsStart); elapsed >= time.Second {
				m.mu.Lock()
				m.fps = float64(fpsCount) / elapsed.Seconds()
				m.mu.Unlock()
				fpsCount = 0
				fpsStart = time.Now()
			}
		}
	}
}

// tick runs one render interval: dead-mic detection always, a display
// frame unless paused. Reports whether a frame was built.
func (m *Monitor) tick(now time.Time) bool {
	m.mu.RLock()
	settings := m.settings
	silenceCfg := m.silence
	sess := m.session
	builder := m.builder
	m.mu.RUnlock()

	if sess == nil || sess.State() != types.StateRunning {
		return false
	}

	channels := sess.Channels()

	// Detection keeps running while the display is paused. A frozen plot
	// must not silence the alerts.
	recovery := time.Duration(silenceCfg.RecoveryMs) * time.Millisecond
	silent := make([]bool, len(channels))
	for i, ch := range channels {
		level := audio.LevelDB(ch.Levels().Level)
		ev := m.silenceDetect.Process(i, level, silenceCfg, now)
		silent[i] = ev.InSilence
		m.notifier.HandleEvent(ev)
		m.dumps.HandleSilenceEvent(ev, recovery)
	}

	built := false
	var frame types.Frame
	if !settings.Paused && builder != nil {
		sources := make([]display.Source, len(channels))
		for i, ch := range channels {
			sources[i] = ch
		}
		frame = builder.Build(sources, settings)
		built = true
	}

	m.mu.Lock()
	m.silent = silent
	if built {
		m.latestFrame = frame
		m.framesBuilt++
		if frame.Skipped {
			m.framesSkipped++
		}
	}
	m.mu.Unlock()

	if built {
		stored := frame
		m.lastKnown.Store(&stored)
	}
	return built
}

// drainApplies runs queued settings changes. Called between ticks so a
// change never lands mid-build.
func (m *Monitor) drainApplies() {
	for {
		select {
		case fn := <-m.applyCh:
			m.mu.Lock()
			fn()
			m.mu.Unlock()
		default:
			return
		}
	}
}

// apply queues fn for the render loop, or runs it immediately when no
// loop is draining the queue. fn runs with m.mu held.
func (m *Monitor) apply(fn func()) {
	m.mu.RLock()
	running := m.running
	m.mu.RUnlock()

	if running {
		select {
		case m.applyCh <- fn:
			return
		default:
		}
	}

	m.mu.Lock()
	fn()
	m.mu.Unlock()
}

// SetSettings replaces the display settings. Changes land between
// render ticks; mode and compression changes propagate to the capture
// session.
func (m *Monitor) SetSettings(settings types.DisplaySettings) {
	m.apply(func() {
		prev := m.settings
		m.settings = settings
		if m.session == nil {
			return
		}
		if settings.RateAdjustment != prev.RateAdjustment {
			m.session.SetRateAdjustment(settings.RateAdjustment)
		}
		if settings.TimePlot != prev.TimePlot {
			m.session.SetTimePlot(settings.TimePlot)
		}
	})
}

// Settings returns the current display settings.
func (m *Monitor) Settings() types.DisplaySettings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings
}

// SetSilence updates the dead-mic detection parameters for subsequent
// ticks.
func (m *Monitor) SetSilence(thresholdDB float64, durationMs, recoveryMs int64) {
	m.apply(func() {
		m.silence = audio.SilenceConfig{
			ThresholdDB: thresholdDB,
			DurationMs:  int(durationMs),
			RecoveryMs:  int(recoveryMs),
		}
	})
}

// SetSilenceDump updates the episode capture settings. The dump manager
// does its own locking, so changes land immediately.
func (m *Monitor) SetSilenceDump(enabled bool, retentionDays int) {
	m.dumps.SetEnabled(enabled)
	m.dumps.SetRetentionDays(retentionDays)
}

// DumpDir returns where episode dump files are written.
func (m *Monitor) DumpDir() string {
	return m.dumps.OutputDir()
}

// LatestFrame returns the most recent display frame. When the engine is
// mid-update it falls back to the last completed frame instead of
// blocking.
func (m *Monitor) LatestFrame() (types.Frame, bool) {
	if !m.mu.TryRLock() {
		if frame := m.lastKnown.Load(); frame != nil {
			return *frame, true
		}
		return types.Frame{}, false
	}
	defer m.mu.RUnlock()

	if m.latestFrame.Seq == 0 {
		return types.Frame{}, false
	}
	return m.latestFrame, true
}

// State returns the current session state.
func (m *Monitor) State() types.SessionState {
	m.mu.RLock()
	sess := m.session
	m.mu.RUnlock()

	if sess == nil {
		return types.StateIdle
	}
	return sess.State()
}

// IsRunning reports whether the capture session is running.
func (m *Monitor) IsRunning() bool {
	return m.State() == types.StateRunning
}

// Status returns the current monitor status.
func (m *Monitor) Status() types.MonitorStatus {
	m.mu.RLock()
	sess := m.session
	fps := m.fps
	built := m.framesBuilt
	skipped := m.framesSkipped
	silent := slices.Clone(m.silent)
	m.mu.RUnlock()

	status := types.MonitorStatus{
		State:         types.StateIdle,
		Channels:      m.config.Snapshot().NumChannels,
		FramesBuilt:   built,
		FramesSkipped: skipped,
		FPS:           fps,
		Backend:       m.backendName,
	}
	if sess == nil {
		return status
	}

	status.State = sess.State()
	if err := sess.LastError(); err != nil {
		status.LastError = err.Error()
	}
	if uptime := sess.Uptime(); uptime > 0 {
		status.Uptime = uptime.Truncate(time.Second).String()
	}
	status.SampleRates = sess.SampleRates()
	faults, sanitized := sess.Stats()
	status.CallbackFaults = faults
	status.Sanitized = sanitized

	for i, ch := range sess.Channels() {
		lv := ch.Levels()
		levels := types.ChannelLevels{
			Channel:    i,
			Level:      lv.Level,
			LevelDB:    audio.LevelDB(lv.Level),
			Peak:       lv.Peak,
			NoiseFloor: lv.NoiseFloor,
			Average:    lv.Average,
		}
		if i < len(silent) {
			levels.Silent = silent[i]
		}
		status.Levels = append(status.Levels, levels)
	}
	return status
}

// Devices lists the input devices offered by the capture backend.
func (m *Monitor) Devices() ([]types.Device, error) {
	if err := m.backend.Init(); err != nil {
		return nil, util.WrapError("initialize capture backend", err)
	}
	return m.backend.Devices()
}

// TriggerTestWebhook sends a test webhook to verify configuration.
func (m *Monitor) TriggerTestWebhook() error {
	cfg := m.config.Snapshot()
	return notify.SendTestWebhook(cfg.WebhookURL, cfg.StationName)
}

// TriggerTestLog writes a test entry to verify log file configuration.
func (m *Monitor) TriggerTestLog() error {
	return notify.WriteTestLog(m.config.Snapshot().LogPath)
}
