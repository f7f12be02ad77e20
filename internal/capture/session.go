package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-micmonitor/internal/types"
	"github.com/oszuidwest/zwfm-micmonitor/internal/util"
)

// standardRates are attempted after the resolved target rate when a
// device rejects it.
var standardRates = []int{44100, 48000, 96000, 192000}

// SessionConfig describes one capture session.
type SessionConfig struct {
	Devices        []int   // per-channel device index, types.DefaultDevice for the default
	FrameSize      int     // callback block size in frames
	TimePlot       bool    // allocate time-series buffers on start
	WindowSeconds  float64 // time-plot window length
	RateAdjustment float64 // initial time-axis compression factor

	// BlockSink, when set, receives every sanitized callback block. It
	// runs on the audio thread and must not block or retain the slice.
	BlockSink func(channel int, samples []float32)
}

// Session owns one mono input stream per configured channel. Start opens
// every stream before starting any, so a failing device rolls the whole
// attempt back instead of leaving a partial session running.
type Session struct {
	mu      sync.RWMutex
	backend Backend
	cfg     SessionConfig

	state     types.SessionState
	channels  []*Channel
	streams   []Stream
	startedAt time.Time
	lastErr   error

	// counters carried over from stopped channels
	doneFaults    uint64
	doneSanitized uint64
}

// NewSession creates a session against the given backend. Zero config
// values are replaced with defaults. The session owns no streams until
// Start succeeds.
func NewSession(backend Backend, cfg SessionConfig) *Session {
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = types.DefaultFrameSize
	}
	if cfg.WindowSeconds <= 0 {
		cfg.WindowSeconds = types.DefaultWindowSeconds
	}
	if cfg.RateAdjustment <= 0 {
		cfg.RateAdjustment = types.DefaultRateAdjustment
	}
	cfg.Devices = slices.Clone(cfg.Devices)

	return &Session{
		backend: backend,
		cfg:     cfg,
		state:   types.StateIdle,
	}
}

// Start opens one input stream per configured channel and then starts
// them all. On any failure every stream opened so far is stopped and
// closed, and the session transitions to the failed state.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case types.StateStarting, types.StateRunning:
		return ErrAlreadyRunning
	}

	if len(s.cfg.Devices) == 0 {
		return ErrNoChannels
	}
	if len(s.cfg.Devices) > types.MaxChannels {
		return ErrTooManyChannels
	}

	s.state = types.StateStarting
	s.lastErr = nil
	s.doneFaults = 0
	s.doneSanitized = 0

	channels := make([]*Channel, 0, len(s.cfg.Devices))
	streams := make([]Stream, 0, len(s.cfg.Devices))

	fail := func(err error) error {
		if closeErr := teardown(streams); closeErr != nil {
			slog.Error("rollback after failed start reported errors", "error", closeErr)
		}
		s.state = types.StateFailed
		s.lastErr = err
		return err
	}

	// Phase one: open every stream. Nothing captures yet.
	for i, dev := range s.cfg.Devices {
		rates, err := s.rateOrder(i, dev)
		if err != nil {
			return fail(err)
		}

		ch := newChannel(i, dev, s.cfg.FrameSize, s.cfg.BlockSink)
		stream, rate, err := s.openStream(dev, rates, ch.ingest)
		if err != nil {
			return fail(&DeviceOpenError{Channel: i, Device: dev, AttemptedRates: rates, Err: err})
		}
		ch.activate(rate, s.cfg.TimePlot, s.cfg.WindowSeconds, s.cfg.RateAdjustment)

		channels = append(channels, ch)
		streams = append(streams, stream)
		slog.Info("opened input stream", "channel", i, "device", dev, "sample_rate", rate)
	}

	// Phase two: start them all.
	for i, stream := range streams {
		if err := stream.Start(); err != nil {
			return fail(util.WrapError(fmt.Sprintf("start input stream for channel %d", i), err))
		}
	}

	s.channels = channels
	s.streams = streams
	s.startedAt = time.Now()
	s.state = types.StateRunning
	slog.Info("capture session running", "channels", len(channels), "sample_rates", ratesOf(channels))
	return nil
}

// Stop halts and closes every open stream. It is idempotent and safe to
// call after a failed start. No data callback fires once Stop returns.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.streams) == 0 {
		if s.state != types.StateIdle {
			s.state = types.StateStopped
		}
		return nil
	}

	s.state = types.StateStopping
	err := teardown(s.streams)

	for _, ch := range s.channels {
		s.doneFaults += ch.Faults()
		s.doneSanitized += ch.Sanitized()
	}
	s.streams = nil
	s.channels = nil
	s.state = types.StateStopped

	if err != nil {
		s.lastErr = err
		slog.Error("capture session stopped with errors", "error", err)
		return err
	}
	slog.Info("capture session stopped")
	return nil
}

// SetRateAdjustment rebakes the synthetic timestamp step on every
// channel. Takes effect for samples appended afterwards.
func (s *Session) SetRateAdjustment(adjustment float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.RateAdjustment = adjustment
	for _, ch := range s.channels {
		ch.setAdjustment(adjustment)
	}
}

// SetTimePlot switches the time-series buffers on or off. Entering
// time-plot mode allocates fresh buffers so the time origin restarts
// at zero.
func (s *Session) SetTimePlot(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.TimePlot = enabled
	for _, ch := range s.channels {
		ch.setTimePlot(enabled, s.cfg.WindowSeconds)
	}
}

// State returns the current lifecycle state.
func (s *Session) State() types.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Channels returns the live channels. Empty unless the session is
// running.
func (s *Session) Channels() []*Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.channels)
}

// SampleRates returns the negotiated per-channel rates. Empty unless
// the session is running.
func (s *Session) SampleRates() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ratesOf(s.channels)
}

// LastError returns the most recent start or stop failure.
func (s *Session) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Uptime returns how long the session has been running, or zero.
func (s *Session) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != types.StateRunning {
		return 0
	}
	return time.Since(s.startedAt)
}

// Stats returns cumulative callback fault and sanitized-sample counts
// across all runs since the last Start.
func (s *Session) Stats() (faults, sanitized uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	faults, sanitized = s.doneFaults, s.doneSanitized
	for _, ch := range s.channels {
		faults += ch.Faults()
		sanitized += ch.Sanitized()
	}
	return faults, sanitized
}

// rateOrder resolves the sample rates to attempt for one channel. The
// target comes from the device's reported preference. A failed query for
// an explicitly selected device is fatal to the start attempt; the
// default device falls back to the default rate instead, since its
// stream can still open.
func (s *Session) rateOrder(channel, device int) ([]int, error) {
	target := types.DefaultSampleRate
	if device == types.DefaultDevice {
		if info, err := s.backend.DefaultDevice(); err == nil {
			if r := int(info.DefaultSampleRate); r > 0 {
				target = r
			}
		}
	} else {
		info, err := s.backend.DeviceInfo(device)
		if err != nil {
			return nil, &DeviceQueryError{Channel: channel, Device: device, Err: err}
		}
		if r := int(info.DefaultSampleRate); r > 0 {
			target = r
		}
	}
	return fallbackRates(target), nil
}

// openStream attempts the rates in order and returns the first stream
// that opens, together with its rate.
func (s *Session) openStream(device int, rates []int, fn DataFunc) (Stream, int, error) {
	var lastErr error
	for _, rate := range rates {
		stream, err := s.backend.Open(StreamConfig{
			Device:     device,
			SampleRate: rate,
			FrameSize:  s.cfg.FrameSize,
		}, fn)
		if err == nil {
			return stream, rate, nil
		}
		lastErr = err
		slog.Debug("input stream rejected rate", "device", device, "sample_rate", rate, "error", err)
	}
	return nil, 0, lastErr
}

// fallbackRates returns the rates to attempt: the target first, then
// the standard rates, deduplicated.
func fallbackRates(target int) []int {
	rates := make([]int, 0, len(standardRates)+1)
	rates = append(rates, target)
	for _, r := range standardRates {
		if !slices.Contains(rates, r) {
			rates = append(rates, r)
		}
	}
	return rates
}

// teardown stops and closes every stream, collecting all errors.
func teardown(streams []Stream) error {
	var errs []error
	for i, stream := range streams {
		if err := stream.Stop(); err != nil {
			errs = append(errs, util.WrapError(fmt.Sprintf("stop stream %d", i), err))
		}
		if err := stream.Close(); err != nil {
			errs = append(errs, util.WrapError(fmt.Sprintf("close stream %d", i), err))
		}
	}
	return errors.Join(errs...)
}

func ratesOf(channels []*Channel) []int {
	rates := make([]int, len(channels))
	for i, ch := range channels {
		rates[i] = ch.Rate()
	}
	return rates
}
