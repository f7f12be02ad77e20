// Package types provides shared type definitions used across the monitor.
package types

import (
	"time"
)

// SessionState represents the current state of the capture session.
type SessionState string

const (
	// StateIdle indicates no session has been started yet.
	StateIdle SessionState = "idle"
	// StateStarting indicates the session is opening its input streams.
	StateStarting SessionState = "starting"
	// StateRunning indicates all channels are capturing audio.
	StateRunning SessionState = "running"
	// StateStopping indicates the session is shutting down.
	StateStopping SessionState = "stopping"
	// StateStopped indicates the session has been stopped.
	StateStopped SessionState = "stopped"
	// StateFailed indicates the last start attempt failed.
	StateFailed SessionState = "failed"
)

// Capture limits and defaults.
const (
	// MaxChannels is the maximum number of microphone channels.
	MaxChannels = 8
	// DefaultChannels is the default number of microphone channels.
	DefaultChannels = 4
	// DefaultSampleRate is the rate assumed when a device reports none.
	DefaultSampleRate = 44100
	// DefaultFrameSize is the callback block size in frames.
	DefaultFrameSize = 512
	// MinFrameSize is the smallest accepted callback block size.
	MinFrameSize = 64
	// MaxFrameSize is the largest accepted callback block size.
	MaxFrameSize = 8192
	// RingCapacity is the per-channel raw sample buffer capacity.
	RingCapacity = 2048
	// DefaultDevice selects the system default input device.
	DefaultDevice = -1
)

// Display defaults and bounds.
const (
	// DefaultWindowSeconds is the scrolling time-plot window length.
	DefaultWindowSeconds = 0.3
	// MinWindowSeconds is the shortest accepted time-plot window.
	MinWindowSeconds = 0.05
	// MaxWindowSeconds is the longest accepted time-plot window.
	MaxWindowSeconds = 60.0
	// DefaultDisplayGain is the visual amplitude multiplier.
	DefaultDisplayGain = 1.0
	// MaxDisplayGain is the largest accepted amplitude multiplier.
	MaxDisplayGain = 2.0
	// DefaultRateAdjustment is the time-axis compression factor.
	DefaultRateAdjustment = 1.0
	// MinRateAdjustment is the strongest time-axis expansion.
	MinRateAdjustment = 0.1
	// MaxRateAdjustment is the strongest time-axis compression.
	MaxRateAdjustment = 2.0
	// DefaultFrameIntervalMs caps the render loop at 125 frames per second.
	DefaultFrameIntervalMs = 8
	// MinFrameIntervalMs is the fastest allowed render interval.
	MinFrameIntervalMs = 5
	// MaxFrameIntervalMs is the slowest allowed render interval.
	MaxFrameIntervalMs = 100
	// MaxDisplayPoints is the per-series point cap before decimation.
	MaxDisplayPoints = 15000
)

const (
	// RestartDelay is the pause between stop and start during a restart.
	RestartDelay = 1000 * time.Millisecond
	// PollInterval is the interval for polling session state.
	PollInterval = 50 * time.Millisecond
)

// Device describes an audio input device offered by a capture backend.
type Device struct {
	ID                int     `json:"id"`                  // Backend device index
	Name              string  `json:"name"`                // Device display name
	MaxInputChannels  int     `json:"max_input_channels"`  // Input channel count
	DefaultSampleRate float64 `json:"default_sample_rate"` // Preferred rate in Hz, 0 if unknown
	IsDefault         bool    `json:"is_default"`          // True for the system default input
}

// ChannelLevels contains the level statistics for one channel.
type ChannelLevels struct {
	Channel    int     `json:"channel"`     // Channel index
	Level      float64 `json:"level"`       // Latest RMS, linear
	LevelDB    float64 `json:"level_db"`    // Latest RMS in dBFS
	Peak       float64 `json:"peak"`        // Decaying peak, linear
	NoiseFloor float64 `json:"noise_floor"` // Rolling 10th percentile estimate
	Average    float64 `json:"average"`     // Mean of recent RMS values
	Silent     bool    `json:"silent"`      // True while the dead-mic detector is tripped
}

// AxisPolicy tells the renderer how it may treat an axis range.
type AxisPolicy string

const (
	// AxisLockedFixed fixes the axis to the supplied bounds.
	AxisLockedFixed AxisPolicy = "locked_fixed"
	// AxisFreeAutoscale lets the renderer fit the axis to the data.
	AxisFreeAutoscale AxisPolicy = "free_autoscale"
)

// Axis is an axis range with its policy.
type Axis struct {
	Policy AxisPolicy `json:"policy"` // How the range may be applied
	Min    float64    `json:"min"`    // Lower bound (locked_fixed only)
	Max    float64    `json:"max"`    // Upper bound (locked_fixed only)
}

// ChannelSeries is one channel's render-ready series for a frame.
type ChannelSeries struct {
	Channel    int       `json:"channel"`     // Channel index
	X          []float64 `json:"x"`           // Sample index or normalized time
	Y          []float64 `json:"y"`           // Gain-scaled amplitude
	Level      float64   `json:"level"`       // Text readout: latest RMS
	LevelDB    float64   `json:"level_db"`    // Text readout: RMS in dBFS
	Peak       float64   `json:"peak"`        // Text readout: decaying peak
	NoiseFloor float64   `json:"noise_floor"` // Rolling noise floor estimate
	Average    float64   `json:"average"`     // Mean of recent RMS values
}

// Frame is one render-ready display frame across all channels.
type Frame struct {
	Seq      uint64          `json:"seq"`       // Monotonic frame counter
	TimePlot bool            `json:"time_plot"` // True in scrolling time-plot mode
	XAxis    Axis            `json:"x_axis"`    // Shared X-axis policy and bounds
	YMin     float64         `json:"y_min"`     // Shared smoothed Y-range lower bound
	YMax     float64         `json:"y_max"`     // Shared smoothed Y-range upper bound
	Channels []ChannelSeries `json:"channels"`  // Per-channel series
	Skipped  bool            `json:"skipped"`   // True when this is a fallback zero frame
}

// DisplaySettings are the mutable view parameters.
type DisplaySettings struct {
	Gain            float64 `json:"gain"`              // Amplitude multiplier, 0..2
	TimePlot        bool    `json:"time_plot"`         // Scrolling mode toggle
	RateAdjustment  float64 `json:"rate_adjustment"`   // Time-axis compression, 0.1..2.0
	FrameIntervalMs int     `json:"frame_interval_ms"` // Render interval, 5..100
	Paused          bool    `json:"paused"`            // Suspends frame building
}

// MonitorStatus contains a summary of the monitor's operational state.
type MonitorStatus struct {
	State          SessionState    `json:"state"`               // Current session state
	Uptime         string          `json:"uptime,omitzero"`     // Time since start
	LastError      string          `json:"last_error,omitzero"` // Most recent start/stop error
	Channels       int             `json:"channels"`            // Configured channel count
	SampleRates    []int           `json:"sample_rates"`        // Active per-channel rates
	FramesBuilt    uint64          `json:"frames_built"`        // Frames produced since start
	FramesSkipped  uint64          `json:"frames_skipped"`      // Fallback zero frames
	CallbackFaults uint64          `json:"callback_faults"`     // Recovered callback panics
	Sanitized      uint64          `json:"sanitized_samples"`   // Non-finite samples replaced
	FPS            float64         `json:"fps"`                 // Recent build rate
	Backend        string          `json:"backend"`             // Active capture backend name
	Levels         []ChannelLevels `json:"levels,omitempty"`    // Current per-channel levels
}

// WSStatusResponse is sent to clients with full monitor status.
type WSStatusResponse struct {
	Type              string          `json:"type"`                // Message type identifier
	Monitor           MonitorStatus   `json:"monitor"`             // Engine status
	Devices           []Device        `json:"devices"`             // Available input devices
	SelectedDevices   []*int          `json:"selected_devices"`    // Configured selections, null = default
	Settings          DisplaySettings `json:"settings"`            // Current display settings
	WindowSeconds     float64         `json:"window_seconds"`      // Time-plot window length
	FrameSize         int             `json:"frame_size"`          // Callback block size
	StationName       string          `json:"station_name"`        // Branding
	SilenceThreshold  float64         `json:"silence_threshold"`   // Dead-mic threshold in dB
	SilenceDurationMs int64           `json:"silence_duration_ms"` // Time below threshold before alert
	SilenceRecoveryMs int64           `json:"silence_recovery_ms"` // Time above threshold before recovery
	SilenceWebhook    string          `json:"silence_webhook"`     // Webhook URL for alerts
	SilenceLogPath    string          `json:"silence_log_path"`    // Alert log file path

	SilenceDumpEnabled       bool   `json:"silence_dump_enabled"`        // Episode capture toggle
	SilenceDumpRetentionDays int    `json:"silence_dump_retention_days"` // Days to keep dump files
	SilenceDumpDir           string `json:"silence_dump_dir"`            // Where dump files are written

	Version VersionInfo `json:"version"` // Version information
}

// WSFrameResponse is sent to clients with the latest display frame.
type WSFrameResponse struct {
	Type  string `json:"type"`  // Message type identifier
	Frame *Frame `json:"frame"` // Latest built frame
}

// WSTestResult is sent to clients after a test operation completes.
type WSTestResult struct {
	Type     string `json:"type"`            // Message type identifier
	TestType string `json:"test_type"`       // Type of test performed
	Success  bool   `json:"success"`         // Test succeeded
	Error    string `json:"error,omitempty"` // Error message if failed
}

// MicLogEntry is a single entry in the dead-mic alert log.
type MicLogEntry struct {
	Timestamp   string  `json:"timestamp"`             // RFC3339 timestamp
	Event       string  `json:"event"`                 // mic_silent, mic_recovered or test
	Channel     int     `json:"channel"`               // Channel index
	LevelDB     float64 `json:"level_db,omitempty"`    // Level at the transition
	DurationMs  int64   `json:"duration_ms,omitempty"` // Episode length (mic_recovered only)
	ThresholdDB float64 `json:"threshold_db"`          // Threshold in dB
}

// VersionInfo contains version comparison data.
type VersionInfo struct {
	Current     string `json:"current"`              // Current version
	Latest      string `json:"latest,omitempty"`     // Latest available version
	UpdateAvail bool   `json:"update_available"`     // Update is available
	Commit      string `json:"commit,omitempty"`     // Git commit hash
	BuildTime   string `json:"build_time,omitempty"` // Build timestamp
}
