// Package config provides application configuration management.
package config

import (
	"cmp"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sync"

	"github.com/oszuidwest/zwfm-micmonitor/internal/types"
	"github.com/oszuidwest/zwfm-micmonitor/internal/util"
)

// Configuration defaults are used when values are not specified.
const (
	DefaultWebPort                  = 8080
	DefaultSilenceThreshold         = -40.0
	DefaultSilenceDurationMs        = 15000 // 15 seconds in milliseconds
	DefaultSilenceRecoveryMs        = 5000  // 5 seconds in milliseconds
	DefaultSilenceDumpRetentionDays = 7
	DefaultStationName              = "ZuidWest FM"
	DefaultStationColorLight        = "#E6007E"
	DefaultStationColorDark         = "#E6007E"
)

// Validation patterns define regular expressions for configuration value validation.
var (
	// Station name: any printable characters except control chars
	stationNamePattern  = regexp.MustCompile(`^[^\x00-\x1F\x7F]+$`)
	stationColorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)
)

// SystemConfig holds system-level settings that require restart.
type SystemConfig struct {
	Port int `json:"port"` // HTTP server port
}

// WebConfig holds station branding settings.
type WebConfig struct {
	StationName string `json:"station_name"` // Station display name
	ColorLight  string `json:"color_light"`  // Theme color for light mode (#RRGGBB)
	ColorDark   string `json:"color_dark"`   // Theme color for dark mode (#RRGGBB)
}

// AudioConfig holds capture session settings.
type AudioConfig struct {
	NumChannels   int     `json:"num_channels"`   // Number of microphone channels
	Devices       []*int  `json:"devices"`        // Per-channel device index, null = system default
	FrameSize     int     `json:"frame_size"`     // Callback block size in frames
	WindowSeconds float64 `json:"window_seconds"` // Time-plot window length in seconds
}

// DisplayConfig holds persisted view parameters.
type DisplayConfig struct {
	Gain            float64 `json:"gain"`              // Amplitude multiplier
	TimePlot        bool    `json:"time_plot"`         // Scrolling mode toggle
	RateAdjustment  float64 `json:"rate_adjustment"`   // Time-axis compression factor
	FrameIntervalMs int     `json:"frame_interval_ms"` // Render interval in milliseconds
}

// SilenceDetectionConfig holds dead-mic detection thresholds and timing parameters.
type SilenceDetectionConfig struct {
	ThresholdDB float64           `json:"threshold_db"` // Silence threshold in dB
	DurationMs  int64             `json:"duration_ms"`  // Duration below threshold before silence alert
	RecoveryMs  int64             `json:"recovery_ms"`  // Duration above threshold before recovery
	Dump        SilenceDumpConfig `json:"dump"`         // Episode capture settings
}

// SilenceDumpConfig holds dead-mic episode capture settings.
type SilenceDumpConfig struct {
	Enabled       bool `json:"enabled"`        // Whether episode capture is active
	RetentionDays int  `json:"retention_days"` // Days to keep dump files (default 7)
}

// WebhookConfig holds webhook notification settings.
type WebhookConfig struct {
	URL string `json:"url"` // Webhook URL for dead-mic alerts
}

// LogConfig holds log file notification settings.
type LogConfig struct {
	Path string `json:"path"` // Log file path for dead-mic events
}

// NotificationsConfig holds all notification channel settings.
type NotificationsConfig struct {
	Webhook WebhookConfig `json:"webhook"` // Webhook settings
	Log     LogConfig     `json:"log"`     // Log file settings
}

// Config holds all application configuration. It is safe for concurrent use.
type Config struct {
	System           SystemConfig           `json:"system"`
	Web              WebConfig              `json:"web"`
	Audio            AudioConfig            `json:"audio"`
	Display          DisplayConfig          `json:"display"`
	SilenceDetection SilenceDetectionConfig `json:"silence_detection"`
	Notifications    NotificationsConfig    `json:"notifications"`

	mu       sync.RWMutex
	filePath string
}

// New creates a new Config with default values.
func New(filePath string) *Config {
	return &Config{
		System: SystemConfig{
			Port: DefaultWebPort,
		},
		Web: WebConfig{
			StationName: DefaultStationName,
			ColorLight:  DefaultStationColorLight,
			ColorDark:   DefaultStationColorDark,
		},
		Audio: AudioConfig{
			NumChannels:   types.DefaultChannels,
			Devices:       []*int{},
			FrameSize:     types.DefaultFrameSize,
			WindowSeconds: types.DefaultWindowSeconds,
		},
		Display: DisplayConfig{
			Gain:            types.DefaultDisplayGain,
			RateAdjustment:  types.DefaultRateAdjustment,
			FrameIntervalMs: types.DefaultFrameIntervalMs,
		},
		SilenceDetection: SilenceDetectionConfig{},
		Notifications:    NotificationsConfig{},
		filePath:         filePath,
	}
}

// Load reads config from file, creating a default if none exists.
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.filePath)
	if os.IsNotExist(err) {
		return c.saveLocked()
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	if err := json.Unmarshal(data, c); err != nil {
		return util.WrapError("parse config", err)
	}

	c.applyDefaults()

	if err := c.validate(); err != nil {
		return err
	}

	return nil
}

// validate checks all configuration fields for correctness.
func (c *Config) validate() error {
	// Validate station name
	name := c.Web.StationName
	if name == "" || len(name) > 30 || !stationNamePattern.MatchString(name) {
		return fmt.Errorf("invalid station_name %q: must be 1-30 printable characters", name)
	}
	// Validate station colors
	if !stationColorPattern.MatchString(c.Web.ColorLight) {
		return fmt.Errorf("invalid color_light %q: must be hex format (#RRGGBB)", c.Web.ColorLight)
	}
	if !stationColorPattern.MatchString(c.Web.ColorDark) {
		return fmt.Errorf("invalid color_dark %q: must be hex format (#RRGGBB)", c.Web.ColorDark)
	}
	// Validate capture settings
	if c.Audio.NumChannels < 1 || c.Audio.NumChannels > types.MaxChannels {
		return fmt.Errorf("invalid num_channels %d: must be 1-%d", c.Audio.NumChannels, types.MaxChannels)
	}
	for i, d := range c.Audio.Devices {
		if d != nil && *d < 0 {
			return fmt.Errorf("invalid device for channel %d: index %d must not be negative", i, *d)
		}
	}
	if c.Audio.FrameSize < types.MinFrameSize || c.Audio.FrameSize > types.MaxFrameSize {
		return fmt.Errorf("invalid frame_size %d: must be %d-%d", c.Audio.FrameSize, types.MinFrameSize, types.MaxFrameSize)
	}
	if c.Audio.WindowSeconds < types.MinWindowSeconds || c.Audio.WindowSeconds > types.MaxWindowSeconds {
		return fmt.Errorf("invalid window_seconds %g: must be %g-%g", c.Audio.WindowSeconds, types.MinWindowSeconds, types.MaxWindowSeconds)
	}
	// Validate display settings
	if c.Display.Gain < 0 || c.Display.Gain > types.MaxDisplayGain {
		return fmt.Errorf("invalid gain %g: must be 0-%g", c.Display.Gain, types.MaxDisplayGain)
	}
	if c.Display.RateAdjustment < types.MinRateAdjustment || c.Display.RateAdjustment > types.MaxRateAdjustment {
		return fmt.Errorf("invalid rate_adjustment %g: must be %g-%g", c.Display.RateAdjustment, types.MinRateAdjustment, types.MaxRateAdjustment)
	}
	if c.Display.FrameIntervalMs < types.MinFrameIntervalMs || c.Display.FrameIntervalMs > types.MaxFrameIntervalMs {
		return fmt.Errorf("invalid frame_interval_ms %d: must be %d-%d", c.Display.FrameIntervalMs, types.MinFrameIntervalMs, types.MaxFrameIntervalMs)
	}
	// Validate silence detection. Zero values mean unset and take defaults.
	sd := &c.SilenceDetection
	if sd.ThresholdDB < -60 || sd.ThresholdDB > 0 {
		return fmt.Errorf("invalid threshold_db %g: must be -60-0", sd.ThresholdDB)
	}
	if sd.DurationMs != 0 && (sd.DurationMs < 500 || sd.DurationMs > 300000) {
		return fmt.Errorf("invalid duration_ms %d: must be 500-300000", sd.DurationMs)
	}
	if sd.RecoveryMs != 0 && (sd.RecoveryMs < 500 || sd.RecoveryMs > 60000) {
		return fmt.Errorf("invalid recovery_ms %d: must be 500-60000", sd.RecoveryMs)
	}
	if d := sd.Dump.RetentionDays; d != 0 && (d < 1 || d > 365) {
		return fmt.Errorf("invalid retention_days %d: must be 1-365", d)
	}
	return nil
}

// applyDefaults sets default values for zero-value fields.
func (c *Config) applyDefaults() {
	// System defaults
	if c.System.Port == 0 {
		c.System.Port = DefaultWebPort
	}
	// Web defaults
	if c.Web.StationName == "" {
		c.Web.StationName = DefaultStationName
	}
	if c.Web.ColorLight == "" {
		c.Web.ColorLight = DefaultStationColorLight
	}
	if c.Web.ColorDark == "" {
		c.Web.ColorDark = DefaultStationColorDark
	}
	// Audio defaults
	if c.Audio.NumChannels == 0 {
		c.Audio.NumChannels = types.DefaultChannels
	}
	if c.Audio.Devices == nil {
		c.Audio.Devices = []*int{}
	}
	if c.Audio.FrameSize == 0 {
		c.Audio.FrameSize = types.DefaultFrameSize
	}
	if c.Audio.WindowSeconds == 0 {
		c.Audio.WindowSeconds = types.DefaultWindowSeconds
	}
	// Display defaults
	if c.Display.Gain == 0 {
		c.Display.Gain = types.DefaultDisplayGain
	}
	if c.Display.RateAdjustment == 0 {
		c.Display.RateAdjustment = types.DefaultRateAdjustment
	}
	if c.Display.FrameIntervalMs == 0 {
		c.Display.FrameIntervalMs = types.DefaultFrameIntervalMs
	}
}

// saveLocked persists configuration. Caller must hold c.mu.
func (c *Config) saveLocked() error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return util.WrapError("marshal config", err)
	}

	dir := filepath.Dir(c.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return util.WrapError("create config directory", err)
	}

	if err := os.WriteFile(c.filePath, data, 0o600); err != nil {
		return util.WrapError("write config", err)
	}

	return nil
}

// --- Getters for individual settings ---

// DisplaySettings returns the persisted view parameters as runtime settings.
// Paused is a runtime-only flag and always starts false.
func (c *Config) DisplaySettings() types.DisplaySettings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return types.DisplaySettings{
		Gain:            c.Display.Gain,
		TimePlot:        c.Display.TimePlot,
		RateAdjustment:  c.Display.RateAdjustment,
		FrameIntervalMs: c.Display.FrameIntervalMs,
	}
}

// AudioSelection returns the configured channel count and device choices.
func (c *Config) AudioSelection() (int, []*int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Audio.NumChannels, slices.Clone(c.Audio.Devices)
}

// LogPath returns the configured log file path for notifications.
func (c *Config) LogPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Notifications.Log.Path
}

// WebhookURL returns the configured webhook URL for notifications.
func (c *Config) WebhookURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Notifications.Webhook.URL
}

// --- Setters for individual settings ---

// SetStation updates the station branding and saves the configuration.
func (c *Config) SetStation(name, colorLight, colorDark string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if name == "" || len(name) > 30 || !stationNamePattern.MatchString(name) {
		return fmt.Errorf("invalid station_name %q: must be 1-30 printable characters", name)
	}
	if !stationColorPattern.MatchString(colorLight) {
		return fmt.Errorf("invalid color_light %q: must be hex format (#RRGGBB)", colorLight)
	}
	if !stationColorPattern.MatchString(colorDark) {
		return fmt.Errorf("invalid color_dark %q: must be hex format (#RRGGBB)", colorDark)
	}

	c.Web.StationName = name
	c.Web.ColorLight = colorLight
	c.Web.ColorDark = colorDark
	return c.saveLocked()
}

// SetAudioSelection updates the channel count and device choices and saves
// the configuration. The selection takes effect on the next session start.
func (c *Config) SetAudioSelection(numChannels int, devices []*int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if numChannels < 1 || numChannels > types.MaxChannels {
		return fmt.Errorf("invalid num_channels %d: must be 1-%d", numChannels, types.MaxChannels)
	}
	for i, d := range devices {
		if d != nil && *d < 0 {
			return fmt.Errorf("invalid device for channel %d: index %d must not be negative", i, *d)
		}
	}

	c.Audio.NumChannels = numChannels
	c.Audio.Devices = slices.Clone(devices)
	if c.Audio.Devices == nil {
		c.Audio.Devices = []*int{}
	}
	return c.saveLocked()
}

// SetDisplay persists the durable view parameters. Paused is runtime-only
// and is not stored.
func (c *Config) SetDisplay(settings types.DisplaySettings) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Display.Gain = settings.Gain
	c.Display.TimePlot = settings.TimePlot
	c.Display.RateAdjustment = settings.RateAdjustment
	c.Display.FrameIntervalMs = settings.FrameIntervalMs
	return c.saveLocked()
}

// SetSilenceDetection updates the dead-mic detection parameters and saves
// the configuration.
func (c *Config) SetSilenceDetection(thresholdDB float64, durationMs, recoveryMs int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SilenceDetection.ThresholdDB = thresholdDB
	c.SilenceDetection.DurationMs = durationMs
	c.SilenceDetection.RecoveryMs = recoveryMs
	return c.saveLocked()
}

// SetSilenceDump updates the episode capture settings and saves the
// configuration.
func (c *Config) SetSilenceDump(enabled bool, retentionDays int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SilenceDetection.Dump.Enabled = enabled
	c.SilenceDetection.Dump.RetentionDays = retentionDays
	return c.saveLocked()
}

// SetWebhookURL updates the webhook URL and saves the configuration.
func (c *Config) SetWebhookURL(url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.Webhook.URL = url
	return c.saveLocked()
}

// SetLogPath updates the log file path and saves the configuration.
func (c *Config) SetLogPath(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.Log.Path = path
	return c.saveLocked()
}

// --- Snapshot for atomic reads ---

// Snapshot is a point-in-time copy of configuration values.
type Snapshot struct {
	// System
	WebPort int

	// Web/Branding
	StationName       string
	StationColorLight string
	StationColorDark  string

	// Audio
	NumChannels   int
	Devices       []*int
	FrameSize     int
	WindowSeconds float64

	// Display
	Gain            float64
	TimePlot        bool
	RateAdjustment  float64
	FrameIntervalMs int

	// Silence Detection
	SilenceThreshold         float64
	SilenceDurationMs        int64
	SilenceRecoveryMs        int64
	SilenceDumpEnabled       bool
	SilenceDumpRetentionDays int

	// Notifications
	WebhookURL string
	LogPath    string
}

// Snapshot returns a point-in-time copy of all configuration values.
func (c *Config) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		// System
		WebPort: c.System.Port,

		// Web/Branding
		StationName:       c.Web.StationName,
		StationColorLight: c.Web.ColorLight,
		StationColorDark:  c.Web.ColorDark,

		// Audio
		NumChannels:   c.Audio.NumChannels,
		Devices:       slices.Clone(c.Audio.Devices),
		FrameSize:     c.Audio.FrameSize,
		WindowSeconds: c.Audio.WindowSeconds,

		// Display
		Gain:            c.Display.Gain,
		TimePlot:        c.Display.TimePlot,
		RateAdjustment:  c.Display.RateAdjustment,
		FrameIntervalMs: c.Display.FrameIntervalMs,

		// Silence Detection (with defaults)
		SilenceThreshold:         cmp.Or(c.SilenceDetection.ThresholdDB, DefaultSilenceThreshold),
		SilenceDurationMs:        cmp.Or(c.SilenceDetection.DurationMs, DefaultSilenceDurationMs),
		SilenceRecoveryMs:        cmp.Or(c.SilenceDetection.RecoveryMs, DefaultSilenceRecoveryMs),
		SilenceDumpEnabled:       c.SilenceDetection.Dump.Enabled,
		SilenceDumpRetentionDays: cmp.Or(c.SilenceDetection.Dump.RetentionDays, DefaultSilenceDumpRetentionDays),

		// Notifications
		WebhookURL: c.Notifications.Webhook.URL,
		LogPath:    c.Notifications.Log.Path,
	}
}

// HasWebhook reports whether a webhook URL is configured.
func (s *Snapshot) HasWebhook() bool {
	return s.WebhookURL != ""
}

// HasLogPath reports whether a log path is configured.
func (s *Snapshot) HasLogPath() bool {
	return s.LogPath != ""
}
