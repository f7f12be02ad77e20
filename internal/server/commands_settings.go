package server

import (
	"log/slog"
	"slices"

	"github.com/oszuidwest/zwfm-micmonitor/internal/config"
	"github.com/oszuidwest/zwfm-micmonitor/internal/types"
)

// --- Display handlers ---

// handleDisplayUpdate processes a display/update command. Omitted fields
// keep their current value. Changes land between render ticks.
func (h *CommandHandler) handleDisplayUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(h, cmd, send, func(req *DisplayUpdateRequest) error {
		settings := h.monitor.Settings()

		if req.Gain != nil {
			settings.Gain = *req.Gain
		}
		if req.TimePlot != nil {
			settings.TimePlot = *req.TimePlot
		}
		if req.RateAdjustment != nil {
			settings.RateAdjustment = *req.RateAdjustment
		}
		if req.FrameIntervalMs != nil {
			settings.FrameIntervalMs = *req.FrameIntervalMs
		}
		if req.Paused != nil {
			settings.Paused = *req.Paused
		}

		// Persist first so a write failure never leaves config and
		// engine disagreeing.
		if err := h.cfg.SetDisplay(settings); err != nil {
			return err
		}
		h.monitor.SetSettings(settings)
		return nil
	})
}

// --- Device selection handlers ---

// handleDevicesUpdate processes a devices/update command. A device change
// takes effect immediately: a running session restarts on the new
// selection, a stopped one starts.
func (h *CommandHandler) handleDevicesUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(h, cmd, send, func(req *DevicesUpdateRequest) error {
		channels, devices := h.cfg.AudioSelection()

		if req.NumChannels != nil {
			channels = *req.NumChannels
		}
		if req.Devices != nil {
			devices = slices.Clone(req.Devices)
		}

		slog.Info("devices/update: changing input selection",
			"channels", channels, "devices", formatSelection(devices))
		if err := h.cfg.SetAudioSelection(channels, devices); err != nil {
			return err
		}

		go func() {
			var err error
			switch h.monitor.State() {
			case types.StateRunning:
				err = h.monitor.Restart()
			case types.StateIdle, types.StateStopped, types.StateFailed:
				err = h.monitor.Start()
			}
			if err != nil {
				slog.Error("devices/update: session change failed", "error", err)
			}
		}()

		return nil
	})
}

// formatSelection renders a device selection for logging, with "default"
// for null entries.
func formatSelection(devices []*int) []any {
	out := make([]any, len(devices))
	for i, d := range devices {
		if d == nil {
			out[i] = "default"
		} else {
			out[i] = *d
		}
	}
	return out
}

// --- Silence detection handlers ---

// handleSilenceUpdate processes a silence/update command.
func (h *CommandHandler) handleSilenceUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(h, cmd, send, func(req *SilenceUpdateRequest) error {
		snap := h.cfg.Snapshot()

		threshold := snap.SilenceThreshold
		durationMs := snap.SilenceDurationMs
		recoveryMs := snap.SilenceRecoveryMs

		if req.ThresholdDB != nil {
			threshold = *req.ThresholdDB
		}
		if req.DurationMs != nil {
			durationMs = *req.DurationMs
		}
		if req.RecoveryMs != nil {
			recoveryMs = *req.RecoveryMs
		}

		if err := h.cfg.SetSilenceDetection(threshold, durationMs, recoveryMs); err != nil {
			return err
		}

		// Apply changes to the running detector
		h.monitor.SetSilence(threshold, durationMs, recoveryMs)

		if req.DumpEnabled != nil || req.DumpRetentionDays != nil {
			enabled := snap.SilenceDumpEnabled
			retentionDays := snap.SilenceDumpRetentionDays

			if req.DumpEnabled != nil {
				enabled = *req.DumpEnabled
			}
			if req.DumpRetentionDays != nil {
				retentionDays = *req.DumpRetentionDays
			}

			if err := h.cfg.SetSilenceDump(enabled, retentionDays); err != nil {
				return err
			}
			h.monitor.SetSilenceDump(enabled, retentionDays)
		}
		return nil
	})
}

// --- Station branding handlers ---

// handleStationUpdate processes a station/update command.
func (h *CommandHandler) handleStationUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(h, cmd, send, func(req *StationUpdateRequest) error {
		snap := h.cfg.Snapshot()

		name := snap.StationName
		colorLight := snap.StationColorLight
		colorDark := snap.StationColorDark

		if req.Name != "" {
			name = req.Name
		}
		if req.ColorLight != "" {
			colorLight = req.ColorLight
		}
		if req.ColorDark != "" {
			colorDark = req.ColorDark
		}

		return h.cfg.SetStation(name, colorLight, colorDark)
	})
}

// --- Config handlers ---

// handleConfigGet processes a config/get command.
func (h *CommandHandler) handleConfigGet(send chan<- any) {
	trySend(send, "config", types.WSConfigResponse{
		Type:   "config",
		Config: ConfigPayload(h.cfg.Snapshot()),
	})
}

// ConfigPayload renders a configuration snapshot for clients. The same
// shape is served by config/get and GET /api/config.
//
//nolint:gocritic // hugeParam: copy keeps the read atomic
func ConfigPayload(snap config.Snapshot) map[string]any {
	return map[string]any{
		"port":           snap.WebPort,
		"station_name":   snap.StationName,
		"color_light":    snap.StationColorLight,
		"color_dark":     snap.StationColorDark,
		"num_channels":   snap.NumChannels,
		"devices":        snap.Devices,
		"frame_size":     snap.FrameSize,
		"window_seconds": snap.WindowSeconds,
		"display": map[string]any{
			"gain":              snap.Gain,
			"time_plot":         snap.TimePlot,
			"rate_adjustment":   snap.RateAdjustment,
			"frame_interval_ms": snap.FrameIntervalMs,
		},
		"silence_detection": map[string]any{
			"threshold_db":        snap.SilenceThreshold,
			"duration_ms":         snap.SilenceDurationMs,
			"recovery_ms":         snap.SilenceRecoveryMs,
			"dump_enabled":        snap.SilenceDumpEnabled,
			"dump_retention_days": snap.SilenceDumpRetentionDays,
		},
		"webhook_url": snap.WebhookURL,
		"log_path":    snap.LogPath,
	}
}
