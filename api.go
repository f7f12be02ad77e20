package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/oszuidwest/zwfm-micmonitor/internal/config"
	"github.com/oszuidwest/zwfm-micmonitor/internal/server"
	"github.com/oszuidwest/zwfm-micmonitor/internal/util"
)

// API response helpers

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) readJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// parseJSON reads and parses JSON from request body.
// Returns parsed value and true on success, zero value and false on failure.
func parseJSON[T any](s *Server, w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	if err := s.readJSON(r, &v); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return v, false
	}
	return v, true
}

// handleAPIHealth reports liveness for supervisors and probes.
// GET /api/health
func (s *Server) handleAPIHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": Version,
		"state":   s.monitor.State(),
	})
}

// handleAPIStatus returns the full monitor status including per-channel levels.
// GET /api/status
func (s *Server) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.writeJSON(w, http.StatusOK, s.monitor.Status())
}

// handleAPIDevices returns available capture devices.
// GET /api/devices
func (s *Server) handleAPIDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	devices, err := s.monitor.Devices()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
	})
}

// handleAPIConfig returns the full configuration for the frontend.
// GET /api/config
func (s *Server) handleAPIConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.writeJSON(w, http.StatusOK, server.ConfigPayload(s.config.Snapshot()))
}

// SettingsUpdateRequest is the request body for POST /api/settings.
// All fields are optional; only the provided ones are applied. Device
// selection is excluded here because changing it restarts the capture
// session, which the WebSocket command path coordinates.
type SettingsUpdateRequest struct {
	// Display
	Gain            *float64 `json:"gain" validate:"omitempty,gte=0,lte=2"`
	TimePlot        *bool    `json:"time_plot"`
	RateAdjustment  *float64 `json:"rate_adjustment" validate:"omitempty,gte=0.1,lte=2"`
	FrameIntervalMs *int     `json:"frame_interval_ms" validate:"omitempty,gte=5,lte=100"`
	Paused          *bool    `json:"paused"`

	// Silence detection
	SilenceThreshold         *float64 `json:"silence_threshold" validate:"omitempty,gte=-60,lte=0"`
	SilenceDurationMs        *int64   `json:"silence_duration_ms" validate:"omitempty,gte=500,lte=300000"`
	SilenceRecoveryMs        *int64   `json:"silence_recovery_ms" validate:"omitempty,gte=500,lte=60000"`
	SilenceDumpEnabled       *bool    `json:"silence_dump_enabled"`
	SilenceDumpRetentionDays *int     `json:"silence_dump_retention_days" validate:"omitempty,gte=1,lte=365"`

	// Notifications
	WebhookURL *string `json:"webhook_url" validate:"omitempty,max=2048"`
	LogPath    *string `json:"log_path" validate:"omitempty,max=4096"`
}

// handleAPISettings updates settings atomically.
// POST /api/settings
func (s *Server) handleAPISettings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	req, ok := parseJSON[SettingsUpdateRequest](s, w, r)
	if !ok {
		return
	}

	if verr := server.ValidateRequest(&req); verr != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   verr,
		})
		return
	}

	if req.LogPath != nil && *req.LogPath != "" {
		if err := util.ValidatePath("log_path", *req.LogPath); err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := util.CheckPathWritable(filepath.Dir(*req.LogPath)); err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	cfg := s.config.Snapshot()

	// Apply all settings in groups
	if err := s.applyDisplaySettings(&req); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := s.applySilenceSettings(&req, &cfg); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := s.applySilenceDumpSettings(&req, &cfg); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := s.applyNotificationSettings(&req); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// applyDisplaySettings applies view-related settings from the request.
func (s *Server) applyDisplaySettings(req *SettingsUpdateRequest) error {
	if req.Gain == nil && req.TimePlot == nil && req.RateAdjustment == nil &&
		req.FrameIntervalMs == nil && req.Paused == nil {
		return nil
	}

	settings := s.monitor.Settings()
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

	// Persist first so a write failure never leaves config and engine disagreeing.
	if err := s.config.SetDisplay(settings); err != nil {
		return err
	}
	s.monitor.SetSettings(settings)
	return nil
}

// applySilenceSettings applies dead-mic detection settings from the request.
func (s *Server) applySilenceSettings(req *SettingsUpdateRequest, cfg *config.Snapshot) error {
	if req.SilenceThreshold == nil && req.SilenceDurationMs == nil && req.SilenceRecoveryMs == nil {
		return nil
	}

	threshold := cfg.SilenceThreshold
	durationMs := cfg.SilenceDurationMs
	recoveryMs := cfg.SilenceRecoveryMs
	if req.SilenceThreshold != nil {
		threshold = *req.SilenceThreshold
	}
	if req.SilenceDurationMs != nil {
		durationMs = *req.SilenceDurationMs
	}
	if req.SilenceRecoveryMs != nil {
		recoveryMs = *req.SilenceRecoveryMs
	}

	if err := s.config.SetSilenceDetection(threshold, durationMs, recoveryMs); err != nil {
		return err
	}
	s.monitor.SetSilence(threshold, durationMs, recoveryMs)
	return nil
}

// applySilenceDumpSettings applies episode capture settings from the request.
func (s *Server) applySilenceDumpSettings(req *SettingsUpdateRequest, cfg *config.Snapshot) error {
	if req.SilenceDumpEnabled == nil && req.SilenceDumpRetentionDays == nil {
		return nil
	}

	enabled := cfg.SilenceDumpEnabled
	retentionDays := cfg.SilenceDumpRetentionDays
	if req.SilenceDumpEnabled != nil {
		enabled = *req.SilenceDumpEnabled
	}
	if req.SilenceDumpRetentionDays != nil {
		retentionDays = *req.SilenceDumpRetentionDays
	}

	if err := s.config.SetSilenceDump(enabled, retentionDays); err != nil {
		return err
	}
	s.monitor.SetSilenceDump(enabled, retentionDays)
	return nil
}

// applyNotificationSettings applies webhook and log settings from the request.
func (s *Server) applyNotificationSettings(req *SettingsUpdateRequest) error {
	if req.WebhookURL != nil {
		if err := s.config.SetWebhookURL(*req.WebhookURL); err != nil {
			return err
		}
	}

	if req.LogPath != nil {
		if err := s.config.SetLogPath(*req.LogPath); err != nil {
			return err
		}
	}

	return nil
}
