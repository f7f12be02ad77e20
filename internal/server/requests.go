package server

// Request types for WebSocket commands with validation tags.
// These types define the expected input for each command and use
// go-playground/validator struct tags for automatic validation.
// Pointer fields distinguish "not provided" from a zero value.

// --- Display settings ---

// DisplayUpdateRequest is the request body for display/update.
type DisplayUpdateRequest struct {
	Gain            *float64 `json:"gain" validate:"omitempty,gte=0,lte=2"`
	TimePlot        *bool    `json:"time_plot"`
	RateAdjustment  *float64 `json:"rate_adjustment" validate:"omitempty,gte=0.1,lte=2"`
	FrameIntervalMs *int     `json:"frame_interval_ms" validate:"omitempty,gte=5,lte=100"`
	Paused          *bool    `json:"paused"`
}

// --- Device selection ---

// DevicesUpdateRequest is the request body for devices/update. A null
// entry in Devices selects the system default input for that channel.
type DevicesUpdateRequest struct {
	NumChannels *int   `json:"num_channels" validate:"omitempty,gte=1,lte=8"`
	Devices     []*int `json:"devices" validate:"omitempty,max=8,dive,omitempty,gte=0"`
}

// --- Silence detection settings ---

// SilenceUpdateRequest is the request body for silence/update.
type SilenceUpdateRequest struct {
	ThresholdDB *float64 `json:"threshold_db" validate:"omitempty,gte=-60,lte=0"`
	DurationMs  *int64   `json:"duration_ms" validate:"omitempty,gte=500,lte=300000"`
	RecoveryMs  *int64   `json:"recovery_ms" validate:"omitempty,gte=500,lte=60000"`

	DumpEnabled       *bool `json:"dump_enabled"`
	DumpRetentionDays *int  `json:"dump_retention_days" validate:"omitempty,gte=1,lte=365"`
}

// --- Notification settings ---

// WebhookUpdateRequest is the request body for notifications/webhook/update.
type WebhookUpdateRequest struct {
	URL string `json:"url" validate:"omitempty,max=2048"`
}

// LogUpdateRequest is the request body for notifications/log/update.
type LogUpdateRequest struct {
	Path string `json:"path" validate:"omitempty,max=4096"`
}

// --- Station branding ---

// StationUpdateRequest is the request body for station/update. Empty
// fields keep their current value.
type StationUpdateRequest struct {
	Name       string `json:"name" validate:"omitempty,max=30"`
	ColorLight string `json:"color_light" validate:"omitempty,hexcolor"`
	ColorDark  string `json:"color_dark" validate:"omitempty,hexcolor"`
}
