package types

// WSConfigResponse is sent in response to config/get.
// Contains the full configuration without runtime state.
type WSConfigResponse struct {
	Type   string      `json:"type"` // "config"
	Config interface{} `json:"config"`
}

// WSCommandResult is the standard response for command execution.
// Used by slash-style commands (display/update, silence/update, etc.)
type WSCommandResult struct {
	Type    string           `json:"type"`            // "<command>_result"
	Success bool             `json:"success"`         // true if command succeeded
	Error   *ValidationError `json:"error,omitempty"` // Validation errors if failed
	Data    interface{}      `json:"data,omitempty"`  // Optional response data
}

// WSMicLogResult is sent in response to notifications/log/view.
type WSMicLogResult struct {
	Type    string        `json:"type"`              // "mic_log_result"
	Success bool          `json:"success"`           // true if the log was read
	Error   string        `json:"error,omitempty"`   // Error message if failed
	Entries []MicLogEntry `json:"entries,omitempty"` // Newest first
	Path    string        `json:"path,omitempty"`    // Log file path that was read
}
