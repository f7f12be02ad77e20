package server

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/oszuidwest/zwfm-micmonitor/internal/config"
	"github.com/oszuidwest/zwfm-micmonitor/internal/monitor"
)

// MaxLogEntries is the maximum number of alert log entries returned to
// the client by notifications/log/view.
const MaxLogEntries = 100

// WSCommand is a command received from a WebSocket client.
type WSCommand struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// CommandHandler processes WebSocket commands.
type CommandHandler struct {
	cfg     *config.Config
	monitor *monitor.Monitor
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(cfg *config.Config, mon *monitor.Monitor) *CommandHandler {
	return &CommandHandler{
		cfg:     cfg,
		monitor: mon,
	}
}

// Handle processes a WebSocket command and performs the requested action.
// Commands use slash-style format: namespace/action (e.g., "display/update",
// "session/start")
func (h *CommandHandler) Handle(cmd WSCommand, send chan<- any, triggerStatusUpdate func()) {
	// Parse command into namespace and action
	parts := strings.SplitN(cmd.Type, "/", 3)
	namespace := parts[0]
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}
	subaction := ""
	if len(parts) > 2 {
		subaction = parts[2]
	}

	switch namespace {
	case "display":
		h.handleDisplay(action, cmd, send)
	case "devices":
		h.handleDevices(action, cmd, send)
	case "session":
		h.handleSession(action, cmd, send)
	case "silence":
		h.handleSilence(action, cmd, send)
	case "notifications":
		h.handleNotifications(action, subaction, cmd, send)
	case "station":
		h.handleStation(action, cmd, send)
	case "config":
		h.handleConfig(action, send)
	case "status":
		h.handleStatus(action, send)
	default:
		slog.Warn("unknown WebSocket command", "type", cmd.Type)
	}

	triggerStatusUpdate()
}

// --- Namespace handlers ---

// handleDisplay routes display/* commands
func (h *CommandHandler) handleDisplay(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "update":
		h.handleDisplayUpdate(cmd, send)
	default:
		slog.Warn("unknown display action", "action", action)
	}
}

// handleDevices routes devices/* commands
func (h *CommandHandler) handleDevices(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "update":
		h.handleDevicesUpdate(cmd, send)
	default:
		slog.Warn("unknown devices action", "action", action)
	}
}

// handleSession routes session/* commands
func (h *CommandHandler) handleSession(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "start":
		h.handleSessionStart(cmd, send)
	case "stop":
		h.handleSessionStop(cmd, send)
	case "restart":
		h.handleSessionRestart(cmd, send)
	default:
		slog.Warn("unknown session action", "action", action)
	}
}

// handleSilence routes silence/* commands
func (h *CommandHandler) handleSilence(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "update":
		h.handleSilenceUpdate(cmd, send)
	default:
		slog.Warn("unknown silence action", "action", action)
	}
}

// handleNotifications routes notifications/*/* commands
func (h *CommandHandler) handleNotifications(action, subaction string, cmd WSCommand, send chan<- any) {
	switch action {
	case "webhook":
		switch subaction {
		case "update":
			h.handleWebhookUpdate(cmd, send)
		case "test":
			h.handleTest(send, "test_webhook")
		default:
			slog.Warn("unknown webhook action", "subaction", subaction)
		}
	case "log":
		switch subaction {
		case "update":
			h.handleLogUpdate(cmd, send)
		case "test":
			h.handleTest(send, "test_log")
		case "view":
			h.handleViewMicLog(send)
		default:
			slog.Warn("unknown log action", "subaction", subaction)
		}
	default:
		slog.Warn("unknown notifications action", "action", action)
	}
}

// handleStation routes station/* commands
func (h *CommandHandler) handleStation(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "update":
		h.handleStationUpdate(cmd, send)
	default:
		slog.Warn("unknown station action", "action", action)
	}
}

// handleConfig routes config/* commands
func (h *CommandHandler) handleConfig(action string, send chan<- any) {
	switch action {
	case "get":
		h.handleConfigGet(send)
	default:
		slog.Warn("unknown config action", "action", action)
	}
}

// handleStatus routes status/* commands
func (h *CommandHandler) handleStatus(action string, send chan<- any) {
	switch action {
	case "get":
		// Status is sent automatically, but explicit get triggers immediate update
		slog.Debug("status/get received, status update will be triggered")
	default:
		slog.Warn("unknown status action", "action", action)
	}
}
