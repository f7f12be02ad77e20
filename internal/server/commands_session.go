package server

// Session lifecycle commands. Start, stop and restart all touch real
// audio hardware and can block for seconds, so they run asynchronously
// and report through the command result.

// handleSessionStart processes a session/start command.
func (h *CommandHandler) handleSessionStart(cmd WSCommand, send chan<- any) {
	HandleActionAsync(cmd, send, func() (any, error) {
		return nil, h.monitor.Start()
	})
}

// handleSessionStop processes a session/stop command.
func (h *CommandHandler) handleSessionStop(cmd WSCommand, send chan<- any) {
	HandleActionAsync(cmd, send, func() (any, error) {
		return nil, h.monitor.Stop()
	})
}

// handleSessionRestart processes a session/restart command.
func (h *CommandHandler) handleSessionRestart(cmd WSCommand, send chan<- any) {
	HandleActionAsync(cmd, send, func() (any, error) {
		return nil, h.monitor.Restart()
	})
}
