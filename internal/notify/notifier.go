// Package notify delivers dead-microphone alerts to the configured
// notification channels.
package notify

import (
	"sync"

	"github.com/oszuidwest/zwfm-micmonitor/internal/audio"
	"github.com/oszuidwest/zwfm-micmonitor/internal/config"
	"github.com/oszuidwest/zwfm-micmonitor/internal/types"
	"github.com/oszuidwest/zwfm-micmonitor/internal/util"
)

// MicNotifier manages notifications for dead-microphone events. Each
// channel gets at most one alert per silence episode, and a recovery
// notice only if the matching alert went out.
type MicNotifier struct {
	cfg *config.Config

	// mu protects the per-channel sent flags below
	mu sync.Mutex

	webhookSent [types.MaxChannels]bool
	logSent     [types.MaxChannels]bool
}

// NewMicNotifier returns a MicNotifier configured with the given config.
func NewMicNotifier(cfg *config.Config) *MicNotifier {
	return &MicNotifier{cfg: cfg}
}

// HandleEvent processes a silence event and triggers notifications.
func (n *MicNotifier) HandleEvent(event audio.SilenceEvent) {
	if event.Channel < 0 || event.Channel >= types.MaxChannels {
		return
	}

	if event.JustSilenced {
		n.handleMicSilent(event)
	}

	if event.JustRecovered {
		n.handleMicRecovered(event)
	}
}

// handleMicSilent triggers notifications when a channel goes dead.
func (n *MicNotifier) handleMicSilent(event audio.SilenceEvent) {
	cfg := n.cfg.Snapshot()

	n.trySend(&n.webhookSent[event.Channel], cfg.HasWebhook(), func() {
		n.sendSilenceWebhook(cfg, event)
	})
	n.trySend(&n.logSent[event.Channel], cfg.HasLogPath(), func() {
		n.logMicSilent(cfg, event)
	})
}

// trySend sends a notification if the condition is met and not already sent.
func (n *MicNotifier) trySend(sent *bool, condition bool, sender func()) {
	n.mu.Lock()
	shouldSend := !*sent && condition
	if shouldSend {
		*sent = true
	}
	n.mu.Unlock()
	if shouldSend {
		go sender()
	}
}

// handleMicRecovered triggers recovery notifications when a channel
// comes back.
func (n *MicNotifier) handleMicRecovered(event audio.SilenceEvent) {
	cfg := n.cfg.Snapshot()

	// Only send recovery notifications if we sent the corresponding alert
	n.mu.Lock()
	shouldSendWebhookRecovery := n.webhookSent[event.Channel]
	shouldSendLogRecovery := n.logSent[event.Channel]
	// Reset notification state for the channel's next silence episode
	n.webhookSent[event.Channel] = false
	n.logSent[event.Channel] = false
	n.mu.Unlock()

	if shouldSendWebhookRecovery {
		go n.sendRecoveryWebhook(cfg, event)
	}

	if shouldSendLogRecovery {
		go n.logMicRecovered(cfg, event)
	}
}

// Reset clears the notification state for all channels.
func (n *MicNotifier) Reset() {
	n.mu.Lock()
	n.webhookSent = [types.MaxChannels]bool{}
	n.logSent = [types.MaxChannels]bool{}
	n.mu.Unlock()
}

//nolint:gocritic // hugeParam: copy is acceptable for infrequent notification events
func (n *MicNotifier) sendSilenceWebhook(cfg config.Snapshot, event audio.SilenceEvent) {
	util.LogNotifyResult(
		func() error {
			return SendSilenceWebhook(cfg.WebhookURL, event.Channel, event.LevelDB, cfg.SilenceThreshold)
		},
		"Dead mic webhook",
	)
}

//nolint:gocritic // hugeParam: copy is acceptable for infrequent notification events
func (n *MicNotifier) sendRecoveryWebhook(cfg config.Snapshot, event audio.SilenceEvent) {
	util.LogNotifyResult(
		func() error {
			return SendRecoveryWebhook(cfg.WebhookURL, event.Channel, event.TotalDurationMs, event.LevelDB, cfg.SilenceThreshold)
		},
		"Recovery webhook",
	)
}

//nolint:gocritic // hugeParam: copy is acceptable for infrequent notification events
func (n *MicNotifier) logMicSilent(cfg config.Snapshot, event audio.SilenceEvent) {
	util.LogNotifyResult(
		func() error {
			return LogMicSilent(cfg.LogPath, event.Channel, event.LevelDB, cfg.SilenceThreshold)
		},
		"Dead mic log",
	)
}

//nolint:gocritic // hugeParam: copy is acceptable for infrequent notification events
func (n *MicNotifier) logMicRecovered(cfg config.Snapshot, event audio.SilenceEvent) {
	util.LogNotifyResult(
		func() error {
			return LogMicRecovered(cfg.LogPath, event.Channel, event.TotalDurationMs, event.LevelDB, cfg.SilenceThreshold)
		},
		"Recovery log",
	)
}
