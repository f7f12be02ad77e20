package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/oszuidwest/zwfm-micmonitor/internal/util"
)

// webhookAttempts is how many times a webhook delivery is tried before
// giving up.
const webhookAttempts = 3

// WebhookPayload represents the data sent to webhook endpoints.
type WebhookPayload struct {
	Event             string  `json:"event"`
	Channel           int     `json:"channel"`
	SilenceDurationMs int64   `json:"silence_duration_ms,omitempty"`
	LevelDB           float64 `json:"level_db,omitempty"`
	Threshold         float64 `json:"threshold,omitempty"`
	Message           string  `json:"message,omitempty"`
	Timestamp         string  `json:"timestamp"`
}

// timestampUTC returns the current UTC time in RFC3339 format.
func timestampUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// SendSilenceWebhook notifies the configured webhook of a dead microphone.
func SendSilenceWebhook(webhookURL string, channel int, levelDB, threshold float64) error {
	return sendWebhook(webhookURL, &WebhookPayload{
		Event:     "mic_silent",
		Channel:   channel,
		LevelDB:   levelDB,
		Threshold: threshold,
		Message: fmt.Sprintf("Microphone %d went silent at %s (level %.1f dB, threshold %.1f dB). Please check the source.",
			channel+1, util.HumanTime(), levelDB, threshold),
		Timestamp: timestampUTC(),
	})
}

// SendRecoveryWebhook notifies the configured webhook that a microphone
// recovered.
func SendRecoveryWebhook(webhookURL string, channel int, durationMs int64, levelDB, threshold float64) error {
	return sendWebhook(webhookURL, &WebhookPayload{
		Event:             "mic_recovered",
		Channel:           channel,
		SilenceDurationMs: durationMs,
		LevelDB:           levelDB,
		Threshold:         threshold,
		Message: fmt.Sprintf("Microphone %d recovered at %s after %s of silence.",
			channel+1, util.HumanTime(), util.FormatDuration(durationMs)),
		Timestamp: timestampUTC(),
	})
}

// SendTestWebhook sends a test webhook notification.
func SendTestWebhook(webhookURL, stationName string) error {
	if webhookURL == "" {
		return fmt.Errorf("webhook URL not configured")
	}

	return sendWebhook(webhookURL, &WebhookPayload{
		Event:     "test",
		Channel:   -1,
		Message:   "This is a test notification from " + stationName,
		Timestamp: timestampUTC(),
	})
}

// sendWebhook delivers a notification to the configured webhook endpoint,
// retrying transient failures with exponential backoff.
func sendWebhook(webhookURL string, payload *WebhookPayload) error {
	if !util.IsConfigured(webhookURL) {
		return nil // Silently skip if not configured
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return util.WrapError("marshal payload", err)
	}

	backoff := util.NewBackoff(time.Second, 8*time.Second)
	var lastErr error
	for attempt := range webhookAttempts {
		if attempt > 0 {
			time.Sleep(backoff.Next())
		}
		if lastErr = postWebhook(webhookURL, jsonData); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("webhook failed after %d attempts: %w", webhookAttempts, lastErr)
}

// postWebhook performs a single delivery attempt.
func postWebhook(webhookURL string, jsonData []byte) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(webhookURL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return util.WrapError("send webhook request", err)
	}
	defer util.SafeCloseFunc(resp.Body, "webhook response body")()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}
