package notify

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oszuidwest/zwfm-micmonitor/internal/audio"
	"github.com/oszuidwest/zwfm-micmonitor/internal/config"
)

func TestSendSilenceWebhook_Payload(t *testing.T) {
	t.Parallel()

	var got WebhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
	}))
	defer srv.Close()

	if err := SendSilenceWebhook(srv.URL, 2, -55.5, -40); err != nil {
		t.Fatalf("SendSilenceWebhook() error = %v", err)
	}

	if got.Event != "mic_silent" || got.Channel != 2 {
		t.Errorf("payload = %+v, want mic_silent on channel 2", got)
	}
	if got.LevelDB != -55.5 || got.Threshold != -40 {
		t.Errorf("levels = %v/%v, want -55.5/-40", got.LevelDB, got.Threshold)
	}
	if _, err := time.Parse(time.RFC3339, got.Timestamp); err != nil {
		t.Errorf("Timestamp = %q, want RFC3339", got.Timestamp)
	}
	if !strings.Contains(got.Message, "Microphone 3") {
		t.Errorf("Message = %q, want mention of Microphone 3", got.Message)
	}
}

func TestSendRecoveryWebhook_IncludesDuration(t *testing.T) {
	t.Parallel()

	var got WebhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
	}))
	defer srv.Close()

	if err := SendRecoveryWebhook(srv.URL, 0, 93000, -21, -40); err != nil {
		t.Fatalf("SendRecoveryWebhook() error = %v", err)
	}

	if got.Event != "mic_recovered" || got.SilenceDurationMs != 93000 {
		t.Errorf("payload = %+v, want mic_recovered with 93000 ms", got)
	}
	if !strings.Contains(got.Message, "1m 33s") {
		t.Errorf("Message = %q, want formatted duration 1m 33s", got.Message)
	}
}

func TestSendWebhook_RetriesAfterFailure(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	if err := SendSilenceWebhook(srv.URL, 0, -60, -40); err != nil {
		t.Fatalf("SendSilenceWebhook() after retry error = %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("delivery attempts = %d, want 2", calls.Load())
	}
}

func TestPostWebhook_RejectsErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if err := postWebhook(srv.URL, []byte(`{}`)); err == nil {
		t.Error("postWebhook(500) = nil, want error")
	}
}

func TestSendTestWebhook_RequiresURL(t *testing.T) {
	t.Parallel()

	if err := SendTestWebhook("", "Test FM"); err == nil {
		t.Error("SendTestWebhook(empty URL) = nil, want error")
	}
}

func TestLogEntries_AppendAsJSONL(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "mic.log")

	if err := LogMicSilent(path, 1, -58, -40); err != nil {
		t.Fatalf("LogMicSilent() error = %v", err)
	}
	if err := LogMicRecovered(path, 1, 4200, -18, -40); err != nil {
		t.Fatalf("LogMicRecovered() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("log lines = %d, want 2", len(lines))
	}

	var first, second map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("first line not JSON: %v", err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("second line not JSON: %v", err)
	}

	if first["event"] != "mic_silent" || first["channel"] != float64(1) {
		t.Errorf("first entry = %v, want mic_silent on channel 1", first)
	}
	if second["event"] != "mic_recovered" || second["duration_ms"] != float64(4200) {
		t.Errorf("second entry = %v, want mic_recovered with 4200 ms", second)
	}
}

func TestWriteTestLog_RequiresPath(t *testing.T) {
	t.Parallel()

	if err := WriteTestLog(""); err == nil {
		t.Error("WriteTestLog(empty path) = nil, want error")
	}
}

// waitForLines polls the log file until it holds want lines or the
// deadline passes.
func waitForLines(t *testing.T, path string, want int) []string {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for {
		data, err := os.ReadFile(path)
		if err == nil {
			lines := strings.Split(strings.TrimSpace(string(data)), "\n")
			if len(lines) >= want && lines[0] != "" {
				return lines
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("log %s did not reach %d lines", path, want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestMicNotifier_OneAlertPerEpisode(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logPath := filepath.Join(dir, "mic.log")

	cfg := config.New(filepath.Join(dir, "config.json"))
	if err := cfg.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := cfg.SetLogPath(logPath); err != nil {
		t.Fatalf("SetLogPath() error = %v", err)
	}

	n := NewMicNotifier(cfg)

	silent := audio.SilenceEvent{Channel: 1, LevelDB: -52, InSilence: true, JustSilenced: true}
	n.HandleEvent(silent)
	waitForLines(t, logPath, 1)

	// A repeated silence flag for the same episode must not log again.
	n.HandleEvent(silent)
	time.Sleep(50 * time.Millisecond)
	if lines := waitForLines(t, logPath, 1); len(lines) != 1 {
		t.Fatalf("log lines after duplicate alert = %d, want 1", len(lines))
	}

	recovered := audio.SilenceEvent{Channel: 1, LevelDB: -12, JustRecovered: true, TotalDurationMs: 3000}
	n.HandleEvent(recovered)
	lines := waitForLines(t, logPath, 2)

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &entry); err != nil {
		t.Fatalf("recovery line not JSON: %v", err)
	}
	if entry["event"] != "mic_recovered" || entry["duration_ms"] != float64(3000) {
		t.Errorf("recovery entry = %v", entry)
	}

	// The episode is closed, so the next silence alert fires again.
	n.HandleEvent(silent)
	waitForLines(t, logPath, 3)
}

func TestMicNotifier_NoRecoveryWithoutAlert(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logPath := filepath.Join(dir, "mic.log")

	cfg := config.New(filepath.Join(dir, "config.json"))
	if err := cfg.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := cfg.SetLogPath(logPath); err != nil {
		t.Fatalf("SetLogPath() error = %v", err)
	}

	n := NewMicNotifier(cfg)
	n.HandleEvent(audio.SilenceEvent{Channel: 0, JustRecovered: true, TotalDurationMs: 1000})

	time.Sleep(100 * time.Millisecond)
	if _, err := os.Stat(logPath); !os.IsNotExist(err) {
		t.Error("recovery without alert wrote a log entry")
	}
}

func TestMicNotifier_ChannelsIndependent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logPath := filepath.Join(dir, "mic.log")

	cfg := config.New(filepath.Join(dir, "config.json"))
	if err := cfg.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := cfg.SetLogPath(logPath); err != nil {
		t.Fatalf("SetLogPath() error = %v", err)
	}

	n := NewMicNotifier(cfg)
	n.HandleEvent(audio.SilenceEvent{Channel: 0, LevelDB: -50, JustSilenced: true})
	n.HandleEvent(audio.SilenceEvent{Channel: 3, LevelDB: -60, JustSilenced: true})

	lines := waitForLines(t, logPath, 2)

	channels := map[float64]bool{}
	for _, line := range lines {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("log line not JSON: %v", err)
		}
		channels[entry["channel"].(float64)] = true
	}
	if !channels[0] || !channels[3] {
		t.Errorf("logged channels = %v, want 0 and 3", channels)
	}
}
