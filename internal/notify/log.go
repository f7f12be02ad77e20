package notify

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/oszuidwest/zwfm-micmonitor/internal/types"
	"github.com/oszuidwest/zwfm-micmonitor/internal/util"
)

// LogMicSilent records the beginning of a dead-microphone episode.
func LogMicSilent(logPath string, channel int, levelDB, threshold float64) error {
	return appendLogEntry(logPath, &types.MicLogEntry{
		Timestamp:   timestampUTC(),
		Event:       "mic_silent",
		Channel:     channel,
		LevelDB:     levelDB,
		ThresholdDB: threshold,
	})
}

// LogMicRecovered records the end of a dead-microphone episode.
func LogMicRecovered(logPath string, channel int, durationMs int64, levelDB, threshold float64) error {
	return appendLogEntry(logPath, &types.MicLogEntry{
		Timestamp:   timestampUTC(),
		Event:       "mic_recovered",
		Channel:     channel,
		LevelDB:     levelDB,
		DurationMs:  durationMs,
		ThresholdDB: threshold,
	})
}

// WriteTestLog writes a test log entry.
func WriteTestLog(logPath string) error {
	if logPath == "" {
		return fmt.Errorf("log file path not configured")
	}

	return appendLogEntry(logPath, &types.MicLogEntry{
		Timestamp: timestampUTC(),
		Event:     "test",
		Channel:   -1,
	})
}

// appendLogEntry appends a log entry to the file.
func appendLogEntry(logPath string, entry *types.MicLogEntry) error {
	if !util.IsConfigured(logPath) {
		return nil
	}

	jsonData, err := json.Marshal(entry)
	if err != nil {
		return util.WrapError("marshal log entry", err)
	}
	// One write per entry so concurrent channels cannot interleave lines.
	jsonData = append(jsonData, '\n')

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return util.WrapError("open log file", err)
	}
	defer util.SafeCloseFunc(f, "log file")()

	if _, err := f.Write(jsonData); err != nil {
		return util.WrapError("write log entry", err)
	}

	return nil
}
