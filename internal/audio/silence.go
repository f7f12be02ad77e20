package audio

import "time"

// SilenceConfig holds the dead-microphone detection parameters.
type SilenceConfig struct {
	ThresholdDB float64 // levels below this count as silent
	DurationMs  int     // sustained silence before a channel is flagged
	RecoveryMs  int     // sustained signal before a flagged channel recovers
}

// SilenceEvent describes the silence state of one channel after an update.
type SilenceEvent struct {
	Channel         int     // channel index
	LevelDB         float64 // level that produced this update
	InSilence       bool    // currently flagged as dead
	DurationMs      int64   // how long the current silence has lasted
	JustSilenced    bool    // this update crossed into silence
	JustRecovered   bool    // this update crossed out of silence
	TotalDurationMs int64   // total length of the silence that just ended
}

// silenceState tracks hysteresis timing for one channel.
type silenceState struct {
	belowSince   time.Time
	aboveSince   time.Time
	inSilence    bool
	silenceStart time.Time
}

// SilenceDetector flags channels whose level stays below a threshold for
// a sustained period. Detection uses hysteresis in both directions so a
// brief pop does not clear a dead channel and a brief dropout does not
// flag a live one.
type SilenceDetector struct {
	states []silenceState
}

// NewSilenceDetector returns a detector for the given channel count.
func NewSilenceDetector(channels int) *SilenceDetector {
	return &SilenceDetector{states: make([]silenceState, channels)}
}

// Process updates one channel with its latest level and returns the
// resulting silence state. Channels outside the configured range return
// a zero event.
func (d *SilenceDetector) Process(channel int, levelDB float64, cfg SilenceConfig, now time.Time) SilenceEvent {
	if channel < 0 || channel >= len(d.states) {
		return SilenceEvent{Channel: channel}
	}
	s := &d.states[channel]
	ev := SilenceEvent{Channel: channel, LevelDB: levelDB, InSilence: s.inSilence}

	if levelDB < cfg.ThresholdDB {
		s.aboveSince = time.Time{}
		if s.belowSince.IsZero() {
			s.belowSince = now
		}
		if !s.inSilence && now.Sub(s.belowSince) >= time.Duration(cfg.DurationMs)*time.Millisecond {
			s.inSilence = true
			s.silenceStart = s.belowSince
			ev.InSilence = true
			ev.JustSilenced = true
		}
	} else {
		s.belowSince = time.Time{}
		if s.inSilence {
			if s.aboveSince.IsZero() {
				s.aboveSince = now
			}
			if now.Sub(s.aboveSince) >= time.Duration(cfg.RecoveryMs)*time.Millisecond {
				s.inSilence = false
				ev.InSilence = false
				ev.JustRecovered = true
				ev.TotalDurationMs = now.Sub(s.silenceStart).Milliseconds()
				s.silenceStart = time.Time{}
				s.aboveSince = time.Time{}
			}
		}
	}

	if s.inSilence {
		ev.DurationMs = now.Sub(s.silenceStart).Milliseconds()
	}
	return ev
}

// Reset clears all channel states, for example after a session restart.
func (d *SilenceDetector) Reset() {
	for i := range d.states {
		d.states[i] = silenceState{}
	}
}
