// Package capture opens microphone input streams through pluggable audio
// backends and runs the per-channel sample pipeline behind them.
package capture

import (
	"github.com/oszuidwest/zwfm-micmonitor/internal/types"
)

// DataFunc receives one block of mono float32 samples on the backend's
// audio thread. The slice is only valid for the duration of the call.
type DataFunc func(block []float32)

// StreamConfig describes one mono input stream to open.
type StreamConfig struct {
	Device     int // backend device index, types.DefaultDevice for the system default
	SampleRate int // requested rate in Hz
	FrameSize  int // callback block size in frames
}

// Stream is one open mono input stream. A stream delivers no data until
// Start is called and none after Stop returns.
type Stream interface {
	Start() error
	Stop() error
	Close() error
}

// Backend abstracts a host audio API.
type Backend interface {
	// Init prepares the backend. Calling it more than once is a no-op.
	Init() error
	// Close releases the backend. All streams must be closed first.
	Close() error
	// Devices lists the available input devices.
	Devices() ([]types.Device, error)
	// DefaultDevice reports the system default input device.
	DefaultDevice() (types.Device, error)
	// DeviceInfo reports the input device at the given backend index.
	DeviceInfo(index int) (types.Device, error)
	// Open creates a mono input stream that delivers blocks to fn.
	Open(cfg StreamConfig, fn DataFunc) (Stream, error)
}

// NamedBackend pairs a backend with its registry name.
type NamedBackend struct {
	Name string
	Backend
}

// Backends holds every registered backend.
var Backends []NamedBackend

// RegisterBackend registers a backend globally. This function is not
// thread-safe; backends should call it from init().
func RegisterBackend(name string, b Backend) {
	Backends = append(Backends, NamedBackend{
		Name:    name,
		Backend: b,
	})
}

// FindBackend returns the backend registered under name, or nil if no
// such backend exists.
func FindBackend(name string) Backend {
	for _, backend := range Backends {
		if backend.Name == name {
			return backend
		}
	}
	return nil
}

// BackendNames lists the registered backend names in registration order.
func BackendNames() []string {
	names := make([]string, 0, len(Backends))
	for _, backend := range Backends {
		names = append(names, backend.Name)
	}
	return names
}
