package capture

import (
	"errors"
	"fmt"

	"github.com/oszuidwest/zwfm-micmonitor/internal/types"
)

// Sentinel errors for session lifecycle misuse.
var (
	// ErrAlreadyRunning indicates Start was called on a live session.
	ErrAlreadyRunning = errors.New("capture session already running")
	// ErrNoChannels indicates a start attempt with an empty device list.
	ErrNoChannels = errors.New("no capture channels configured")
	// ErrTooManyChannels indicates a start attempt beyond the channel limit.
	ErrTooManyChannels = fmt.Errorf("more than %d capture channels configured", types.MaxChannels)
	// ErrUnknownBackend indicates a backend name with no registration.
	ErrUnknownBackend = errors.New("unknown capture backend")
)

// DeviceQueryError reports a failed information query for an explicitly
// selected device. It is fatal to the start attempt.
type DeviceQueryError struct {
	Channel int   // channel whose device could not be queried
	Device  int   // backend device index
	Err     error // underlying backend error
}

func (e *DeviceQueryError) Error() string {
	return fmt.Sprintf("channel %d: query device %d: %v", e.Channel, e.Device, e.Err)
}

func (e *DeviceQueryError) Unwrap() error {
	return e.Err
}

// DeviceOpenError reports a device that rejected every attempted sample
// rate. The whole start attempt is rolled back when this occurs.
type DeviceOpenError struct {
	Channel        int   // channel whose stream could not be opened
	Device         int   // backend device index, types.DefaultDevice for the default
	AttemptedRates []int // rates tried, in order
	Err            error // failure of the last attempted rate
}

func (e *DeviceOpenError) Error() string {
	return fmt.Sprintf("channel %d: open device %d failed at rates %v: %v",
		e.Channel, e.Device, e.AttemptedRates, e.Err)
}

func (e *DeviceOpenError) Unwrap() error {
	return e.Err
}
