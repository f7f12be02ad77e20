// Package capturetest provides a scriptable in-memory capture backend
// for exercising session and monitor behavior without audio hardware.
package capturetest

import (
	"fmt"
	"slices"
	"sync"

	"github.com/oszuidwest/zwfm-micmonitor/internal/capture"
	"github.com/oszuidwest/zwfm-micmonitor/internal/types"
)

// Backend is an in-memory capture backend. Tests script which devices
// exist and which sample rates each accepts, then drive the stream
// callbacks by pushing blocks.
type Backend struct {
	mu       sync.Mutex
	devices  []types.Device
	allowed  map[int][]int // device index -> accepted rates; no entry accepts all
	queryErr error
	inited   bool
	streams  []*Stream
}

// New returns a backend with a single default device that accepts any
// sample rate.
func New() *Backend {
	b := &Backend{allowed: make(map[int][]int)}
	idx := b.AddDevice("Mock Input", 44100)
	b.devices[idx].IsDefault = true
	return b
}

// AddDevice registers another device and returns its index.
func (b *Backend) AddDevice(name string, defaultRate float64) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx := len(b.devices)
	b.devices = append(b.devices, types.Device{
		ID:                idx,
		Name:              name,
		MaxInputChannels:  1,
		DefaultSampleRate: defaultRate,
	})
	return idx
}

// SetDefault marks the device at index as the system default.
func (b *Backend) SetDefault(index int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.devices {
		b.devices[i].IsDefault = i == index
	}
}

// AllowRates restricts a device to the given sample rates. Passing no
// rates makes the device reject every open attempt. The device may be
// types.DefaultDevice to address the default device.
func (b *Backend) AllowRates(device int, rates ...int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allowed[b.resolveLocked(device)] = rates
}

// FailQueries makes every device query return err until cleared with a
// nil err.
func (b *Backend) FailQueries(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queryErr = err
}

func (b *Backend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inited = true
	return nil
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inited = false
	return nil
}

func (b *Backend) Devices() ([]types.Device, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.queryErr != nil {
		return nil, b.queryErr
	}
	return slices.Clone(b.devices), nil
}

func (b *Backend) DefaultDevice() (types.Device, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.queryErr != nil {
		return types.Device{}, b.queryErr
	}
	return b.devices[b.resolveLocked(types.DefaultDevice)], nil
}

func (b *Backend) DeviceInfo(index int) (types.Device, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.queryErr != nil {
		return types.Device{}, b.queryErr
	}
	if index < 0 || index >= len(b.devices) {
		return types.Device{}, fmt.Errorf("device index %d out of range", index)
	}
	return b.devices[index], nil
}

func (b *Backend) Open(cfg capture.StreamConfig, fn capture.DataFunc) (capture.Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	device := b.resolveLocked(cfg.Device)
	if device < 0 || device >= len(b.devices) {
		return nil, fmt.Errorf("device index %d out of range", cfg.Device)
	}
	if rates, ok := b.allowed[device]; ok && !slices.Contains(rates, cfg.SampleRate) {
		return nil, fmt.Errorf("device %d: sample rate %d not supported", device, cfg.SampleRate)
	}

	stream := &Stream{
		device: device,
		rate:   cfg.SampleRate,
		frame:  cfg.FrameSize,
		fn:     fn,
	}
	b.streams = append(b.streams, stream)
	return stream, nil
}

// Initialized reports whether Init has been called without a matching
// Close.
func (b *Backend) Initialized() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inited
}

// OpenStreams counts streams that have been opened but not closed.
func (b *Backend) OpenStreams() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, s := range b.streams {
		if !s.Closed() {
			n++
		}
	}
	return n
}

// StartedStreams counts streams currently delivering data.
func (b *Backend) StartedStreams() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, s := range b.streams {
		if s.Started() {
			n++
		}
	}
	return n
}

// Streams returns every stream ever opened, in open order.
func (b *Backend) Streams() []*Stream {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.streams)
}

// Active returns the streams that are currently started, in open order.
func (b *Backend) Active() []*Stream {
	b.mu.Lock()
	defer b.mu.Unlock()
	var active []*Stream
	for _, s := range b.streams {
		if s.Started() {
			active = append(active, s)
		}
	}
	return active
}

// resolveLocked maps the default-device marker onto the flagged device.
func (b *Backend) resolveLocked(device int) int {
	if device != types.DefaultDevice {
		return device
	}
	for i, d := range b.devices {
		if d.IsDefault {
			return i
		}
	}
	return 0
}

// Stream is one mock input stream. Tests deliver data with Push.
type Stream struct {
	mu      sync.Mutex
	device  int
	rate    int
	frame   int
	fn      capture.DataFunc
	started bool
	closed  bool
}

func (s *Stream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("stream closed")
	}
	s.started = true
	return nil
}

func (s *Stream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	return nil
}

func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	s.closed = true
	return nil
}

// Push delivers one block to the stream callback the way the audio
// thread would. Blocks pushed while the stream is not started are
// dropped. Delivery holds the stream lock, so Stop does not return
// while a push is in flight.
func (s *Stream) Push(block []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started && !s.closed {
		s.fn(block)
	}
}

// Device returns the resolved device index the stream was opened on.
func (s *Stream) Device() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device
}

// Rate returns the sample rate the stream was opened at.
func (s *Stream) Rate() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rate
}

// FrameSize returns the block size the stream was opened with.
func (s *Stream) FrameSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame
}

// Started reports whether the stream is currently delivering data.
func (s *Stream) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Closed reports whether the stream has been closed.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
