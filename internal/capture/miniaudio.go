package capture

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/oszuidwest/zwfm-micmonitor/internal/types"
	"github.com/oszuidwest/zwfm-micmonitor/internal/util"
)

func init() {
	RegisterBackend("miniaudio", &miniAudioBackend{})
}

// miniAudioBackend captures through miniaudio. Device indexes are
// positions in the capture-device enumeration, which is cached so
// indexes stay stable between listing and opening.
type miniAudioBackend struct {
	mu    sync.Mutex
	ctx   *malgo.AllocatedContext
	infos []malgo.DeviceInfo
}

func (b *miniAudioBackend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx != nil {
		return nil
	}
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return util.WrapError("initialize miniaudio context", err)
	}
	b.ctx = ctx
	return nil
}

func (b *miniAudioBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx == nil {
		return nil
	}
	err := b.ctx.Uninit()
	b.ctx.Free()
	b.ctx = nil
	b.infos = nil
	if err != nil {
		return util.WrapError("uninit miniaudio context", err)
	}
	return nil
}

func (b *miniAudioBackend) Devices() ([]types.Device, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	infos, err := b.refreshLocked()
	if err != nil {
		return nil, err
	}

	devices := make([]types.Device, 0, len(infos))
	for i, info := range infos {
		devices = append(devices, deviceFromInfo(i, info))
	}
	return devices, nil
}

func (b *miniAudioBackend) DefaultDevice() (types.Device, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	infos, err := b.refreshLocked()
	if err != nil {
		return types.Device{}, err
	}
	for i, info := range infos {
		if info.IsDefault != 0 {
			return deviceFromInfo(i, info), nil
		}
	}
	return types.Device{}, fmt.Errorf("no default capture device reported")
}

func (b *miniAudioBackend) DeviceInfo(index int) (types.Device, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	infos, err := b.currentLocked()
	if err != nil {
		return types.Device{}, err
	}
	if index < 0 || index >= len(infos) {
		return types.Device{}, fmt.Errorf("device index %d out of range", index)
	}
	return deviceFromInfo(index, infos[index]), nil
}

func (b *miniAudioBackend) Open(cfg StreamConfig, fn DataFunc) (Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx == nil {
		return nil, fmt.Errorf("miniaudio context not initialized")
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(cfg.FrameSize)
	deviceConfig.Alsa.NoMMap = 1

	if cfg.Device != types.DefaultDevice {
		infos, err := b.currentLocked()
		if err != nil {
			return nil, err
		}
		if cfg.Device < 0 || cfg.Device >= len(infos) {
			return nil, fmt.Errorf("device index %d out of range", cfg.Device)
		}
		id := infos[cfg.Device].ID
		deviceConfig.Capture.DeviceID = id.Pointer()
	}

	stream := &miniAudioStream{
		fn:  fn,
		buf: make([]float32, cfg.FrameSize),
	}
	device, err := malgo.InitDevice(b.ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: stream.onData,
	})
	if err != nil {
		return nil, err
	}
	stream.device = device
	return stream, nil
}

// refreshLocked re-enumerates capture devices and caches the result.
func (b *miniAudioBackend) refreshLocked() ([]malgo.DeviceInfo, error) {
	if b.ctx == nil {
		return nil, fmt.Errorf("miniaudio context not initialized")
	}
	infos, err := b.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, util.WrapError("list capture devices", err)
	}
	b.infos = infos
	return infos, nil
}

// currentLocked returns the cached enumeration, populating it on first
// use so opening by index works without an explicit listing.
func (b *miniAudioBackend) currentLocked() ([]malgo.DeviceInfo, error) {
	if b.infos != nil {
		return b.infos, nil
	}
	return b.refreshLocked()
}

func deviceFromInfo(index int, info malgo.DeviceInfo) types.Device {
	dev := types.Device{
		ID:        index,
		Name:      info.Name(),
		IsDefault: info.IsDefault != 0,
	}
	if len(info.Formats) > 0 {
		dev.MaxInputChannels = int(info.Formats[0].Channels)
		dev.DefaultSampleRate = float64(info.Formats[0].SampleRate)
	}
	return dev
}

type miniAudioStream struct {
	device  *malgo.Device
	fn      DataFunc
	buf     []float32
	started bool
}

// onData converts the raw little-endian float32 capture buffer into
// samples. The conversion buffer is reused; it only grows if the device
// delivers a larger period than requested.
func (s *miniAudioStream) onData(_, input []byte, frameCount uint32) {
	n := int(frameCount)
	if n*4 > len(input) {
		n = len(input) / 4
	}
	if n > len(s.buf) {
		s.buf = make([]float32, n)
	}
	buf := s.buf[:n]
	for i := range buf {
		bits := binary.LittleEndian.Uint32(input[i*4:])
		buf[i] = math.Float32frombits(bits)
	}
	s.fn(buf)
}

func (s *miniAudioStream) Start() error {
	if err := s.device.Start(); err != nil {
		return err
	}
	s.started = true
	return nil
}

func (s *miniAudioStream) Stop() error {
	if !s.started {
		return nil
	}
	s.started = false
	return s.device.Stop()
}

func (s *miniAudioStream) Close() error {
	s.device.Uninit()
	return nil
}
