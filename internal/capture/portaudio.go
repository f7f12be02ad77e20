package capture

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/oszuidwest/zwfm-micmonitor/internal/types"
	"github.com/oszuidwest/zwfm-micmonitor/internal/util"
)

func init() {
	RegisterBackend("portaudio", &portAudioBackend{})
}

// portAudioBackend captures through PortAudio. Device indexes are
// positions in the full PortAudio device list, so they match what the
// host API reports in other tools.
type portAudioBackend struct {
	mu          sync.Mutex
	initialized bool
}

func (b *portAudioBackend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.initialized {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return util.WrapError("initialize portaudio", err)
	}
	b.initialized = true
	return nil
}

func (b *portAudioBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		return nil
	}
	b.initialized = false
	if err := portaudio.Terminate(); err != nil {
		return util.WrapError("terminate portaudio", err)
	}
	return nil
}

func (b *portAudioBackend) Devices() ([]types.Device, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, util.WrapError("list portaudio devices", err)
	}
	def, _ := portaudio.DefaultInputDevice()

	devices := make([]types.Device, 0, len(infos))
	for i, info := range infos {
		if info.MaxInputChannels <= 0 {
			continue
		}
		devices = append(devices, types.Device{
			ID:                i,
			Name:              info.Name,
			MaxInputChannels:  info.MaxInputChannels,
			DefaultSampleRate: info.DefaultSampleRate,
			IsDefault:         info == def,
		})
	}
	return devices, nil
}

func (b *portAudioBackend) DefaultDevice() (types.Device, error) {
	def, err := portaudio.DefaultInputDevice()
	if err != nil {
		return types.Device{}, util.WrapError("query default input device", err)
	}
	infos, err := portaudio.Devices()
	if err != nil {
		return types.Device{}, util.WrapError("list portaudio devices", err)
	}
	for i, info := range infos {
		if info == def {
			return types.Device{
				ID:                i,
				Name:              info.Name,
				MaxInputChannels:  info.MaxInputChannels,
				DefaultSampleRate: info.DefaultSampleRate,
				IsDefault:         true,
			}, nil
		}
	}
	return types.Device{}, fmt.Errorf("default input device not in device list")
}

func (b *portAudioBackend) DeviceInfo(index int) (types.Device, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return types.Device{}, util.WrapError("list portaudio devices", err)
	}
	if index < 0 || index >= len(infos) {
		return types.Device{}, fmt.Errorf("device index %d out of range", index)
	}
	info := infos[index]
	if info.MaxInputChannels <= 0 {
		return types.Device{}, fmt.Errorf("device %d (%s) has no inputs", index, info.Name)
	}
	def, _ := portaudio.DefaultInputDevice()
	return types.Device{
		ID:                index,
		Name:              info.Name,
		MaxInputChannels:  info.MaxInputChannels,
		DefaultSampleRate: info.DefaultSampleRate,
		IsDefault:         info == def,
	}, nil
}

// Open creates a mono stream on the device. The hardware may expose
// more channels; requesting one lets PortAudio hand over the first.
func (b *portAudioBackend) Open(cfg StreamConfig, fn DataFunc) (Stream, error) {
	var info *portaudio.DeviceInfo
	if cfg.Device == types.DefaultDevice {
		def, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, util.WrapError("query default input device", err)
		}
		info = def
	} else {
		infos, err := portaudio.Devices()
		if err != nil {
			return nil, util.WrapError("list portaudio devices", err)
		}
		if cfg.Device < 0 || cfg.Device >= len(infos) {
			return nil, fmt.Errorf("device index %d out of range", cfg.Device)
		}
		info = infos[cfg.Device]
	}

	params := portaudio.HighLatencyParameters(info, nil)
	params.Input.Channels = 1
	params.SampleRate = float64(cfg.SampleRate)
	params.FramesPerBuffer = cfg.FrameSize

	stream, err := portaudio.OpenStream(params, func(in []float32) {
		fn(in)
	})
	if err != nil {
		return nil, err
	}
	return &portAudioStream{stream: stream}, nil
}

type portAudioStream struct {
	stream  *portaudio.Stream
	started bool
}

func (s *portAudioStream) Start() error {
	if err := s.stream.Start(); err != nil {
		return err
	}
	s.started = true
	return nil
}

func (s *portAudioStream) Stop() error {
	if !s.started {
		return nil
	}
	s.started = false
	return s.stream.Stop()
}

func (s *portAudioStream) Close() error {
	return s.stream.Close()
}
