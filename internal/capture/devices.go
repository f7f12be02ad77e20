package capture

import (
	"github.com/oszuidwest/zwfm-micmonitor/internal/types"
)

// ResolveDevices maps per-channel device selections onto concrete
// backend indexes. A nil entry selects the system default input. The
// result always has exactly channels entries; missing selections pad
// with the default device and surplus ones are dropped.
func ResolveDevices(selection []*int, channels int) []int {
	devices := make([]int, channels)
	for i := range devices {
		devices[i] = types.DefaultDevice
		if i < len(selection) && selection[i] != nil {
			devices[i] = *selection[i]
		}
	}
	return devices
}

// Selection converts resolved device indexes back into the nullable
// form used by the configuration file and the web clients.
func Selection(devices []int) []*int {
	selection := make([]*int, len(devices))
	for i, dev := range devices {
		if dev != types.DefaultDevice {
			d := dev
			selection[i] = &d
		}
	}
	return selection
}
