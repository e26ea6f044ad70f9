package gpu

import (
	"fmt"
	"strings"

	"github.com/spaghettifunk/aquarium/engine/core"
	"github.com/spaghettifunk/aquarium/engine/math"
)

const (
	VendorNVIDIA uint32 = 0x10DE
	VendorAMD    uint32 = 0x1002
	VendorIntel  uint32 = 0x8086
)

type AdapterType uint8

const (
	AdapterTypeOther AdapterType = iota
	AdapterTypeDiscrete
	AdapterTypeIntegrated
	AdapterTypeSoftware
)

type AdapterInfo struct {
	Name     string
	VendorID uint32
	DeviceID uint32
	Type     AdapterType
}

type AdapterPreference uint8

const (
	AdapterPreferenceDefault AdapterPreference = iota
	AdapterPreferenceDiscrete
	AdapterPreferenceIntegrated
)

// ParseAdapterPreference maps the configuration value to a preference.
func ParseAdapterPreference(s string) (AdapterPreference, error) {
	switch strings.ToLower(s) {
	case "", "default":
		return AdapterPreferenceDefault, nil
	case "discrete":
		return AdapterPreferenceDiscrete, nil
	case "integrated":
		return AdapterPreferenceIntegrated, nil
	}
	return AdapterPreferenceDefault, fmt.Errorf("%w: unknown gpu preference %q", core.ErrInvalidConfig, s)
}

// SelectAdapter returns the index of the first adapter matching the
// preference. Software adapters are never selected. Discrete means an
// NVIDIA or AMD part, integrated means an Intel part.
func SelectAdapter(adapters []AdapterInfo, pref AdapterPreference) (int, error) {
	for i, a := range adapters {
		if a.Type == AdapterTypeSoftware {
			continue
		}
		switch pref {
		case AdapterPreferenceDefault:
			return i, nil
		case AdapterPreferenceDiscrete:
			if a.VendorID == VendorNVIDIA || a.VendorID == VendorAMD {
				return i, nil
			}
		case AdapterPreferenceIntegrated:
			if a.VendorID == VendorIntel {
				return i, nil
			}
		}
	}
	return -1, fmt.Errorf("no hardware adapter matches the requested preference (%d adapters enumerated)", len(adapters))
}

// CalcConstantBufferByteSize rounds a constant buffer size up to the 256 byte
// alignment required for constant buffer views.
func CalcConstantBufferByteSize(byteSize uint64) uint64 {
	return math.AlignUp(byteSize, 256)
}
