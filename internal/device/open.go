package device

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/minirender/internal/gpu"
)

// Open creates the logical device for a choice with one queue per unique
// family. Sampler anisotropy is enabled when the device supports it.
func Open(choice *Choice) (gpu.Device, error) {
	dev, err := choice.PhysicalDevice.CreateDevice(gpu.DeviceInfo{
		QueueFamilies:     choice.UniqueFamilies(),
		Extensions:        choice.Extensions,
		SamplerAnisotropy: choice.Features.SamplerAnisotropy,
	})
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "create logical device on %s", choice.Properties.Name), gpu.ErrDeviceSelection)
	}
	return dev, nil
}
