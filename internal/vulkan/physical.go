package vulkan

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/minirender/internal/gpu"
)

type PhysicalDevice struct {
	instance *Instance
	handle   core1_0.PhysicalDevice
}

var _ gpu.PhysicalDevice = (*PhysicalDevice)(nil)

func (p *PhysicalDevice) Properties() (gpu.DeviceProperties, error) {
	props, err := p.instance.driver.GetPhysicalDeviceProperties(p.handle)
	if err != nil {
		return gpu.DeviceProperties{}, errors.Wrap(err, "get physical device properties")
	}

	return gpu.DeviceProperties{
		Name:                 props.DeviceName,
		Type:                 props.DriverType,
		PipelineCacheUUID:    props.PipelineCacheUUID,
		MaxSamplerAnisotropy: props.Limits.MaxSamplerAnisotropy,
	}, nil
}

func (p *PhysicalDevice) QueueFamilies() []gpu.QueueFamily {
	var families []gpu.QueueFamily
	for _, family := range p.instance.driver.GetPhysicalDeviceQueueFamilyProperties(p.handle) {
		families = append(families, gpu.QueueFamily{
			Flags:      family.QueueFlags,
			QueueCount: family.QueueCount,
		})
	}
	return families
}

func (p *PhysicalDevice) Extensions() (map[string]struct{}, error) {
	props, _, err := p.instance.driver.EnumerateDeviceExtensionProperties(p.handle)
	if err != nil {
		return nil, errors.Wrap(err, "enumerate device extensions")
	}

	names := make(map[string]struct{}, len(props))
	for name := range props {
		names[name] = struct{}{}
	}
	return names, nil
}

func (p *PhysicalDevice) Features() gpu.Features {
	features := p.instance.driver.GetPhysicalDeviceFeatures(p.handle)
	return gpu.Features{SamplerAnisotropy: features.SamplerAnisotropy}
}

func (p *PhysicalDevice) MemoryProperties() *core1_0.PhysicalDeviceMemoryProperties {
	return p.instance.driver.GetPhysicalDeviceMemoryProperties(p.handle)
}

func (p *PhysicalDevice) FormatProperties(format core1_0.Format) *core1_0.FormatProperties {
	return p.instance.driver.GetPhysicalDeviceFormatProperties(p.handle, format)
}

// CreateDevice opens a logical device with one queue per requested family.
func (p *PhysicalDevice) CreateDevice(info gpu.DeviceInfo) (gpu.Device, error) {
	queues := make([]core1_0.DeviceQueueCreateInfo, 0, len(info.QueueFamilies))
	for _, family := range info.QueueFamilies {
		queues = append(queues, core1_0.DeviceQueueCreateInfo{
			QueueFamilyIndex: family,
			QueuePriorities:  []float32{1.0},
		})
	}

	driver, _, err := p.instance.driver.CreateDevice(p.handle, nil, core1_0.DeviceCreateInfo{
		QueueCreateInfos: queues,
		EnabledFeatures: &core1_0.PhysicalDeviceFeatures{
			SamplerAnisotropy: info.SamplerAnisotropy,
		},
		EnabledExtensionNames: info.Extensions,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create logical device")
	}

	return newDevice(driver), nil
}
