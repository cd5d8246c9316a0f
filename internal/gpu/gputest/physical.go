// Package gputest is an in-memory implementation of the gpu interfaces. It
// executes copies against byte slices, tracks fence state transitions and
// object lifetimes, and lets tests script acquire and present results.
package gputest

import (
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	"github.com/vkngwrapper/minirender/internal/gpu"
)

type Instance struct {
	Devices []*PhysicalDevice
	Err     error
}

func NewInstance(devices ...*PhysicalDevice) *Instance {
	return &Instance{Devices: devices}
}

func (i *Instance) PhysicalDevices() ([]gpu.PhysicalDevice, error) {
	if i.Err != nil {
		return nil, i.Err
	}
	out := make([]gpu.PhysicalDevice, 0, len(i.Devices))
	for _, d := range i.Devices {
		out = append(out, d)
	}
	return out, nil
}

type PhysicalDevice struct {
	Props           gpu.DeviceProperties
	Families        []gpu.QueueFamily
	PresentFamilies []int
	ExtensionNames  []string
	Feat            gpu.Features
	Memory          *core1_0.PhysicalDeviceMemoryProperties
	// Formats overrides format support; unlisted formats support everything.
	Formats map[core1_0.Format]*core1_0.FormatProperties

	// Dev is returned by CreateDevice, created on first use.
	Dev        *Device
	DeviceInfo gpu.DeviceInfo
	CreateErr  error
}

// DefaultMemoryProperties exposes a device-local type, a host-visible
// coherent type and a type that is both, in that order.
func DefaultMemoryProperties() *core1_0.PhysicalDeviceMemoryProperties {
	return &core1_0.PhysicalDeviceMemoryProperties{
		MemoryTypes: []core1_0.MemoryType{
			{PropertyFlags: core1_0.MemoryPropertyDeviceLocal, HeapIndex: 0},
			{PropertyFlags: core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent, HeapIndex: 1},
			{PropertyFlags: core1_0.MemoryPropertyDeviceLocal | core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent, HeapIndex: 0},
		},
		MemoryHeaps: []core1_0.MemoryHeap{
			{Size: 1 << 30, Flags: core1_0.MemoryHeapDeviceLocal},
			{Size: 1 << 30},
		},
	}
}

// NewPhysicalDevice returns a discrete GPU with a single graphics queue
// family that can also present, and the swapchain extension.
func NewPhysicalDevice(name string) *PhysicalDevice {
	return &PhysicalDevice{
		Props: gpu.DeviceProperties{
			Name:                 name,
			Type:                 core1_0.PhysicalDeviceTypeDiscreteGPU,
			PipelineCacheUUID:    uuid.New(),
			MaxSamplerAnisotropy: 16,
		},
		Families: []gpu.QueueFamily{
			{Flags: core1_0.QueueGraphics | core1_0.QueueCompute | core1_0.QueueTransfer, QueueCount: 1},
		},
		PresentFamilies: []int{0},
		ExtensionNames:  []string{khr_swapchain.ExtensionName},
		Feat:            gpu.Features{SamplerAnisotropy: true},
		Memory:          DefaultMemoryProperties(),
	}
}

func (p *PhysicalDevice) Properties() (gpu.DeviceProperties, error) {
	return p.Props, nil
}

func (p *PhysicalDevice) QueueFamilies() []gpu.QueueFamily {
	return p.Families
}

func (p *PhysicalDevice) Extensions() (map[string]struct{}, error) {
	out := make(map[string]struct{}, len(p.ExtensionNames))
	for _, name := range p.ExtensionNames {
		out[name] = struct{}{}
	}
	return out, nil
}

func (p *PhysicalDevice) Features() gpu.Features {
	return p.Feat
}

func (p *PhysicalDevice) MemoryProperties() *core1_0.PhysicalDeviceMemoryProperties {
	return p.Memory
}

func (p *PhysicalDevice) FormatProperties(format core1_0.Format) *core1_0.FormatProperties {
	if props, ok := p.Formats[format]; ok {
		return props
	}
	all := core1_0.FormatFeatureFlags(0x7FFFFFFF)
	return &core1_0.FormatProperties{
		LinearTilingFeatures:  all,
		OptimalTilingFeatures: all,
		BufferFeatures:        all,
	}
}

func (p *PhysicalDevice) CreateDevice(info gpu.DeviceInfo) (gpu.Device, error) {
	if p.CreateErr != nil {
		return nil, p.CreateErr
	}
	if p.Dev == nil {
		p.Dev = NewDevice(p)
	}
	p.DeviceInfo = info
	return p.Dev, nil
}

func (p *PhysicalDevice) presents(family int) bool {
	for _, f := range p.PresentFamilies {
		if f == family {
			return true
		}
	}
	return false
}

type Surface struct {
	Caps           khr_surface.SurfaceCapabilities
	SurfaceFormats []khr_surface.SurfaceFormat
	Modes          []khr_surface.PresentMode
	Err            error
}

// NewSurface returns a surface that lets the application pick the extent,
// offers SRGB BGRA8 and both FIFO and mailbox presentation.
func NewSurface() *Surface {
	return &Surface{
		Caps: khr_surface.SurfaceCapabilities{
			MinImageCount:  2,
			MaxImageCount:  8,
			CurrentExtent:  core1_0.Extent2D{Width: -1, Height: -1},
			MinImageExtent: core1_0.Extent2D{Width: 1, Height: 1},
			MaxImageExtent: core1_0.Extent2D{Width: 4096, Height: 4096},
		},
		SurfaceFormats: []khr_surface.SurfaceFormat{
			{Format: core1_0.FormatB8G8R8A8UnsignedNormalized, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear},
			{Format: core1_0.FormatB8G8R8A8SRGB, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear},
		},
		Modes: []khr_surface.PresentMode{khr_surface.PresentModeFIFO, khr_surface.PresentModeMailbox},
	}
}

func (s *Surface) SupportsPresent(physicalDevice gpu.PhysicalDevice, queueFamily int) (bool, error) {
	if s.Err != nil {
		return false, s.Err
	}
	pd, ok := physicalDevice.(*PhysicalDevice)
	if !ok {
		return false, errors.Newf("gputest: foreign physical device %T", physicalDevice)
	}
	return pd.presents(queueFamily), nil
}

func (s *Surface) Capabilities(gpu.PhysicalDevice) (*khr_surface.SurfaceCapabilities, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	caps := s.Caps
	return &caps, nil
}

func (s *Surface) Formats(gpu.PhysicalDevice) ([]khr_surface.SurfaceFormat, error) {
	return s.SurfaceFormats, s.Err
}

func (s *Surface) PresentModes(gpu.PhysicalDevice) ([]khr_surface.PresentMode, error) {
	return s.Modes, s.Err
}
