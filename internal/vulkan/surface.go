package vulkan

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/minirender/internal/gpu"
)

type Surface struct {
	instance *Instance
	handle   khr_surface.Surface
}

var _ gpu.Surface = (*Surface)(nil)

func (s *Surface) SupportsPresent(physicalDevice gpu.PhysicalDevice, queueFamily int) (bool, error) {
	supported, _, err := s.instance.surfaces.GetPhysicalDeviceSurfaceSupport(s.handle, physicalHandle(physicalDevice), queueFamily)
	if err != nil {
		return false, errors.Wrapf(err, "query present support for family %d", queueFamily)
	}
	return supported, nil
}

func (s *Surface) Capabilities(physicalDevice gpu.PhysicalDevice) (*khr_surface.SurfaceCapabilities, error) {
	caps, _, err := s.instance.surfaces.GetPhysicalDeviceSurfaceCapabilities(s.handle, physicalHandle(physicalDevice))
	if err != nil {
		return nil, errors.Wrap(err, "query surface capabilities")
	}
	return caps, nil
}

func (s *Surface) Formats(physicalDevice gpu.PhysicalDevice) ([]khr_surface.SurfaceFormat, error) {
	formats, _, err := s.instance.surfaces.GetPhysicalDeviceSurfaceFormats(s.handle, physicalHandle(physicalDevice))
	if err != nil {
		return nil, errors.Wrap(err, "query surface formats")
	}
	return formats, nil
}

func (s *Surface) PresentModes(physicalDevice gpu.PhysicalDevice) ([]khr_surface.PresentMode, error) {
	modes, _, err := s.instance.surfaces.GetPhysicalDeviceSurfacePresentModes(s.handle, physicalHandle(physicalDevice))
	if err != nil {
		return nil, errors.Wrap(err, "query surface present modes")
	}
	return modes, nil
}

func (s *Surface) Destroy() {
	s.instance.surfaces.DestroySurface(s.handle, nil)
}
