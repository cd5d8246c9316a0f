// Package device picks a physical device that can render to and present on a
// surface, and opens the logical device on it.
package device

import (
	"log/slog"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_portability_subset"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	"github.com/vkngwrapper/minirender/internal/gpu"
	"github.com/vkngwrapper/minirender/internal/logging"
)

// ErrNoSuitableDevice is returned marked with gpu.ErrDeviceSelection.
var ErrNoSuitableDevice = errors.New("failed to find a suitable GPU")

// DefaultExtensions are the device extensions every choice must support.
var DefaultExtensions = []string{khr_swapchain.ExtensionName}

type QueueFamilyIndices struct {
	GraphicsFamily *int
	PresentFamily  *int
}

func (i *QueueFamilyIndices) IsComplete() bool {
	return i.GraphicsFamily != nil && i.PresentFamily != nil
}

// Choice is a physical device that passed selection together with everything
// selection learned about it.
type Choice struct {
	PhysicalDevice gpu.PhysicalDevice
	Properties     gpu.DeviceProperties
	Features       gpu.Features

	GraphicsFamily int
	PresentFamily  int

	Formats      []khr_surface.SurfaceFormat
	PresentModes []khr_surface.PresentMode

	// Extensions is the set to enable on the logical device: the required
	// ones plus portability subset when the device exposes it.
	Extensions []string
}

// UniqueFamilies returns the graphics family, then the present family if it
// differs.
func (c *Choice) UniqueFamilies() []int {
	families := []int{c.GraphicsFamily}
	if c.PresentFamily != c.GraphicsFamily {
		families = append(families, c.PresentFamily)
	}
	return families
}

type Selector struct {
	RequiredExtensions []string
	// PreferDiscrete ranks suitable devices by type instead of taking the
	// first one enumerated.
	PreferDiscrete bool
	Logger         *slog.Logger
}

func NewSelector(logger *slog.Logger, requiredExtensions ...string) *Selector {
	if len(requiredExtensions) == 0 {
		requiredExtensions = DefaultExtensions
	}
	return &Selector{RequiredExtensions: requiredExtensions, Logger: logger}
}

func (s *Selector) logger() *slog.Logger {
	return logging.Or(s.Logger)
}

func (s *Selector) Select(instance gpu.Instance, surface gpu.Surface) (*Choice, error) {
	devices, err := instance.PhysicalDevices()
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "enumerate physical devices"), gpu.ErrDeviceSelection)
	}

	var candidates []*Choice
	for _, pd := range devices {
		choice, reason, err := s.evaluate(pd, surface)
		if err != nil {
			return nil, errors.Mark(err, gpu.ErrDeviceSelection)
		}
		if choice == nil {
			s.logger().Debug("Selector::Select rejected device", slog.String("reason", reason))
			continue
		}
		if !s.PreferDiscrete {
			s.logChoice(choice)
			return choice, nil
		}
		candidates = append(candidates, choice)
	}

	if len(candidates) == 0 {
		return nil, errors.Mark(errors.Wrapf(ErrNoSuitableDevice, "%d devices enumerated", len(devices)), gpu.ErrDeviceSelection)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return typeRank(candidates[i].Properties.Type) < typeRank(candidates[j].Properties.Type)
	})
	s.logChoice(candidates[0])
	return candidates[0], nil
}

func (s *Selector) logChoice(c *Choice) {
	s.logger().Info("selected physical device",
		slog.String("name", c.Properties.Name),
		slog.Any("type", c.Properties.Type),
		slog.Int("graphicsFamily", c.GraphicsFamily),
		slog.Int("presentFamily", c.PresentFamily),
		slog.String("pipelineCacheUUID", c.Properties.PipelineCacheUUID.String()))
}

// evaluate returns a nil choice and a reason when the device is unsuitable.
// Errors are reserved for failed queries.
func (s *Selector) evaluate(pd gpu.PhysicalDevice, surface gpu.Surface) (*Choice, string, error) {
	props, err := pd.Properties()
	if err != nil {
		return nil, "", errors.Wrap(err, "query device properties")
	}

	indices, err := FindQueueFamilies(pd, surface)
	if err != nil {
		return nil, "", errors.Wrapf(err, "query queue families of %s", props.Name)
	}
	if !indices.IsComplete() {
		return nil, props.Name + ": missing graphics or present queue family", nil
	}

	available, err := pd.Extensions()
	if err != nil {
		return nil, "", errors.Wrapf(err, "query extensions of %s", props.Name)
	}
	for _, ext := range s.RequiredExtensions {
		if _, ok := available[ext]; !ok {
			return nil, props.Name + ": missing extension " + ext, nil
		}
	}

	formats, err := surface.Formats(pd)
	if err != nil {
		return nil, "", errors.Wrapf(err, "query surface formats of %s", props.Name)
	}
	modes, err := surface.PresentModes(pd)
	if err != nil {
		return nil, "", errors.Wrapf(err, "query present modes of %s", props.Name)
	}
	if len(formats) == 0 || len(modes) == 0 {
		return nil, props.Name + ": inadequate swapchain support", nil
	}

	extensions := append([]string(nil), s.RequiredExtensions...)
	if _, ok := available[khr_portability_subset.ExtensionName]; ok {
		extensions = append(extensions, khr_portability_subset.ExtensionName)
	}

	return &Choice{
		PhysicalDevice: pd,
		Properties:     props,
		Features:       pd.Features(),
		GraphicsFamily: *indices.GraphicsFamily,
		PresentFamily:  *indices.PresentFamily,
		Formats:        formats,
		PresentModes:   modes,
		Extensions:     extensions,
	}, "", nil
}

// FindQueueFamilies returns the first family with graphics support and,
// searched independently, the first family that can present to surface.
func FindQueueFamilies(pd gpu.PhysicalDevice, surface gpu.Surface) (QueueFamilyIndices, error) {
	indices := QueueFamilyIndices{}

	for idx, family := range pd.QueueFamilies() {
		if indices.GraphicsFamily == nil && family.Flags&core1_0.QueueGraphics != 0 {
			indices.GraphicsFamily = new(int)
			*indices.GraphicsFamily = idx
		}

		if indices.PresentFamily == nil {
			supported, err := surface.SupportsPresent(pd, idx)
			if err != nil {
				return indices, err
			}
			if supported {
				indices.PresentFamily = new(int)
				*indices.PresentFamily = idx
			}
		}

		if indices.IsComplete() {
			break
		}
	}

	return indices, nil
}

func typeRank(t core1_0.PhysicalDeviceType) int {
	switch t {
	case core1_0.PhysicalDeviceTypeDiscreteGPU:
		return 0
	case core1_0.PhysicalDeviceTypeIntegratedGPU:
		return 1
	case core1_0.PhysicalDeviceTypeVirtualGPU:
		return 2
	case core1_0.PhysicalDeviceTypeCPU:
		return 3
	}
	return 4
}
