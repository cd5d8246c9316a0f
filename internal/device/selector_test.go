package device

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_portability_subset"
	"github.com/vkngwrapper/minirender/internal/gpu"
	"github.com/vkngwrapper/minirender/internal/gpu/gputest"
)

func TestSelectSingleFamily(t *testing.T) {
	pd := gputest.NewPhysicalDevice("only")
	choice, err := NewSelector(nil).Select(gputest.NewInstance(pd), gputest.NewSurface())
	require.NoError(t, err)
	require.Same(t, pd, choice.PhysicalDevice)
	require.Equal(t, 0, choice.GraphicsFamily)
	require.Equal(t, 0, choice.PresentFamily)
	require.Equal(t, []int{0}, choice.UniqueFamilies())
}

func TestSelectSplitFamilies(t *testing.T) {
	pd := gputest.NewPhysicalDevice("split")
	pd.Families = []gpu.QueueFamily{
		{Flags: core1_0.QueueTransfer, QueueCount: 1},
		{Flags: core1_0.QueueGraphics, QueueCount: 1},
		{Flags: core1_0.QueueCompute, QueueCount: 1},
	}
	pd.PresentFamilies = []int{2}

	surface := gputest.NewSurface()
	choice, err := NewSelector(nil).Select(gputest.NewInstance(pd), surface)
	require.NoError(t, err)
	require.Equal(t, 1, choice.GraphicsFamily)
	require.Equal(t, 2, choice.PresentFamily)
	require.Equal(t, []int{1, 2}, choice.UniqueFamilies())

	// Both indices satisfy their predicates.
	require.NotZero(t, pd.Families[choice.GraphicsFamily].Flags&core1_0.QueueGraphics)
	ok, err := surface.SupportsPresent(pd, choice.PresentFamily)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSelectFirstGraphicsFamilyWins(t *testing.T) {
	pd := gputest.NewPhysicalDevice("many")
	pd.Families = []gpu.QueueFamily{
		{Flags: core1_0.QueueGraphics, QueueCount: 1},
		{Flags: core1_0.QueueGraphics, QueueCount: 1},
	}
	pd.PresentFamilies = []int{1}

	choice, err := NewSelector(nil).Select(gputest.NewInstance(pd), gputest.NewSurface())
	require.NoError(t, err)
	require.Equal(t, 0, choice.GraphicsFamily)
	require.Equal(t, 1, choice.PresentFamily)
}

func TestSelectSkipsUnsuitableDevices(t *testing.T) {
	noPresent := gputest.NewPhysicalDevice("headless")
	noPresent.PresentFamilies = nil

	noSwapchain := gputest.NewPhysicalDevice("compute")
	noSwapchain.ExtensionNames = nil

	good := gputest.NewPhysicalDevice("good")

	choice, err := NewSelector(nil).Select(gputest.NewInstance(noPresent, noSwapchain, good), gputest.NewSurface())
	require.NoError(t, err)
	require.Equal(t, "good", choice.Properties.Name)
}

func TestSelectNoSuitableDevice(t *testing.T) {
	pd := gputest.NewPhysicalDevice("no-graphics")
	pd.Families = []gpu.QueueFamily{{Flags: core1_0.QueueCompute, QueueCount: 1}}

	_, err := NewSelector(nil).Select(gputest.NewInstance(pd), gputest.NewSurface())
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrNoSuitableDevice))
	require.True(t, errors.Is(err, gpu.ErrDeviceSelection))

	other := errors.Mark(errors.New("enumerate failed"), gpu.ErrDeviceSelection)
	require.False(t, errors.Is(other, ErrNoSuitableDevice))
}

func TestSelectRejectsEmptySurfaceSupport(t *testing.T) {
	surface := gputest.NewSurface()
	surface.Modes = nil

	_, err := NewSelector(nil).Select(gputest.NewInstance(gputest.NewPhysicalDevice("gpu")), surface)
	require.True(t, errors.Is(err, ErrNoSuitableDevice))
}

func TestSelectQueryFailureIsDeviceSelectionError(t *testing.T) {
	surface := gputest.NewSurface()
	surface.Err = errors.New("surface lost")

	_, err := NewSelector(nil).Select(gputest.NewInstance(gputest.NewPhysicalDevice("gpu")), surface)
	require.Error(t, err)
	require.True(t, errors.Is(err, gpu.ErrDeviceSelection))
	require.False(t, errors.Is(err, ErrNoSuitableDevice))
}

func TestSelectPreferDiscrete(t *testing.T) {
	integrated := gputest.NewPhysicalDevice("igpu")
	integrated.Props.Type = core1_0.PhysicalDeviceTypeIntegratedGPU
	discrete := gputest.NewPhysicalDevice("dgpu")

	instance := gputest.NewInstance(integrated, discrete)

	first, err := NewSelector(nil).Select(instance, gputest.NewSurface())
	require.NoError(t, err)
	require.Equal(t, "igpu", first.Properties.Name)

	selector := NewSelector(nil)
	selector.PreferDiscrete = true
	ranked, err := selector.Select(instance, gputest.NewSurface())
	require.NoError(t, err)
	require.Equal(t, "dgpu", ranked.Properties.Name)
}

func TestSelectEnablesPortabilitySubset(t *testing.T) {
	pd := gputest.NewPhysicalDevice("moltenvk")
	pd.ExtensionNames = append(pd.ExtensionNames, khr_portability_subset.ExtensionName)

	choice, err := NewSelector(nil).Select(gputest.NewInstance(pd), gputest.NewSurface())
	require.NoError(t, err)
	require.Contains(t, choice.Extensions, khr_portability_subset.ExtensionName)
}

func TestOpen(t *testing.T) {
	pd := gputest.NewPhysicalDevice("gpu")
	pd.Families = []gpu.QueueFamily{
		{Flags: core1_0.QueueGraphics, QueueCount: 1},
		{Flags: core1_0.QueueTransfer, QueueCount: 1},
	}
	pd.PresentFamilies = []int{1}

	choice, err := NewSelector(nil).Select(gputest.NewInstance(pd), gputest.NewSurface())
	require.NoError(t, err)

	dev, err := Open(choice)
	require.NoError(t, err)
	require.NotNil(t, dev)
	require.Equal(t, []int{0, 1}, pd.DeviceInfo.QueueFamilies)
	require.True(t, pd.DeviceInfo.SamplerAnisotropy)

	pd.CreateErr = errors.New("out of host memory")
	_, err = Open(choice)
	require.True(t, errors.Is(err, gpu.ErrDeviceSelection))
}
