package swapchain

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/minirender/internal/gpu"
	"github.com/vkngwrapper/minirender/internal/gpu/gputest"
)

func TestChooseSurfaceFormat(t *testing.T) {
	format, err := ChooseSurfaceFormat(gputest.NewSurface().SurfaceFormats)
	require.NoError(t, err)
	require.Equal(t, core1_0.FormatB8G8R8A8SRGB, format.Format)

	fallback := []khr_surface.SurfaceFormat{
		{Format: core1_0.FormatR8G8B8A8UnsignedNormalized, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear},
		{Format: core1_0.FormatB8G8R8A8UnsignedNormalized, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear},
	}
	format, err = ChooseSurfaceFormat(fallback)
	require.NoError(t, err)
	require.Equal(t, fallback[0], format)

	_, err = ChooseSurfaceFormat(nil)
	require.True(t, errors.Is(err, ErrNoSurfaceFormats))
	require.True(t, errors.Is(err, gpu.ErrSwapchain))
}

func TestSentinelsAreDistinctFromTheirKind(t *testing.T) {
	swapchainErr := errors.Mark(errors.New("create swapchain failed"), gpu.ErrSwapchain)
	require.False(t, errors.Is(swapchainErr, ErrNoSurfaceFormats))

	stale := errors.Mark(errors.New("present out of date"), gpu.ErrPresentationStale)
	require.True(t, gpu.Recoverable(stale))
	require.False(t, errors.Is(stale, ErrZeroExtent))
}

func TestChoosePresentMode(t *testing.T) {
	require.Equal(t, khr_surface.PresentModeMailbox, ChoosePresentMode([]khr_surface.PresentMode{
		khr_surface.PresentModeFIFO, khr_surface.PresentModeMailbox,
	}))
	require.Equal(t, khr_surface.PresentModeFIFO, ChoosePresentMode([]khr_surface.PresentMode{
		khr_surface.PresentModeImmediate, khr_surface.PresentModeFIFO,
	}))
}

func TestChooseExtent(t *testing.T) {
	caps := gputest.NewSurface().Caps

	require.Equal(t, core1_0.Extent2D{Width: 800, Height: 600}, ChooseExtent(&caps, 800, 600))
	require.Equal(t, core1_0.Extent2D{Width: 4096, Height: 1}, ChooseExtent(&caps, 5000, 0))

	caps.CurrentExtent = core1_0.Extent2D{Width: 0xFFFFFFFF, Height: 0xFFFFFFFF}
	require.False(t, FixedExtent(&caps))
	require.Equal(t, core1_0.Extent2D{Width: 1024, Height: 768}, ChooseExtent(&caps, 1024, 768))

	caps.CurrentExtent = core1_0.Extent2D{Width: 640, Height: 480}
	require.True(t, FixedExtent(&caps))
	require.Equal(t, caps.CurrentExtent, ChooseExtent(&caps, 1024, 768))
}

func TestImageCount(t *testing.T) {
	caps := gputest.NewSurface().Caps
	require.Equal(t, 3, ImageCount(&caps))

	caps.MinImageCount, caps.MaxImageCount = 3, 3
	require.Equal(t, 3, ImageCount(&caps))

	caps.MinImageCount, caps.MaxImageCount = 4, 0
	require.Equal(t, 5, ImageCount(&caps))
}
