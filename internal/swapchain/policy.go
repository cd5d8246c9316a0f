package swapchain

import (
	"math"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/minirender/internal/gpu"
)

var (
	// ErrNoSurfaceFormats is returned marked with gpu.ErrSwapchain.
	ErrNoSurfaceFormats = errors.New("surface reports no formats")
	// ErrZeroExtent is returned while the surface has no area, usually
	// because the window is minimized. Nothing is created or destroyed. It
	// is marked with gpu.ErrPresentationStale.
	ErrZeroExtent = errors.New("surface has zero extent")
)

// ChooseSurfaceFormat prefers 8-bit BGRA in the SRGB color space and
// otherwise takes the first format the surface reports.
func ChooseSurfaceFormat(available []khr_surface.SurfaceFormat) (khr_surface.SurfaceFormat, error) {
	if len(available) == 0 {
		return khr_surface.SurfaceFormat{}, errors.Mark(ErrNoSurfaceFormats, gpu.ErrSwapchain)
	}

	for _, format := range available {
		if format.Format == core1_0.FormatB8G8R8A8SRGB && format.ColorSpace == khr_surface.ColorSpaceSRGBNonlinear {
			return format, nil
		}
	}

	return available[0], nil
}

// ChoosePresentMode prefers mailbox and falls back to FIFO, which every
// surface supports.
func ChoosePresentMode(available []khr_surface.PresentMode) khr_surface.PresentMode {
	for _, presentMode := range available {
		if presentMode == khr_surface.PresentModeMailbox {
			return presentMode
		}
	}

	return khr_surface.PresentModeFIFO
}

// FixedExtent reports whether the surface dictates the swapchain extent.
// Otherwise CurrentExtent holds the 0xFFFFFFFF sentinel and the application
// picks.
func FixedExtent(capabilities *khr_surface.SurfaceCapabilities) bool {
	return uint32(capabilities.CurrentExtent.Width) != math.MaxUint32
}

// ChooseExtent clamps the window's pixel size to the surface limits unless
// the surface reports a fixed extent.
func ChooseExtent(capabilities *khr_surface.SurfaceCapabilities, width, height int) core1_0.Extent2D {
	if FixedExtent(capabilities) {
		return capabilities.CurrentExtent
	}

	if width < capabilities.MinImageExtent.Width {
		width = capabilities.MinImageExtent.Width
	}
	if width > capabilities.MaxImageExtent.Width {
		width = capabilities.MaxImageExtent.Width
	}
	if height < capabilities.MinImageExtent.Height {
		height = capabilities.MinImageExtent.Height
	}
	if height > capabilities.MaxImageExtent.Height {
		height = capabilities.MaxImageExtent.Height
	}

	return core1_0.Extent2D{Width: width, Height: height}
}

// ImageCount asks for one image more than the minimum, capped at the
// maximum when the surface has one.
func ImageCount(capabilities *khr_surface.SurfaceCapabilities) int {
	imageCount := capabilities.MinImageCount + 1
	if capabilities.MaxImageCount > 0 && capabilities.MaxImageCount < imageCount {
		imageCount = capabilities.MaxImageCount
	}
	return imageCount
}

func zero(extent core1_0.Extent2D) bool {
	return extent.Width <= 0 || extent.Height <= 0
}
