package vulkan

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	"github.com/vkngwrapper/minirender/internal/gpu"
)

func (d *Device) CreateSwapchain(info gpu.SwapchainInfo) (gpu.Swapchain, error) {
	create := khr_swapchain.SwapchainCreateInfo{
		Surface:          info.Surface.(*Surface).handle,
		MinImageCount:    info.MinImageCount,
		ImageFormat:      info.Format.Format,
		ImageColorSpace:  info.Format.ColorSpace,
		ImageExtent:      info.Extent,
		ImageArrayLayers: 1,
		ImageUsage:       core1_0.ImageUsageColorAttachment,
		ImageSharingMode: core1_0.SharingModeExclusive,
		PreTransform:     info.Capabilities.CurrentTransform,
		CompositeAlpha:   khr_surface.CompositeAlphaOpaque,
		PresentMode:      info.PresentMode,
		Clipped:          true,
	}
	if len(info.QueueFamilies) > 1 {
		create.ImageSharingMode = core1_0.SharingModeConcurrent
		create.QueueFamilyIndices = info.QueueFamilies
	}

	handle, _, err := d.swapchains.CreateSwapchain(nil, create)
	if err != nil {
		return nil, errors.Wrap(err, "create swapchain")
	}
	return &swapchain{device: d, handle: handle}, nil
}

type swapchain struct {
	device *Device
	handle khr_swapchain.Swapchain
}

func (s *swapchain) Images() ([]gpu.Image, error) {
	handles, _, err := s.device.swapchains.GetSwapchainImages(s.handle)
	if err != nil {
		return nil, errors.Wrap(err, "get swapchain images")
	}

	images := make([]gpu.Image, 0, len(handles))
	for _, handle := range handles {
		images = append(images, &image{driver: s.device.driver, handle: handle})
	}
	return images, nil
}

func (s *swapchain) AcquireNextImage(timeout time.Duration, signal gpu.Semaphore) (int, gpu.Status, error) {
	sem := signal.(*semaphore).handle
	index, res, err := s.device.swapchains.AcquireNextImage(s.handle, timeout, &sem, nil)
	status, err := acquireStatus(res, err, timeout)
	if err != nil || status == gpu.StatusOutOfDate {
		return -1, status, err
	}
	return index, status, nil
}

func (s *swapchain) Destroy() {
	s.device.swapchains.DestroySwapchain(s.handle, nil)
}

// acquireStatus folds the swapchain result codes into a gpu.Status. Out of
// date comes back as an error from the driver, but the caller treats it as
// a status that triggers recreation.
func acquireStatus(res common.VkResult, err error, timeout time.Duration) (gpu.Status, error) {
	switch res {
	case khr_swapchain.VKErrorOutOfDate:
		return gpu.StatusOutOfDate, nil
	case khr_swapchain.VKSuboptimal:
		return gpu.StatusSuboptimal, nil
	case core1_0.VKTimeout, core1_0.VKNotReady:
		return gpu.StatusSuccess, errors.Wrapf(gpu.ErrSynchronizationTimeout, "no swapchain image after %s", timeout)
	}
	if err != nil {
		return gpu.StatusSuccess, errors.Wrap(err, "acquire next image")
	}
	return gpu.StatusSuccess, nil
}

func presentStatus(res common.VkResult, err error) (gpu.Status, error) {
	switch res {
	case khr_swapchain.VKErrorOutOfDate:
		return gpu.StatusOutOfDate, nil
	case khr_swapchain.VKSuboptimal:
		return gpu.StatusSuboptimal, nil
	}
	return gpu.StatusSuccess, err
}
