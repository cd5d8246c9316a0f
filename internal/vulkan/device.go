package vulkan

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	"github.com/vkngwrapper/minirender/internal/gpu"
)

type Device struct {
	driver     core1_0.CoreDeviceDriver
	swapchains khr_swapchain.ExtensionDriver
}

var _ gpu.Device = (*Device)(nil)

func newDevice(driver core1_0.CoreDeviceDriver) *Device {
	return &Device{
		driver:     driver,
		swapchains: khr_swapchain.CreateExtensionDriverFromCoreDriver(driver),
	}
}

func (d *Device) Queue(family int) gpu.Queue {
	return &queue{device: d, family: family, handle: d.driver.GetQueue(family, 0)}
}

func (d *Device) WaitIdle() error {
	_, err := d.driver.DeviceWaitIdle()
	return errors.Wrap(err, "wait for device idle")
}

func (d *Device) CreateFence(signaled bool) (gpu.Fence, error) {
	var info core1_0.FenceCreateInfo
	if signaled {
		info.Flags = core1_0.FenceCreateSignaled
	}
	handle, _, err := d.driver.CreateFence(nil, info)
	if err != nil {
		return nil, errors.Wrap(err, "create fence")
	}
	return &fence{driver: d.driver, handle: handle}, nil
}

func (d *Device) CreateSemaphore() (gpu.Semaphore, error) {
	handle, _, err := d.driver.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
	if err != nil {
		return nil, errors.Wrap(err, "create semaphore")
	}
	return &semaphore{driver: d.driver, handle: handle}, nil
}

func (d *Device) CreateBuffer(size int, usage core1_0.BufferUsageFlags) (gpu.Buffer, error) {
	handle, _, err := d.driver.CreateBuffer(nil, core1_0.BufferCreateInfo{
		Size:        size,
		Usage:       usage,
		SharingMode: core1_0.SharingModeExclusive,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create buffer")
	}
	return &buffer{driver: d.driver, handle: handle}, nil
}

func (d *Device) CreateImage(info gpu.ImageInfo) (gpu.Image, error) {
	handle, _, err := d.driver.CreateImage(nil, core1_0.ImageCreateInfo{
		ImageType: core1_0.ImageType2D,
		Extent: core1_0.Extent3D{
			Width:  info.Width,
			Height: info.Height,
			Depth:  1,
		},
		MipLevels:     info.MipLevels,
		ArrayLayers:   1,
		Format:        info.Format,
		Tiling:        info.Tiling,
		InitialLayout: core1_0.ImageLayoutUndefined,
		Usage:         info.Usage,
		SharingMode:   core1_0.SharingModeExclusive,
		Samples:       info.Samples,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create image")
	}
	return &image{driver: d.driver, handle: handle, owned: true}, nil
}

func (d *Device) AllocateMemory(size int, memoryTypeIndex int) (gpu.DeviceMemory, error) {
	handle, _, err := d.driver.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  size,
		MemoryTypeIndex: memoryTypeIndex,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "allocate %d bytes from memory type %d", size, memoryTypeIndex)
	}
	return &deviceMemory{driver: d.driver, handle: handle}, nil
}

func (d *Device) CreateImageView(info gpu.ImageViewInfo) (gpu.ImageView, error) {
	handle, _, err := d.driver.CreateImageView(nil, core1_0.ImageViewCreateInfo{
		Image:    info.Image.(*image).handle,
		ViewType: core1_0.ImageViewType2D,
		Format:   info.Format,
		SubresourceRange: core1_0.ImageSubresourceRange{
			AspectMask:     info.Aspect,
			BaseMipLevel:   0,
			LevelCount:     info.MipLevels,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "create image view")
	}
	return &imageView{driver: d.driver, handle: handle}, nil
}

func (d *Device) CreateSampler(info gpu.SamplerInfo) (gpu.Sampler, error) {
	handle, _, err := d.driver.CreateSampler(nil, core1_0.SamplerCreateInfo{
		MagFilter:        core1_0.FilterLinear,
		MinFilter:        core1_0.FilterLinear,
		AddressModeU:     core1_0.SamplerAddressModeRepeat,
		AddressModeV:     core1_0.SamplerAddressModeRepeat,
		AddressModeW:     core1_0.SamplerAddressModeRepeat,
		AnisotropyEnable: info.Anisotropy > 0,
		MaxAnisotropy:    info.Anisotropy,
		BorderColor:      core1_0.BorderColorIntOpaqueBlack,
		MipmapMode:       core1_0.SamplerMipmapModeLinear,
		MinLod:           0,
		MaxLod:           info.MaxLod,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create sampler")
	}
	return &sampler{driver: d.driver, handle: handle}, nil
}

func (d *Device) CreateCommandPool(queueFamily int, transient bool) (gpu.CommandPool, error) {
	flags := core1_0.CommandPoolCreateResetBuffer
	if transient {
		flags |= core1_0.CommandPoolCreateTransient
	}
	handle, _, err := d.driver.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		QueueFamilyIndex: queueFamily,
		Flags:            flags,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create command pool")
	}
	return &commandPool{driver: d.driver, handle: handle}, nil
}

func (d *Device) CreateShaderModule(code []byte) (gpu.ShaderModule, error) {
	if len(code)%4 != 0 {
		return nil, errors.Newf("SPIR-V length %d is not a multiple of 4", len(code))
	}
	handle, _, err := d.driver.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{
		Code: bytesToBytecode(code),
	})
	if err != nil {
		return nil, errors.Wrap(err, "create shader module")
	}
	return &shaderModule{driver: d.driver, handle: handle}, nil
}

func bytesToBytecode(b []byte) []uint32 {
	code := make([]uint32, len(b)/4)
	for i := range code {
		code[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return code
}

func (d *Device) CreateRenderPass(desc gpu.RenderPassDescription) (gpu.RenderPass, error) {
	handle, _, err := d.driver.CreateRenderPass(nil, core1_0.RenderPassCreateInfo{
		Attachments: desc.Attachments,
		Subpasses: []core1_0.SubpassDescription{
			{
				PipelineBindPoint:      core1_0.PipelineBindPointGraphics,
				ColorAttachments:       desc.ColorAttachments,
				DepthStencilAttachment: desc.DepthAttachment,
			},
		},
		SubpassDependencies: desc.Dependencies,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create render pass")
	}
	return &renderPass{driver: d.driver, handle: handle}, nil
}

func (d *Device) CreateDescriptorSetLayout(bindings ...core1_0.DescriptorSetLayoutBinding) (gpu.DescriptorSetLayout, error) {
	handle, _, err := d.driver.CreateDescriptorSetLayout(nil, core1_0.DescriptorSetLayoutCreateInfo{
		Bindings: bindings,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create descriptor set layout")
	}
	return &descriptorSetLayout{driver: d.driver, handle: handle}, nil
}

func (d *Device) CreatePipelineLayout(setLayouts ...gpu.DescriptorSetLayout) (gpu.PipelineLayout, error) {
	handles := make([]core1_0.DescriptorSetLayout, 0, len(setLayouts))
	for _, layout := range setLayouts {
		handles = append(handles, layout.(*descriptorSetLayout).handle)
	}
	handle, _, err := d.driver.CreatePipelineLayout(nil, core1_0.PipelineLayoutCreateInfo{
		SetLayouts: handles,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create pipeline layout")
	}
	return &pipelineLayout{driver: d.driver, handle: handle}, nil
}

func (d *Device) CreateGraphicsPipeline(desc gpu.PipelineDescription) (gpu.Pipeline, error) {
	stages := make([]core1_0.PipelineShaderStageCreateInfo, 0, len(desc.Stages))
	for _, stage := range desc.Stages {
		stages = append(stages, core1_0.PipelineShaderStageCreateInfo{
			Stage:  stage.Stage,
			Module: stage.Module.(*shaderModule).handle,
			Name:   stage.Entry,
		})
	}

	pipelines, _, err := d.driver.CreateGraphicsPipelines(nil, nil, core1_0.GraphicsPipelineCreateInfo{
		Stages: stages,
		VertexInputState: &core1_0.PipelineVertexInputStateCreateInfo{
			VertexBindingDescriptions:   desc.VertexBindings,
			VertexAttributeDescriptions: desc.VertexAttributes,
		},
		InputAssemblyState: &desc.InputAssembly,
		ViewportState: &core1_0.PipelineViewportStateCreateInfo{
			Viewports: []core1_0.Viewport{desc.Viewport},
			Scissors:  []core1_0.Rect2D{desc.Scissor},
		},
		RasterizationState: &desc.Rasterization,
		MultisampleState:   &desc.Multisample,
		DepthStencilState:  &desc.DepthStencil,
		ColorBlendState:    &desc.ColorBlend,
		Layout:             desc.Layout.(*pipelineLayout).handle,
		RenderPass:         desc.RenderPass.(*renderPass).handle,
		Subpass:            desc.Subpass,
		BasePipelineIndex:  -1,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create graphics pipeline")
	}
	return &pipeline{driver: d.driver, handle: pipelines[0]}, nil
}

func (d *Device) CreateFramebuffer(rp gpu.RenderPass, extent core1_0.Extent2D, attachments ...gpu.ImageView) (gpu.Framebuffer, error) {
	views := make([]core1_0.ImageView, 0, len(attachments))
	for _, view := range attachments {
		views = append(views, view.(*imageView).handle)
	}
	handle, _, err := d.driver.CreateFramebuffer(nil, core1_0.FramebufferCreateInfo{
		RenderPass:  rp.(*renderPass).handle,
		Layers:      1,
		Attachments: views,
		Width:       extent.Width,
		Height:      extent.Height,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create framebuffer")
	}
	return &framebuffer{driver: d.driver, handle: handle}, nil
}

func (d *Device) CreateDescriptorPool(maxSets int, sizes ...core1_0.DescriptorPoolSize) (gpu.DescriptorPool, error) {
	handle, _, err := d.driver.CreateDescriptorPool(nil, core1_0.DescriptorPoolCreateInfo{
		MaxSets:   maxSets,
		PoolSizes: sizes,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create descriptor pool")
	}
	return &descriptorPool{driver: d.driver, handle: handle}, nil
}

func (d *Device) Destroy() {
	d.driver.DestroyDevice(nil)
}

type queue struct {
	device *Device
	family int
	handle core1_0.Queue
}

func (q *queue) Family() int { return q.family }

func (q *queue) Submit(info gpu.SubmitInfo, signal gpu.Fence) error {
	var fencePtr *core1_0.Fence
	if signal != nil {
		handle := signal.(*fence).handle
		fencePtr = &handle
	}

	_, err := q.device.driver.QueueSubmit(q.handle, fencePtr, core1_0.SubmitInfo{
		WaitSemaphores:   semaphoreHandles(info.WaitSemaphores),
		WaitDstStageMask: info.WaitStages,
		CommandBuffers:   commandBufferHandles(info.CommandBuffers),
		SignalSemaphores: semaphoreHandles(info.SignalSemaphores),
	})
	return errors.Wrap(err, "queue submit")
}

func (q *queue) Present(sc gpu.Swapchain, imageIndex int, wait ...gpu.Semaphore) (gpu.Status, error) {
	res, err := q.device.swapchains.QueuePresent(q.handle, khr_swapchain.PresentInfo{
		WaitSemaphores: semaphoreHandles(wait),
		Swapchains:     []khr_swapchain.Swapchain{sc.(*swapchain).handle},
		ImageIndices:   []int{imageIndex},
	})
	status, err := presentStatus(res, err)
	return status, errors.Wrap(err, "queue present")
}

func (q *queue) WaitIdle() error {
	_, err := q.device.driver.QueueWaitIdle(q.handle)
	return errors.Wrap(err, "wait for queue idle")
}
