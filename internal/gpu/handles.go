package gpu

import (
	"time"

	"github.com/google/uuid"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
)

type Instance interface {
	PhysicalDevices() ([]PhysicalDevice, error)
}

type DeviceProperties struct {
	Name                 string
	Type                 core1_0.PhysicalDeviceType
	PipelineCacheUUID    uuid.UUID
	MaxSamplerAnisotropy float32
}

type QueueFamily struct {
	Flags      core1_0.QueueFlags
	QueueCount int
}

type Features struct {
	SamplerAnisotropy bool
}

type PhysicalDevice interface {
	Properties() (DeviceProperties, error)
	QueueFamilies() []QueueFamily
	Extensions() (map[string]struct{}, error)
	Features() Features
	MemoryProperties() *core1_0.PhysicalDeviceMemoryProperties
	FormatProperties(format core1_0.Format) *core1_0.FormatProperties
	CreateDevice(info DeviceInfo) (Device, error)
}

// Surface answers presentation queries for one native window surface.
type Surface interface {
	SupportsPresent(physicalDevice PhysicalDevice, queueFamily int) (bool, error)
	Capabilities(physicalDevice PhysicalDevice) (*khr_surface.SurfaceCapabilities, error)
	Formats(physicalDevice PhysicalDevice) ([]khr_surface.SurfaceFormat, error)
	PresentModes(physicalDevice PhysicalDevice) ([]khr_surface.PresentMode, error)
}

type DeviceInfo struct {
	QueueFamilies     []int
	Extensions        []string
	SamplerAnisotropy bool
}

type Device interface {
	Queue(family int) Queue
	WaitIdle() error

	CreateFence(signaled bool) (Fence, error)
	CreateSemaphore() (Semaphore, error)

	CreateBuffer(size int, usage core1_0.BufferUsageFlags) (Buffer, error)
	CreateImage(info ImageInfo) (Image, error)
	AllocateMemory(size int, memoryTypeIndex int) (DeviceMemory, error)
	CreateImageView(info ImageViewInfo) (ImageView, error)
	CreateSampler(info SamplerInfo) (Sampler, error)

	CreateCommandPool(queueFamily int, transient bool) (CommandPool, error)
	CreateShaderModule(code []byte) (ShaderModule, error)
	CreateRenderPass(desc RenderPassDescription) (RenderPass, error)
	CreateDescriptorSetLayout(bindings ...core1_0.DescriptorSetLayoutBinding) (DescriptorSetLayout, error)
	CreatePipelineLayout(setLayouts ...DescriptorSetLayout) (PipelineLayout, error)
	CreateGraphicsPipeline(desc PipelineDescription) (Pipeline, error)
	CreateFramebuffer(renderPass RenderPass, extent core1_0.Extent2D, attachments ...ImageView) (Framebuffer, error)
	CreateDescriptorPool(maxSets int, sizes ...core1_0.DescriptorPoolSize) (DescriptorPool, error)
	CreateSwapchain(info SwapchainInfo) (Swapchain, error)

	Destroy()
}

type Queue interface {
	Family() int
	Submit(info SubmitInfo, signal Fence) error
	Present(swapchain Swapchain, imageIndex int, wait ...Semaphore) (Status, error)
	WaitIdle() error
}

type SubmitInfo struct {
	CommandBuffers   []CommandBuffer
	WaitSemaphores   []Semaphore
	WaitStages       []core1_0.PipelineStageFlags
	SignalSemaphores []Semaphore
}

// Fence.Wait blocks until the fence is signaled or timeout elapses. A timeout
// is reported as ErrSynchronizationTimeout.
type Fence interface {
	Wait(timeout time.Duration) error
	Reset() error
	Destroy()
}

type Semaphore interface {
	Destroy()
}

type MemoryRequirements struct {
	Size           int
	Alignment      int
	MemoryTypeBits uint32
}

type Buffer interface {
	MemoryRequirements() MemoryRequirements
	BindMemory(memory DeviceMemory, offset int) error
	Destroy()
}

type Image interface {
	MemoryRequirements() MemoryRequirements
	BindMemory(memory DeviceMemory, offset int) error
	Destroy()
}

// DeviceMemory.Map returns a host view of [offset, offset+size). The slice is
// only valid until Unmap.
type DeviceMemory interface {
	Map(offset, size int) ([]byte, error)
	Unmap()
	Free()
}

type ImageView interface{ Destroy() }
type Sampler interface{ Destroy() }
type ShaderModule interface{ Destroy() }
type RenderPass interface{ Destroy() }
type PipelineLayout interface{ Destroy() }
type Pipeline interface{ Destroy() }
type Framebuffer interface{ Destroy() }
type DescriptorSetLayout interface{ Destroy() }

// DescriptorPool owns the sets allocated from it; Destroy releases them too.
type DescriptorPool interface {
	Allocate(layouts ...DescriptorSetLayout) ([]DescriptorSet, error)
	Destroy()
}

type DescriptorSet interface {
	Write(writes ...DescriptorWrite) error
}

type DescriptorWrite struct {
	Binding int
	Type    core1_0.DescriptorType

	Buffer Buffer
	Range  int

	View    ImageView
	Sampler Sampler
}

type CommandPool interface {
	Allocate(count int) ([]CommandBuffer, error)
	Free(buffers ...CommandBuffer)
	Destroy()
}

type CommandBuffer interface {
	Begin(flags core1_0.CommandBufferUsageFlags) error
	End() error

	CopyBuffer(src, dst Buffer, size int) error
	CopyBufferToImage(src Buffer, dst Image, width, height int) error
	ImageBarrier(barrier ImageBarrier) error
	BlitMipLevel(image Image, level int, src, dst core1_0.Extent2D) error

	BeginRenderPass(renderPass RenderPass, framebuffer Framebuffer, area core1_0.Extent2D, clear ...core1_0.ClearValue) error
	BindPipeline(pipeline Pipeline)
	BindVertexBuffer(buffer Buffer)
	BindIndexBuffer(buffer Buffer, indexType core1_0.IndexType)
	BindDescriptorSet(layout PipelineLayout, set DescriptorSet)
	DrawIndexed(indexCount int)
	EndRenderPass()
}

// Swapchain images are owned by the swapchain; callers must not destroy them.
type Swapchain interface {
	Images() ([]Image, error)
	AcquireNextImage(timeout time.Duration, signal Semaphore) (int, Status, error)
	Destroy()
}
