package vulkan

import (
	"time"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/minirender/internal/gpu"
)

// Handles from a different gpu implementation are a programming error, so
// the unwrap helpers panic on a failed type assertion.

func physicalHandle(p gpu.PhysicalDevice) core1_0.PhysicalDevice {
	return p.(*PhysicalDevice).handle
}

func semaphoreHandles(semaphores []gpu.Semaphore) []core1_0.Semaphore {
	handles := make([]core1_0.Semaphore, 0, len(semaphores))
	for _, s := range semaphores {
		handles = append(handles, s.(*semaphore).handle)
	}
	return handles
}

type fence struct {
	driver core1_0.CoreDeviceDriver
	handle core1_0.Fence
}

func (f *fence) Wait(timeout time.Duration) error {
	res, err := f.driver.WaitForFences(true, timeout, f.handle)
	if res == core1_0.VKTimeout {
		return errors.Wrapf(gpu.ErrSynchronizationTimeout, "fence not signaled after %s", timeout)
	}
	return errors.Wrap(err, "wait for fence")
}

func (f *fence) Reset() error {
	_, err := f.driver.ResetFences(f.handle)
	return errors.Wrap(err, "reset fence")
}

func (f *fence) Destroy() { f.driver.DestroyFence(f.handle, nil) }

type semaphore struct {
	driver core1_0.CoreDeviceDriver
	handle core1_0.Semaphore
}

func (s *semaphore) Destroy() { s.driver.DestroySemaphore(s.handle, nil) }

func requirements(r *core1_0.MemoryRequirements) gpu.MemoryRequirements {
	return gpu.MemoryRequirements{
		Size:           r.Size,
		Alignment:      r.Alignment,
		MemoryTypeBits: r.MemoryTypeBits,
	}
}

type buffer struct {
	driver core1_0.CoreDeviceDriver
	handle core1_0.Buffer
}

func (b *buffer) MemoryRequirements() gpu.MemoryRequirements {
	return requirements(b.driver.GetBufferMemoryRequirements(b.handle))
}

func (b *buffer) BindMemory(memory gpu.DeviceMemory, offset int) error {
	_, err := b.driver.BindBufferMemory(b.handle, memory.(*deviceMemory).handle, offset)
	return errors.Wrap(err, "bind buffer memory")
}

func (b *buffer) Destroy() { b.driver.DestroyBuffer(b.handle, nil) }

type image struct {
	driver core1_0.CoreDeviceDriver
	handle core1_0.Image
	// Swapchain images belong to the swapchain and are never destroyed
	// individually.
	owned bool
}

func (i *image) MemoryRequirements() gpu.MemoryRequirements {
	return requirements(i.driver.GetImageMemoryRequirements(i.handle))
}

func (i *image) BindMemory(memory gpu.DeviceMemory, offset int) error {
	_, err := i.driver.BindImageMemory(i.handle, memory.(*deviceMemory).handle, offset)
	return errors.Wrap(err, "bind image memory")
}

func (i *image) Destroy() {
	if i.owned {
		i.driver.DestroyImage(i.handle, nil)
	}
}

type deviceMemory struct {
	driver core1_0.CoreDeviceDriver
	handle core1_0.DeviceMemory
}

func (m *deviceMemory) Map(offset, size int) ([]byte, error) {
	ptr, _, err := m.driver.MapMemory(m.handle, offset, size, 0)
	if err != nil {
		return nil, errors.Wrap(err, "map memory")
	}
	return unsafe.Slice((*byte)(ptr), size), nil
}

func (m *deviceMemory) Unmap() { m.driver.UnmapMemory(m.handle) }
func (m *deviceMemory) Free()  { m.driver.FreeMemory(m.handle, nil) }

type imageView struct {
	driver core1_0.CoreDeviceDriver
	handle core1_0.ImageView
}

func (v *imageView) Destroy() { v.driver.DestroyImageView(v.handle, nil) }

type sampler struct {
	driver core1_0.CoreDeviceDriver
	handle core1_0.Sampler
}

func (s *sampler) Destroy() { s.driver.DestroySampler(s.handle, nil) }

type shaderModule struct {
	driver core1_0.CoreDeviceDriver
	handle core1_0.ShaderModule
}

func (m *shaderModule) Destroy() { m.driver.DestroyShaderModule(m.handle, nil) }

type renderPass struct {
	driver core1_0.CoreDeviceDriver
	handle core1_0.RenderPass
}

func (r *renderPass) Destroy() { r.driver.DestroyRenderPass(r.handle, nil) }

type descriptorSetLayout struct {
	driver core1_0.CoreDeviceDriver
	handle core1_0.DescriptorSetLayout
}

func (l *descriptorSetLayout) Destroy() { l.driver.DestroyDescriptorSetLayout(l.handle, nil) }

type pipelineLayout struct {
	driver core1_0.CoreDeviceDriver
	handle core1_0.PipelineLayout
}

func (l *pipelineLayout) Destroy() { l.driver.DestroyPipelineLayout(l.handle, nil) }

type pipeline struct {
	driver core1_0.CoreDeviceDriver
	handle core1_0.Pipeline
}

func (p *pipeline) Destroy() { p.driver.DestroyPipeline(p.handle, nil) }

type framebuffer struct {
	driver core1_0.CoreDeviceDriver
	handle core1_0.Framebuffer
}

func (f *framebuffer) Destroy() { f.driver.DestroyFramebuffer(f.handle, nil) }

type descriptorPool struct {
	driver core1_0.CoreDeviceDriver
	handle core1_0.DescriptorPool
}

func (p *descriptorPool) Allocate(layouts ...gpu.DescriptorSetLayout) ([]gpu.DescriptorSet, error) {
	handles := make([]core1_0.DescriptorSetLayout, 0, len(layouts))
	for _, layout := range layouts {
		handles = append(handles, layout.(*descriptorSetLayout).handle)
	}

	sets, _, err := p.driver.AllocateDescriptorSets(core1_0.DescriptorSetAllocateInfo{
		DescriptorPool: p.handle,
		SetLayouts:     handles,
	})
	if err != nil {
		return nil, errors.Wrap(err, "allocate descriptor sets")
	}

	out := make([]gpu.DescriptorSet, 0, len(sets))
	for _, set := range sets {
		out = append(out, &descriptorSet{driver: p.driver, handle: set})
	}
	return out, nil
}

// Destroy also frees every set allocated from the pool.
func (p *descriptorPool) Destroy() { p.driver.DestroyDescriptorPool(p.handle, nil) }

type descriptorSet struct {
	driver core1_0.CoreDeviceDriver
	handle core1_0.DescriptorSet
}

func (s *descriptorSet) Write(writes ...gpu.DescriptorWrite) error {
	out := make([]core1_0.WriteDescriptorSet, 0, len(writes))
	for _, w := range writes {
		write := core1_0.WriteDescriptorSet{
			DstSet:          s.handle,
			DstBinding:      w.Binding,
			DstArrayElement: 0,
			DescriptorType:  w.Type,
		}
		if w.Buffer != nil {
			write.BufferInfo = []core1_0.DescriptorBufferInfo{{
				Buffer: w.Buffer.(*buffer).handle,
				Offset: 0,
				Range:  w.Range,
			}}
		} else {
			write.ImageInfo = []core1_0.DescriptorImageInfo{{
				ImageView:   w.View.(*imageView).handle,
				Sampler:     w.Sampler.(*sampler).handle,
				ImageLayout: core1_0.ImageLayoutShaderReadOnlyOptimal,
			}}
		}
		out = append(out, write)
	}

	return errors.Wrap(s.driver.UpdateDescriptorSets(out, nil), "update descriptor sets")
}

type commandPool struct {
	driver core1_0.CoreDeviceDriver
	handle core1_0.CommandPool
}

func (p *commandPool) Allocate(count int) ([]gpu.CommandBuffer, error) {
	buffers, _, err := p.driver.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        p.handle,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: count,
	})
	if err != nil {
		return nil, errors.Wrap(err, "allocate command buffers")
	}

	out := make([]gpu.CommandBuffer, 0, len(buffers))
	for _, b := range buffers {
		out = append(out, &commandBuffer{driver: p.driver, handle: b})
	}
	return out, nil
}

func (p *commandPool) Free(buffers ...gpu.CommandBuffer) {
	if len(buffers) == 0 {
		return
	}
	p.driver.FreeCommandBuffers(commandBufferHandles(buffers)...)
}

func (p *commandPool) Destroy() { p.driver.DestroyCommandPool(p.handle, nil) }
