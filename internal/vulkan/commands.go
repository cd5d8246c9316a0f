package vulkan

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/minirender/internal/gpu"
)

func commandBufferHandles(buffers []gpu.CommandBuffer) []core1_0.CommandBuffer {
	handles := make([]core1_0.CommandBuffer, 0, len(buffers))
	for _, b := range buffers {
		handles = append(handles, b.(*commandBuffer).handle)
	}
	return handles
}

type commandBuffer struct {
	driver core1_0.CoreDeviceDriver
	handle core1_0.CommandBuffer
}

func (c *commandBuffer) Begin(flags core1_0.CommandBufferUsageFlags) error {
	_, err := c.driver.BeginCommandBuffer(c.handle, core1_0.CommandBufferBeginInfo{Flags: flags})
	return errors.Wrap(err, "begin command buffer")
}

func (c *commandBuffer) End() error {
	_, err := c.driver.EndCommandBuffer(c.handle)
	return errors.Wrap(err, "end command buffer")
}

func (c *commandBuffer) CopyBuffer(src, dst gpu.Buffer, size int) error {
	err := c.driver.CmdCopyBuffer(c.handle, src.(*buffer).handle, dst.(*buffer).handle,
		core1_0.BufferCopy{SrcOffset: 0, DstOffset: 0, Size: size})
	return errors.Wrap(err, "copy buffer")
}

func (c *commandBuffer) CopyBufferToImage(src gpu.Buffer, dst gpu.Image, width, height int) error {
	err := c.driver.CmdCopyBufferToImage(c.handle, src.(*buffer).handle, dst.(*image).handle,
		core1_0.ImageLayoutTransferDstOptimal,
		core1_0.BufferImageCopy{
			BufferOffset: 0,
			ImageSubresource: core1_0.ImageSubresourceLayers{
				AspectMask:     core1_0.ImageAspectColor,
				MipLevel:       0,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
			ImageOffset: core1_0.Offset3D{},
			ImageExtent: core1_0.Extent3D{Width: width, Height: height, Depth: 1},
		})
	return errors.Wrap(err, "copy buffer to image")
}

func (c *commandBuffer) ImageBarrier(barrier gpu.ImageBarrier) error {
	err := c.driver.CmdPipelineBarrier(c.handle, barrier.SrcStage, barrier.DstStage, 0, nil, nil,
		[]core1_0.ImageMemoryBarrier{
			{
				Image:               barrier.Image.(*image).handle,
				SrcQueueFamilyIndex: -1,
				DstQueueFamilyIndex: -1,
				SubresourceRange: core1_0.ImageSubresourceRange{
					AspectMask:     barrier.Aspect,
					BaseMipLevel:   barrier.BaseMip,
					LevelCount:     barrier.MipLevels,
					BaseArrayLayer: 0,
					LayerCount:     1,
				},
				OldLayout:     barrier.OldLayout,
				NewLayout:     barrier.NewLayout,
				SrcAccessMask: barrier.SrcAccess,
				DstAccessMask: barrier.DstAccess,
			},
		})
	return errors.Wrap(err, "pipeline barrier")
}

// BlitMipLevel downsamples level-1 (in TransferSrcOptimal) into level (in
// TransferDstOptimal) of the same image.
func (c *commandBuffer) BlitMipLevel(img gpu.Image, level int, src, dst core1_0.Extent2D) error {
	handle := img.(*image).handle
	err := c.driver.CmdBlitImage(c.handle,
		handle, core1_0.ImageLayoutTransferSrcOptimal,
		handle, core1_0.ImageLayoutTransferDstOptimal,
		[]core1_0.ImageBlit{
			{
				SrcSubresource: core1_0.ImageSubresourceLayers{
					AspectMask:     core1_0.ImageAspectColor,
					MipLevel:       level - 1,
					BaseArrayLayer: 0,
					LayerCount:     1,
				},
				SrcOffsets: [2]core1_0.Offset3D{
					{},
					{X: src.Width, Y: src.Height, Z: 1},
				},
				DstSubresource: core1_0.ImageSubresourceLayers{
					AspectMask:     core1_0.ImageAspectColor,
					MipLevel:       level,
					BaseArrayLayer: 0,
					LayerCount:     1,
				},
				DstOffsets: [2]core1_0.Offset3D{
					{},
					{X: dst.Width, Y: dst.Height, Z: 1},
				},
			},
		},
		core1_0.FilterLinear)
	return errors.Wrapf(err, "blit mip level %d", level)
}

func (c *commandBuffer) BeginRenderPass(rp gpu.RenderPass, fb gpu.Framebuffer, area core1_0.Extent2D, clear ...core1_0.ClearValue) error {
	err := c.driver.CmdBeginRenderPass(c.handle, core1_0.SubpassContentsInline,
		core1_0.RenderPassBeginInfo{
			RenderPass:  rp.(*renderPass).handle,
			Framebuffer: fb.(*framebuffer).handle,
			RenderArea: core1_0.Rect2D{
				Offset: core1_0.Offset2D{X: 0, Y: 0},
				Extent: area,
			},
			ClearValues: clear,
		})
	return errors.Wrap(err, "begin render pass")
}

func (c *commandBuffer) BindPipeline(p gpu.Pipeline) {
	c.driver.CmdBindPipeline(c.handle, core1_0.PipelineBindPointGraphics, p.(*pipeline).handle)
}

func (c *commandBuffer) BindVertexBuffer(b gpu.Buffer) {
	c.driver.CmdBindVertexBuffers(c.handle, 0, []core1_0.Buffer{b.(*buffer).handle}, []int{0})
}

func (c *commandBuffer) BindIndexBuffer(b gpu.Buffer, indexType core1_0.IndexType) {
	c.driver.CmdBindIndexBuffer(c.handle, b.(*buffer).handle, 0, indexType)
}

func (c *commandBuffer) BindDescriptorSet(layout gpu.PipelineLayout, set gpu.DescriptorSet) {
	c.driver.CmdBindDescriptorSets(c.handle, core1_0.PipelineBindPointGraphics,
		layout.(*pipelineLayout).handle, 0,
		[]core1_0.DescriptorSet{set.(*descriptorSet).handle}, nil)
}

func (c *commandBuffer) DrawIndexed(indexCount int) {
	c.driver.CmdDrawIndexed(c.handle, indexCount, 1, 0, 0, 0)
}

func (c *commandBuffer) EndRenderPass() {
	c.driver.CmdEndRenderPass(c.handle)
}
