package render

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/minirender/internal/gpu"
	"github.com/vkngwrapper/minirender/internal/memory"
	"github.com/vkngwrapper/minirender/internal/swapchain"
)

func (c *Context) PoolSizes(images int) []core1_0.DescriptorPoolSize {
	return []core1_0.DescriptorPoolSize{
		{
			Type:            core1_0.DescriptorTypeUniformBuffer,
			DescriptorCount: images,
		},
		{
			Type:            core1_0.DescriptorTypeCombinedImageSampler,
			DescriptorCount: images,
		},
	}
}

func (c *Context) WriteDescriptors(set gpu.DescriptorSet, uniform *memory.Buffer) error {
	return set.Write(
		gpu.DescriptorWrite{
			Binding: 0,
			Type:    core1_0.DescriptorTypeUniformBuffer,
			Buffer:  uniform.Handle,
			Range:   uniform.Size,
		},
		gpu.DescriptorWrite{
			Binding: 1,
			Type:    core1_0.DescriptorTypeCombinedImageSampler,
			View:    c.textureView,
			Sampler: c.sampler,
		},
	)
}

// RecordCommands records the whole mesh into the framebuffer of image index.
func (c *Context) RecordCommands(cmd gpu.CommandBuffer, gen *swapchain.Generation, index int) error {
	err := cmd.BeginRenderPass(gen.Pipeline.RenderPass, gen.Framebuffers[index], gen.Extent,
		core1_0.ClearValueFloat(c.opts.clearColor),
		core1_0.ClearValueDepthStencil{Depth: 1.0, Stencil: 0},
	)
	if err != nil {
		return errors.Wrap(err, "begin render pass")
	}

	cmd.BindPipeline(gen.Pipeline.Handle)
	cmd.BindVertexBuffer(c.vertices.Handle)
	cmd.BindIndexBuffer(c.indices.Handle, c.indexType)
	cmd.BindDescriptorSet(gen.Pipeline.Layout, gen.DescriptorSets[index])
	cmd.DrawIndexed(c.indexCount)
	cmd.EndRenderPass()
	return nil
}
