package swapchain

import (
	"log/slog"

	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/minirender/internal/gpu"
	"github.com/vkngwrapper/minirender/internal/memory"
	"github.com/vkngwrapper/minirender/internal/pipeline"
)

// Generation is every resource derived from one swapchain. Per-image slices
// all have ImageCount entries. A generation is built in this order and
// Destroy releases it in exactly the reverse:
//
//	swapchain, image views, pipeline (render pass, layout, pipeline),
//	depth image, depth view, framebuffers, uniform buffers,
//	descriptor pool and sets, command buffers
type Generation struct {
	ID          int
	Extent      core1_0.Extent2D
	Format      khr_surface.SurfaceFormat
	PresentMode khr_surface.PresentMode
	DepthFormat core1_0.Format

	Swapchain gpu.Swapchain
	Images    []gpu.Image
	Views     []gpu.ImageView

	Pipeline  *pipeline.Pipeline
	Depth     *memory.Image
	DepthView gpu.ImageView

	Framebuffers   []gpu.Framebuffer
	Uniforms       []*memory.Buffer
	DescriptorPool gpu.DescriptorPool
	DescriptorSets []gpu.DescriptorSet
	CommandBuffers []gpu.CommandBuffer

	commandPool gpu.CommandPool
	logger      *slog.Logger
	destroyed   bool
}

func (g *Generation) ImageCount() int {
	return len(g.Images)
}

// Destroy releases the generation. It may be called on a partially built
// generation and more than once. The caller must make sure the device no
// longer uses any of it.
func (g *Generation) Destroy() {
	if g == nil || g.destroyed {
		return
	}
	g.destroyed = true

	if len(g.CommandBuffers) > 0 {
		g.commandPool.Free(g.CommandBuffers...)
		g.CommandBuffers = nil
	}

	if g.DescriptorPool != nil {
		g.DescriptorPool.Destroy()
		g.DescriptorPool = nil
		g.DescriptorSets = nil
	}

	for _, uniform := range g.Uniforms {
		uniform.Destroy()
	}
	g.Uniforms = nil

	for _, framebuffer := range g.Framebuffers {
		framebuffer.Destroy()
	}
	g.Framebuffers = nil

	if g.DepthView != nil {
		g.DepthView.Destroy()
		g.DepthView = nil
	}
	g.Depth.Destroy()
	g.Depth = nil

	g.Pipeline.Destroy()
	g.Pipeline = nil

	for _, view := range g.Views {
		view.Destroy()
	}
	g.Views = nil
	g.Images = nil

	if g.Swapchain != nil {
		g.Swapchain.Destroy()
		g.Swapchain = nil
	}

	if g.logger != nil {
		g.logger.Debug("swapchain generation destroyed")
	}
}
