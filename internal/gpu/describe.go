package gpu

import (
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
)

type ImageInfo struct {
	Width, Height int
	MipLevels     int
	Format        core1_0.Format
	Tiling        core1_0.ImageTiling
	Usage         core1_0.ImageUsageFlags
	Samples       core1_0.SampleCountFlags
}

type ImageViewInfo struct {
	Image     Image
	Format    core1_0.Format
	Aspect    core1_0.ImageAspectFlags
	MipLevels int
}

// SamplerInfo describes a linear, repeating sampler. Anisotropy of zero
// disables anisotropic filtering.
type SamplerInfo struct {
	MaxLod     float32
	Anisotropy float32
}

type ImageBarrier struct {
	Image     Image
	Aspect    core1_0.ImageAspectFlags
	BaseMip   int
	MipLevels int

	OldLayout core1_0.ImageLayout
	NewLayout core1_0.ImageLayout
	SrcAccess core1_0.AccessFlags
	DstAccess core1_0.AccessFlags
	SrcStage  core1_0.PipelineStageFlags
	DstStage  core1_0.PipelineStageFlags
}

// RenderPassDescription is a single-subpass render pass.
type RenderPassDescription struct {
	Attachments      []core1_0.AttachmentDescription
	ColorAttachments []core1_0.AttachmentReference
	DepthAttachment  *core1_0.AttachmentReference
	Dependencies     []core1_0.SubpassDependency
}

type ShaderStage struct {
	Stage  core1_0.ShaderStageFlags
	Module ShaderModule
	Entry  string
}

type PipelineDescription struct {
	Stages []ShaderStage

	VertexBindings   []core1_0.VertexInputBindingDescription
	VertexAttributes []core1_0.VertexInputAttributeDescription

	InputAssembly core1_0.PipelineInputAssemblyStateCreateInfo
	Viewport      core1_0.Viewport
	Scissor       core1_0.Rect2D
	Rasterization core1_0.PipelineRasterizationStateCreateInfo
	Multisample   core1_0.PipelineMultisampleStateCreateInfo
	DepthStencil  core1_0.PipelineDepthStencilStateCreateInfo
	ColorBlend    core1_0.PipelineColorBlendStateCreateInfo

	Layout     PipelineLayout
	RenderPass RenderPass
	Subpass    int
}

type SwapchainInfo struct {
	Surface       Surface
	Capabilities  *khr_surface.SurfaceCapabilities
	MinImageCount int
	Format        khr_surface.SurfaceFormat
	Extent        core1_0.Extent2D
	PresentMode   khr_surface.PresentMode

	// More than one family switches the images to concurrent sharing.
	QueueFamilies []int
}
