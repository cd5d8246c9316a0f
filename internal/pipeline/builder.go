package pipeline

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/minirender/internal/gpu"
	"github.com/vkngwrapper/minirender/internal/logging"
)

// ShaderStages holds SPIR-V bytecode per stage. Both entry points are "main".
type ShaderStages struct {
	Vertex   []byte
	Fragment []byte
}

type VertexLayout struct {
	Bindings   []core1_0.VertexInputBindingDescription
	Attributes []core1_0.VertexInputAttributeDescription
}

// Target is what a pipeline is built against. It changes with every
// swapchain generation.
type Target struct {
	ColorFormat core1_0.Format
	DepthFormat core1_0.Format
	Extent      core1_0.Extent2D
}

// Pipeline is a render pass and the graphics pipeline compatible with it.
// Destroy releases the pipeline, then its layout, then the render pass.
type Pipeline struct {
	RenderPass gpu.RenderPass
	Layout     gpu.PipelineLayout
	Handle     gpu.Pipeline
	Target     Target

	destroyed bool
}

func (p *Pipeline) Destroy() {
	if p == nil || p.destroyed {
		return
	}
	p.destroyed = true
	p.Handle.Destroy()
	p.Layout.Destroy()
	p.RenderPass.Destroy()
}

// Builder holds the configuration that stays fixed across swapchain
// generations.
type Builder struct {
	Device     gpu.Device
	Shaders    ShaderStages
	Vertex     VertexLayout
	SetLayouts []gpu.DescriptorSetLayout
	Logger     *slog.Logger
}

func (b *Builder) Build(target Target) (*Pipeline, error) {
	var cleanup gpu.Cleanup
	defer cleanup.Release()

	renderPass, err := b.Device.CreateRenderPass(RenderPassDescription(target.ColorFormat, target.DepthFormat))
	if err != nil {
		return nil, errors.Wrap(err, "create render pass")
	}
	cleanup.Push(renderPass.Destroy)

	vertShader, err := b.Device.CreateShaderModule(b.Shaders.Vertex)
	if err != nil {
		return nil, errors.Wrap(err, "create vertex shader module")
	}
	defer vertShader.Destroy()

	fragShader, err := b.Device.CreateShaderModule(b.Shaders.Fragment)
	if err != nil {
		return nil, errors.Wrap(err, "create fragment shader module")
	}
	defer fragShader.Destroy()

	layout, err := b.Device.CreatePipelineLayout(b.SetLayouts...)
	if err != nil {
		return nil, errors.Wrap(err, "create pipeline layout")
	}
	cleanup.Push(layout.Destroy)

	desc := FixedFunction(target.Extent)
	desc.Stages = []gpu.ShaderStage{
		{Stage: core1_0.StageVertex, Module: vertShader, Entry: "main"},
		{Stage: core1_0.StageFragment, Module: fragShader, Entry: "main"},
	}
	desc.VertexBindings = b.Vertex.Bindings
	desc.VertexAttributes = b.Vertex.Attributes
	desc.Layout = layout
	desc.RenderPass = renderPass

	handle, err := b.Device.CreateGraphicsPipeline(desc)
	if err != nil {
		return nil, errors.Wrap(err, "create graphics pipeline")
	}
	cleanup.Disarm()

	logging.Or(b.Logger).Debug("Builder::Build",
		slog.Int("width", target.Extent.Width),
		slog.Int("height", target.Extent.Height),
		slog.Any("colorFormat", target.ColorFormat),
		slog.Any("depthFormat", target.DepthFormat))

	return &Pipeline{RenderPass: renderPass, Layout: layout, Handle: handle, Target: target}, nil
}

// FixedFunction returns the pipeline state shared by every generation:
// triangle lists, back-face culling with clockwise front faces, one sample,
// depth test and write with less-than, and one opaque color attachment. The
// viewport and scissor cover extent.
func FixedFunction(extent core1_0.Extent2D) gpu.PipelineDescription {
	return gpu.PipelineDescription{
		InputAssembly: core1_0.PipelineInputAssemblyStateCreateInfo{
			Topology:               core1_0.PrimitiveTopologyTriangleList,
			PrimitiveRestartEnable: false,
		},
		Viewport: core1_0.Viewport{
			X:        0,
			Y:        0,
			Width:    float32(extent.Width),
			Height:   float32(extent.Height),
			MinDepth: 0,
			MaxDepth: 1,
		},
		Scissor: core1_0.Rect2D{
			Offset: core1_0.Offset2D{X: 0, Y: 0},
			Extent: extent,
		},
		Rasterization: core1_0.PipelineRasterizationStateCreateInfo{
			DepthClampEnable:        false,
			RasterizerDiscardEnable: false,

			PolygonMode: core1_0.PolygonModeFill,
			CullMode:    core1_0.CullModeBack,
			FrontFace:   core1_0.FrontFaceClockwise,

			DepthBiasEnable: false,

			LineWidth: 1.0,
		},
		Multisample: core1_0.PipelineMultisampleStateCreateInfo{
			SampleShadingEnable:  false,
			RasterizationSamples: core1_0.Samples1,
			MinSampleShading:     1.0,
		},
		DepthStencil: core1_0.PipelineDepthStencilStateCreateInfo{
			DepthTestEnable:  true,
			DepthWriteEnable: true,
			DepthCompareOp:   core1_0.CompareOpLess,
		},
		ColorBlend: core1_0.PipelineColorBlendStateCreateInfo{
			LogicOpEnabled: false,
			LogicOp:        core1_0.LogicOpCopy,

			BlendConstants: [4]float32{0, 0, 0, 0},
			Attachments: []core1_0.PipelineColorBlendAttachmentState{
				{
					BlendEnabled:   false,
					ColorWriteMask: core1_0.ColorComponentRed | core1_0.ColorComponentGreen | core1_0.ColorComponentBlue | core1_0.ColorComponentAlpha,
				},
			},
		},
	}
}
