// Package render is the renderer's orchestrator. A Context owns the logical
// device and every long-lived resource, and drives the swapchain manager and
// the frame protocol from a single host thread.
package render

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"github.com/loov/hrtime"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/minirender/internal/device"
	"github.com/vkngwrapper/minirender/internal/frame"
	"github.com/vkngwrapper/minirender/internal/gpu"
	"github.com/vkngwrapper/minirender/internal/logging"
	"github.com/vkngwrapper/minirender/internal/memory"
	"github.com/vkngwrapper/minirender/internal/pipeline"
	"github.com/vkngwrapper/minirender/internal/scene"
	"github.com/vkngwrapper/minirender/internal/swapchain"
	"github.com/vkngwrapper/minirender/internal/transform"
)

// TextureFormat is the format sampled textures are uploaded in.
const TextureFormat = core1_0.FormatR8G8B8A8SRGB

var ErrShutdown = errors.New("render context is shut down")

// Window reports the current drawable size of the surface's window in
// pixels. A zero dimension means the window is minimized.
type Window interface {
	DrawableSize() (width, height int)
}

// Assets are the host-side inputs the context uploads once. A nil Mesh draws
// two stacked quads; a nil Texture samples a checkerboard.
type Assets struct {
	Shaders pipeline.ShaderStages
	Mesh    *scene.Mesh
	Texture *scene.Texture
}

type Context struct {
	id     uuid.UUID
	logger *slog.Logger
	opts   options
	window Window

	choice        *device.Choice
	device        gpu.Device
	graphicsQueue gpu.Queue
	presentQueue  gpu.Queue
	allocator     *memory.Allocator

	setLayout   gpu.DescriptorSetLayout
	texture     *memory.Image
	textureView gpu.ImageView
	sampler     gpu.Sampler
	vertices    *memory.Buffer
	indices     *memory.Buffer
	indexCount  int
	indexType   core1_0.IndexType

	commandPool gpu.CommandPool
	swapchains  *swapchain.Manager
	frames      *frame.Synchronizer

	// teardown releases everything above in reverse creation order.
	teardown gpu.Cleanup

	pendingRecreate bool
	resized         bool
	suspended       bool
	closed          bool
	stats           Stats
}

// New selects a device for surface, uploads assets and builds the first
// swapchain generation. If the window starts minimized the context starts
// suspended. On error nothing created so far is left alive.
func New(instance gpu.Instance, surface gpu.Surface, window Window, assets Assets, opts ...Option) (*Context, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.framesInFlight < 1 {
		return nil, errors.Newf("frames in flight must be at least 1, got %d", o.framesInFlight)
	}
	if len(assets.Shaders.Vertex) == 0 || len(assets.Shaders.Fragment) == 0 {
		return nil, errors.New("vertex and fragment shaders are required")
	}
	if assets.Mesh == nil {
		assets.Mesh = scene.DefaultQuads()
	}
	if err := assets.Mesh.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid mesh")
	}
	if assets.Texture == nil {
		assets.Texture = scene.Checkerboard(256, 8)
	}

	id := uuid.New()
	c := &Context{
		id:     id,
		logger: logging.Or(o.logger).With(slog.String("context", id.String())),
		opts:   o,
		window: window,
	}

	var cleanup gpu.Cleanup
	defer cleanup.Release()

	if err := c.openDevice(instance, surface, &cleanup); err != nil {
		return nil, err
	}
	if err := c.createDescriptorSetLayout(&cleanup); err != nil {
		return nil, err
	}
	if err := c.createTexture(assets.Texture, &cleanup); err != nil {
		return nil, err
	}
	if err := c.createGeometry(assets.Mesh, &cleanup); err != nil {
		return nil, err
	}
	if err := c.createSwapchain(surface, assets.Shaders, &cleanup); err != nil {
		return nil, err
	}

	images := 0
	if gen := c.swapchains.Current(); gen != nil {
		images = gen.ImageCount()
	}
	frames, err := frame.New(c.device, o.framesInFlight, images, o.fenceTimeout, c.logger)
	if err != nil {
		return nil, err
	}
	c.frames = frames
	cleanup.Push(frames.Destroy)

	c.teardown, cleanup = cleanup, gpu.Cleanup{}
	c.logger.Info("render context created",
		slog.String("device", c.choice.Properties.Name),
		slog.Int("framesInFlight", o.framesInFlight),
		slog.Bool("suspended", c.suspended))
	return c, nil
}

func (c *Context) openDevice(instance gpu.Instance, surface gpu.Surface, cleanup *gpu.Cleanup) error {
	selector := device.NewSelector(c.logger)
	selector.PreferDiscrete = c.opts.preferDiscrete

	choice, err := selector.Select(instance, surface)
	if err != nil {
		return err
	}
	c.choice = choice

	c.device, err = device.Open(choice)
	if err != nil {
		return err
	}
	cleanup.Push(c.device.Destroy)

	c.graphicsQueue = c.device.Queue(choice.GraphicsFamily)
	c.presentQueue = c.device.Queue(choice.PresentFamily)

	c.allocator, err = memory.NewAllocator(c.device, choice.PhysicalDevice, c.graphicsQueue, c.logger)
	if err != nil {
		return err
	}
	cleanup.Push(c.allocator.Destroy)
	return nil
}

func (c *Context) createDescriptorSetLayout(cleanup *gpu.Cleanup) error {
	var err error
	c.setLayout, err = c.device.CreateDescriptorSetLayout(
		core1_0.DescriptorSetLayoutBinding{
			Binding:         0,
			DescriptorType:  core1_0.DescriptorTypeUniformBuffer,
			DescriptorCount: 1,

			StageFlags: core1_0.StageVertex,
		},
		core1_0.DescriptorSetLayoutBinding{
			Binding:         1,
			DescriptorType:  core1_0.DescriptorTypeCombinedImageSampler,
			DescriptorCount: 1,

			StageFlags: core1_0.StageFragment,
		},
	)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "create descriptor set layout"), gpu.ErrResourceAllocation)
	}
	cleanup.Push(c.setLayout.Destroy)
	return nil
}

func (c *Context) createTexture(tex *scene.Texture, cleanup *gpu.Cleanup) error {
	var err error
	c.texture, err = c.allocator.UploadTexture(tex.Width, tex.Height, tex.Pixels, TextureFormat)
	if err != nil {
		return errors.Wrap(err, "upload texture")
	}
	cleanup.Push(c.texture.Destroy)

	c.textureView, err = c.device.CreateImageView(gpu.ImageViewInfo{
		Image:     c.texture.Handle,
		Format:    TextureFormat,
		Aspect:    core1_0.ImageAspectColor,
		MipLevels: c.texture.MipLevels,
	})
	if err != nil {
		return errors.Mark(errors.Wrap(err, "create texture image view"), gpu.ErrResourceAllocation)
	}
	cleanup.Push(c.textureView.Destroy)

	info := gpu.SamplerInfo{MaxLod: float32(c.texture.MipLevels)}
	if c.choice.Features.SamplerAnisotropy {
		info.Anisotropy = c.choice.Properties.MaxSamplerAnisotropy
	}
	c.sampler, err = c.device.CreateSampler(info)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "create texture sampler"), gpu.ErrResourceAllocation)
	}
	cleanup.Push(c.sampler.Destroy)
	return nil
}

func (c *Context) createGeometry(mesh *scene.Mesh, cleanup *gpu.Cleanup) error {
	vertexData, err := mesh.VertexData()
	if err != nil {
		return err
	}
	c.vertices, err = c.allocator.UploadViaStaging(vertexData, core1_0.BufferUsageVertexBuffer, core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		return errors.Wrap(err, "upload vertex buffer")
	}
	cleanup.Push(c.vertices.Destroy)

	indexData, err := mesh.IndexData()
	if err != nil {
		return err
	}
	c.indices, err = c.allocator.UploadViaStaging(indexData, core1_0.BufferUsageIndexBuffer, core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		return errors.Wrap(err, "upload index buffer")
	}
	cleanup.Push(c.indices.Destroy)

	c.indexCount = len(mesh.Indices)
	c.indexType = mesh.IndexType()
	c.logger.Debug("Context::createGeometry",
		slog.Int("vertices", len(mesh.Vertices)),
		slog.Int("indices", c.indexCount))
	return nil
}

func (c *Context) createSwapchain(surface gpu.Surface, shaders pipeline.ShaderStages, cleanup *gpu.Cleanup) error {
	var err error
	c.commandPool, err = c.device.CreateCommandPool(c.choice.GraphicsFamily, false)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "create command pool"), gpu.ErrResourceAllocation)
	}
	cleanup.Push(c.commandPool.Destroy)

	c.swapchains = &swapchain.Manager{
		Device:    c.device,
		Physical:  c.choice.PhysicalDevice,
		Surface:   surface,
		Allocator: c.allocator,
		Builder: &pipeline.Builder{
			Device:  c.device,
			Shaders: shaders,
			Vertex: pipeline.VertexLayout{
				Bindings:   scene.VertexBindings(),
				Attributes: scene.VertexAttributes(),
			},
			SetLayouts: []gpu.DescriptorSetLayout{c.setLayout},
			Logger:     c.logger,
		},
		CommandPool:   c.commandPool,
		QueueFamilies: c.choice.UniqueFamilies(),
		SetLayout:     c.setLayout,
		UniformSize:   transform.Size,
		Resources:     c,
		Logger:        c.logger,
	}

	width, height := c.window.DrawableSize()
	_, err = c.swapchains.Create(width, height)
	if errors.Is(err, swapchain.ErrZeroExtent) {
		c.logger.Warn("window has no area, starting suspended", slog.Int("width", width), slog.Int("height", height))
		c.suspended = true
		c.pendingRecreate = true
		err = nil
	}
	if err != nil {
		return err
	}
	cleanup.Push(c.swapchains.Destroy)
	return nil
}

// Render draws one frame with model as the model transform. While the window
// has no area it returns immediately without touching the GPU. A stale
// swapchain is rebuilt before Render returns; the frame it affected is not
// retried. Every returned error is fatal.
func (c *Context) Render(model mgl32.Mat4) error {
	if c.closed {
		return ErrShutdown
	}

	width, height := c.window.DrawableSize()
	if width <= 0 || height <= 0 {
		c.suspend(width, height)
		return nil
	}

	if c.pendingRecreate || c.swapchains.Current() == nil {
		if err := c.recreate(width, height); err != nil {
			return err
		}
		if c.suspended {
			return nil
		}
	}

	gen := c.swapchains.Current()
	start := hrtime.Now()
	out, err := c.frames.Frame(frame.Target{
		Swapchain:      gen.Swapchain,
		CommandBuffers: gen.CommandBuffers,
		GraphicsQueue:  c.graphicsQueue,
		PresentQueue:   c.presentQueue,
		Update: func(image int) error {
			return gen.Uniforms[image].Write(0, c.opts.camera.Uniforms(model, gen.Extent))
		},
	})
	c.stats.Frames++
	c.stats.Last = out
	c.stats.LastFrame = hrtime.Since(start)
	if err != nil {
		return errors.Wrapf(err, "frame %d", c.stats.Frames)
	}
	if out.Presented {
		c.stats.Presents++
	}

	switch {
	case out.Recreate:
		c.logger.Warn("swapchain is stale, recreating",
			slog.Any("acquire", out.AcquireStatus),
			slog.Any("present", out.PresentStatus),
			slog.Bool("resized", c.resized))
		return c.recreate(width, height)
	case c.resized:
		c.logger.Info("window resized, recreating swapchain",
			slog.Int("width", width),
			slog.Int("height", height))
		return c.recreate(width, height)
	}
	return nil
}

func (c *Context) suspend(width, height int) {
	if !c.suspended {
		c.logger.Warn("window has no area, suspending rendering", slog.Int("width", width), slog.Int("height", height))
	}
	c.suspended = true
	c.pendingRecreate = true
	c.stats.Skipped++
}

func (c *Context) recreate(width, height int) error {
	gen, err := c.swapchains.Recreate(width, height)
	if errors.Is(err, swapchain.ErrZeroExtent) {
		c.suspend(width, height)
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "recreate swapchain")
	}

	c.frames.ResizeImages(gen.ImageCount())
	c.pendingRecreate = false
	c.resized = false
	if gen.ID > 1 {
		c.stats.Recreations++
	}
	if c.suspended {
		c.suspended = false
		c.logger.Info("rendering resumed", slog.Int("width", gen.Extent.Width), slog.Int("height", gen.Extent.Height))
	}
	return nil
}

// HandleResize tells the context the window changed size. The swapchain is
// rebuilt after the next presented frame.
func (c *Context) HandleResize() {
	c.resized = true
}

// Shutdown waits for the device to go idle and releases everything the
// context owns, the device last. It is safe to call more than once.
func (c *Context) Shutdown() error {
	if c.closed {
		return nil
	}
	c.closed = true

	err := c.device.WaitIdle()
	if err != nil {
		c.logger.Error("wait for device idle before shutdown", slog.Any("error", err))
	}
	c.teardown.Release()

	c.logger.Info("render context shut down",
		slog.Int("frames", c.stats.Frames),
		slog.Int("presents", c.stats.Presents),
		slog.Int("recreations", c.stats.Recreations),
		slog.Int("skipped", c.stats.Skipped))
	return errors.Wrap(err, "wait for device idle")
}

func (c *Context) Stats() Stats {
	return c.stats
}

func (c *Context) Suspended() bool {
	return c.suspended
}

// Generation returns the live swapchain generation, or nil while suspended
// before the first one was built.
func (c *Context) Generation() *swapchain.Generation {
	return c.swapchains.Current()
}

// Choice is the physical device the context runs on.
func (c *Context) Choice() *device.Choice {
	return c.choice
}
