// Package swapchain creates the presentable image chain and everything
// derived from it, and replaces all of it at once when the surface changes.
package swapchain

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/minirender/internal/gpu"
	"github.com/vkngwrapper/minirender/internal/logging"
	"github.com/vkngwrapper/minirender/internal/memory"
	"github.com/vkngwrapper/minirender/internal/pipeline"
)

// Resources supplies the parts of a generation that depend on what is being
// drawn.
type Resources interface {
	// PoolSizes returns the descriptor counts needed for images sets.
	PoolSizes(images int) []core1_0.DescriptorPoolSize
	// WriteDescriptors points set at uniform and at any long-lived
	// resources such as textures.
	WriteDescriptors(set gpu.DescriptorSet, uniform *memory.Buffer) error
	// RecordCommands records the draw for swapchain image index into cmd,
	// which is already recording.
	RecordCommands(cmd gpu.CommandBuffer, gen *Generation, index int) error
}

type Manager struct {
	Device    gpu.Device
	Physical  gpu.PhysicalDevice
	Surface   gpu.Surface
	Allocator *memory.Allocator
	Builder   *pipeline.Builder
	// CommandPool must allow individual command buffers to be freed.
	CommandPool   gpu.CommandPool
	QueueFamilies []int
	SetLayout     gpu.DescriptorSetLayout
	UniformSize   int
	Resources     Resources
	Logger        *slog.Logger

	current     *Generation
	generations int
}

// Current returns the live generation, or nil before Create and after
// Destroy.
func (m *Manager) Current() *Generation {
	return m.current
}

func (m *Manager) logger() *slog.Logger {
	return logging.Or(m.Logger)
}

type plan struct {
	capabilities *khr_surface.SurfaceCapabilities
	format       khr_surface.SurfaceFormat
	presentMode  khr_surface.PresentMode
	extent       core1_0.Extent2D
	imageCount   int
}

func (m *Manager) plan(width, height int) (plan, error) {
	capabilities, err := m.Surface.Capabilities(m.Physical)
	if err != nil {
		return plan{}, errors.Mark(errors.Wrap(err, "query surface capabilities"), gpu.ErrSwapchain)
	}

	extent := ChooseExtent(capabilities, width, height)
	if zero(extent) || (!FixedExtent(capabilities) && (width <= 0 || height <= 0)) {
		return plan{}, errors.Mark(errors.Wrapf(ErrZeroExtent, "window %dx%d, extent %dx%d", width, height, extent.Width, extent.Height), gpu.ErrPresentationStale)
	}

	formats, err := m.Surface.Formats(m.Physical)
	if err != nil {
		return plan{}, errors.Mark(errors.Wrap(err, "query surface formats"), gpu.ErrSwapchain)
	}
	format, err := ChooseSurfaceFormat(formats)
	if err != nil {
		return plan{}, err
	}

	modes, err := m.Surface.PresentModes(m.Physical)
	if err != nil {
		return plan{}, errors.Mark(errors.Wrap(err, "query present modes"), gpu.ErrSwapchain)
	}

	return plan{
		capabilities: capabilities,
		format:       format,
		presentMode:  ChoosePresentMode(modes),
		extent:       extent,
		imageCount:   ImageCount(capabilities),
	}, nil
}

// Create builds the first generation for a window of width x height pixels.
// It returns ErrZeroExtent without creating anything while the surface has
// no area.
func (m *Manager) Create(width, height int) (*Generation, error) {
	if m.current != nil {
		return nil, errors.Mark(errors.New("swapchain generation already exists"), gpu.ErrSwapchain)
	}

	p, err := m.plan(width, height)
	if err != nil {
		return nil, err
	}
	return m.build(p)
}

// Recreate waits for the device to go idle, destroys the current generation
// and builds a new one. With a zero extent it returns ErrZeroExtent and
// leaves the current generation alone.
func (m *Manager) Recreate(width, height int) (*Generation, error) {
	p, err := m.plan(width, height)
	if err != nil {
		return nil, err
	}

	if err := m.Device.WaitIdle(); err != nil {
		return nil, errors.Wrap(err, "wait for device idle")
	}

	m.current.Destroy()
	m.current = nil

	return m.build(p)
}

// Destroy releases the current generation. The device must be idle.
func (m *Manager) Destroy() {
	m.current.Destroy()
	m.current = nil
}

func (m *Manager) build(p plan) (*Generation, error) {
	m.generations++
	gen := &Generation{
		ID:          m.generations,
		Extent:      p.extent,
		Format:      p.format,
		PresentMode: p.presentMode,
		commandPool: m.CommandPool,
		logger:      m.logger().With(slog.Int("generation", m.generations)),
	}

	if err := m.populate(gen, p); err != nil {
		gen.Destroy()
		if !errors.Is(err, gpu.ErrResourceAllocation) {
			err = errors.Mark(err, gpu.ErrSwapchain)
		}
		return nil, errors.Wrapf(err, "create swapchain generation %d", gen.ID)
	}

	m.current = gen
	gen.logger.Info("swapchain generation created",
		slog.Int("width", gen.Extent.Width),
		slog.Int("height", gen.Extent.Height),
		slog.Int("images", gen.ImageCount()),
		slog.Any("format", gen.Format.Format),
		slog.Any("presentMode", gen.PresentMode))
	return gen, nil
}

func (m *Manager) populate(gen *Generation, p plan) error {
	swapchain, err := m.Device.CreateSwapchain(gpu.SwapchainInfo{
		Surface:       m.Surface,
		Capabilities:  p.capabilities,
		MinImageCount: p.imageCount,
		Format:        p.format,
		Extent:        p.extent,
		PresentMode:   p.presentMode,
		QueueFamilies: m.QueueFamilies,
	})
	if err != nil {
		return errors.Wrap(err, "create swapchain")
	}
	gen.Swapchain = swapchain

	gen.Images, err = swapchain.Images()
	if err != nil {
		return errors.Wrap(err, "get swapchain images")
	}
	for _, image := range gen.Images {
		view, err := m.Device.CreateImageView(gpu.ImageViewInfo{
			Image:     image,
			Format:    p.format.Format,
			Aspect:    core1_0.ImageAspectColor,
			MipLevels: 1,
		})
		if err != nil {
			return errors.Wrap(err, "create swapchain image view")
		}
		gen.Views = append(gen.Views, view)
	}

	gen.DepthFormat, err = pipeline.FindDepthFormat(m.Physical)
	if err != nil {
		return err
	}

	gen.Pipeline, err = m.Builder.Build(pipeline.Target{
		ColorFormat: p.format.Format,
		DepthFormat: gen.DepthFormat,
		Extent:      p.extent,
	})
	if err != nil {
		return err
	}

	if err := m.createDepthResources(gen); err != nil {
		return err
	}

	for _, view := range gen.Views {
		framebuffer, err := m.Device.CreateFramebuffer(gen.Pipeline.RenderPass, gen.Extent, view, gen.DepthView)
		if err != nil {
			return errors.Wrap(err, "create framebuffer")
		}
		gen.Framebuffers = append(gen.Framebuffers, framebuffer)
	}

	for range gen.Images {
		uniform, err := m.Allocator.CreateBuffer(m.UniformSize, core1_0.BufferUsageUniformBuffer, memory.HostVisible)
		if err != nil {
			return errors.Wrap(err, "create uniform buffer")
		}
		gen.Uniforms = append(gen.Uniforms, uniform)
	}

	if err := m.createDescriptorSets(gen); err != nil {
		return err
	}

	return m.recordCommandBuffers(gen)
}

func (m *Manager) createDepthResources(gen *Generation) error {
	var err error
	gen.Depth, err = m.Allocator.CreateImage(gpu.ImageInfo{
		Width:     gen.Extent.Width,
		Height:    gen.Extent.Height,
		MipLevels: 1,
		Format:    gen.DepthFormat,
		Tiling:    core1_0.ImageTilingOptimal,
		Usage:     core1_0.ImageUsageDepthStencilAttachment,
		Samples:   core1_0.Samples1,
	}, core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		return errors.Wrap(err, "create depth image")
	}

	gen.DepthView, err = m.Device.CreateImageView(gpu.ImageViewInfo{
		Image:     gen.Depth.Handle,
		Format:    gen.DepthFormat,
		Aspect:    core1_0.ImageAspectDepth,
		MipLevels: 1,
	})
	return errors.Wrap(err, "create depth image view")
}

func (m *Manager) createDescriptorSets(gen *Generation) error {
	count := gen.ImageCount()

	pool, err := m.Device.CreateDescriptorPool(count, m.Resources.PoolSizes(count)...)
	if err != nil {
		return errors.Wrap(err, "create descriptor pool")
	}
	gen.DescriptorPool = pool

	layouts := make([]gpu.DescriptorSetLayout, count)
	for i := range layouts {
		layouts[i] = m.SetLayout
	}
	gen.DescriptorSets, err = pool.Allocate(layouts...)
	if err != nil {
		return errors.Wrap(err, "allocate descriptor sets")
	}

	for i, set := range gen.DescriptorSets {
		if err := m.Resources.WriteDescriptors(set, gen.Uniforms[i]); err != nil {
			return errors.Wrapf(err, "write descriptor set %d", i)
		}
	}
	return nil
}

func (m *Manager) recordCommandBuffers(gen *Generation) error {
	buffers, err := m.CommandPool.Allocate(gen.ImageCount())
	if err != nil {
		return errors.Wrap(err, "allocate command buffers")
	}
	gen.CommandBuffers = buffers

	for i, cmd := range buffers {
		if err := cmd.Begin(0); err != nil {
			return errors.Wrapf(err, "begin command buffer %d", i)
		}
		if err := m.Resources.RecordCommands(cmd, gen, i); err != nil {
			return errors.Wrapf(err, "record command buffer %d", i)
		}
		if err := cmd.End(); err != nil {
			return errors.Wrapf(err, "end command buffer %d", i)
		}
	}
	return nil
}
