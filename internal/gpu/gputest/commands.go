package gputest

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/minirender/internal/gpu"
)

type CommandBuffer struct {
	pool      *CommandPool
	ID        int
	freed     bool
	recording bool

	// Ops names every recorded command in order.
	Ops       []string
	Draws     []int
	Pipeline  gpu.Pipeline
	Vertex    gpu.Buffer
	Index     gpu.Buffer
	IndexType core1_0.IndexType
	Set       gpu.DescriptorSet
	Target    gpu.Framebuffer
	Executed  int

	pending []func()
}

func (c *CommandBuffer) dev() *Device {
	return c.pool.dev
}

func (c *CommandBuffer) Begin(flags core1_0.CommandBufferUsageFlags) error {
	if c.freed {
		return errors.Newf("gputest: begin on freed command buffer %d", c.ID)
	}
	c.recording = true
	c.Ops = nil
	c.Draws = nil
	c.pending = nil
	return nil
}

func (c *CommandBuffer) End() error {
	if !c.recording {
		return errors.Newf("gputest: end without begin on command buffer %d", c.ID)
	}
	c.recording = false
	return nil
}

func (c *CommandBuffer) record(op string, run func()) {
	if !c.recording {
		c.dev().violate("%s recorded outside Begin/End on command buffer %d", op, c.ID)
	}
	c.Ops = append(c.Ops, op)
	if run != nil {
		c.pending = append(c.pending, run)
	}
}

func (c *CommandBuffer) execute() {
	c.Executed++
	for _, run := range c.pending {
		run()
	}
}

func (c *CommandBuffer) CopyBuffer(src, dst gpu.Buffer, size int) error {
	s, d := src.(*Buffer), dst.(*Buffer)
	if size > s.Size || size > d.Size {
		return errors.Newf("gputest: copy of %d bytes exceeds buffers (%d -> %d)", size, s.Size, d.Size)
	}
	c.record("copy-buffer", func() {
		if s.destroyed || d.destroyed {
			c.dev().violate("copy executed against a destroyed buffer")
			return
		}
		copy(d.Bytes()[:size], s.Bytes()[:size])
	})
	return nil
}

func (c *CommandBuffer) CopyBufferToImage(src gpu.Buffer, dst gpu.Image, width, height int) error {
	s, img := src.(*Buffer), dst.(*Image)
	c.record("copy-buffer-to-image", func() {
		if img.Memory == nil {
			c.dev().violate("copy into image %d without memory", img.ID)
			return
		}
		copy(img.Memory.Data, s.Bytes()[:min(width*height*4, s.Size)])
	})
	return nil
}

func (c *CommandBuffer) ImageBarrier(barrier gpu.ImageBarrier) error {
	img := barrier.Image.(*Image)
	c.record("barrier", func() {
		img.Layouts = append(img.Layouts, barrier.NewLayout)
	})
	return nil
}

func (c *CommandBuffer) BlitMipLevel(image gpu.Image, level int, src, dst core1_0.Extent2D) error {
	img := image.(*Image)
	c.record("blit", func() { img.Blits++ })
	return nil
}

func (c *CommandBuffer) BeginRenderPass(renderPass gpu.RenderPass, framebuffer gpu.Framebuffer, area core1_0.Extent2D, clear ...core1_0.ClearValue) error {
	c.Target = framebuffer
	c.record("begin-render-pass", nil)
	return nil
}

func (c *CommandBuffer) BindPipeline(pipeline gpu.Pipeline) {
	c.Pipeline = pipeline
	c.record("bind-pipeline", nil)
}

func (c *CommandBuffer) BindVertexBuffer(buffer gpu.Buffer) {
	c.Vertex = buffer
	c.record("bind-vertex-buffer", nil)
}

func (c *CommandBuffer) BindIndexBuffer(buffer gpu.Buffer, indexType core1_0.IndexType) {
	c.Index = buffer
	c.IndexType = indexType
	c.record("bind-index-buffer", nil)
}

func (c *CommandBuffer) BindDescriptorSet(layout gpu.PipelineLayout, set gpu.DescriptorSet) {
	c.Set = set
	c.record("bind-descriptor-set", nil)
}

func (c *CommandBuffer) DrawIndexed(indexCount int) {
	c.Draws = append(c.Draws, indexCount)
	c.record("draw-indexed", nil)
}

func (c *CommandBuffer) EndRenderPass() {
	c.record("end-render-pass", nil)
}

type Swapchain struct {
	object
	Info      gpu.SwapchainInfo
	images    []*Image
	next      int
	Acquired  []int
	Presented []int
}

func (s *Swapchain) Images() ([]gpu.Image, error) {
	out := make([]gpu.Image, 0, len(s.images))
	for _, img := range s.images {
		out = append(out, img)
	}
	return out, nil
}

// AcquireNextImage hands out images round robin unless a result was scripted
// for this call.
func (s *Swapchain) AcquireNextImage(timeout time.Duration, signal gpu.Semaphore) (int, gpu.Status, error) {
	s.dev.call("acquire")
	if s.destroyed {
		s.dev.violate("acquire from destroyed swapchain %d", s.ID)
	}
	res := s.dev.nextAcquire()
	if res.Err != nil || res.Status == gpu.StatusOutOfDate {
		return -1, res.Status, res.Err
	}
	index := s.next
	s.next = (s.next + 1) % len(s.images)
	s.Acquired = append(s.Acquired, index)
	return index, res.Status, nil
}

func (s *Swapchain) Destroy() {
	s.object.Destroy()
}

func (s *Swapchain) ImageCount() int {
	return len(s.images)
}
