package gputest

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/minirender/internal/gpu"
)

// Result is a scripted acquire or present outcome.
type Result struct {
	Status gpu.Status
	Err    error
}

var (
	OutOfDate  = Result{Status: gpu.StatusOutOfDate}
	Suboptimal = Result{Status: gpu.StatusSuboptimal}
)

type Device struct {
	physical *PhysicalDevice

	// Calls is an ordered log of the operations performed against the device.
	Calls []string
	// Violations lists every misuse the fake detected: resetting or
	// resubmitting an in-flight fence, double destruction, mapping
	// non-host-visible memory, destroying the device with live objects.
	Violations []string
	// FenceEvents records every fence state transition.
	FenceEvents []FenceEvent

	// MemoryTypeBits is reported by every buffer and image.
	MemoryTypeBits uint32
	// SwapchainImages overrides the number of images a swapchain gets.
	// Zero grants exactly MinImageCount.
	SwapchainImages int
	// HangFences makes waits on in-flight fences time out.
	HangFences bool

	AcquireResults map[int]Result
	PresentResults map[int]Result

	Swapchains   []*Swapchain
	Submissions  []Submission
	Pipelines    []*Pipeline
	RenderPasses []*RenderPass

	queues    map[int]*Queue
	fences    []*Fence
	live      map[string]int
	failures  map[string]error
	destroyed bool
	nextID    int

	acquireCalls int
	presentCalls int
}

type Submission struct {
	Queue          int
	Fence          *Fence
	CommandBuffers []*CommandBuffer
	Wait           []gpu.Semaphore
	WaitStages     []core1_0.PipelineStageFlags
	Signal         []gpu.Semaphore
}

func NewDevice(physical *PhysicalDevice) *Device {
	return &Device{
		physical:       physical,
		MemoryTypeBits: 0xFFFFFFFF,
		AcquireResults: map[int]Result{},
		PresentResults: map[int]Result{},
		queues:         map[int]*Queue{},
		live:           map[string]int{},
		failures:       map[string]error{},
	}
}

func (d *Device) call(format string, args ...interface{}) {
	d.Calls = append(d.Calls, fmt.Sprintf(format, args...))
}

func (d *Device) violate(format string, args ...interface{}) {
	d.Violations = append(d.Violations, fmt.Sprintf(format, args...))
}

// Count returns how many logged calls start with prefix.
func (d *Device) Count(prefix string) int {
	return d.CountSince(0, prefix)
}

// CountSince is Count restricted to the calls logged after the first mark
// calls.
func (d *Device) CountSince(mark int, prefix string) int {
	n := 0
	for _, c := range d.Calls[mark:] {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// CallsSince returns the calls logged after the first mark calls.
func (d *Device) CallsSince(mark int) []string {
	return append([]string(nil), d.Calls[mark:]...)
}

// FailNext makes the next creation of kind fail with err.
func (d *Device) FailNext(kind string, err error) {
	d.failures[kind] = err
}

// Live returns the number of undestroyed objects per kind.
func (d *Device) Live() map[string]int {
	out := map[string]int{}
	for kind, n := range d.live {
		if n != 0 {
			out[kind] = n
		}
	}
	return out
}

func (d *Device) LiveTotal() int {
	total := 0
	for _, n := range d.live {
		total += n
	}
	return total
}

func (d *Device) Destroyed() bool {
	return d.destroyed
}

func (d *Device) Fences() []*Fence {
	return d.fences
}

func (d *Device) create(kind string) (int, error) {
	if err, ok := d.failures[kind]; ok {
		delete(d.failures, kind)
		d.call("fail:%s", kind)
		return 0, err
	}
	if d.destroyed {
		d.violate("create %s on destroyed device", kind)
	}
	d.nextID++
	d.live[kind]++
	d.call("create:%s", kind)
	return d.nextID, nil
}

func (d *Device) release(kind string) {
	d.live[kind]--
	d.call("destroy:%s", kind)
}

// object is the shared lifetime bookkeeping of every fake handle.
type object struct {
	dev       *Device
	kind      string
	ID        int
	destroyed bool
}

func (o *object) Destroy() {
	if o.destroyed {
		o.dev.violate("double destroy of %s %d", o.kind, o.ID)
		return
	}
	o.destroyed = true
	o.dev.release(o.kind)
}

func (o *object) Destroyed() bool {
	return o.destroyed
}

func (d *Device) newObject(kind string) (object, error) {
	id, err := d.create(kind)
	if err != nil {
		return object{}, err
	}
	return object{dev: d, kind: kind, ID: id}, nil
}

func (d *Device) Queue(family int) gpu.Queue {
	q, ok := d.queues[family]
	if !ok {
		q = &Queue{dev: d, family: family}
		d.queues[family] = q
	}
	return q
}

func (d *Device) WaitIdle() error {
	d.call("device-wait-idle")
	d.retireAll()
	return nil
}

func (d *Device) retireAll() {
	for _, f := range d.fences {
		if f.state == FencePending {
			f.transition(FenceSignaled)
		}
	}
}

func (d *Device) Destroy() {
	if d.destroyed {
		d.violate("double destroy of device")
		return
	}
	d.call("destroy:device")
	if live := d.Live(); len(live) > 0 {
		kinds := make([]string, 0, len(live))
		for k, n := range live {
			kinds = append(kinds, fmt.Sprintf("%s=%d", k, n))
		}
		sort.Strings(kinds)
		d.violate("device destroyed with live objects: %s", strings.Join(kinds, ","))
	}
	d.destroyed = true
}

func (d *Device) CreateFence(signaled bool) (gpu.Fence, error) {
	obj, err := d.newObject("fence")
	if err != nil {
		return nil, err
	}
	f := &Fence{object: obj, state: FenceUnsignaled}
	if signaled {
		f.state = FenceSignaled
	}
	d.fences = append(d.fences, f)
	return f, nil
}

func (d *Device) CreateSemaphore() (gpu.Semaphore, error) {
	obj, err := d.newObject("semaphore")
	if err != nil {
		return nil, err
	}
	return &Semaphore{object: obj}, nil
}

func (d *Device) CreateBuffer(size int, usage core1_0.BufferUsageFlags) (gpu.Buffer, error) {
	obj, err := d.newObject("buffer")
	if err != nil {
		return nil, err
	}
	return &Buffer{object: obj, Size: size, Usage: usage}, nil
}

func (d *Device) CreateImage(info gpu.ImageInfo) (gpu.Image, error) {
	obj, err := d.newObject("image")
	if err != nil {
		return nil, err
	}
	return &Image{object: obj, Info: info}, nil
}

func (d *Device) AllocateMemory(size int, memoryTypeIndex int) (gpu.DeviceMemory, error) {
	if memoryTypeIndex < 0 || memoryTypeIndex >= len(d.physical.Memory.MemoryTypes) {
		return nil, errors.Newf("gputest: memory type %d out of range", memoryTypeIndex)
	}
	obj, err := d.newObject("memory")
	if err != nil {
		return nil, err
	}
	return &Memory{
		object:    obj,
		TypeIndex: memoryTypeIndex,
		Flags:     d.physical.Memory.MemoryTypes[memoryTypeIndex].PropertyFlags,
		Data:      make([]byte, size),
	}, nil
}

func (d *Device) CreateImageView(info gpu.ImageViewInfo) (gpu.ImageView, error) {
	obj, err := d.newObject("image-view")
	if err != nil {
		return nil, err
	}
	return &ImageView{object: obj, Info: info}, nil
}

func (d *Device) CreateSampler(info gpu.SamplerInfo) (gpu.Sampler, error) {
	obj, err := d.newObject("sampler")
	if err != nil {
		return nil, err
	}
	return &Sampler{object: obj, Info: info}, nil
}

func (d *Device) CreateCommandPool(queueFamily int, transient bool) (gpu.CommandPool, error) {
	obj, err := d.newObject("command-pool")
	if err != nil {
		return nil, err
	}
	return &CommandPool{object: obj, Family: queueFamily, Transient: transient}, nil
}

func (d *Device) CreateShaderModule(code []byte) (gpu.ShaderModule, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return nil, errors.Newf("gputest: shader code length %d is not a multiple of 4", len(code))
	}
	obj, err := d.newObject("shader-module")
	if err != nil {
		return nil, err
	}
	return &ShaderModule{object: obj, Code: code}, nil
}

func (d *Device) CreateRenderPass(desc gpu.RenderPassDescription) (gpu.RenderPass, error) {
	obj, err := d.newObject("render-pass")
	if err != nil {
		return nil, err
	}
	rp := &RenderPass{object: obj, Desc: desc}
	d.RenderPasses = append(d.RenderPasses, rp)
	return rp, nil
}

func (d *Device) CreateDescriptorSetLayout(bindings ...core1_0.DescriptorSetLayoutBinding) (gpu.DescriptorSetLayout, error) {
	obj, err := d.newObject("descriptor-set-layout")
	if err != nil {
		return nil, err
	}
	return &DescriptorSetLayout{object: obj, Bindings: bindings}, nil
}

func (d *Device) CreatePipelineLayout(setLayouts ...gpu.DescriptorSetLayout) (gpu.PipelineLayout, error) {
	obj, err := d.newObject("pipeline-layout")
	if err != nil {
		return nil, err
	}
	return &PipelineLayout{object: obj, SetLayouts: setLayouts}, nil
}

func (d *Device) CreateGraphicsPipeline(desc gpu.PipelineDescription) (gpu.Pipeline, error) {
	for _, stage := range desc.Stages {
		if m, ok := stage.Module.(*ShaderModule); !ok || m.destroyed {
			d.violate("pipeline created with a destroyed shader module")
		}
	}
	obj, err := d.newObject("pipeline")
	if err != nil {
		return nil, err
	}
	p := &Pipeline{object: obj, Desc: desc}
	d.Pipelines = append(d.Pipelines, p)
	return p, nil
}

func (d *Device) CreateFramebuffer(renderPass gpu.RenderPass, extent core1_0.Extent2D, attachments ...gpu.ImageView) (gpu.Framebuffer, error) {
	obj, err := d.newObject("framebuffer")
	if err != nil {
		return nil, err
	}
	return &Framebuffer{object: obj, RenderPass: renderPass, Extent: extent, Attachments: attachments}, nil
}

func (d *Device) CreateDescriptorPool(maxSets int, sizes ...core1_0.DescriptorPoolSize) (gpu.DescriptorPool, error) {
	obj, err := d.newObject("descriptor-pool")
	if err != nil {
		return nil, err
	}
	return &DescriptorPool{object: obj, MaxSets: maxSets, Sizes: sizes}, nil
}

func (d *Device) CreateSwapchain(info gpu.SwapchainInfo) (gpu.Swapchain, error) {
	obj, err := d.newObject("swapchain")
	if err != nil {
		return nil, err
	}
	count := info.MinImageCount
	if d.SwapchainImages > 0 {
		count = d.SwapchainImages
	}
	sc := &Swapchain{object: obj, Info: info}
	for i := 0; i < count; i++ {
		d.nextID++
		sc.images = append(sc.images, &Image{
			object:    object{dev: d, kind: "swapchain-image", ID: d.nextID},
			Info:      gpu.ImageInfo{Width: info.Extent.Width, Height: info.Extent.Height, MipLevels: 1, Format: info.Format.Format},
			Swapchain: sc,
		})
	}
	d.Swapchains = append(d.Swapchains, sc)
	return sc, nil
}

func (d *Device) nextAcquire() Result {
	d.acquireCalls++
	return d.AcquireResults[d.acquireCalls]
}

func (d *Device) nextPresent() Result {
	d.presentCalls++
	return d.PresentResults[d.presentCalls]
}

type Queue struct {
	dev    *Device
	family int
}

func (q *Queue) Family() int {
	return q.family
}

func (q *Queue) Submit(info gpu.SubmitInfo, signal gpu.Fence) error {
	q.dev.call("submit")
	sub := Submission{Queue: q.family, Wait: info.WaitSemaphores, WaitStages: info.WaitStages, Signal: info.SignalSemaphores}
	for _, cb := range info.CommandBuffers {
		buffer := cb.(*CommandBuffer)
		if buffer.recording {
			q.dev.violate("submitted command buffer %d while recording", buffer.ID)
		}
		sub.CommandBuffers = append(sub.CommandBuffers, buffer)
		buffer.execute()
	}
	if signal != nil {
		f := signal.(*Fence)
		if f.state != FenceUnsignaled {
			q.dev.violate("submit with fence %d in state %s", f.ID, f.state)
		}
		f.Submissions++
		f.transition(FencePending)
		sub.Fence = f
	}
	q.dev.Submissions = append(q.dev.Submissions, sub)
	return nil
}

func (q *Queue) Present(swapchain gpu.Swapchain, imageIndex int, wait ...gpu.Semaphore) (gpu.Status, error) {
	q.dev.call("present:%d", imageIndex)
	sc := swapchain.(*Swapchain)
	if sc.destroyed {
		q.dev.violate("present to destroyed swapchain %d", sc.ID)
	}
	res := q.dev.nextPresent()
	if res.Err == nil && res.Status != gpu.StatusOutOfDate {
		sc.Presented = append(sc.Presented, imageIndex)
	}
	return res.Status, res.Err
}

func (q *Queue) WaitIdle() error {
	q.dev.call("queue-wait-idle")
	q.dev.retireAll()
	return nil
}

type FenceState int

const (
	FenceUnsignaled FenceState = iota
	FencePending
	FenceSignaled
)

func (s FenceState) String() string {
	switch s {
	case FenceUnsignaled:
		return "unsignaled"
	case FencePending:
		return "pending"
	case FenceSignaled:
		return "signaled"
	}
	return "unknown"
}

type FenceEvent struct {
	Fence    int
	From, To FenceState
}

type Fence struct {
	object
	state       FenceState
	Submissions int
	Waits       int
}

func (f *Fence) State() FenceState {
	return f.state
}

func (f *Fence) transition(to FenceState) {
	f.dev.FenceEvents = append(f.dev.FenceEvents, FenceEvent{Fence: f.ID, From: f.state, To: to})
	f.state = to
}

func (f *Fence) Wait(timeout time.Duration) error {
	f.dev.call("fence-wait:%d", f.ID)
	f.Waits++
	if f.destroyed {
		f.dev.violate("wait on destroyed fence %d", f.ID)
	}
	switch f.state {
	case FenceUnsignaled:
		// Nothing will ever signal it; a real device would block for timeout.
		f.dev.violate("wait on fence %d that was never submitted", f.ID)
		return errors.Wrapf(gpu.ErrSynchronizationTimeout, "fence %d after %s", f.ID, timeout)
	case FencePending:
		if f.dev.HangFences {
			return errors.Wrapf(gpu.ErrSynchronizationTimeout, "fence %d after %s", f.ID, timeout)
		}
		f.transition(FenceSignaled)
	}
	return nil
}

func (f *Fence) Reset() error {
	f.dev.call("fence-reset:%d", f.ID)
	if f.state == FencePending {
		f.dev.violate("reset of in-flight fence %d", f.ID)
	}
	f.transition(FenceUnsignaled)
	return nil
}

func (f *Fence) Destroy() {
	if f.state == FencePending && !f.destroyed {
		f.dev.violate("destroy of in-flight fence %d", f.ID)
	}
	f.object.Destroy()
}

type Semaphore struct{ object }

type Memory struct {
	object
	TypeIndex int
	Flags     core1_0.MemoryPropertyFlags
	Data      []byte
	mapped    bool
}

func (m *Memory) Map(offset, size int) ([]byte, error) {
	m.dev.call("map")
	if m.Flags&core1_0.MemoryPropertyHostVisible == 0 {
		m.dev.violate("map of non-host-visible memory %d", m.ID)
		return nil, errors.Newf("gputest: memory %d is not host visible", m.ID)
	}
	if m.mapped {
		m.dev.violate("memory %d mapped twice", m.ID)
	}
	if offset < 0 || offset+size > len(m.Data) {
		return nil, errors.Newf("gputest: map [%d,%d) outside allocation of %d bytes", offset, offset+size, len(m.Data))
	}
	m.mapped = true
	return m.Data[offset : offset+size], nil
}

func (m *Memory) Unmap() {
	m.mapped = false
}

func (m *Memory) Free() {
	m.Destroy()
}

type Buffer struct {
	object
	Size   int
	Usage  core1_0.BufferUsageFlags
	Memory *Memory
	Offset int
}

func (b *Buffer) MemoryRequirements() gpu.MemoryRequirements {
	return gpu.MemoryRequirements{Size: b.Size, Alignment: 4, MemoryTypeBits: b.dev.MemoryTypeBits}
}

func (b *Buffer) BindMemory(memory gpu.DeviceMemory, offset int) error {
	b.Memory = memory.(*Memory)
	b.Offset = offset
	return nil
}

// Bytes returns the buffer's contents as the GPU sees them.
func (b *Buffer) Bytes() []byte {
	if b.Memory == nil {
		return nil
	}
	return b.Memory.Data[b.Offset : b.Offset+b.Size]
}

type Image struct {
	object
	Info      gpu.ImageInfo
	Memory    *Memory
	Swapchain *Swapchain
	Layouts   []core1_0.ImageLayout
	Blits     int
}

func (i *Image) size() int {
	total := 0
	w, h := i.Info.Width, i.Info.Height
	for level := 0; level < max(i.Info.MipLevels, 1); level++ {
		total += w * h * 4
		w, h = max(w/2, 1), max(h/2, 1)
	}
	return total
}

func (i *Image) MemoryRequirements() gpu.MemoryRequirements {
	return gpu.MemoryRequirements{Size: i.size(), Alignment: 16, MemoryTypeBits: i.dev.MemoryTypeBits}
}

func (i *Image) BindMemory(memory gpu.DeviceMemory, offset int) error {
	i.Memory = memory.(*Memory)
	return nil
}

func (i *Image) Destroy() {
	if i.Swapchain != nil {
		i.dev.violate("destroy of swapchain-owned image %d", i.ID)
		return
	}
	i.object.Destroy()
}

type ImageView struct {
	object
	Info gpu.ImageViewInfo
}

type Sampler struct {
	object
	Info gpu.SamplerInfo
}

type ShaderModule struct {
	object
	Code []byte
}

type RenderPass struct {
	object
	Desc gpu.RenderPassDescription
}

type DescriptorSetLayout struct {
	object
	Bindings []core1_0.DescriptorSetLayoutBinding
}

type PipelineLayout struct {
	object
	SetLayouts []gpu.DescriptorSetLayout
}

type Pipeline struct {
	object
	Desc gpu.PipelineDescription
}

type Framebuffer struct {
	object
	RenderPass  gpu.RenderPass
	Extent      core1_0.Extent2D
	Attachments []gpu.ImageView
}

type DescriptorPool struct {
	object
	MaxSets int
	Sizes   []core1_0.DescriptorPoolSize
	Sets    []*DescriptorSet
}

func (p *DescriptorPool) Allocate(layouts ...gpu.DescriptorSetLayout) ([]gpu.DescriptorSet, error) {
	if len(p.Sets)+len(layouts) > p.MaxSets {
		return nil, errors.Newf("gputest: descriptor pool exhausted (%d sets max)", p.MaxSets)
	}
	out := make([]gpu.DescriptorSet, 0, len(layouts))
	for _, layout := range layouts {
		set := &DescriptorSet{pool: p, Layout: layout}
		p.Sets = append(p.Sets, set)
		out = append(out, set)
	}
	return out, nil
}

type DescriptorSet struct {
	pool   *DescriptorPool
	Layout gpu.DescriptorSetLayout
	Writes []gpu.DescriptorWrite
}

func (s *DescriptorSet) Write(writes ...gpu.DescriptorWrite) error {
	if s.pool.destroyed {
		s.pool.dev.violate("write to descriptor set of destroyed pool %d", s.pool.ID)
	}
	s.Writes = append(s.Writes, writes...)
	return nil
}

type CommandPool struct {
	object
	Family    int
	Transient bool
	Buffers   []*CommandBuffer
}

func (p *CommandPool) Allocate(count int) ([]gpu.CommandBuffer, error) {
	out := make([]gpu.CommandBuffer, 0, count)
	for i := 0; i < count; i++ {
		p.dev.nextID++
		p.dev.live["command-buffer"]++
		cb := &CommandBuffer{pool: p, ID: p.dev.nextID}
		p.Buffers = append(p.Buffers, cb)
		out = append(out, cb)
	}
	p.dev.call("allocate:command-buffer:%d", count)
	return out, nil
}

func (p *CommandPool) Free(buffers ...gpu.CommandBuffer) {
	for _, b := range buffers {
		cb := b.(*CommandBuffer)
		if cb.freed {
			p.dev.violate("double free of command buffer %d", cb.ID)
			continue
		}
		cb.freed = true
		p.dev.live["command-buffer"]--
	}
	p.dev.call("free:command-buffer:%d", len(buffers))
}

func (p *CommandPool) Destroy() {
	for _, cb := range p.Buffers {
		if !cb.freed {
			cb.freed = true
			p.dev.live["command-buffer"]--
		}
	}
	p.object.Destroy()
}
