// Package memory allocates device memory for buffers and images and moves
// data into device-local resources through host-visible staging buffers.
package memory

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/minirender/internal/gpu"
	"github.com/vkngwrapper/minirender/internal/logging"
)

// ErrUnsupportedMemoryType is returned marked with gpu.ErrResourceAllocation.
var ErrUnsupportedMemoryType = errors.New("failed to find any suitable memory type")

// HostVisible is the property set used for staging and uniform buffers.
const HostVisible = core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent

// FindMemoryType returns the first memory type index allowed by typeBits
// whose property flags include every flag in required.
func FindMemoryType(props *core1_0.PhysicalDeviceMemoryProperties, typeBits uint32, required core1_0.MemoryPropertyFlags) (int, error) {
	for i, memoryType := range props.MemoryTypes {
		typeBit := uint32(1 << i)

		if (typeBits&typeBit) != 0 && (memoryType.PropertyFlags&required) == required {
			return i, nil
		}
	}

	return 0, errors.Mark(errors.Wrapf(ErrUnsupportedMemoryType, "type bits %#x, properties %v", typeBits, required), gpu.ErrResourceAllocation)
}

// Allocator creates memory-backed resources on one device. Transfers run on
// a one-shot command buffer from a transient pool and are waited on before
// the call returns.
type Allocator struct {
	device   gpu.Device
	physical gpu.PhysicalDevice
	props    *core1_0.PhysicalDeviceMemoryProperties
	queue    gpu.Queue
	pool     gpu.CommandPool
	logger   *slog.Logger
}

func NewAllocator(device gpu.Device, physical gpu.PhysicalDevice, queue gpu.Queue, logger *slog.Logger) (*Allocator, error) {
	pool, err := device.CreateCommandPool(queue.Family(), true)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "create transient command pool"), gpu.ErrResourceAllocation)
	}

	return &Allocator{
		device:   device,
		physical: physical,
		props:    physical.MemoryProperties(),
		queue:    queue,
		pool:     pool,
		logger:   logging.Or(logger),
	}, nil
}

// Destroy releases the transient command pool. Resources created by the
// allocator are owned by their callers and must be destroyed separately.
func (a *Allocator) Destroy() {
	if a.pool != nil {
		a.pool.Destroy()
		a.pool = nil
	}
}

func (a *Allocator) CreateBuffer(size int, usage core1_0.BufferUsageFlags, properties core1_0.MemoryPropertyFlags) (*Buffer, error) {
	if size <= 0 {
		return nil, errors.Mark(errors.Newf("invalid buffer size %d", size), gpu.ErrResourceAllocation)
	}

	var cleanup gpu.Cleanup
	defer cleanup.Release()

	handle, err := a.device.CreateBuffer(size, usage)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "create buffer of %d bytes", size), gpu.ErrResourceAllocation)
	}
	cleanup.Push(handle.Destroy)

	mem, typeIndex, err := a.allocate(handle.MemoryRequirements(), properties)
	if err != nil {
		return nil, errors.Wrapf(err, "allocate memory for buffer of %d bytes", size)
	}
	cleanup.Push(mem.Free)

	if err := handle.BindMemory(mem, 0); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "bind buffer memory"), gpu.ErrResourceAllocation)
	}
	cleanup.Disarm()

	a.logger.Debug("Allocator::CreateBuffer",
		slog.Int("size", size),
		slog.Any("usage", usage),
		slog.Int("memoryType", typeIndex))

	return &Buffer{Handle: handle, Memory: mem, Size: size, Usage: usage, Properties: properties}, nil
}

func (a *Allocator) CreateImage(info gpu.ImageInfo, properties core1_0.MemoryPropertyFlags) (*Image, error) {
	if info.Width <= 0 || info.Height <= 0 {
		return nil, errors.Mark(errors.Newf("invalid image extent %dx%d", info.Width, info.Height), gpu.ErrResourceAllocation)
	}
	if info.MipLevels < 1 {
		info.MipLevels = 1
	}
	if info.Samples == 0 {
		info.Samples = core1_0.Samples1
	}

	var cleanup gpu.Cleanup
	defer cleanup.Release()

	handle, err := a.device.CreateImage(info)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "create %dx%d image", info.Width, info.Height), gpu.ErrResourceAllocation)
	}
	cleanup.Push(handle.Destroy)

	mem, typeIndex, err := a.allocate(handle.MemoryRequirements(), properties)
	if err != nil {
		return nil, errors.Wrapf(err, "allocate memory for %dx%d image", info.Width, info.Height)
	}
	cleanup.Push(mem.Free)

	if err := handle.BindMemory(mem, 0); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "bind image memory"), gpu.ErrResourceAllocation)
	}
	cleanup.Disarm()

	a.logger.Debug("Allocator::CreateImage",
		slog.Int("width", info.Width),
		slog.Int("height", info.Height),
		slog.Int("mipLevels", info.MipLevels),
		slog.Any("format", info.Format),
		slog.Int("memoryType", typeIndex))

	return &Image{
		Handle:    handle,
		Memory:    mem,
		Width:     info.Width,
		Height:    info.Height,
		MipLevels: info.MipLevels,
		Format:    info.Format,
	}, nil
}

func (a *Allocator) allocate(req gpu.MemoryRequirements, properties core1_0.MemoryPropertyFlags) (gpu.DeviceMemory, int, error) {
	typeIndex, err := FindMemoryType(a.props, req.MemoryTypeBits, properties)
	if err != nil {
		return nil, 0, err
	}

	mem, err := a.device.AllocateMemory(req.Size, typeIndex)
	if err != nil {
		return nil, 0, errors.Mark(errors.Wrapf(err, "allocate %d bytes from memory type %d", req.Size, typeIndex), gpu.ErrResourceAllocation)
	}
	return mem, typeIndex, nil
}

// submitOnce records a one-shot command buffer, submits it and blocks until
// the queue is idle.
func (a *Allocator) submitOnce(record func(cmd gpu.CommandBuffer) error) error {
	buffers, err := a.pool.Allocate(1)
	if err != nil {
		return errors.Wrap(err, "allocate transfer command buffer")
	}
	cmd := buffers[0]
	defer a.pool.Free(cmd)

	if err := cmd.Begin(core1_0.CommandBufferUsageOneTimeSubmit); err != nil {
		return errors.Wrap(err, "begin transfer command buffer")
	}
	if err := record(cmd); err != nil {
		return err
	}
	if err := cmd.End(); err != nil {
		return errors.Wrap(err, "end transfer command buffer")
	}

	if err := a.queue.Submit(gpu.SubmitInfo{CommandBuffers: []gpu.CommandBuffer{cmd}}, nil); err != nil {
		return errors.Wrap(err, "submit transfer")
	}
	return errors.Wrap(a.queue.WaitIdle(), "wait for transfer")
}

// CopyBuffer copies the first size bytes of src into dst and waits for the
// copy to finish.
func (a *Allocator) CopyBuffer(src, dst *Buffer, size int) error {
	return a.submitOnce(func(cmd gpu.CommandBuffer) error {
		return cmd.CopyBuffer(src.Handle, dst.Handle, size)
	})
}

// UploadViaStaging creates a buffer with the given usage and memory
// properties holding data. The data passes through a host-visible staging
// buffer that is destroyed before returning.
func (a *Allocator) UploadViaStaging(data []byte, usage core1_0.BufferUsageFlags, properties core1_0.MemoryPropertyFlags) (*Buffer, error) {
	if len(data) == 0 {
		return nil, errors.Mark(errors.New("upload of empty data"), gpu.ErrResourceAllocation)
	}

	staging, err := a.CreateBuffer(len(data), core1_0.BufferUsageTransferSrc, HostVisible)
	if err != nil {
		return nil, errors.Wrap(err, "create staging buffer")
	}
	defer staging.Destroy()

	if err := staging.Write(0, data); err != nil {
		return nil, err
	}

	dst, err := a.CreateBuffer(len(data), usage|core1_0.BufferUsageTransferDst, properties)
	if err != nil {
		return nil, err
	}

	if err := a.CopyBuffer(staging, dst, len(data)); err != nil {
		dst.Destroy()
		return nil, err
	}
	return dst, nil
}

// ReadBack returns the contents of buf. Buffers in host-visible memory are
// read directly; anything else must have been created with TransferSrc usage
// and is copied out through a staging buffer.
func (a *Allocator) ReadBack(buf *Buffer) ([]byte, error) {
	if buf.Properties&core1_0.MemoryPropertyHostVisible != 0 {
		return buf.Read()
	}

	staging, err := a.CreateBuffer(buf.Size, core1_0.BufferUsageTransferDst, HostVisible)
	if err != nil {
		return nil, errors.Wrap(err, "create readback buffer")
	}
	defer staging.Destroy()

	if err := a.CopyBuffer(buf, staging, buf.Size); err != nil {
		return nil, err
	}
	return staging.Read()
}
