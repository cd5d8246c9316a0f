package memory

import (
	"bytes"
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/minirender/internal/gpu"
)

// Buffer is a buffer handle together with the allocation backing it. It is
// owned by whoever created it and destroyed exactly once.
type Buffer struct {
	Handle     gpu.Buffer
	Memory     gpu.DeviceMemory
	Size       int
	Usage      core1_0.BufferUsageFlags
	Properties core1_0.MemoryPropertyFlags

	destroyed bool
}

// Write encodes data at offset in the buffer's memory, which must be host
// visible. Byte slices are copied as-is; other values are encoded in the
// device byte order.
func (b *Buffer) Write(offset int, data any) error {
	size := binary.Size(data)
	if size < 0 {
		return errors.Newf("cannot encode %T", data)
	}
	if offset < 0 || offset+size > b.Size {
		return errors.Newf("write of %d bytes at %d overflows buffer of %d", size, offset, b.Size)
	}

	buf := &bytes.Buffer{}
	if err := binary.Write(buf, common.ByteOrder, data); err != nil {
		return errors.Wrapf(err, "encode %T", data)
	}

	mapped, err := b.Memory.Map(offset, size)
	if err != nil {
		return errors.Wrap(err, "map buffer memory")
	}
	defer b.Memory.Unmap()

	copy(mapped, buf.Bytes())
	return nil
}

// Read copies the whole buffer out of host-visible memory.
func (b *Buffer) Read() ([]byte, error) {
	mapped, err := b.Memory.Map(0, b.Size)
	if err != nil {
		return nil, errors.Wrap(err, "map buffer memory")
	}
	defer b.Memory.Unmap()

	return append([]byte(nil), mapped...), nil
}

func (b *Buffer) Destroy() {
	if b == nil || b.destroyed {
		return
	}
	b.destroyed = true
	b.Handle.Destroy()
	b.Memory.Free()
}

type Image struct {
	Handle    gpu.Image
	Memory    gpu.DeviceMemory
	Width     int
	Height    int
	MipLevels int
	Format    core1_0.Format

	destroyed bool
}

func (i *Image) Destroy() {
	if i == nil || i.destroyed {
		return
	}
	i.destroyed = true
	i.Handle.Destroy()
	i.Memory.Free()
}
