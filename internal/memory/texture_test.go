package memory

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/minirender/internal/gpu"
	"github.com/vkngwrapper/minirender/internal/gpu/gputest"
)

func TestMipLevels(t *testing.T) {
	require.Equal(t, 1, MipLevels(1, 1))
	require.Equal(t, 3, MipLevels(4, 4))
	require.Equal(t, 10, MipLevels(512, 300))
	require.Equal(t, 11, MipLevels(1024, 1))
}

func checker(width, height int) []byte {
	pixels := make([]byte, width*height*4)
	for i := range pixels {
		pixels[i] = byte(i)
	}
	return pixels
}

func TestUploadTextureGeneratesMipmaps(t *testing.T) {
	alloc, _, dev := newAllocator(t)

	pixels := checker(4, 4)
	image, err := alloc.UploadTexture(4, 4, pixels, core1_0.FormatR8G8B8A8SRGB)
	require.NoError(t, err)
	require.Equal(t, 3, image.MipLevels)

	handle := image.Handle.(*gputest.Image)
	require.Equal(t, 2, handle.Blits)
	require.Equal(t, pixels, handle.Memory.Data[:len(pixels)])
	require.Equal(t, core1_0.ImageLayoutTransferDstOptimal, handle.Layouts[0])
	require.Equal(t, core1_0.ImageLayoutShaderReadOnlyOptimal, handle.Layouts[len(handle.Layouts)-1])

	// The staging buffer is gone, the image and its memory remain.
	require.Zero(t, dev.Live()["buffer"])
	require.Equal(t, 1, dev.Live()["image"])
	require.Equal(t, 1, dev.Live()["memory"])

	image.Destroy()
	require.Zero(t, dev.Live()["image"])
	require.Empty(t, dev.Violations)
}

func TestUploadTextureWithoutLinearFiltering(t *testing.T) {
	alloc, pd, _ := newAllocator(t)
	pd.Formats = map[core1_0.Format]*core1_0.FormatProperties{
		core1_0.FormatR8G8B8A8SRGB: {OptimalTilingFeatures: core1_0.FormatFeatureSampledImage},
	}

	image, err := alloc.UploadTexture(8, 8, checker(8, 8), core1_0.FormatR8G8B8A8SRGB)
	require.NoError(t, err)
	require.Equal(t, 1, image.MipLevels)
	require.Zero(t, image.Handle.(*gputest.Image).Blits)
}

func TestUploadTextureValidatesPixels(t *testing.T) {
	alloc, _, dev := newAllocator(t)

	_, err := alloc.UploadTexture(4, 4, make([]byte, 10), core1_0.FormatR8G8B8A8SRGB)
	require.True(t, errors.Is(err, gpu.ErrResourceAllocation))
	require.Zero(t, dev.Count("create:buffer"))
	require.Zero(t, dev.Count("create:image"))
}
