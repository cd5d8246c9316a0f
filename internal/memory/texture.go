package memory

import (
	"log/slog"
	"math/bits"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/minirender/internal/gpu"
)

// MipLevels is the length of the full mip chain for a width x height image.
func MipLevels(width, height int) int {
	return bits.Len(uint(max(width, height, 1)))
}

// UploadTexture creates a sampled, device-local image from tightly packed
// RGBA8 pixels and leaves it in shader-read-only layout. A full mip chain is
// generated by blitting when the format supports linear filtering with
// optimal tiling; otherwise the image has a single level.
func (a *Allocator) UploadTexture(width, height int, pixels []byte, format core1_0.Format) (*Image, error) {
	if want := width * height * 4; width <= 0 || height <= 0 || len(pixels) != want {
		return nil, errors.Mark(errors.Newf("texture %dx%d needs %d bytes of RGBA8, got %d", width, height, width*height*4, len(pixels)), gpu.ErrResourceAllocation)
	}

	mipLevels := 1
	features := a.physical.FormatProperties(format).OptimalTilingFeatures
	if features&core1_0.FormatFeatureSampledImageFilterLinear != 0 {
		mipLevels = MipLevels(width, height)
	} else {
		a.logger.Warn("texture format does not support linear blitting, skipping mipmaps", slog.Any("format", format))
	}

	staging, err := a.CreateBuffer(len(pixels), core1_0.BufferUsageTransferSrc, HostVisible)
	if err != nil {
		return nil, errors.Wrap(err, "create texture staging buffer")
	}
	defer staging.Destroy()

	if err := staging.Write(0, pixels); err != nil {
		return nil, err
	}

	image, err := a.CreateImage(gpu.ImageInfo{
		Width:     width,
		Height:    height,
		MipLevels: mipLevels,
		Format:    format,
		Tiling:    core1_0.ImageTilingOptimal,
		Usage:     core1_0.ImageUsageTransferSrc | core1_0.ImageUsageTransferDst | core1_0.ImageUsageSampled,
		Samples:   core1_0.Samples1,
	}, core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		return nil, err
	}

	err = a.submitOnce(func(cmd gpu.CommandBuffer) error {
		err := cmd.ImageBarrier(gpu.ImageBarrier{
			Image:     image.Handle,
			Aspect:    core1_0.ImageAspectColor,
			MipLevels: mipLevels,
			OldLayout: core1_0.ImageLayoutUndefined,
			NewLayout: core1_0.ImageLayoutTransferDstOptimal,
			DstAccess: core1_0.AccessTransferWrite,
			SrcStage:  core1_0.PipelineStageTopOfPipe,
			DstStage:  core1_0.PipelineStageTransfer,
		})
		if err != nil {
			return err
		}

		if err := cmd.CopyBufferToImage(staging.Handle, image.Handle, width, height); err != nil {
			return err
		}

		return recordMipmaps(cmd, image)
	})
	if err != nil {
		image.Destroy()
		return nil, errors.Wrap(err, "upload texture")
	}
	return image, nil
}

// recordMipmaps fills levels 1..n-1 from level 0 and moves every level to
// shader-read-only layout. All levels start in transfer-dst layout.
func recordMipmaps(cmd gpu.CommandBuffer, image *Image) error {
	barrier := gpu.ImageBarrier{
		Image:     image.Handle,
		Aspect:    core1_0.ImageAspectColor,
		MipLevels: 1,
	}

	mipWidth, mipHeight := image.Width, image.Height
	for i := 1; i < image.MipLevels; i++ {
		barrier.BaseMip = i - 1
		barrier.OldLayout = core1_0.ImageLayoutTransferDstOptimal
		barrier.NewLayout = core1_0.ImageLayoutTransferSrcOptimal
		barrier.SrcAccess = core1_0.AccessTransferWrite
		barrier.DstAccess = core1_0.AccessTransferRead
		barrier.SrcStage = core1_0.PipelineStageTransfer
		barrier.DstStage = core1_0.PipelineStageTransfer
		if err := cmd.ImageBarrier(barrier); err != nil {
			return err
		}

		nextWidth, nextHeight := max(mipWidth/2, 1), max(mipHeight/2, 1)
		err := cmd.BlitMipLevel(image.Handle, i,
			core1_0.Extent2D{Width: mipWidth, Height: mipHeight},
			core1_0.Extent2D{Width: nextWidth, Height: nextHeight})
		if err != nil {
			return err
		}

		barrier.OldLayout = core1_0.ImageLayoutTransferSrcOptimal
		barrier.NewLayout = core1_0.ImageLayoutShaderReadOnlyOptimal
		barrier.SrcAccess = core1_0.AccessTransferRead
		barrier.DstAccess = core1_0.AccessShaderRead
		barrier.DstStage = core1_0.PipelineStageFragmentShader
		if err := cmd.ImageBarrier(barrier); err != nil {
			return err
		}

		mipWidth, mipHeight = nextWidth, nextHeight
	}

	barrier.BaseMip = image.MipLevels - 1
	barrier.OldLayout = core1_0.ImageLayoutTransferDstOptimal
	barrier.NewLayout = core1_0.ImageLayoutShaderReadOnlyOptimal
	barrier.SrcAccess = core1_0.AccessTransferWrite
	barrier.DstAccess = core1_0.AccessShaderRead
	barrier.SrcStage = core1_0.PipelineStageTransfer
	barrier.DstStage = core1_0.PipelineStageFragmentShader
	return cmd.ImageBarrier(barrier)
}
