package gpu

import (
	"image"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"
)

// TextureFormat is the format of every sampled texture.
const TextureFormat = core1_0.FormatR8G8B8A8UnsignedNormalized

// Texture is a sampled image with its own linear, repeating sampler.
type Texture struct {
	*Image
	Sampler core1_0.Sampler
}

// Destroy frees the sampler and the image.
func (t *Texture) Destroy() {
	if t.Sampler != nil {
		t.Sampler.Destroy(nil)
		t.Sampler = nil
	}
	t.Image.Destroy()
}

// NewTexture uploads pixels into a device-local image that shaders can sample.
func NewTexture(c *Context, pixels *image.RGBA) (*Texture, error) {
	size := pixels.Bounds().Size()
	if size.X == 0 || size.Y == 0 {
		return nil, errors.New("cannot create an empty texture")
	}

	// Rows of a sub-image are not contiguous in Pix.
	data := make([]byte, 0, size.X*size.Y*4)
	for y := 0; y < size.Y; y++ {
		start := pixels.PixOffset(pixels.Rect.Min.X, pixels.Rect.Min.Y+y)
		data = append(data, pixels.Pix[start:start+size.X*4]...)
	}

	stagingBuffer, stagingMemory, err := c.createBuffer(len(data), core1_0.BufferUsageTransferSrc, core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	if err != nil {
		return nil, err
	}
	defer stagingBuffer.Destroy(nil)
	defer stagingMemory.Free(nil)

	err = writeData(stagingMemory, 0, data)
	if err != nil {
		return nil, err
	}

	img, err := c.CreateImage(size.X, size.Y, TextureFormat, core1_0.ImageUsageTransferDst|core1_0.ImageUsageSampled)
	if err != nil {
		return nil, err
	}

	err = c.RunOnce(func(buffer core1_0.CommandBuffer) error {
		err := RecordTransition(buffer, Transition{
			Image:     img.handle,
			OldLayout: core1_0.ImageLayoutUndefined,
			NewLayout: core1_0.ImageLayoutTransferDstOptimal,
			DstAccess: core1_0.AccessTransferWrite,
			SrcStage:  core1_0.PipelineStageTopOfPipe,
			DstStage:  core1_0.PipelineStageTransfer,
		})
		if err != nil {
			return err
		}

		err = buffer.CmdCopyBufferToImage(stagingBuffer, img.handle, core1_0.ImageLayoutTransferDstOptimal, []core1_0.BufferImageCopy{
			{
				ImageSubresource: ColorLayers,
				ImageOffset:      core1_0.Offset3D{X: 0, Y: 0, Z: 0},
				ImageExtent:      core1_0.Extent3D{Width: size.X, Height: size.Y, Depth: 1},
			},
		})
		if err != nil {
			return err
		}

		return RecordTransition(buffer, Transition{
			Image:     img.handle,
			OldLayout: core1_0.ImageLayoutTransferDstOptimal,
			NewLayout: core1_0.ImageLayoutShaderReadOnlyOptimal,
			SrcAccess: core1_0.AccessTransferWrite,
			DstAccess: core1_0.AccessShaderRead,
			SrcStage:  core1_0.PipelineStageTransfer,
			DstStage:  core1_0.PipelineStageComputeShader,
		})
	})
	if err != nil {
		img.Destroy()
		return nil, errors.Wrap(err, "failed to upload texture")
	}

	sampler, _, err := c.Device.CreateSampler(nil, core1_0.SamplerCreateInfo{
		MagFilter:    core1_0.FilterLinear,
		MinFilter:    core1_0.FilterLinear,
		AddressModeU: core1_0.SamplerAddressModeRepeat,
		AddressModeV: core1_0.SamplerAddressModeRepeat,
		AddressModeW: core1_0.SamplerAddressModeRepeat,

		BorderColor: core1_0.BorderColorIntOpaqueBlack,

		MipmapMode: core1_0.SamplerMipmapModeLinear,
	})
	if err != nil {
		img.Destroy()
		return nil, err
	}

	return &Texture{Image: img, Sampler: sampler}, nil
}
