package gpu

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"
)

// Magenta is the color fresh storage images are cleared to, so that pixels the
// shader never writes stand out.
var Magenta = core1_0.ClearValueFloat{1, 0, 1, 1}

// StorageImageUsage is the usage of an image a compute shader renders into and that
// is later blitted to the screen.
const StorageImageUsage = core1_0.ImageUsageStorage | core1_0.ImageUsageTransferSrc | core1_0.ImageUsageTransferDst

// Image is a single-layer 2D image with a view.
type Image struct {
	Width  int
	Height int
	Format core1_0.Format

	handle  core1_0.Image
	view    core1_0.ImageView
	release func()
}

// Handle returns the Vulkan image.
func (i *Image) Handle() core1_0.Image {
	return i.handle
}

// View returns the image view covering the whole image.
func (i *Image) View() core1_0.ImageView {
	return i.view
}

// Destroy frees the view, the image and its memory.
func (i *Image) Destroy() {
	if i.release != nil {
		i.release()
		i.release = nil
	}
}

// CreateImage allocates a device-local, optimally tiled image in the undefined layout.
// Zero extents are rejected before anything is allocated.
func (c *Context) CreateImage(width, height int, format core1_0.Format, usage core1_0.ImageUsageFlags) (*Image, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Newf("cannot create a %dx%d image", width, height)
	}

	image, _, err := c.Device.CreateImage(nil, core1_0.ImageCreateOptions{
		ImageType: core1_0.ImageType2D,
		Extent: core1_0.Extent3D{
			Width:  width,
			Height: height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        format,
		Tiling:        core1_0.ImageTilingOptimal,
		InitialLayout: core1_0.ImageLayoutUndefined,
		Usage:         usage,
		SharingMode:   core1_0.SharingModeExclusive,
		Samples:       core1_0.Samples1,
	})
	if err != nil {
		return nil, err
	}

	memory, err := c.allocate(image.MemoryRequirements(), core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		image.Destroy(nil)
		return nil, err
	}

	_, err = image.BindImageMemory(memory, 0)
	if err != nil {
		image.Destroy(nil)
		memory.Free(nil)
		return nil, err
	}

	view, _, err := c.Device.CreateImageView(nil, core1_0.ImageViewCreateInfo{
		Image:            image,
		ViewType:         core1_0.ImageViewType2D,
		Format:           format,
		SubresourceRange: ColorRange,
	})
	if err != nil {
		image.Destroy(nil)
		memory.Free(nil)
		return nil, err
	}

	return &Image{
		Width:  width,
		Height: height,
		Format: format,
		handle: image,
		view:   view,
		release: func() {
			view.Destroy(nil)
			image.Destroy(nil)
			memory.Free(nil)
		},
	}, nil
}

// BuildImage creates a storage image the compute shader can write, moves it to the
// general layout and clears it to Magenta once.
func BuildImage(c *Context, width, height int, format core1_0.Format) (*Image, error) {
	image, err := c.CreateImage(width, height, format, StorageImageUsage)
	if err != nil {
		return nil, err
	}

	err = c.RunOnce(func(buffer core1_0.CommandBuffer) error {
		err := RecordTransition(buffer, Transition{
			Image:     image.handle,
			OldLayout: core1_0.ImageLayoutUndefined,
			NewLayout: core1_0.ImageLayoutGeneral,
			DstAccess: core1_0.AccessTransferWrite,
			SrcStage:  core1_0.PipelineStageTopOfPipe,
			DstStage:  core1_0.PipelineStageTransfer,
		})
		if err != nil {
			return err
		}

		buffer.CmdClearColorImage(image.handle, core1_0.ImageLayoutGeneral, Magenta, []core1_0.ImageSubresourceRange{ColorRange})
		return nil
	})
	if err != nil {
		image.Destroy()
		return nil, errors.Wrap(err, "failed to initialize storage image")
	}

	return image, nil
}
