package canvas

import (
	"image"
	"log"

	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/common"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_surface"
	"github.com/vkngwrapper/extensions/khr_swapchain"
	"github.com/vkngwrapper/raytracer/gpu"
	"github.com/vkngwrapper/raytracer/loader"
)

// CaptureFormat is the format of the capture image, matching the PNG byte order.
const CaptureFormat = core1_0.FormatR8G8B8A8UnsignedNormalized

// ClearColor is the color the output image is cleared to before every dispatch.
var ClearColor = core1_0.ClearValueFloat{0, 0, 0, 1}

type vulkanBackend struct {
	ctx         *gpu.Context
	logger      *log.Logger
	window      *sdl.Window
	presentMode PresentMode

	surface            khr_surface.Surface
	swapchainExtension khr_swapchain.Extension
	swapchain          khr_swapchain.Swapchain
	swapchainImages    []core1_0.Image
	swapchainFormat    core1_0.Format
	swapchainExtent    Resolution

	program  *loader.Program
	pipeline core1_0.Pipeline

	commandBuffer  core1_0.CommandBuffer
	imageAvailable core1_0.Semaphore
	renderFinished core1_0.Semaphore
	inFlight       core1_0.Fence
	// pending is set while a submission has not been waited for.
	pending bool

	captureImage  *gpu.Image
	captureBuffer *gpu.Buffer

	retired []func()
}

func newVulkanBackend(ctx *gpu.Context, window *sdl.Window, surface khr_surface.Surface, program *loader.Program, cfg Config) (*vulkanBackend, error) {
	b := &vulkanBackend{
		ctx:                ctx,
		logger:             cfg.Logger,
		window:             window,
		presentMode:        cfg.PresentMode,
		surface:            surface,
		swapchainExtension: khr_swapchain.CreateExtensionFromDevice(ctx.Device),
		program:            program,
	}

	supported, _, err := surface.PhysicalDeviceSurfaceSupport(ctx.PhysicalDevice, ctx.QueueFamily)
	if err != nil {
		return nil, gpu.Fatal(err)
	}
	if !supported {
		return nil, gpu.Fatal(errors.New("the graphics queue cannot present to the window surface"))
	}

	err = b.createPipeline()
	if err != nil {
		b.Destroy()
		return nil, gpu.Fatal(err)
	}

	err = b.createCommandBuffer()
	if err != nil {
		b.Destroy()
		return nil, err
	}

	err = b.createSyncObjects()
	if err != nil {
		b.Destroy()
		return nil, err
	}

	_, err = b.RecreateSwapchain(b.WindowSize())
	if err != nil {
		b.Destroy()
		return nil, gpu.Fatal(err)
	}

	return b, nil
}

func (b *vulkanBackend) createPipeline() error {
	pipelines, _, err := b.ctx.Device.CreateComputePipelines(nil, nil, []core1_0.ComputePipelineCreateInfo{
		{
			Stage:             b.program.Stage(),
			Layout:            b.program.PipelineLayout,
			BasePipelineIndex: -1,
		},
	})
	if err != nil {
		return errors.Wrap(err, "failed to create compute pipeline")
	}

	b.pipeline = pipelines[0]
	return nil
}

func (b *vulkanBackend) createCommandBuffer() error {
	buffers, _, err := b.ctx.Device.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        b.ctx.CommandPool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	})
	if err != nil {
		return err
	}

	b.commandBuffer = buffers[0]
	return nil
}

func (b *vulkanBackend) createSyncObjects() error {
	var err error
	b.imageAvailable, _, err = b.ctx.Device.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
	if err != nil {
		return err
	}

	b.renderFinished, _, err = b.ctx.Device.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
	if err != nil {
		return err
	}

	b.inFlight, _, err = b.ctx.Device.CreateFence(nil, core1_0.FenceCreateInfo{
		Flags: core1_0.FenceCreateSignaled,
	})
	return err
}

func (b *vulkanBackend) WindowSize() Resolution {
	w, h := b.window.VulkanGetDrawableSize()
	if (b.window.GetFlags() & sdl.WINDOW_MINIMIZED) != 0 {
		return Resolution{}
	}
	return Resolution{Width: int(w), Height: int(h)}
}

func (b *vulkanBackend) chooseSurfaceFormat(availableFormats []khr_surface.Format) (khr_surface.Format, error) {
	if len(availableFormats) == 0 {
		return khr_surface.Format{}, errors.New("surface reports no formats")
	}

	for _, format := range availableFormats {
		if format.Format == core1_0.FormatB8G8R8A8UnsignedNormalized && format.ColorSpace == khr_surface.ColorSpaceSRGBNonlinear {
			return format, nil
		}
	}

	return availableFormats[0], nil
}

func (b *vulkanBackend) choosePresentMode(availablePresentModes []khr_surface.PresentMode) khr_surface.PresentMode {
	var preferred khr_surface.PresentMode
	switch b.presentMode {
	case PresentMailbox:
		preferred = khr_surface.PresentModeMailbox
	case PresentFIFO:
		return khr_surface.PresentModeFIFO
	default:
		preferred = khr_surface.PresentModeImmediate
	}

	for _, presentMode := range availablePresentModes {
		if presentMode == preferred {
			return presentMode
		}
	}

	return khr_surface.PresentModeFIFO
}

// chooseExtent fails with ErrUnsupportedDimensions when the surface cannot take a
// swapchain of the window size right now.
func chooseExtent(capabilities *khr_surface.Capabilities, window Resolution) (Resolution, error) {
	extent := window
	if capabilities.CurrentExtent.Width != -1 {
		extent = Resolution{Width: capabilities.CurrentExtent.Width, Height: capabilities.CurrentExtent.Height}
	}

	if extent.Empty() ||
		extent.Width < capabilities.MinImageExtent.Width || extent.Width > capabilities.MaxImageExtent.Width ||
		extent.Height < capabilities.MinImageExtent.Height || extent.Height > capabilities.MaxImageExtent.Height {
		return Resolution{}, errors.Wrapf(ErrUnsupportedDimensions, "%dx%d", extent.Width, extent.Height)
	}
	return extent, nil
}

func (b *vulkanBackend) RecreateSwapchain(window Resolution) (Resolution, error) {
	capabilities, _, err := b.surface.PhysicalDeviceSurfaceCapabilities(b.ctx.PhysicalDevice)
	if err != nil {
		return Resolution{}, err
	}

	extent, err := chooseExtent(capabilities, window)
	if err != nil {
		return Resolution{}, err
	}

	formats, _, err := b.surface.PhysicalDeviceSurfaceFormats(b.ctx.PhysicalDevice)
	if err != nil {
		return Resolution{}, err
	}
	surfaceFormat, err := b.chooseSurfaceFormat(formats)
	if err != nil {
		return Resolution{}, err
	}

	presentModes, _, err := b.surface.PhysicalDeviceSurfacePresentModes(b.ctx.PhysicalDevice)
	if err != nil {
		return Resolution{}, err
	}

	imageCount := capabilities.MinImageCount + 1
	if capabilities.MaxImageCount > 0 && capabilities.MaxImageCount < imageCount {
		imageCount = capabilities.MaxImageCount
	}

	err = b.ctx.WaitIdle()
	if err != nil {
		return Resolution{}, err
	}
	b.pending = false

	swapchain, _, err := b.swapchainExtension.CreateSwapchain(b.ctx.Device, nil, khr_swapchain.SwapchainCreateInfo{
		Surface: b.surface,

		MinImageCount:    imageCount,
		ImageFormat:      surfaceFormat.Format,
		ImageColorSpace:  surfaceFormat.ColorSpace,
		ImageExtent:      core1_0.Extent2D{Width: extent.Width, Height: extent.Height},
		ImageArrayLayers: 1,
		ImageUsage:       core1_0.ImageUsageTransferDst | core1_0.ImageUsageColorAttachment,

		ImageSharingMode: core1_0.SharingModeExclusive,

		PreTransform:   capabilities.CurrentTransform,
		CompositeAlpha: khr_surface.CompositeAlphaOpaque,
		PresentMode:    b.choosePresentMode(presentModes),
		Clipped:        true,
		OldSwapchain:   b.swapchain,
	})
	if err != nil {
		return Resolution{}, err
	}

	if b.swapchain != nil {
		b.swapchain.Destroy(nil)
	}
	b.swapchain = swapchain

	b.swapchainImages, _, err = swapchain.SwapchainImages()
	if err != nil {
		return Resolution{}, err
	}
	b.swapchainFormat = surfaceFormat.Format
	b.swapchainExtent = extent

	b.logger.Printf("Created swapchain with %d images using format %s", len(b.swapchainImages), b.swapchainFormat)
	return extent, nil
}

func (b *vulkanBackend) ResizeCapture(window Resolution) error {
	if b.captureImage != nil {
		b.captureImage.Destroy()
		b.captureImage = nil
	}
	if b.captureBuffer != nil {
		b.captureBuffer.Destroy()
		b.captureBuffer = nil
	}

	img, err := b.ctx.CreateImage(window.Width, window.Height, CaptureFormat, core1_0.ImageUsageTransferSrc|core1_0.ImageUsageTransferDst)
	if err != nil {
		return err
	}

	err = b.ctx.RunOnce(func(buffer core1_0.CommandBuffer) error {
		return gpu.RecordTransition(buffer, gpu.Transition{
			Image:     img.Handle(),
			OldLayout: core1_0.ImageLayoutUndefined,
			NewLayout: core1_0.ImageLayoutGeneral,
			DstAccess: core1_0.AccessTransferWrite,
			SrcStage:  core1_0.PipelineStageTopOfPipe,
			DstStage:  core1_0.PipelineStageTransfer,
		})
	})
	if err != nil {
		img.Destroy()
		return err
	}

	buffer, err := b.ctx.NewHostBuffer(core1_0.BufferUsageTransferDst, window.Width*window.Height, 4)
	if err != nil {
		img.Destroy()
		return err
	}

	b.captureImage = img
	b.captureBuffer = buffer
	return nil
}

func (b *vulkanBackend) ReadCapture() (*image.RGBA, error) {
	if b.captureImage == nil {
		return nil, errors.New("no capture image")
	}

	width, height := b.captureImage.Width, b.captureImage.Height
	err := b.ctx.RunOnce(func(buffer core1_0.CommandBuffer) error {
		err := gpu.RecordTransition(buffer, gpu.Transition{
			Image:     b.captureImage.Handle(),
			OldLayout: core1_0.ImageLayoutGeneral,
			NewLayout: core1_0.ImageLayoutGeneral,
			SrcAccess: core1_0.AccessTransferWrite,
			DstAccess: core1_0.AccessTransferRead,
			SrcStage:  core1_0.PipelineStageTransfer,
			DstStage:  core1_0.PipelineStageTransfer,
		})
		if err != nil {
			return err
		}

		return buffer.CmdCopyImageToBuffer(b.captureImage.Handle(), core1_0.ImageLayoutGeneral, b.captureBuffer.Handle(), []core1_0.BufferImageCopy{
			{
				ImageSubresource: gpu.ColorLayers,
				ImageOffset:      core1_0.Offset3D{X: 0, Y: 0, Z: 0},
				ImageExtent:      core1_0.Extent3D{Width: width, Height: height, Depth: 1},
			},
		})
	})
	if err != nil {
		return nil, err
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	err = b.captureBuffer.Read(func(data []byte) error {
		copy(img.Pix, data)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return img, nil
}

func (b *vulkanBackend) Acquire() (int, bool, error) {
	imageIndex, res, err := b.swapchain.AcquireNextImage(common.NoTimeout, b.imageAvailable, nil)
	if res == khr_swapchain.VKErrorOutOfDate {
		return 0, false, ErrOutOfDate
	} else if err != nil {
		return 0, false, err
	}

	return imageIndex, res == khr_swapchain.VKSuboptimal, nil
}

func (b *vulkanBackend) record(cmds frameCommands) error {
	buffer := b.commandBuffer
	output := cmds.Output.Handle()
	swapImage := b.swapchainImages[cmds.ImageIndex]

	_, err := buffer.Begin(core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageOneTimeSubmit,
	})
	if err != nil {
		return err
	}

	buffer.CmdClearColorImage(output, core1_0.ImageLayoutGeneral, ClearColor, []core1_0.ImageSubresourceRange{gpu.ColorRange})

	err = gpu.RecordTransition(buffer, gpu.Transition{
		Image:     output,
		OldLayout: core1_0.ImageLayoutGeneral,
		NewLayout: core1_0.ImageLayoutGeneral,
		SrcAccess: core1_0.AccessTransferWrite,
		DstAccess: core1_0.AccessShaderRead | core1_0.AccessShaderWrite,
		SrcStage:  core1_0.PipelineStageTransfer,
		DstStage:  core1_0.PipelineStageComputeShader,
	})
	if err != nil {
		return err
	}

	sets := make([]core1_0.DescriptorSet, 0, len(cmds.DescriptorSets))
	for _, set := range cmds.DescriptorSets {
		sets = append(sets, set.Handle())
	}

	buffer.CmdBindPipeline(core1_0.PipelineBindPointCompute, b.pipeline)
	buffer.CmdBindDescriptorSets(core1_0.PipelineBindPointCompute, b.program.PipelineLayout, sets, nil)
	if len(cmds.PushConstants) > 0 {
		r := b.program.Layout.PushRanges[0]
		buffer.CmdPushConstants(b.program.PipelineLayout, r.Stages, r.Offset, cmds.PushConstants)
	}
	buffer.CmdDispatch(cmds.Dispatch[0], cmds.Dispatch[1], cmds.Dispatch[2])

	err = gpu.RecordTransition(buffer, gpu.Transition{
		Image:     output,
		OldLayout: core1_0.ImageLayoutGeneral,
		NewLayout: core1_0.ImageLayoutGeneral,
		SrcAccess: core1_0.AccessShaderWrite,
		DstAccess: core1_0.AccessTransferRead,
		SrcStage:  core1_0.PipelineStageComputeShader,
		DstStage:  core1_0.PipelineStageTransfer,
	})
	if err != nil {
		return err
	}

	region := []core1_0.ImageBlit{cmds.Blit.region()}

	if cmds.Capture && b.captureImage != nil {
		err = buffer.CmdBlitImage(output, core1_0.ImageLayoutGeneral, b.captureImage.Handle(), core1_0.ImageLayoutGeneral, region, core1_0.FilterNearest)
		if err != nil {
			return err
		}
	}

	err = gpu.RecordTransition(buffer, gpu.Transition{
		Image:     swapImage,
		OldLayout: core1_0.ImageLayoutUndefined,
		NewLayout: core1_0.ImageLayoutTransferDstOptimal,
		DstAccess: core1_0.AccessTransferWrite,
		SrcStage:  core1_0.PipelineStageTopOfPipe,
		DstStage:  core1_0.PipelineStageTransfer,
	})
	if err != nil {
		return err
	}

	err = buffer.CmdBlitImage(output, core1_0.ImageLayoutGeneral, swapImage, core1_0.ImageLayoutTransferDstOptimal, region, core1_0.FilterNearest)
	if err != nil {
		return err
	}

	err = gpu.RecordTransition(buffer, gpu.Transition{
		Image:     swapImage,
		OldLayout: core1_0.ImageLayoutTransferDstOptimal,
		NewLayout: khr_swapchain.ImageLayoutPresentSrc,
		SrcAccess: core1_0.AccessTransferWrite,
		SrcStage:  core1_0.PipelineStageTransfer,
		DstStage:  core1_0.PipelineStageBottomOfPipe,
	})
	if err != nil {
		return err
	}

	_, err = buffer.End()
	return err
}

// waitPending blocks until the last submission finished.
func (b *vulkanBackend) waitPending() error {
	if !b.pending {
		return nil
	}

	_, err := b.ctx.Device.WaitForFences(true, common.NoTimeout, []core1_0.Fence{b.inFlight})
	if err != nil {
		return err
	}
	b.pending = false
	return nil
}

func (b *vulkanBackend) submit(cmds frameCommands) error {
	err := b.record(cmds)
	if err != nil {
		return err
	}

	_, err = b.ctx.Device.ResetFences([]core1_0.Fence{b.inFlight})
	if err != nil {
		return err
	}

	_, err = b.ctx.Queue.Submit(b.inFlight, []core1_0.SubmitInfo{
		{
			WaitSemaphores:   []core1_0.Semaphore{b.imageAvailable},
			WaitDstStageMask: []core1_0.PipelineStageFlags{core1_0.PipelineStageTransfer},
			CommandBuffers:   []core1_0.CommandBuffer{b.commandBuffer},
			SignalSemaphores: []core1_0.Semaphore{b.renderFinished},
		},
	})
	return err
}

type queueSubmitter interface {
	Submit(fence core1_0.Fence, o []core1_0.SubmitInfo) (common.VkResult, error)
}

// submitAcquired runs submit for a frame whose acquire signals acquired. If submit
// fails, acquired is left signalled by the acquire, so an empty batch waits on it
// to unsignal it before the next acquire reuses it.
func submitAcquired(queue queueSubmitter, acquired core1_0.Semaphore, submit func() error) error {
	err := submit()
	if err == nil {
		return nil
	}

	_, drainErr := queue.Submit(nil, []core1_0.SubmitInfo{
		{
			WaitSemaphores:   []core1_0.Semaphore{acquired},
			WaitDstStageMask: []core1_0.PipelineStageFlags{core1_0.PipelineStageBottomOfPipe},
		},
	})
	if drainErr != nil {
		return errors.CombineErrors(err, errors.Wrap(drainErr, "failed to release the acquired image"))
	}
	return err
}

func (b *vulkanBackend) Render(cmds frameCommands) (bool, error) {
	err := submitAcquired(b.ctx.Queue, b.imageAvailable, func() error {
		if cmds.ImageIndex < 0 || cmds.ImageIndex >= len(b.swapchainImages) {
			return errors.Newf("swapchain image %d out of range", cmds.ImageIndex)
		}
		err := b.waitPending()
		if err != nil {
			return err
		}
		return b.submit(cmds)
	})
	if err != nil {
		return false, err
	}
	b.pending = true

	signal := gpu.FenceSignal(b.inFlight)
	for _, set := range cmds.DescriptorSets {
		set.Retain(signal)
	}

	var presentErr error
	suboptimal := false
	res, err := b.swapchainExtension.QueuePresent(b.ctx.Queue, khr_swapchain.PresentInfo{
		WaitSemaphores: []core1_0.Semaphore{b.renderFinished},
		Swapchains:     []khr_swapchain.Swapchain{b.swapchain},
		ImageIndices:   []int{cmds.ImageIndex},
	})
	if res == khr_swapchain.VKErrorOutOfDate {
		presentErr = ErrOutOfDate
	} else if res == khr_swapchain.VKSuboptimal {
		suboptimal = true
	} else if err != nil {
		presentErr = errors.Wrap(err, "failed to present")
	}

	err = b.waitPending()
	if err != nil {
		return suboptimal, errors.CombineErrors(presentErr, err)
	}

	return suboptimal, presentErr
}

func (b *vulkanBackend) Cleanup() {
	if b.pending {
		res, err := b.inFlight.Status()
		if err != nil || res != core1_0.VKSuccess {
			return
		}
		b.pending = false
	}

	retired := b.retired
	b.retired = nil
	for _, release := range retired {
		if release != nil {
			release()
		}
	}
}

func (b *vulkanBackend) Retire(release func()) {
	b.retired = append(b.retired, release)
}

func (b *vulkanBackend) Destroy() {
	if b.ctx.Device != nil {
		err := b.ctx.WaitIdle()
		if err != nil {
			b.logger.Printf("Failed to wait for the device: %+v", err)
		}
	}
	b.pending = false
	b.Cleanup()

	if b.captureImage != nil {
		b.captureImage.Destroy()
		b.captureImage = nil
	}
	if b.captureBuffer != nil {
		b.captureBuffer.Destroy()
		b.captureBuffer = nil
	}

	if b.inFlight != nil {
		b.inFlight.Destroy(nil)
		b.inFlight = nil
	}
	if b.renderFinished != nil {
		b.renderFinished.Destroy(nil)
		b.renderFinished = nil
	}
	if b.imageAvailable != nil {
		b.imageAvailable.Destroy(nil)
		b.imageAvailable = nil
	}

	if b.commandBuffer != nil {
		b.ctx.Device.FreeCommandBuffers([]core1_0.CommandBuffer{b.commandBuffer})
		b.commandBuffer = nil
	}

	if b.pipeline != nil {
		b.pipeline.Destroy(nil)
		b.pipeline = nil
	}

	if b.swapchain != nil {
		b.swapchain.Destroy(nil)
		b.swapchain = nil
	}
}
